// Package wgpu provides a gpucore.Device implementation using gogpu/wgpu.
package wgpu

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/texc/gpucore"
	"github.com/gogpu/wgpu/hal"
	types "github.com/gogpu/gputypes"
)

// maxDescriptorTableSlots caps the size of an emulated descriptor
// table. The HAL has no native bindless path, so tables are emulated
// as per-slot storage-texture bindings; a hard cap keeps the emulated
// layouts bounded.
const maxDescriptorTableSlots = 1024

// fenceTimeout is the wait budget for blocking GPU synchronization.
const fenceTimeout = 5 * time.Second

// HALDevice implements gpucore.Device using gogpu/wgpu/hal directly.
// It bridges the gpucore abstraction and the HAL layer.
//
// Thread Safety: HALDevice is safe for concurrent use from multiple
// goroutines. All resource operations are protected by a mutex.
type HALDevice struct {
	mu     sync.RWMutex
	device hal.Device
	queue  hal.Queue

	caps gpucore.Capabilities

	// ID generation
	nextID atomic.Uint64

	// Resource tracking maps gpucore IDs to hal resources
	buffers          map[gpucore.BufferID]hal.Buffer
	textures         map[gpucore.TextureID]hal.Texture
	shaderModules    map[gpucore.ShaderModuleID]hal.ShaderModule
	computePipelines map[gpucore.ComputePipelineID]hal.ComputePipeline
	bindGroupLayouts map[gpucore.BindGroupLayoutID]hal.BindGroupLayout
	pipelineLayouts  map[gpucore.PipelineLayoutID]hal.PipelineLayout
	bindGroups       map[gpucore.BindGroupID]hal.BindGroup
	tables           map[gpucore.DescriptorTableID]*descriptorTable

	// Texture views are created per bound subresource and cached so
	// that repeated bind groups over the same (texture, mip, format)
	// reuse one view. Destroying the texture destroys its views.
	views map[textureViewKey]hal.TextureView
}

// textureViewKey identifies one cached subresource view.
type textureViewKey struct {
	texture  gpucore.TextureID
	mipLevel uint32
	format   gputypes.TextureFormat
}

// descriptorTable is the emulated bindless table: a fixed slot array
// plus a lazily rebuilt bind group.
type descriptorTable struct {
	layout hal.BindGroupLayout
	slots  []tableSlot
	group  hal.BindGroup
	dirty  bool
}

type tableSlot struct {
	texture  gpucore.TextureID
	mipLevel uint32
}

// NewHALDevice creates a HALDevice wrapping the given device and queue.
// The limits parameter provides the adapter's capability limits; if nil,
// default limits are used.
func NewHALDevice(device hal.Device, queue hal.Queue, limits *types.Limits) *HALDevice {
	var lim types.Limits
	if limits != nil {
		lim = *limits
	} else {
		lim = types.DefaultLimits()
	}

	d := &HALDevice{
		device: device,
		queue:  queue,
		caps: gpucore.Capabilities{
			SupportsCompute: true,
			MaxWorkgroupSize: [3]uint32{
				lim.MaxComputeWorkgroupSizeX,
				lim.MaxComputeWorkgroupSizeY,
				lim.MaxComputeWorkgroupSizeZ,
			},
			MaxBufferSize:          lim.MaxBufferSize,
			MaxDescriptorTableSize: maxDescriptorTableSlots,
		},
		buffers:          make(map[gpucore.BufferID]hal.Buffer),
		textures:         make(map[gpucore.TextureID]hal.Texture),
		shaderModules:    make(map[gpucore.ShaderModuleID]hal.ShaderModule),
		computePipelines: make(map[gpucore.ComputePipelineID]hal.ComputePipeline),
		bindGroupLayouts: make(map[gpucore.BindGroupLayoutID]hal.BindGroupLayout),
		pipelineLayouts:  make(map[gpucore.PipelineLayoutID]hal.PipelineLayout),
		bindGroups:       make(map[gpucore.BindGroupID]hal.BindGroup),
		tables:           make(map[gpucore.DescriptorTableID]*descriptorTable),
		views:            make(map[textureViewKey]hal.TextureView),
	}

	// Start ID generation at 1 (0 is invalid)
	d.nextID.Store(1)

	log.Printf("wgpu: device ready, max buffer size %d, descriptor table cap %d",
		d.caps.MaxBufferSize, d.caps.MaxDescriptorTableSize)

	return d
}

// newID generates a unique resource ID.
func (d *HALDevice) newID() uint64 {
	return d.nextID.Add(1) - 1
}

// Capabilities returns the device capability descriptor.
//
// DP4a and Float16 are reported unsupported: the HAL exposes no feature
// query for them yet, and overreporting would let kernels select
// instruction paths the backend cannot validate.
func (d *HALDevice) Capabilities() gpucore.Capabilities {
	return d.caps
}

// === Shader Compilation ===

// CreateShaderModule creates a shader module from SPIR-V bytecode given
// as little-endian bytes.
func (d *HALDevice) CreateShaderModule(bytecode []byte, label string) (gpucore.ShaderModuleID, error) {
	if len(bytecode) == 0 || len(bytecode)%4 != 0 {
		return gpucore.InvalidID, fmt.Errorf("wgpu: SPIR-V bytecode length %d is not a positive multiple of 4", len(bytecode))
	}

	// SPIR-V is little-endian 32-bit words
	spirv := make([]uint32, len(bytecode)/4)
	for i := range spirv {
		spirv[i] = uint32(bytecode[i*4]) |
			uint32(bytecode[i*4+1])<<8 |
			uint32(bytecode[i*4+2])<<16 |
			uint32(bytecode[i*4+3])<<24
	}

	module, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label: label,
		Source: hal.ShaderSource{
			SPIRV: spirv,
		},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: failed to create shader module: %w", err)
	}

	id := gpucore.ShaderModuleID(d.newID())

	d.mu.Lock()
	d.shaderModules[id] = module
	d.mu.Unlock()

	return id, nil
}

// DestroyShaderModule releases a shader module.
func (d *HALDevice) DestroyShaderModule(id gpucore.ShaderModuleID) {
	d.mu.Lock()
	module, ok := d.shaderModules[id]
	if ok {
		delete(d.shaderModules, id)
	}
	d.mu.Unlock()

	if ok {
		d.device.DestroyShaderModule(module)
	}
}

// === Buffer Management ===

// CreateBuffer creates a GPU buffer.
func (d *HALDevice) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	if desc == nil || desc.Size == 0 {
		return gpucore.InvalidID, fmt.Errorf("wgpu: buffer size must be positive")
	}

	// Copy sizes must be 4-byte aligned
	const copyBufferAlignment = 4
	alignedSize := (desc.Size + copyBufferAlignment - 1) &^ uint64(copyBufferAlignment-1)

	buffer, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  alignedSize,
		Usage: desc.Usage,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: failed to create buffer: %w", err)
	}

	id := gpucore.BufferID(d.newID())

	d.mu.Lock()
	d.buffers[id] = buffer
	d.mu.Unlock()

	return id, nil
}

// DestroyBuffer releases a GPU buffer.
func (d *HALDevice) DestroyBuffer(id gpucore.BufferID) {
	d.mu.Lock()
	buffer, ok := d.buffers[id]
	if ok {
		delete(d.buffers, id)
	}
	d.mu.Unlock()

	if ok {
		d.device.DestroyBuffer(buffer)
	}
}

// ReadBuffer reads data from a buffer through a staging copy.
// This blocks until the GPU has finished the copy.
func (d *HALDevice) ReadBuffer(id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	d.mu.RLock()
	buffer, ok := d.buffers[id]
	d.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("wgpu: buffer %d not found", id)
	}

	stagingBuffer, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "staging-readback",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: failed to create staging buffer: %w", err)
	}
	defer d.device.DestroyBuffer(stagingBuffer)

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "buffer-read-encoder",
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: failed to create command encoder: %w", err)
	}

	if err := encoder.BeginEncoding("buffer-read"); err != nil {
		return nil, fmt.Errorf("wgpu: failed to begin encoding: %w", err)
	}

	encoder.CopyBufferToBuffer(buffer, stagingBuffer, []hal.BufferCopy{
		{
			SrcOffset: offset,
			DstOffset: 0,
			Size:      size,
		},
	})

	cmdBuffer, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("wgpu: failed to end encoding: %w", err)
	}
	defer cmdBuffer.Destroy()

	fence, err := d.device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("wgpu: failed to create fence: %w", err)
	}
	defer d.device.DestroyFence(fence)

	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuffer}, fence, 1); err != nil {
		return nil, fmt.Errorf("wgpu: failed to submit commands: %w", err)
	}

	fenceOK, err := d.device.Wait(fence, 1, fenceTimeout)
	if err != nil {
		return nil, fmt.Errorf("wgpu: failed to wait for fence: %w", err)
	}
	if !fenceOK {
		return nil, fmt.Errorf("wgpu: fence wait timed out after %v", fenceTimeout)
	}

	data := make([]byte, size)
	if err := d.queue.ReadBuffer(stagingBuffer, 0, data); err != nil {
		return nil, fmt.Errorf("wgpu: failed to read staging buffer: %w", err)
	}
	return data, nil
}

// === Texture Management ===

// CreateTexture creates a GPU texture.
func (d *HALDevice) CreateTexture(desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	if desc == nil || desc.Width == 0 || desc.Height == 0 {
		return gpucore.InvalidID, fmt.Errorf("wgpu: texture dimensions must be positive")
	}

	mips := desc.MipLevels
	if mips == 0 {
		mips = 1
	}

	texture, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label: desc.Label,
		Size: hal.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: mips,
		SampleCount:   1,
		Dimension:     types.TextureDimension2D,
		Format:        desc.Format,
		Usage:         desc.Usage,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: failed to create texture: %w", err)
	}

	id := gpucore.TextureID(d.newID())

	d.mu.Lock()
	d.textures[id] = texture
	d.mu.Unlock()

	return id, nil
}

// DestroyTexture releases a GPU texture and every view cached over it.
func (d *HALDevice) DestroyTexture(id gpucore.TextureID) {
	d.mu.Lock()
	texture, ok := d.textures[id]
	if ok {
		delete(d.textures, id)
	}
	var views []hal.TextureView
	for key, view := range d.views {
		if key.texture == id {
			views = append(views, view)
			delete(d.views, key)
		}
	}
	d.mu.Unlock()

	for _, view := range views {
		d.device.DestroyTextureView(view)
	}
	if ok {
		d.device.DestroyTexture(texture)
	}
}

// === Pipeline Management ===

// CreateBindGroupLayout creates a bind group layout.
func (d *HALDevice) CreateBindGroupLayout(desc *gpucore.BindGroupLayoutDesc) (gpucore.BindGroupLayoutID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: nil bind group layout descriptor")
	}

	halEntries := make([]types.BindGroupLayoutEntry, 0, len(desc.Entries))
	for _, entry := range desc.Entries {
		// Arrayed entries (descriptor tables) expand to one binding
		// per slot; the HAL has no arrayed binding type.
		count := entry.Count
		if count == 0 {
			count = 1
		}
		for i := uint32(0); i < count; i++ {
			e := entry
			e.Binding = entry.Binding + i
			halEntries = append(halEntries, convertBindGroupLayoutEntry(e))
		}
	}

	layout, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   desc.Label,
		Entries: halEntries,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: failed to create bind group layout: %w", err)
	}

	id := gpucore.BindGroupLayoutID(d.newID())

	d.mu.Lock()
	d.bindGroupLayouts[id] = layout
	d.mu.Unlock()

	return id, nil
}

// DestroyBindGroupLayout releases a bind group layout.
func (d *HALDevice) DestroyBindGroupLayout(id gpucore.BindGroupLayoutID) {
	d.mu.Lock()
	layout, ok := d.bindGroupLayouts[id]
	if ok {
		delete(d.bindGroupLayouts, id)
	}
	d.mu.Unlock()

	if ok {
		d.device.DestroyBindGroupLayout(layout)
	}
}

// CreatePipelineLayout creates a pipeline layout.
func (d *HALDevice) CreatePipelineLayout(layouts []gpucore.BindGroupLayoutID) (gpucore.PipelineLayoutID, error) {
	d.mu.RLock()
	halLayouts := make([]hal.BindGroupLayout, len(layouts))
	for i, id := range layouts {
		layout, ok := d.bindGroupLayouts[id]
		if !ok {
			d.mu.RUnlock()
			return gpucore.InvalidID, fmt.Errorf("wgpu: bind group layout %d not found", id)
		}
		halLayouts[i] = layout
	}
	d.mu.RUnlock()

	pipelineLayout, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "",
		BindGroupLayouts: halLayouts,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: failed to create pipeline layout: %w", err)
	}

	id := gpucore.PipelineLayoutID(d.newID())

	d.mu.Lock()
	d.pipelineLayouts[id] = pipelineLayout
	d.mu.Unlock()

	return id, nil
}

// DestroyPipelineLayout releases a pipeline layout.
func (d *HALDevice) DestroyPipelineLayout(id gpucore.PipelineLayoutID) {
	d.mu.Lock()
	layout, ok := d.pipelineLayouts[id]
	if ok {
		delete(d.pipelineLayouts, id)
	}
	d.mu.Unlock()

	if ok {
		d.device.DestroyPipelineLayout(layout)
	}
}

// CreateComputePipeline creates a compute pipeline.
func (d *HALDevice) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: nil compute pipeline descriptor")
	}

	d.mu.RLock()
	pipelineLayout, layoutOK := d.pipelineLayouts[desc.Layout]
	shaderModule, moduleOK := d.shaderModules[desc.ShaderModule]
	d.mu.RUnlock()

	if !layoutOK {
		return gpucore.InvalidID, fmt.Errorf("wgpu: pipeline layout %d not found", desc.Layout)
	}
	if !moduleOK {
		return gpucore.InvalidID, fmt.Errorf("wgpu: shader module %d not found", desc.ShaderModule)
	}

	pipeline, err := d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  desc.Label,
		Layout: pipelineLayout,
		Compute: hal.ComputeState{
			Module:     shaderModule,
			EntryPoint: desc.EntryPoint,
		},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: failed to create compute pipeline: %w", err)
	}

	id := gpucore.ComputePipelineID(d.newID())

	d.mu.Lock()
	d.computePipelines[id] = pipeline
	d.mu.Unlock()

	return id, nil
}

// DestroyComputePipeline releases a compute pipeline.
func (d *HALDevice) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	d.mu.Lock()
	pipeline, ok := d.computePipelines[id]
	if ok {
		delete(d.computePipelines, id)
	}
	d.mu.Unlock()

	if ok {
		d.device.DestroyComputePipeline(pipeline)
	}
}

// CreateBindGroup creates a bind group.
func (d *HALDevice) CreateBindGroup(layout gpucore.BindGroupLayoutID, entries []gpucore.BindGroupEntry) (gpucore.BindGroupID, error) {
	d.mu.Lock()
	halLayout, ok := d.bindGroupLayouts[layout]
	if !ok {
		d.mu.Unlock()
		return gpucore.InvalidID, fmt.Errorf("wgpu: bind group layout %d not found", layout)
	}

	halEntries := make([]types.BindGroupEntry, len(entries))
	for i, entry := range entries {
		halEntry, err := d.convertBindGroupEntry(entry)
		if err != nil {
			d.mu.Unlock()
			return gpucore.InvalidID, fmt.Errorf("wgpu: failed to convert bind group entry %d: %w", entry.Binding, err)
		}
		halEntries[i] = halEntry
	}
	d.mu.Unlock()

	bindGroup, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   "",
		Layout:  halLayout,
		Entries: halEntries,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: failed to create bind group: %w", err)
	}

	id := gpucore.BindGroupID(d.newID())

	d.mu.Lock()
	d.bindGroups[id] = bindGroup
	d.mu.Unlock()

	return id, nil
}

// DestroyBindGroup releases a bind group.
func (d *HALDevice) DestroyBindGroup(id gpucore.BindGroupID) {
	d.mu.Lock()
	group, ok := d.bindGroups[id]
	if ok {
		delete(d.bindGroups, id)
	}
	d.mu.Unlock()

	if ok {
		d.device.DestroyBindGroup(group)
	}
}

// === Type Conversion Helpers ===

// convertBindGroupLayoutEntry converts a gpucore layout entry to the
// HAL representation.
func convertBindGroupLayoutEntry(entry gpucore.BindGroupLayoutEntry) types.BindGroupLayoutEntry {
	result := types.BindGroupLayoutEntry{
		Binding:    entry.Binding,
		Visibility: types.ShaderStageCompute,
	}

	switch entry.Type {
	case gpucore.BindingTypeUniformBuffer:
		result.Buffer = &types.BufferBindingLayout{
			Type:           types.BufferBindingTypeUniform,
			MinBindingSize: entry.MinBindingSize,
		}
	case gpucore.BindingTypeStorageBuffer:
		result.Buffer = &types.BufferBindingLayout{
			Type:           types.BufferBindingTypeStorage,
			MinBindingSize: entry.MinBindingSize,
		}
	case gpucore.BindingTypeReadOnlyStorageBuffer:
		result.Buffer = &types.BufferBindingLayout{
			Type:           types.BufferBindingTypeReadOnlyStorage,
			MinBindingSize: entry.MinBindingSize,
		}
	case gpucore.BindingTypeSampledTexture:
		result.Texture = &types.TextureBindingLayout{
			SampleType:    types.TextureSampleTypeFloat,
			ViewDimension: types.TextureViewDimension2D,
		}
	case gpucore.BindingTypeStorageTexture:
		format := entry.Format
		if format == 0 {
			format = gputypes.TextureFormatRGBA8Unorm
		}
		result.StorageTexture = &types.StorageTextureBindingLayout{
			Access:        types.StorageTextureAccessReadWrite,
			Format:        format,
			ViewDimension: types.TextureViewDimension2D,
		}
	}

	return result
}

// convertBindGroupEntry converts a gpucore bind group entry to the HAL
// representation. Must be called with mu held for writing: texture
// entries may populate the view cache.
func (d *HALDevice) convertBindGroupEntry(entry gpucore.BindGroupEntry) (types.BindGroupEntry, error) {
	result := types.BindGroupEntry{
		Binding: entry.Binding,
	}

	// Determine resource type based on which ID is non-zero
	if entry.Buffer != gpucore.InvalidID {
		if _, ok := d.buffers[entry.Buffer]; !ok {
			return result, fmt.Errorf("wgpu: buffer %d not found", entry.Buffer)
		}

		result.Resource = types.BufferBinding{
			Buffer: uintptr(entry.Buffer),
			Offset: entry.Offset,
			Size:   entry.Size,
		}
	} else if entry.Texture != gpucore.InvalidID {
		view, err := d.textureViewLocked(entry.Texture, entry.MipLevel, entry.TextureFormat)
		if err != nil {
			return result, err
		}

		result.Resource = types.TextureViewBinding{
			TextureView: view.NativeHandle(),
		}
	}

	return result, nil
}

// textureViewLocked returns the view over one texture subresource,
// creating and caching it on first use. A zero format inherits the
// texture's own format. Must be called with mu held for writing.
func (d *HALDevice) textureViewLocked(id gpucore.TextureID, mipLevel uint32, format gputypes.TextureFormat) (hal.TextureView, error) {
	key := textureViewKey{texture: id, mipLevel: mipLevel, format: format}
	if view, ok := d.views[key]; ok {
		return view, nil
	}

	texture, ok := d.textures[id]
	if !ok {
		return nil, fmt.Errorf("wgpu: texture %d not found", id)
	}

	view, err := d.device.CreateTextureView(texture, &hal.TextureViewDescriptor{
		Label:         "subresource-view",
		Format:        format,
		Dimension:     types.TextureViewDimension2D,
		Aspect:        types.TextureAspectAll,
		BaseMipLevel:  mipLevel,
		MipLevelCount: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: failed to create texture view: %w", err)
	}

	d.views[key] = view
	return view, nil
}
