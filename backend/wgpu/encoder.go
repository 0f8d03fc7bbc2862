package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/texc/gpucore"
	"github.com/gogpu/wgpu/hal"
	types "github.com/gogpu/gputypes"
)

// === Descriptor Tables ===

// CreateDescriptorTable creates an emulated bindless table with a
// fixed number of storage-texture slots. Each slot becomes one binding
// in a dedicated layout; the bind group over the slots is rebuilt
// lazily after slot writes.
func (d *HALDevice) CreateDescriptorTable(capacity uint32) (gpucore.DescriptorTableID, error) {
	if capacity == 0 || capacity > maxDescriptorTableSlots {
		return gpucore.InvalidID, fmt.Errorf("wgpu: descriptor table capacity %d out of range (max %d)",
			capacity, maxDescriptorTableSlots)
	}

	entries := make([]types.BindGroupLayoutEntry, capacity)
	for i := uint32(0); i < capacity; i++ {
		entries[i] = types.BindGroupLayoutEntry{
			Binding:    i,
			Visibility: types.ShaderStageCompute,
			StorageTexture: &types.StorageTextureBindingLayout{
				Access:        types.StorageTextureAccessReadWrite,
				Format:        types.TextureFormatRGBA8Unorm,
				ViewDimension: types.TextureViewDimension2D,
			},
		}
	}

	layout, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "descriptor-table",
		Entries: entries,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: failed to create descriptor table layout: %w", err)
	}

	id := gpucore.DescriptorTableID(d.newID())

	d.mu.Lock()
	d.tables[id] = &descriptorTable{
		layout: layout,
		slots:  make([]tableSlot, capacity),
		dirty:  true,
	}
	d.mu.Unlock()

	return id, nil
}

// DestroyDescriptorTable releases a descriptor table.
func (d *HALDevice) DestroyDescriptorTable(id gpucore.DescriptorTableID) {
	d.mu.Lock()
	table, ok := d.tables[id]
	if ok {
		delete(d.tables, id)
	}
	d.mu.Unlock()

	if !ok {
		return
	}
	if table.group != nil {
		d.device.DestroyBindGroup(table.group)
	}
	d.device.DestroyBindGroupLayout(table.layout)
}

// WriteDescriptorTable writes one texture slot. The next bind of the
// table rebuilds its bind group.
func (d *HALDevice) WriteDescriptorTable(id gpucore.DescriptorTableID, slot uint32, texture gpucore.TextureID, mipLevel uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	table, ok := d.tables[id]
	if !ok {
		return fmt.Errorf("wgpu: descriptor table %d not found", id)
	}
	if slot >= uint32(len(table.slots)) {
		return fmt.Errorf("wgpu: descriptor table slot %d out of range (capacity %d)", slot, len(table.slots))
	}
	if _, ok := d.textures[texture]; !ok {
		return fmt.Errorf("wgpu: texture %d not found", texture)
	}

	table.slots[slot] = tableSlot{texture: texture, mipLevel: mipLevel}
	table.dirty = true
	return nil
}

// resolveTable returns the table's bind group, rebuilding it when slot
// writes have invalidated the cached one. Empty slots are skipped; the
// kernel must only address slots that were written.
func (d *HALDevice) resolveTable(id gpucore.DescriptorTableID) (hal.BindGroup, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	table, ok := d.tables[id]
	if !ok {
		return nil, fmt.Errorf("wgpu: descriptor table %d not found", id)
	}
	if !table.dirty && table.group != nil {
		return table.group, nil
	}

	entries := make([]types.BindGroupEntry, 0, len(table.slots))
	for i, slot := range table.slots {
		if slot.texture == gpucore.InvalidID {
			continue
		}
		view, err := d.textureViewLocked(slot.texture, slot.mipLevel, 0)
		if err != nil {
			return nil, err
		}
		entries = append(entries, types.BindGroupEntry{
			Binding: uint32(i),
			Resource: types.TextureViewBinding{
				TextureView: view.NativeHandle(),
			},
		})
	}

	group, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   "descriptor-table",
		Layout:  table.layout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: failed to build descriptor table bind group: %w", err)
	}

	if table.group != nil {
		d.device.DestroyBindGroup(table.group)
	}
	table.group = group
	table.dirty = false
	return group, nil
}

// === Command Recording ===

// CreateCommandEncoder opens a new command encoder.
func (d *HALDevice) CreateCommandEncoder(label string) (gpucore.CommandEncoder, error) {
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: label,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: failed to create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return nil, fmt.Errorf("wgpu: failed to begin encoding: %w", err)
	}

	return &halCommandEncoder{device: d, encoder: encoder}, nil
}

// Submit submits a finished command buffer to the GPU queue.
func (d *HALDevice) Submit(cmd gpucore.CommandBuffer) error {
	halCmd, ok := cmd.(*halCommandBuffer)
	if !ok || halCmd.cmd == nil {
		return fmt.Errorf("wgpu: foreign or finished command buffer")
	}
	if err := d.queue.Submit([]hal.CommandBuffer{halCmd.cmd}, nil, 0); err != nil {
		return fmt.Errorf("wgpu: submit failed: %w", err)
	}
	return nil
}

// WaitIdle blocks until all submitted GPU work has completed.
func (d *HALDevice) WaitIdle() error {
	fence, err := d.device.CreateFence()
	if err != nil {
		return fmt.Errorf("wgpu: failed to create fence: %w", err)
	}
	defer d.device.DestroyFence(fence)

	if err := d.queue.Submit(nil, fence, 1); err != nil {
		return fmt.Errorf("wgpu: failed to submit fence: %w", err)
	}

	fenceOK, err := d.device.Wait(fence, 1, fenceTimeout)
	if err != nil {
		return fmt.Errorf("wgpu: failed to wait for fence: %w", err)
	}
	if !fenceOK {
		return fmt.Errorf("wgpu: fence wait timed out after %v", fenceTimeout)
	}
	return nil
}

// halCommandEncoder implements gpucore.CommandEncoder over hal.
type halCommandEncoder struct {
	device  *HALDevice
	encoder hal.CommandEncoder

	// staging holds one upload buffer per WriteBuffer call. They are
	// handed to the finished command buffer and live until it is
	// destroyed.
	staging []hal.Buffer
}

// WriteBuffer records a buffer upload at the current position in the
// command stream. The data lands in a fresh staging buffer at record
// time and the recorded copy keeps its place between surrounding
// dispatches, so two uploads to the same range on one encoder are
// consumed in record order.
func (e *halCommandEncoder) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) {
	e.device.mu.RLock()
	buffer, ok := e.device.buffers[id]
	e.device.mu.RUnlock()

	if !ok || len(data) == 0 {
		return
	}

	// Copy sizes must be 4-byte aligned; pad the upload. The padding
	// stays inside the destination because CreateBuffer aligns sizes
	// the same way.
	const copyBufferAlignment = 4
	alignedSize := (uint64(len(data)) + copyBufferAlignment - 1) &^ uint64(copyBufferAlignment-1)
	padded := data
	if alignedSize != uint64(len(data)) {
		padded = make([]byte, alignedSize)
		copy(padded, data)
	}

	staging, err := e.device.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "staging-upload",
		Size:  alignedSize,
		Usage: gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return
	}
	e.staging = append(e.staging, staging)

	e.device.queue.WriteBuffer(staging, 0, padded)
	e.encoder.CopyBufferToBuffer(staging, buffer, []hal.BufferCopy{
		{
			SrcOffset: 0,
			DstOffset: offset,
			Size:      alignedSize,
		},
	})
}

// CopyBufferToBuffer records a buffer-to-buffer copy.
func (e *halCommandEncoder) CopyBufferToBuffer(src gpucore.BufferID, srcOffset uint64, dst gpucore.BufferID, dstOffset, size uint64) {
	e.device.mu.RLock()
	srcBuf, srcOK := e.device.buffers[src]
	dstBuf, dstOK := e.device.buffers[dst]
	e.device.mu.RUnlock()

	if !srcOK || !dstOK {
		return
	}

	e.encoder.CopyBufferToBuffer(srcBuf, dstBuf, []hal.BufferCopy{
		{
			SrcOffset: srcOffset,
			DstOffset: dstOffset,
			Size:      size,
		},
	})
}

// BeginComputePass begins a compute pass on this encoder.
func (e *halCommandEncoder) BeginComputePass() gpucore.ComputePassEncoder {
	halPass := e.encoder.BeginComputePass(&hal.ComputePassDescriptor{
		Label: "compute",
	})
	return &halComputePassEncoder{device: e.device, pass: halPass}
}

// Finish ends recording and returns the command buffer, which takes
// over the encoder's staging uploads.
func (e *halCommandEncoder) Finish() (gpucore.CommandBuffer, error) {
	cmd, err := e.encoder.EndEncoding()
	if err != nil {
		for _, buf := range e.staging {
			e.device.device.DestroyBuffer(buf)
		}
		e.staging = nil
		return nil, fmt.Errorf("wgpu: failed to end encoding: %w", err)
	}

	cb := &halCommandBuffer{device: e.device, cmd: cmd, staging: e.staging}
	e.staging = nil
	return cb, nil
}

// halCommandBuffer wraps a finished hal command buffer together with
// the staging buffers its recorded uploads read from.
type halCommandBuffer struct {
	device  *HALDevice
	cmd     hal.CommandBuffer
	staging []hal.Buffer
}

// Destroy releases the command buffer and its staging uploads. Callers
// must not destroy a command buffer whose submission has not completed.
func (b *halCommandBuffer) Destroy() {
	for _, buf := range b.staging {
		b.device.device.DestroyBuffer(buf)
	}
	b.staging = nil
	if b.cmd != nil {
		b.cmd.Destroy()
		b.cmd = nil
	}
}

// halComputePassEncoder implements gpucore.ComputePassEncoder.
type halComputePassEncoder struct {
	device *HALDevice
	pass   hal.ComputePassEncoder
}

// SetPipeline sets the active compute pipeline.
func (e *halComputePassEncoder) SetPipeline(pipeline gpucore.ComputePipelineID) {
	if e.pass == nil {
		return
	}

	e.device.mu.RLock()
	halPipeline, ok := e.device.computePipelines[pipeline]
	e.device.mu.RUnlock()

	if ok {
		e.pass.SetPipeline(halPipeline)
	}
}

// SetBindGroup sets a bind group at the specified index.
func (e *halComputePassEncoder) SetBindGroup(index uint32, group gpucore.BindGroupID) {
	if e.pass == nil {
		return
	}

	e.device.mu.RLock()
	halGroup, ok := e.device.bindGroups[group]
	e.device.mu.RUnlock()

	if ok {
		e.pass.SetBindGroup(index, halGroup, nil)
	}
}

// SetDescriptorTable binds a descriptor table's bind group at the
// specified index, rebuilding it first if slots changed.
func (e *halComputePassEncoder) SetDescriptorTable(index uint32, table gpucore.DescriptorTableID) {
	if e.pass == nil {
		return
	}

	group, err := e.device.resolveTable(table)
	if err != nil {
		return
	}
	e.pass.SetBindGroup(index, group, nil)
}

// Dispatch dispatches compute workgroups.
func (e *halComputePassEncoder) Dispatch(x, y, z uint32) {
	if e.pass == nil {
		return
	}
	e.pass.Dispatch(x, y, z)
}

// End finishes the compute pass.
func (e *halComputePassEncoder) End() {
	if e.pass == nil {
		return
	}
	e.pass.End()
}
