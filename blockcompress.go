package texc

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/texc/gpucore"
)

// DefaultConstantVersions is the constant-buffer version count used
// when a pass config leaves it zero. Versions let several in-flight
// dispatches write distinct constant ranges without a GPU/CPU hazard.
const DefaultConstantVersions = 4

// BlockCompressionConfig configures a BlockCompressionPass.
type BlockCompressionConfig struct {
	// Device is the GPU device. Required.
	Device gpucore.Device

	// UseAccelerationBuffer, when true, adds a raw storage-buffer
	// binding for a compression acceleration structure. The choice is
	// fixed at construction: every ExecuteComputePass call must then
	// pass an acceleration buffer, and must not pass one otherwise.
	UseAccelerationBuffer bool

	// ConstantVersions is the number of constant-buffer versions.
	// If 0, defaults to DefaultConstantVersions.
	ConstantVersions int

	// OutputFormat is the texel format of the storage-texture output
	// binding, matching the compressed block format the kernel writes.
	OutputFormat gputypes.TextureFormat
}

// BlockCompressionPass runs a block-compression kernel over an input
// texture mip, writing a compressed output texture mip.
//
// The pass owns a pipeline cache, a binding cache, and a grow-only
// constant buffer. Repeated dispatches with the same shader and the
// same bound subresources re-record GPU commands without creating any
// new GPU objects.
//
// Thread Safety: not safe for concurrent use. Command recording against
// one pass instance is single-threaded and strictly ordered.
type BlockCompressionPass struct {
	device gpucore.Device

	useAccelerationBuffer bool
	constantVersions      int

	bindingLayout  gpucore.BindGroupLayoutID
	pipelineLayout gpucore.PipelineLayoutID

	pipelines *PipelineCache
	bindings  *BindingCache

	constantBuffer DynamicBuffer
	version        int
}

// Bindings of the block-compression kernel, group 0.
const (
	bcBindingConstants    = 0
	bcBindingInput        = 1
	bcBindingOutput       = 2
	bcBindingAcceleration = 3
)

// NewBlockCompressionPass creates a block-compression pass.
//
// The binding layout is fixed here: constants at binding 0, the input
// texture at 1, the output storage texture at 2, and — only when
// cfg.UseAccelerationBuffer is set — a storage buffer at 3.
func NewBlockCompressionPass(cfg BlockCompressionConfig) (*BlockCompressionPass, error) {
	if cfg.Device == nil {
		return nil, ErrNilDevice
	}
	if !cfg.Device.Capabilities().SupportsCompute {
		return nil, ErrComputeUnsupported
	}
	if cfg.ConstantVersions <= 0 {
		cfg.ConstantVersions = DefaultConstantVersions
	}

	entries := []gpucore.BindGroupLayoutEntry{
		{Binding: bcBindingConstants, Type: gpucore.BindingTypeUniformBuffer},
		{Binding: bcBindingInput, Type: gpucore.BindingTypeSampledTexture},
		{Binding: bcBindingOutput, Type: gpucore.BindingTypeStorageTexture, Format: cfg.OutputFormat},
	}
	if cfg.UseAccelerationBuffer {
		entries = append(entries, gpucore.BindGroupLayoutEntry{
			Binding: bcBindingAcceleration,
			Type:    gpucore.BindingTypeStorageBuffer,
		})
	}

	bindingLayout, err := cfg.Device.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{
		Label:   "block-compression",
		Entries: entries,
	})
	if err != nil {
		return nil, err
	}

	pipelineLayout, err := cfg.Device.CreatePipelineLayout([]gpucore.BindGroupLayoutID{bindingLayout})
	if err != nil {
		cfg.Device.DestroyBindGroupLayout(bindingLayout)
		return nil, err
	}

	return &BlockCompressionPass{
		device:                cfg.Device,
		useAccelerationBuffer: cfg.UseAccelerationBuffer,
		constantVersions:      cfg.ConstantVersions,
		bindingLayout:         bindingLayout,
		pipelineLayout:        pipelineLayout,
		pipelines:             NewPipelineCache(pipelineLayout, "block-compression"),
		bindings:              NewBindingCache("block-compression"),
	}, nil
}

// ExecuteComputePass records one block-compression dispatch on enc.
//
// accel must be a valid buffer iff the pass was constructed with
// UseAccelerationBuffer; a mismatch returns ErrAccelerationBuffer.
// Any pipeline, buffer, or binding failure aborts before recording:
// on error no GPU commands have been added to enc.
func (p *BlockCompressionPass) ExecuteComputePass(
	enc gpucore.CommandEncoder,
	desc *ComputePassDesc,
	input TextureBinding,
	output TextureBinding,
	accel gpucore.BufferID,
) error {
	if (accel != gpucore.InvalidID) != p.useAccelerationBuffer {
		return ErrAccelerationBuffer
	}

	pipeline, err := p.pipelines.GetOrCreate(p.device, desc)
	if err != nil {
		return err
	}

	stride := alignUp(uint64(len(desc.Constants)), constantBufferAlign)
	if stride == 0 {
		stride = constantBufferAlign
	}
	resized, err := p.constantBuffer.EnsureCapacity(
		p.device,
		stride*uint64(p.constantVersions),
		gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst,
		"block-compression-constants",
	)
	if err != nil {
		return err
	}
	if resized {
		// Cached binding sets reference the old constant buffer.
		p.bindings.Clear(p.device)
	}

	p.version = (p.version + 1) % p.constantVersions
	constantOffset := uint64(p.version) * stride

	entries := []gpucore.BindGroupEntry{
		{Binding: bcBindingConstants, Buffer: p.constantBuffer.ID(), Offset: constantOffset, Size: stride},
		{Binding: bcBindingInput, Texture: input.Texture, MipLevel: input.MipLevel, TextureFormat: input.Format},
		{Binding: bcBindingOutput, Texture: output.Texture, MipLevel: output.MipLevel, TextureFormat: output.Format},
	}
	if p.useAccelerationBuffer {
		entries = append(entries, gpucore.BindGroupEntry{
			Binding: bcBindingAcceleration,
			Buffer:  accel,
		})
	}

	group, err := p.bindings.GetOrCreate(p.device, p.bindingLayout, entries)
	if err != nil {
		return err
	}

	// All resources exist; recording cannot fail past this point.
	if len(desc.Constants) > 0 {
		enc.WriteBuffer(p.constantBuffer.ID(), constantOffset, desc.Constants)
	}

	pass := enc.BeginComputePass()
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, group)
	pass.Dispatch(desc.DispatchWidth, desc.DispatchHeight, 1)
	pass.End()

	return nil
}

// ClearCaches drops all cached pipelines and binding sets. Buffers are
// kept; the next dispatch recreates GPU objects on demand.
func (p *BlockCompressionPass) ClearCaches() {
	p.pipelines.Clear(p.device)
	p.bindings.Clear(p.device)
}

// Release destroys every GPU object the pass owns. The pass must not
// be used afterwards.
func (p *BlockCompressionPass) Release() {
	p.ClearCaches()
	p.constantBuffer.Reset(p.device)
	p.device.DestroyPipelineLayout(p.pipelineLayout)
	p.device.DestroyBindGroupLayout(p.bindingLayout)
}
