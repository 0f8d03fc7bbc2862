package texc

import (
	"fmt"
	"io"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/texc/gpucore"
)

// Limits of the decompression kernel family. One constant-buffer
// version exists per plausible concurrent mip×channel combination so
// per-dispatch constant writes never alias an in-flight version.
const (
	maxMipLevels   = 16
	maxChannelSets = 16

	// decompressionConstantVersions is the constant-buffer version
	// count for DecompressionPass.
	decompressionConstantVersions = maxMipLevels * maxChannelSets
)

// WeightType identifies the layout of network weights requested from a
// WeightSource.
type WeightType int

// Weight types.
const (
	// WeightTypeGenericInt8 is 8-bit integer weights in generic layout.
	WeightTypeGenericInt8 WeightType = iota + 1

	// WeightTypeGenericFP8 is 8-bit float weights in generic layout.
	WeightTypeGenericFP8
)

// String returns a human-readable name for the weight type.
func (t WeightType) String() string {
	switch t {
	case WeightTypeGenericInt8:
		return "GenericInt8"
	case WeightTypeGenericFP8:
		return "GenericFP8"
	default:
		return "Unknown"
	}
}

// WeightSource supplies raw network weights for decompression. It is
// the boundary to the model-description collaborator: the pass only
// sizes and populates its weight buffer from the returned bytes.
type WeightSource interface {
	// InferenceWeights returns the weight bytes for the given type.
	InferenceWeights(typ WeightType) ([]byte, error)
}

// DecompressionConfig configures a DecompressionPass.
type DecompressionConfig struct {
	// Device is the GPU device. Required.
	Device gpucore.Device

	// DescriptorTableSize is the number of bindless output-texture
	// slots. Required; must not exceed the device's
	// MaxDescriptorTableSize capability.
	DescriptorTableSize uint32

	// ConstantVersions is the number of constant-buffer versions. If 0,
	// defaults to one version per concurrent mip×channel combination.
	ConstantVersions int
}

// DecompressionPass runs a decompression kernel that reads a streamed
// latent buffer and a weight buffer and writes decompressed texels
// through a bindless descriptor table of output textures.
//
// The latent input and the weight buffer each support two ownership
// modes: Owned (the pass allocates and grows the buffer, callers
// stream data in through SetInputData / SetWeights) and Borrowed (a
// caller supplies the buffer via SetInputBuffer / SetWeightBuffer and
// retains full responsibility for its contents and capacity).
// Streaming into a borrowed buffer is refused with ErrBufferBorrowed
// rather than silently overwriting memory the pass does not own.
//
// Thread Safety: not safe for concurrent use.
type DecompressionPass struct {
	device gpucore.Device

	bindingLayout  gpucore.BindGroupLayoutID
	bindlessLayout gpucore.BindGroupLayoutID
	pipelineLayout gpucore.PipelineLayoutID

	descriptorTable     gpucore.DescriptorTableID
	descriptorTableSize uint32

	pipelines *PipelineCache
	bindings  *BindingCache

	constantBuffer   DynamicBuffer
	inputBuffer      DynamicBuffer
	weightBuffer     DynamicBuffer
	constantVersions int
	version          int
}

// Bindings of the decompression kernel. Group 0 carries the regular
// resources, group 1 is the bindless output table.
const (
	dcBindingConstants = 0
	dcBindingLatents   = 1
	dcBindingWeights   = 2

	dcBindlessGroup = 1
)

// NewDecompressionPass creates a decompression pass with a bindless
// output table of cfg.DescriptorTableSize slots.
func NewDecompressionPass(cfg DecompressionConfig) (*DecompressionPass, error) {
	if cfg.Device == nil {
		return nil, ErrNilDevice
	}
	caps := cfg.Device.Capabilities()
	if !caps.SupportsCompute {
		return nil, ErrComputeUnsupported
	}
	if cfg.DescriptorTableSize == 0 || cfg.DescriptorTableSize > caps.MaxDescriptorTableSize {
		return nil, fmt.Errorf("%w: table size %d, device limit %d",
			ErrDescriptorTable, cfg.DescriptorTableSize, caps.MaxDescriptorTableSize)
	}
	if cfg.ConstantVersions <= 0 {
		cfg.ConstantVersions = decompressionConstantVersions
	}

	bindingLayout, err := cfg.Device.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{
		Label: "decompression",
		Entries: []gpucore.BindGroupLayoutEntry{
			{Binding: dcBindingConstants, Type: gpucore.BindingTypeUniformBuffer},
			{Binding: dcBindingLatents, Type: gpucore.BindingTypeReadOnlyStorageBuffer},
			{Binding: dcBindingWeights, Type: gpucore.BindingTypeReadOnlyStorageBuffer},
		},
	})
	if err != nil {
		return nil, err
	}

	bindlessLayout, err := cfg.Device.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{
		Label: "decompression-outputs",
		Entries: []gpucore.BindGroupLayoutEntry{
			{Binding: 0, Type: gpucore.BindingTypeStorageTexture, Count: cfg.DescriptorTableSize},
		},
	})
	if err != nil {
		cfg.Device.DestroyBindGroupLayout(bindingLayout)
		return nil, err
	}

	pipelineLayout, err := cfg.Device.CreatePipelineLayout(
		[]gpucore.BindGroupLayoutID{bindingLayout, bindlessLayout})
	if err != nil {
		cfg.Device.DestroyBindGroupLayout(bindlessLayout)
		cfg.Device.DestroyBindGroupLayout(bindingLayout)
		return nil, err
	}

	table, err := cfg.Device.CreateDescriptorTable(cfg.DescriptorTableSize)
	if err != nil {
		cfg.Device.DestroyPipelineLayout(pipelineLayout)
		cfg.Device.DestroyBindGroupLayout(bindlessLayout)
		cfg.Device.DestroyBindGroupLayout(bindingLayout)
		return nil, fmt.Errorf("%w: %v", ErrDescriptorTable, err)
	}

	return &DecompressionPass{
		device:              cfg.Device,
		bindingLayout:       bindingLayout,
		bindlessLayout:      bindlessLayout,
		pipelineLayout:      pipelineLayout,
		descriptorTable:     table,
		descriptorTableSize: cfg.DescriptorTableSize,
		pipelines:           NewPipelineCache(pipelineLayout, "decompression"),
		bindings:            NewBindingCache("decompression"),
		constantVersions:    cfg.ConstantVersions,
	}, nil
}

// SetInputData streams a byte range of latent data into the pass's
// owned input buffer and records the upload on enc.
//
// rng.Size <= 0 selects everything from rng.Offset to the end of the
// stream. Seek or read failures return ErrStreamIO before anything is
// recorded. If the input buffer is currently Borrowed the call is
// refused with ErrBufferBorrowed: the pass must not overwrite memory
// a caller owns.
func (p *DecompressionPass) SetInputData(enc gpucore.CommandEncoder, r io.ReadSeeker, rng Range) error {
	if p.inputBuffer.IsBorrowed() {
		return ErrBufferBorrowed
	}

	size := rng.Size
	if size <= 0 {
		end, err := r.Seek(0, io.SeekEnd)
		if err != nil {
			return fmt.Errorf("%w: seek to end: %v", ErrStreamIO, err)
		}
		size = end - rng.Offset
		if size <= 0 {
			return fmt.Errorf("%w: empty range at offset %d", ErrStreamIO, rng.Offset)
		}
	}

	if _, err := r.Seek(rng.Offset, io.SeekStart); err != nil {
		return fmt.Errorf("%w: seek to %d: %v", ErrStreamIO, rng.Offset, err)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return fmt.Errorf("%w: read %d bytes: %v", ErrStreamIO, size, err)
	}

	resized, err := p.inputBuffer.EnsureCapacity(
		p.device,
		uint64(size),
		gputypes.BufferUsageStorage|gputypes.BufferUsageCopyDst,
		"decompression-latents",
	)
	if err != nil {
		return err
	}
	if resized {
		p.bindings.Clear(p.device)
	}

	enc.WriteBuffer(p.inputBuffer.ID(), 0, data)
	return nil
}

// SetInputBuffer switches the latent input to a caller-supplied buffer.
// The pass will bind it as-is; contents and capacity stay the caller's
// responsibility. Cached binding sets referencing the previous input
// buffer are invalidated.
func (p *DecompressionPass) SetInputBuffer(id gpucore.BufferID, size uint64) {
	p.inputBuffer.Adopt(p.device, id, size)
	p.bindings.Clear(p.device)
}

// SetWeights sizes the owned weight buffer from the source's bytes and
// records the upload on enc. Refused with ErrBufferBorrowed while a
// caller-supplied weight buffer is installed.
func (p *DecompressionPass) SetWeights(enc gpucore.CommandEncoder, src WeightSource, typ WeightType) error {
	if p.weightBuffer.IsBorrowed() {
		return ErrBufferBorrowed
	}

	data, err := src.InferenceWeights(typ)
	if err != nil {
		return fmt.Errorf("%w: weights (%s): %v", ErrStreamIO, typ, err)
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: weight source returned no data (%s)", ErrStreamIO, typ)
	}

	resized, err := p.weightBuffer.EnsureCapacity(
		p.device,
		uint64(len(data)),
		gputypes.BufferUsageStorage|gputypes.BufferUsageCopyDst,
		"decompression-weights",
	)
	if err != nil {
		return err
	}
	if resized {
		p.bindings.Clear(p.device)
	}

	enc.WriteBuffer(p.weightBuffer.ID(), 0, data)
	return nil
}

// SetWeightBuffer switches the weight buffer to a caller-supplied one,
// mirroring SetInputBuffer.
func (p *DecompressionPass) SetWeightBuffer(id gpucore.BufferID, size uint64) {
	p.weightBuffer.Adopt(p.device, id, size)
	p.bindings.Clear(p.device)
}

// WriteDescriptor writes one bindless output slot. Slots may be written
// in any order and at any time relative to dispatches; a write takes
// effect for dispatches recorded after it.
func (p *DecompressionPass) WriteDescriptor(slot uint32, tex TextureBinding) error {
	if slot >= p.descriptorTableSize {
		return fmt.Errorf("%w: slot %d, table size %d", ErrDescriptorTable, slot, p.descriptorTableSize)
	}
	if err := p.device.WriteDescriptorTable(p.descriptorTable, slot, tex.Texture, tex.MipLevel); err != nil {
		return fmt.Errorf("%w: slot %d: %v", ErrDescriptorTable, slot, err)
	}
	return nil
}

// ExecuteComputePass records one decompression dispatch on enc.
//
// The latent input must have been provided beforehand via SetInputData
// or SetInputBuffer, and weights via SetWeights, SetWeightBuffer, or
// the descriptor's Weights payload. The binding set is rebuilt only
// when a referenced buffer changed since the last successful build;
// otherwise the cached one is used. On error nothing has been recorded.
func (p *DecompressionPass) ExecuteComputePass(enc gpucore.CommandEncoder, desc *ComputePassDesc) error {
	if p.inputBuffer.ID() == gpucore.InvalidID {
		return fmt.Errorf("%w: latent input", ErrNoBuffer)
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
		"decompression-constants",
	)
	if err != nil {
		return err
	}
	if resized {
		p.bindings.Clear(p.device)
	}

	// Weights carried in the descriptor populate the owned weight
	// buffer; an installed borrowed buffer is left untouched.
	writeWeights := len(desc.Weights) > 0 && !p.weightBuffer.IsBorrowed()
	if writeWeights {
		resized, err = p.weightBuffer.EnsureCapacity(
			p.device,
			uint64(len(desc.Weights)),
			gputypes.BufferUsageStorage|gputypes.BufferUsageCopyDst,
			"decompression-weights",
		)
		if err != nil {
			return err
		}
		if resized {
			p.bindings.Clear(p.device)
		}
	}
	if p.weightBuffer.ID() == gpucore.InvalidID {
		return fmt.Errorf("%w: weights", ErrNoBuffer)
	}

	p.version = (p.version + 1) % p.constantVersions
	constantOffset := uint64(p.version) * stride

	group, err := p.bindings.GetOrCreate(p.device, p.bindingLayout, []gpucore.BindGroupEntry{
		{Binding: dcBindingConstants, Buffer: p.constantBuffer.ID(), Offset: constantOffset, Size: stride},
		{Binding: dcBindingLatents, Buffer: p.inputBuffer.ID()},
		{Binding: dcBindingWeights, Buffer: p.weightBuffer.ID()},
	})
	if err != nil {
		return err
	}

	if len(desc.Constants) > 0 {
		enc.WriteBuffer(p.constantBuffer.ID(), constantOffset, desc.Constants)
	}
	if writeWeights {
		enc.WriteBuffer(p.weightBuffer.ID(), 0, desc.Weights)
	}

	pass := enc.BeginComputePass()
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, group)
	pass.SetDescriptorTable(dcBindlessGroup, p.descriptorTable)
	pass.Dispatch(desc.DispatchWidth, desc.DispatchHeight, 1)
	pass.End()

	return nil
}

// ClearCaches drops all cached pipelines and binding sets.
func (p *DecompressionPass) ClearCaches() {
	p.pipelines.Clear(p.device)
	p.bindings.Clear(p.device)
}

// Release destroys every GPU object the pass owns, including the
// descriptor table. Borrowed buffers are released, not destroyed.
func (p *DecompressionPass) Release() {
	p.ClearCaches()
	p.constantBuffer.Reset(p.device)
	p.inputBuffer.Reset(p.device)
	p.weightBuffer.Reset(p.device)
	p.device.DestroyDescriptorTable(p.descriptorTable)
	p.device.DestroyPipelineLayout(p.pipelineLayout)
	p.device.DestroyBindGroupLayout(p.bindlessLayout)
	p.device.DestroyBindGroupLayout(p.bindingLayout)
}
