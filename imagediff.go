package texc

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/texc/gpucore"
)

// ImageDifferenceConfig configures an ImageDifferencePass.
type ImageDifferenceConfig struct {
	// Device is the GPU device. Required.
	Device gpucore.Device

	// MaxQueries is the number of query slots. Required.
	MaxQueries int
}

// QueryResult is the decoded outcome of one image-difference query.
type QueryResult struct {
	// PerChannelMSE holds the mean squared error of each channel.
	PerChannelMSE [ChannelsPerQuery]float64

	// OverallMSE is the unweighted mean of the first `channels`
	// per-channel MSE values requested from GetQueryResult.
	OverallMSE float64

	// PSNR is derived from OverallMSE normalized by the squared
	// maximum signal value. A zero MSE yields MaxPSNR.
	PSNR float64
}

// ImageDifferencePass runs a compare kernel over two texture
// subresources and accumulates per-channel squared-error sums into a
// fixed pool of query slots, read back asynchronously.
//
// The protocol has three phases per slot: dispatch (zero the slot,
// run the kernel, copy the slot to the staging buffer), wait (the
// caller submits the command buffer and waits for the GPU — the pass
// never synchronizes on its own), then ReadResults followed by
// GetQueryResult. Dispatching invalidates previously read results:
// GetQueryResult fails with ErrResultsNotRead until the next
// ReadResults.
//
// Thread Safety: not safe for concurrent use.
type ImageDifferencePass struct {
	device gpucore.Device

	maxQueries int

	bindingLayout  gpucore.BindGroupLayoutID
	pipelineLayout gpucore.PipelineLayoutID

	pipelines *PipelineCache
	bindings  *BindingCache

	constantBuffer DynamicBuffer
	resultsBuffer  gpucore.BufferID
	stagingBuffer  gpucore.BufferID
	version        int

	queryResults []float64
	resultsRead  bool
}

// Bindings of the compare kernel, group 0.
const (
	idBindingConstants = 0
	idBindingTextureA  = 1
	idBindingTextureB  = 2
	idBindingResults   = 3
)

// NewImageDifferencePass creates a pass with cfg.MaxQueries result
// slots. The results and staging buffers are allocated here, sized
// BytesPerQuery times the query count; creation failure fails the
// constructor and leaves no partial state.
func NewImageDifferencePass(cfg ImageDifferenceConfig) (*ImageDifferencePass, error) {
	if cfg.Device == nil {
		return nil, ErrNilDevice
	}
	if !cfg.Device.Capabilities().SupportsCompute {
		return nil, ErrComputeUnsupported
	}
	if cfg.MaxQueries <= 0 {
		return nil, fmt.Errorf("%w: max queries must be positive", ErrInvalidQueryIndex)
	}

	bindingLayout, err := cfg.Device.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{
		Label: "image-difference",
		Entries: []gpucore.BindGroupLayoutEntry{
			{Binding: idBindingConstants, Type: gpucore.BindingTypeUniformBuffer},
			{Binding: idBindingTextureA, Type: gpucore.BindingTypeSampledTexture},
			{Binding: idBindingTextureB, Type: gpucore.BindingTypeSampledTexture},
			{Binding: idBindingResults, Type: gpucore.BindingTypeStorageBuffer},
		},
	})
	if err != nil {
		return nil, err
	}

	pipelineLayout, err := cfg.Device.CreatePipelineLayout([]gpucore.BindGroupLayoutID{bindingLayout})
	if err != nil {
		cfg.Device.DestroyBindGroupLayout(bindingLayout)
		return nil, err
	}

	poolSize := uint64(BytesPerQuery * cfg.MaxQueries)

	resultsBuffer, err := cfg.Device.CreateBuffer(&gpucore.BufferDesc{
		Label: "image-difference-results",
		Size:  poolSize,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		cfg.Device.DestroyPipelineLayout(pipelineLayout)
		cfg.Device.DestroyBindGroupLayout(bindingLayout)
		return nil, fmt.Errorf("%w: results buffer: %v", ErrBufferCreation, err)
	}

	stagingBuffer, err := cfg.Device.CreateBuffer(&gpucore.BufferDesc{
		Label: "image-difference-staging",
		Size:  poolSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		cfg.Device.DestroyBuffer(resultsBuffer)
		cfg.Device.DestroyPipelineLayout(pipelineLayout)
		cfg.Device.DestroyBindGroupLayout(bindingLayout)
		return nil, fmt.Errorf("%w: staging buffer: %v", ErrBufferCreation, err)
	}

	return &ImageDifferencePass{
		device:         cfg.Device,
		maxQueries:     cfg.MaxQueries,
		bindingLayout:  bindingLayout,
		pipelineLayout: pipelineLayout,
		pipelines:      NewPipelineCache(pipelineLayout, "image-difference"),
		bindings:       NewBindingCache("image-difference"),
		resultsBuffer:  resultsBuffer,
		stagingBuffer:  stagingBuffer,
		queryResults:   make([]float64, cfg.MaxQueries*ChannelsPerQuery),
	}, nil
}

// MaxQueries returns the number of query slots.
func (p *ImageDifferencePass) MaxQueries() int {
	return p.maxQueries
}

// OffsetForQuery returns the byte offset of a query's slot in the
// results buffer. The addressing is deterministic and stable; slot
// reuse is not tracked, so a caller must not reuse an index before
// consuming its prior result.
func OffsetForQuery(index int) uint64 {
	return uint64(index) * BytesPerQuery
}

// ExecuteComputePass records one compare dispatch into queryIndex's
// slot on enc.
//
// The slot is zeroed before the dispatch so a prior, unrelated dispatch
// at the same offset can never leak through, and the written slot is
// copied to the staging buffer afterwards. Previously decoded results
// are invalidated: ReadResults must run again before GetQueryResult.
// On error nothing has been recorded.
func (p *ImageDifferencePass) ExecuteComputePass(
	enc gpucore.CommandEncoder,
	desc *ComputePassDesc,
	textureA TextureBinding,
	textureB TextureBinding,
	queryIndex int,
) error {
	if queryIndex < 0 || queryIndex >= p.maxQueries {
		return fmt.Errorf("%w: %d, pool size %d", ErrInvalidQueryIndex, queryIndex, p.maxQueries)
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
		stride*uint64(p.maxQueries),
		gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst,
		"image-difference-constants",
	)
	if err != nil {
		return err
	}
	if resized {
		p.bindings.Clear(p.device)
	}

	p.version = (p.version + 1) % p.maxQueries
	constantOffset := uint64(p.version) * stride

	group, err := p.bindings.GetOrCreate(p.device, p.bindingLayout, []gpucore.BindGroupEntry{
		{Binding: idBindingConstants, Buffer: p.constantBuffer.ID(), Offset: constantOffset, Size: stride},
		{Binding: idBindingTextureA, Texture: textureA.Texture, MipLevel: textureA.MipLevel, TextureFormat: textureA.Format},
		{Binding: idBindingTextureB, Texture: textureB.Texture, MipLevel: textureB.MipLevel, TextureFormat: textureB.Format},
		{Binding: idBindingResults, Buffer: p.resultsBuffer},
	})
	if err != nil {
		return err
	}

	slotOffset := OffsetForQuery(queryIndex)

	var zero [BytesPerQuery]byte
	enc.WriteBuffer(p.resultsBuffer, slotOffset, zero[:])
	if len(desc.Constants) > 0 {
		enc.WriteBuffer(p.constantBuffer.ID(), constantOffset, desc.Constants)
	}

	pass := enc.BeginComputePass()
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, group)
	pass.Dispatch(desc.DispatchWidth, desc.DispatchHeight, 1)
	pass.End()

	enc.CopyBufferToBuffer(p.resultsBuffer, slotOffset, p.stagingBuffer, slotOffset, BytesPerQuery)

	p.resultsRead = false
	return nil
}

// ReadResults maps the staging buffer and decodes every slot's raw
// accumulators into MSE values.
//
// This is the one blocking call of the pass and it does not submit or
// synchronize GPU work: the caller must have submitted the command
// buffer and waited (fence or Device.WaitIdle) before calling, or the
// decoded values are undefined. After a successful return,
// GetQueryResult is valid for every index until the next dispatch.
func (p *ImageDifferencePass) ReadResults() error {
	data, err := p.device.ReadBuffer(p.stagingBuffer, 0, uint64(BytesPerQuery*p.maxQueries))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReadback, err)
	}

	for q := 0; q < p.maxQueries; q++ {
		slot := decodeQuerySlot(data[q*BytesPerQuery : (q+1)*BytesPerQuery])
		copy(p.queryResults[q*ChannelsPerQuery:], slot[:])
	}
	p.resultsRead = true
	return nil
}

// GetQueryResult returns the decoded result of one query.
//
// channels selects how many leading per-channel MSE values are averaged
// into OverallMSE (clamped to ChannelsPerQuery); maxSignalValue is the
// peak signal used for PSNR normalization. Fails with
// ErrInvalidQueryIndex when index is out of range and with
// ErrResultsNotRead when no ReadResults has happened since the last
// dispatch. A slot that was never dispatched decodes to all zeros and
// therefore reports the sentinel maximum PSNR.
func (p *ImageDifferencePass) GetQueryResult(index, channels int, maxSignalValue float64) (QueryResult, error) {
	if index < 0 || index >= p.maxQueries {
		return QueryResult{}, fmt.Errorf("%w: %d, pool size %d", ErrInvalidQueryIndex, index, p.maxQueries)
	}
	if !p.resultsRead {
		return QueryResult{}, ErrResultsNotRead
	}
	if channels <= 0 || channels > ChannelsPerQuery {
		channels = ChannelsPerQuery
	}

	var result QueryResult
	copy(result.PerChannelMSE[:], p.queryResults[index*ChannelsPerQuery:])

	var sum float64
	for ch := 0; ch < channels; ch++ {
		sum += result.PerChannelMSE[ch]
	}
	result.OverallMSE = sum / float64(channels)

	maxSq := maxSignalValue * maxSignalValue
	if maxSq <= 0 {
		maxSq = 1
	}
	result.PSNR = LossToPSNR(result.OverallMSE / maxSq)

	return result, nil
}

// ClearCaches drops all cached pipelines and binding sets.
func (p *ImageDifferencePass) ClearCaches() {
	p.pipelines.Clear(p.device)
	p.bindings.Clear(p.device)
}

// Release destroys every GPU object the pass owns.
func (p *ImageDifferencePass) Release() {
	p.ClearCaches()
	p.constantBuffer.Reset(p.device)
	p.device.DestroyBuffer(p.stagingBuffer)
	p.device.DestroyBuffer(p.resultsBuffer)
	p.device.DestroyPipelineLayout(p.pipelineLayout)
	p.device.DestroyBindGroupLayout(p.bindingLayout)
}
