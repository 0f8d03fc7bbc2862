package gpucore

// Device abstracts over different GPU backend implementations.
//
// This interface is the boundary between the dispatch-pass layer and
// the graphics API. The passes treat it as an opaque capability
// provider: resource creation, command recording, and staged readback
// are the only operations they issue, and nothing above this interface
// depends on a specific backend's quirks.
//
// Resource lifecycle:
//   - Resources are created via Create* methods
//   - Resources must be explicitly destroyed via Destroy* methods
//   - Destroying a resource while in use is undefined behavior
//   - IDs become invalid after destruction and must not be reused
//
// Thread Safety: implementations must be safe for concurrent use.
// Callers that share a Device across pass instances rely on this;
// the passes themselves are single-owner and unsynchronized.
type Device interface {
	// Capabilities returns the device's capability descriptor.
	// The result is fixed for the lifetime of the device.
	Capabilities() Capabilities

	// === Shader Compilation ===

	// CreateShaderModule creates a shader module from SPIR-V bytecode
	// given as little-endian bytes. Returns the module ID or an error
	// if the backend rejects the bytecode.
	CreateShaderModule(bytecode []byte, label string) (ShaderModuleID, error)

	// DestroyShaderModule releases a shader module.
	DestroyShaderModule(id ShaderModuleID)

	// === Pipeline Management ===

	// CreateBindGroupLayout creates a bind group layout.
	CreateBindGroupLayout(desc *BindGroupLayoutDesc) (BindGroupLayoutID, error)

	// DestroyBindGroupLayout releases a bind group layout.
	DestroyBindGroupLayout(id BindGroupLayoutID)

	// CreatePipelineLayout creates a pipeline layout from bind group
	// layouts, in group order.
	CreatePipelineLayout(layouts []BindGroupLayoutID) (PipelineLayoutID, error)

	// DestroyPipelineLayout releases a pipeline layout.
	DestroyPipelineLayout(id PipelineLayoutID)

	// CreateComputePipeline creates a compute pipeline.
	CreateComputePipeline(desc *ComputePipelineDesc) (ComputePipelineID, error)

	// DestroyComputePipeline releases a compute pipeline.
	DestroyComputePipeline(id ComputePipelineID)

	// CreateBindGroup creates a bind group binding concrete resources
	// against a layout.
	CreateBindGroup(layout BindGroupLayoutID, entries []BindGroupEntry) (BindGroupID, error)

	// DestroyBindGroup releases a bind group.
	DestroyBindGroup(id BindGroupID)

	// === Buffer Management ===

	// CreateBuffer creates a GPU buffer.
	CreateBuffer(desc *BufferDesc) (BufferID, error)

	// DestroyBuffer releases a GPU buffer.
	DestroyBuffer(id BufferID)

	// ReadBuffer reads size bytes from the buffer starting at offset.
	// This is a blocking staged readback: the implementation copies
	// through a CPU-mappable staging buffer and waits for the copy.
	// It does not submit previously recorded command encoders; the
	// caller must have submitted and waited on any GPU work whose
	// results it expects to observe.
	ReadBuffer(id BufferID, offset, size uint64) ([]byte, error)

	// === Texture Management ===

	// CreateTexture creates a GPU texture.
	CreateTexture(desc *TextureDesc) (TextureID, error)

	// DestroyTexture releases a GPU texture.
	DestroyTexture(id TextureID)

	// === Descriptor Tables ===

	// CreateDescriptorTable creates a bindless descriptor table with a
	// fixed number of texture slots. Fails if capacity exceeds
	// Capabilities.MaxDescriptorTableSize.
	CreateDescriptorTable(capacity uint32) (DescriptorTableID, error)

	// DestroyDescriptorTable releases a descriptor table.
	DestroyDescriptorTable(id DescriptorTableID)

	// WriteDescriptorTable writes one texture slot in a descriptor
	// table. Slots may be written independently and in any order,
	// including between dispatches that consume the table.
	WriteDescriptorTable(table DescriptorTableID, slot uint32, texture TextureID, mipLevel uint32) error

	// === Command Recording ===

	// CreateCommandEncoder opens a new command encoder. Recording
	// against one encoder is single-threaded and strictly ordered.
	CreateCommandEncoder(label string) (CommandEncoder, error)

	// Submit submits a finished command buffer to the GPU queue.
	// Execution is asynchronous; use WaitIdle to synchronize.
	Submit(cmd CommandBuffer) error

	// WaitIdle blocks until all submitted GPU work has completed.
	WaitIdle() error
}

// CommandEncoder records GPU commands. Encoders are not safe for
// concurrent use; a caller opens one, threads it through pass calls,
// and finishes it for submission.
type CommandEncoder interface {
	// WriteBuffer records a write of data into a buffer at offset, at
	// the current position in the command stream. Writes keep record
	// order relative to dispatches and other writes on this encoder: a
	// dispatch recorded between two writes to one range observes only
	// the first.
	WriteBuffer(id BufferID, offset uint64, data []byte)

	// CopyBufferToBuffer records a buffer-to-buffer copy.
	CopyBufferToBuffer(src BufferID, srcOffset uint64, dst BufferID, dstOffset, size uint64)

	// BeginComputePass begins a compute pass on this encoder.
	BeginComputePass() ComputePassEncoder

	// Finish ends recording and returns the command buffer for Submit.
	// The encoder must not be used after Finish.
	Finish() (CommandBuffer, error)
}

// ComputePassEncoder records commands within a compute pass.
type ComputePassEncoder interface {
	// SetPipeline sets the active compute pipeline.
	SetPipeline(pipeline ComputePipelineID)

	// SetBindGroup sets a bind group at the specified group index.
	SetBindGroup(index uint32, group BindGroupID)

	// SetDescriptorTable binds a descriptor table at the specified
	// group index.
	SetDescriptorTable(index uint32, table DescriptorTableID)

	// Dispatch dispatches compute workgroups.
	Dispatch(x, y, z uint32)

	// End finishes the compute pass.
	End()
}

// CommandBuffer is an opaque finished command stream, produced by
// CommandEncoder.Finish and consumed by Device.Submit.
type CommandBuffer interface {
	// Destroy releases the command buffer. Call after Submit.
	Destroy()
}
