package texc

import "errors"

// Resource creation errors. Creation failures are surfaced from the
// enclosing call before any GPU commands are recorded; nothing is
// rolled back because nothing was recorded.
var (
	// ErrNilDevice is returned when a pass is constructed without a device.
	ErrNilDevice = errors.New("texc: device is nil")

	// ErrComputeUnsupported is returned when the device reports no compute support.
	ErrComputeUnsupported = errors.New("texc: device does not support compute")

	// ErrPipelineCreation is returned when compute pipeline compilation fails.
	ErrPipelineCreation = errors.New("texc: compute pipeline creation failed")

	// ErrBindGroupCreation is returned when bind group creation fails.
	ErrBindGroupCreation = errors.New("texc: bind group creation failed")

	// ErrBufferCreation is returned when buffer allocation fails.
	ErrBufferCreation = errors.New("texc: buffer creation failed")

	// ErrDescriptorTable is returned for descriptor table failures:
	// creation failure, capacity above the device limit, or a slot
	// write out of range.
	ErrDescriptorTable = errors.New("texc: descriptor table error")
)

// Dispatch and readback errors.
var (
	// ErrEmptyShader is returned when a dispatch descriptor carries no bytecode.
	ErrEmptyShader = errors.New("texc: shader bytecode is empty")

	// ErrStreamIO is returned when seeking or reading latent input data fails.
	ErrStreamIO = errors.New("texc: input stream read failed")

	// ErrBufferBorrowed is returned when an operation would mutate a
	// buffer the pass does not own.
	ErrBufferBorrowed = errors.New("texc: buffer is borrowed, refusing to write")

	// ErrNoBuffer is returned when a dispatch requires a buffer that was
	// never provided, either streamed in or borrowed.
	ErrNoBuffer = errors.New("texc: required buffer has not been set")

	// ErrAccelerationBuffer is returned when the acceleration buffer
	// argument does not match the pass's construction-time choice.
	ErrAccelerationBuffer = errors.New("texc: acceleration buffer does not match pass configuration")

	// ErrInvalidQueryIndex is returned when a query index is out of range.
	ErrInvalidQueryIndex = errors.New("texc: query index out of range")

	// ErrResultsNotRead is returned when a query result is requested
	// before ReadResults has decoded the staging buffer.
	ErrResultsNotRead = errors.New("texc: results not read back, call ReadResults first")

	// ErrReadback is returned when mapping the staging buffer fails.
	ErrReadback = errors.New("texc: staging buffer readback failed")
)
