// Package gpucore provides the shared GPU device abstraction for the texc
// dispatch passes.
//
// This package defines the [Device] interface, which abstracts over GPU
// backend implementations so the same cache and dispatch logic works with:
//   - gogpu/wgpu (Pure Go WebGPU via HAL), see backend/wgpu
//   - in-memory mock devices used by tests
//
// # Resource Management
//
// GPU resources are managed via opaque IDs ([BufferID], [TextureID], etc.).
// The [Device] interface provides creation and destruction methods for each
// resource type. Backends are responsible for tracking the mapping between
// IDs and actual GPU resources.
//
// # Capabilities
//
// [Device.Capabilities] returns an explicit [Capabilities] descriptor once
// per device. Components that need feature information receive it at
// construction; there is no process-wide capability state.
//
// # Command Recording
//
// Recording is single-threaded per [CommandEncoder]: a caller opens an
// encoder, threads it through pass calls, finishes it, and submits the
// resulting [CommandBuffer]. GPU execution is asynchronous relative to
// the CPU; [Device.WaitIdle] is the synchronization point before any
// staged readback via [Device.ReadBuffer].
package gpucore
