package texc

import (
	"hash/fnv"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/texc/gpucore"
)

// ShaderID is a stable, content-derived identity for compute shader
// bytecode. Equal bytecode always yields an equal ShaderID, so cache
// correctness never depends on where the bytecode happens to live in
// memory.
type ShaderID uint64

// ShaderIdentity derives the ShaderID for a bytecode blob using FNV-1a.
// Callers that dispatch the same shader repeatedly should compute this
// once and place it in the descriptor; passes fall back to hashing the
// bytecode on every dispatch when the field is left zero.
func ShaderIdentity(bytecode []byte) ShaderID {
	h := fnv.New64a()
	h.Write(bytecode)
	return ShaderID(h.Sum64())
}

// ComputePassDesc describes one compute dispatch. It is produced by the
// kernel-authoring collaborator; the passes consume it without
// interpreting the bytecode or payload contents.
type ComputePassDesc struct {
	// Shader is the SPIR-V bytecode of the compute kernel.
	Shader []byte

	// ShaderID is the content identity of Shader. Optional; computed
	// via ShaderIdentity when zero.
	ShaderID ShaderID

	// EntryPoint is the kernel entry function. Defaults to "main".
	EntryPoint string

	// DispatchWidth and DispatchHeight are workgroup counts.
	DispatchWidth  uint32
	DispatchHeight uint32

	// Constants is the constant-buffer payload for this dispatch.
	Constants []byte

	// Weights is the optional weight-buffer payload.
	Weights []byte
}

// shaderIdentity resolves the descriptor's shader identity.
func (d *ComputePassDesc) shaderIdentity() ShaderID {
	if d.ShaderID != 0 {
		return d.ShaderID
	}
	return ShaderIdentity(d.Shader)
}

// entryPoint resolves the descriptor's entry point name.
func (d *ComputePassDesc) entryPoint() string {
	if d.EntryPoint == "" {
		return "main"
	}
	return d.EntryPoint
}

// TextureBinding identifies one texture subresource to bind.
type TextureBinding struct {
	// Texture is the texture to bind.
	Texture gpucore.TextureID

	// MipLevel selects the mip level.
	MipLevel uint32

	// Format reinterprets the texel format of the bound view, so one
	// texture can be read as sRGB in one dispatch and linear in the
	// next. Zero inherits the texture's own format.
	Format gputypes.TextureFormat
}

// Range selects a byte range of a latent input stream.
//
// Size <= 0 means "from Offset to the end of the stream".
type Range struct {
	Offset int64
	Size   int64
}

// EntireStream is the Range selecting a whole stream.
var EntireStream = Range{}

// constantBufferAlign is the minimum offset alignment for uniform
// buffer ranges. Each constant-buffer version occupies one aligned
// stride so in-flight dispatches never alias each other's writes.
const constantBufferAlign = 256

// alignUp rounds n up to the next multiple of align (a power of two).
func alignUp(n, align uint64) uint64 {
	return (n + align - 1) &^ (align - 1)
}
