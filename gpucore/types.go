package gpucore

import "github.com/gogpu/gputypes"

// Resource IDs
//
// These opaque IDs represent GPU resources. Each device implementation
// maintains a mapping between IDs and actual backend resources.
// IDs are uint64 to accommodate various backend handle sizes.

// BufferID is an opaque handle to a GPU buffer.
type BufferID uint64

// TextureID is an opaque handle to a GPU texture.
type TextureID uint64

// ShaderModuleID is an opaque handle to a compiled shader module.
type ShaderModuleID uint64

// ComputePipelineID is an opaque handle to a compute pipeline.
type ComputePipelineID uint64

// BindGroupLayoutID is an opaque handle to a bind group layout.
type BindGroupLayoutID uint64

// BindGroupID is an opaque handle to a bind group.
type BindGroupID uint64

// PipelineLayoutID is an opaque handle to a pipeline layout.
type PipelineLayoutID uint64

// DescriptorTableID is an opaque handle to a bindless descriptor table.
type DescriptorTableID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// BindingType specifies the type of a shader binding.
type BindingType uint32

// Binding types.
const (
	// BindingTypeUniformBuffer is a uniform buffer binding.
	BindingTypeUniformBuffer BindingType = iota + 1

	// BindingTypeStorageBuffer is a storage buffer binding (read-write).
	BindingTypeStorageBuffer

	// BindingTypeReadOnlyStorageBuffer is a read-only storage buffer binding.
	BindingTypeReadOnlyStorageBuffer

	// BindingTypeSampledTexture is a sampled texture binding.
	BindingTypeSampledTexture

	// BindingTypeStorageTexture is a storage texture binding.
	BindingTypeStorageTexture
)

// String returns a human-readable name for the binding type.
func (t BindingType) String() string {
	switch t {
	case BindingTypeUniformBuffer:
		return "UniformBuffer"
	case BindingTypeStorageBuffer:
		return "StorageBuffer"
	case BindingTypeReadOnlyStorageBuffer:
		return "ReadOnlyStorageBuffer"
	case BindingTypeSampledTexture:
		return "SampledTexture"
	case BindingTypeStorageTexture:
		return "StorageTexture"
	default:
		return "Unknown"
	}
}

// BufferDesc describes a GPU buffer.
type BufferDesc struct {
	// Label is an optional debug label.
	Label string

	// Size is the buffer size in bytes.
	Size uint64

	// Usage specifies how the buffer will be used.
	Usage gputypes.BufferUsage
}

// TextureDesc describes a GPU texture.
type TextureDesc struct {
	// Label is an optional debug label.
	Label string

	// Width and Height are the top-mip dimensions in texels.
	Width  uint32
	Height uint32

	// MipLevels is the number of mip levels. Zero means 1.
	MipLevels uint32

	// Format is the texel format.
	Format gputypes.TextureFormat

	// Usage specifies how the texture will be used.
	Usage gputypes.TextureUsage
}

// ComputePipelineDesc describes a compute pipeline.
type ComputePipelineDesc struct {
	// Label is an optional debug label.
	Label string

	// Layout is the pipeline layout.
	Layout PipelineLayoutID

	// ShaderModule contains the compute shader.
	ShaderModule ShaderModuleID

	// EntryPoint is the name of the shader entry point function.
	EntryPoint string
}

// BindGroupLayoutDesc describes a bind group layout.
type BindGroupLayoutDesc struct {
	// Label is an optional debug label.
	Label string

	// Entries defines the bindings in this layout.
	Entries []BindGroupLayoutEntry
}

// BindGroupLayoutEntry describes a single binding in a bind group layout.
type BindGroupLayoutEntry struct {
	// Binding is the binding index.
	Binding uint32

	// Type is the type of resource bound at this index.
	Type BindingType

	// MinBindingSize is the minimum buffer size for buffer bindings.
	// Set to 0 for non-buffer bindings.
	MinBindingSize uint64

	// Format is the texel format for storage texture bindings.
	Format gputypes.TextureFormat

	// Count is the number of array elements for arrayed bindings
	// (bindless descriptor tables). Zero means a single binding.
	Count uint32
}

// BindGroupEntry describes a single binding in a bind group.
//
// Exactly one of Buffer or Texture must be set. For buffer bindings,
// Offset and Size select the bound range; Size 0 binds the remainder
// of the buffer from Offset. For texture bindings, MipLevel selects
// the bound subresource and TextureFormat may reinterpret its format.
type BindGroupEntry struct {
	// Binding is the binding index.
	Binding uint32

	// Buffer is the buffer to bind (for buffer bindings).
	Buffer BufferID

	// Offset is the offset into the buffer.
	Offset uint64

	// Size is the size of the buffer range to bind.
	Size uint64

	// Texture is the texture to bind (for texture bindings).
	Texture TextureID

	// MipLevel is the mip level to bind (for texture bindings).
	MipLevel uint32

	// TextureFormat reinterprets the texel format of the bound view
	// (sRGB vs linear). Zero inherits the texture's own format.
	TextureFormat gputypes.TextureFormat
}

// Capabilities describes what a device supports. It is returned once
// from Device.Capabilities and threaded explicitly into the components
// that need it; there is no ambient global capability state.
type Capabilities struct {
	// SupportsCompute reports whether compute shaders are available.
	SupportsCompute bool

	// SupportsDP4a reports packed 8-bit dot-product instruction support.
	SupportsDP4a bool

	// SupportsFloat16 reports native 16-bit float arithmetic support.
	SupportsFloat16 bool

	// MaxWorkgroupSize is the maximum workgroup size in each dimension.
	MaxWorkgroupSize [3]uint32

	// MaxBufferSize is the maximum buffer size in bytes.
	MaxBufferSize uint64

	// MaxDescriptorTableSize is the maximum number of slots in a
	// bindless descriptor table. Zero means descriptor tables are
	// not supported.
	MaxDescriptorTableSize uint32
}
