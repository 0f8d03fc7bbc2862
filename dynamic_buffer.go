package texc

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/texc/gpucore"
)

// bufferOwnership tags who is responsible for a DynamicBuffer's handle.
type bufferOwnership int

const (
	// bufferOwned means the manager allocated the handle and may
	// destroy and reallocate it on growth.
	bufferOwned bufferOwnership = iota

	// bufferBorrowed means the handle was supplied by a caller. The
	// manager never resizes or replaces it; capacity is the caller's
	// responsibility.
	bufferBorrowed
)

// String returns a human-readable name for the ownership tag.
func (o bufferOwnership) String() string {
	switch o {
	case bufferOwned:
		return "Owned"
	case bufferBorrowed:
		return "Borrowed"
	default:
		return "Unknown"
	}
}

// DynamicBuffer is a grow-only GPU buffer slot.
//
// It is the lifetime pattern shared by constant, staging, input, and
// weight buffers: the buffer is (re)allocated only when a requested
// size exceeds current capacity, and never shrinks. Growth recreates
// the buffer in place — old contents are not preserved, so callers
// rewrite payloads after any dispatch that may have grown the buffer.
//
// Ownership is a tagged state, not a convention: an Owned slot may be
// grown by EnsureCapacity, a Borrowed slot (established via Adopt) is
// never mutated internally and only replaced by another explicit Adopt
// or a Reset back to owned mode. Transitions happen only through those
// dedicated operations.
//
// The zero value is an empty owned slot.
type DynamicBuffer struct {
	id        gpucore.BufferID
	size      uint64
	ownership bufferOwnership
}

// ID returns the current buffer handle, or gpucore.InvalidID when the
// slot is empty.
func (b *DynamicBuffer) ID() gpucore.BufferID {
	return b.id
}

// Size returns the current capacity in bytes.
func (b *DynamicBuffer) Size() uint64 {
	return b.size
}

// IsBorrowed reports whether the slot holds a caller-supplied buffer.
func (b *DynamicBuffer) IsBorrowed() bool {
	return b.ownership == bufferBorrowed
}

// EnsureCapacity makes sure an owned slot holds a buffer of at least
// required bytes, allocating exactly required on growth (versioning
// multipliers are applied by the caller before this point; no extra
// headroom is added here).
//
// Returns resized=true when the buffer handle changed, which obliges
// the caller to invalidate any binding set that referenced the old
// handle and to rewrite the buffer's contents.
//
// A Borrowed slot returns ErrBufferBorrowed: capacity of a borrowed
// buffer is the caller's responsibility and is never adjusted here.
func (b *DynamicBuffer) EnsureCapacity(
	device gpucore.Device,
	required uint64,
	usage gputypes.BufferUsage,
	label string,
) (resized bool, err error) {
	if b.ownership == bufferBorrowed {
		return false, ErrBufferBorrowed
	}
	if b.id != gpucore.InvalidID && b.size >= required {
		return false, nil
	}

	id, err := device.CreateBuffer(&gpucore.BufferDesc{
		Label: label,
		Size:  required,
		Usage: usage,
	})
	if err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrBufferCreation, label, err)
	}

	if b.id != gpucore.InvalidID {
		device.DestroyBuffer(b.id)
	}
	b.id = id
	b.size = required
	return true, nil
}

// Adopt switches the slot to a caller-supplied buffer. Any previously
// owned buffer is destroyed; a previously borrowed one is simply
// released back to its owner. The slot is Borrowed afterwards.
func (b *DynamicBuffer) Adopt(device gpucore.Device, id gpucore.BufferID, size uint64) {
	if b.ownership == bufferOwned && b.id != gpucore.InvalidID {
		device.DestroyBuffer(b.id)
	}
	b.id = id
	b.size = size
	b.ownership = bufferBorrowed
}

// Reset returns the slot to empty owned mode, destroying an owned
// buffer and releasing a borrowed one.
func (b *DynamicBuffer) Reset(device gpucore.Device) {
	if b.ownership == bufferOwned && b.id != gpucore.InvalidID {
		device.DestroyBuffer(b.id)
	}
	b.id = gpucore.InvalidID
	b.size = 0
	b.ownership = bufferOwned
}
