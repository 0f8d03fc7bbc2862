package texc

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"

	"github.com/gogpu/texc/gpucore"
)

// BindingCache caches bind groups by the structural description of
// their bound resources.
//
// A cache hit requires an exact match over the layout and every entry's
// binding index, buffer identity, buffer range, texture identity, mip
// level, and view format — never pointer identity of the description
// slice. Changing
// any single bound resource produces a new entry; the old one is
// retained until Clear.
//
// The owning pass must Clear the cache whenever a resource that may
// appear in cached entries is recreated or substituted (constant-buffer
// growth, external-buffer swap): the stale entries would otherwise keep
// referencing the old handle.
//
// Thread Safety: not safe for concurrent use; owned exclusively by one
// pass instance.
type BindingCache struct {
	label  string
	groups map[uint64]gpucore.BindGroupID

	hits   uint64
	misses uint64
}

// NewBindingCache creates an empty binding cache.
func NewBindingCache(label string) *BindingCache {
	return &BindingCache{
		label:  label,
		groups: make(map[uint64]gpucore.BindGroupID),
	}
}

// hashBindingSet computes the structural key for a binding description.
func hashBindingSet(layout gpucore.BindGroupLayoutID, entries []gpucore.BindGroupEntry) uint64 {
	h := fnv.New64a()
	var buf [8]byte

	put := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}

	put(uint64(layout))
	for _, e := range entries {
		put(uint64(e.Binding))
		put(uint64(e.Buffer))
		put(e.Offset)
		put(e.Size)
		put(uint64(e.Texture))
		put(uint64(e.MipLevel))
		put(uint64(e.TextureFormat))
	}
	return h.Sum64()
}

// GetOrCreate returns the bind group for the description, creating it
// on first use.
//
// On creation failure nothing is inserted and the error wraps
// ErrBindGroupCreation; the dispatch that requested the group must
// abort without recording GPU commands.
func (c *BindingCache) GetOrCreate(
	device gpucore.Device,
	layout gpucore.BindGroupLayoutID,
	entries []gpucore.BindGroupEntry,
) (gpucore.BindGroupID, error) {
	key := hashBindingSet(layout, entries)
	if group, ok := c.groups[key]; ok {
		c.hits++
		return group, nil
	}
	c.misses++

	group, err := device.CreateBindGroup(layout, entries)
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("%w: %v", ErrBindGroupCreation, err)
	}

	c.groups[key] = group
	return group, nil
}

// Clear destroys all cached bind groups and drops the entries.
func (c *BindingCache) Clear(device gpucore.Device) {
	for key, group := range c.groups {
		device.DestroyBindGroup(group)
		delete(c.groups, key)
	}
}

// Len returns the number of cached bind groups.
func (c *BindingCache) Len() int {
	return len(c.groups)
}

// Stats returns hit and miss counts.
func (c *BindingCache) Stats() (hits, misses uint64) {
	return c.hits, c.misses
}
