package texc

import (
	"fmt"

	"github.com/gogpu/texc/gpucore"
)

// PipelineCache caches compiled compute pipelines by shader identity.
//
// Pipeline creation is expensive because it involves shader compilation
// and validation. Each dispatch pass owns one cache bound to the pass's
// fixed pipeline layout; the first dispatch with a given shader compiles,
// every later dispatch with structurally equal bytecode reuses the same
// pipeline. Entries are never evicted — the set of distinct shaders used
// by one pass is small and static — only Clear drops them.
//
// Thread Safety: not safe for concurrent use. A pass instance owns its
// cache exclusively; command recording against one pass is
// single-threaded.
type PipelineCache struct {
	// layout is the fixed pipeline layout every cached pipeline is
	// bound to, chosen at pass construction.
	layout gpucore.PipelineLayoutID

	// label prefixes debug labels of created resources.
	label string

	pipelines map[ShaderID]pipelineEntry

	hits   uint64
	misses uint64
}

// pipelineEntry pairs a pipeline with the shader module it was compiled
// from so Clear can release both.
type pipelineEntry struct {
	pipeline gpucore.ComputePipelineID
	module   gpucore.ShaderModuleID
}

// NewPipelineCache creates an empty cache whose pipelines are bound to
// the given pipeline layout.
func NewPipelineCache(layout gpucore.PipelineLayoutID, label string) *PipelineCache {
	return &PipelineCache{
		layout:    layout,
		label:     label,
		pipelines: make(map[ShaderID]pipelineEntry),
	}
}

// GetOrCreate returns the pipeline for the descriptor's shader,
// compiling it on first use.
//
// On a miss the shader module and pipeline are created together; if
// either step fails, nothing is inserted and the error wraps
// ErrPipelineCreation. A successful call with bytecode equal to a prior
// call's returns the cached pipeline without touching the device.
func (c *PipelineCache) GetOrCreate(device gpucore.Device, desc *ComputePassDesc) (gpucore.ComputePipelineID, error) {
	if len(desc.Shader) == 0 {
		return gpucore.InvalidID, ErrEmptyShader
	}

	id := desc.shaderIdentity()
	if entry, ok := c.pipelines[id]; ok {
		c.hits++
		return entry.pipeline, nil
	}
	c.misses++

	module, err := device.CreateShaderModule(desc.Shader, c.label+"-shader")
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("%w: shader module: %v", ErrPipelineCreation, err)
	}

	pipeline, err := device.CreateComputePipeline(&gpucore.ComputePipelineDesc{
		Label:        c.label + "-pipeline",
		Layout:       c.layout,
		ShaderModule: module,
		EntryPoint:   desc.entryPoint(),
	})
	if err != nil {
		device.DestroyShaderModule(module)
		return gpucore.InvalidID, fmt.Errorf("%w: %v", ErrPipelineCreation, err)
	}

	c.pipelines[id] = pipelineEntry{pipeline: pipeline, module: module}
	return pipeline, nil
}

// Clear destroys all cached pipelines and their shader modules.
func (c *PipelineCache) Clear(device gpucore.Device) {
	for id, entry := range c.pipelines {
		device.DestroyComputePipeline(entry.pipeline)
		device.DestroyShaderModule(entry.module)
		delete(c.pipelines, id)
	}
}

// Len returns the number of cached pipelines.
func (c *PipelineCache) Len() int {
	return len(c.pipelines)
}

// Stats returns hit and miss counts.
func (c *PipelineCache) Stats() (hits, misses uint64) {
	return c.hits, c.misses
}
