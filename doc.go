// Package texc provides the GPU resource-cache and dispatch layer that
// backs a texture compression, decompression, and quality-measurement
// pipeline.
//
// # Overview
//
// texc is a Pure Go library for the GoGPU ecosystem. It does not contain
// compute kernels: callers bring SPIR-V bytecode (see the shader package
// for a WGSL on-ramp) and texc handles everything around a dispatch —
// caching compiled pipelines by shader content, caching binding sets by
// the structural identity of bound resources, growing constant/input/
// weight buffers on demand, bindless output descriptor tables, and the
// asynchronous GPU-to-CPU readback protocol for per-dispatch MSE/PSNR
// metrics.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/texc"
//	    "github.com/gogpu/texc/gpucore"
//	)
//
//	pass, err := texc.NewImageDifferencePass(texc.ImageDifferenceConfig{
//	    Device:     device,
//	    MaxQueries: 4,
//	})
//	if err != nil {
//	    return err
//	}
//	defer pass.Release()
//
//	enc, _ := device.CreateCommandEncoder("compare")
//	err = pass.ExecuteComputePass(enc, desc,
//	    texc.TextureBinding{Texture: a}, texc.TextureBinding{Texture: b}, 0)
//	cmd, _ := enc.Finish()
//	device.Submit(cmd)
//	device.WaitIdle()
//
//	if err := pass.ReadResults(); err != nil {
//	    return err
//	}
//	result, _ := pass.GetQueryResult(0, 3, 1.0)
//
// # Passes
//
// Three dispatch passes share the same cache machinery:
//
//   - [BlockCompressionPass] binds an input texture mip and a compressed
//     output mip, optionally with an acceleration buffer.
//   - [DecompressionPass] combines a streamed latent buffer, a weight
//     buffer, and a bindless table of output textures; both buffers can
//     be Owned (streamed into) or Borrowed (caller-supplied).
//   - [ImageDifferencePass] runs a compare kernel into a pooled results
//     buffer and decodes per-channel MSE and PSNR after an explicit
//     readback.
//
// # Concurrency
//
// Command recording is single-threaded per pass instance and per
// command encoder. Pass caches use no locks; a gpucore.Device
// implementation is the shared, thread-safe layer underneath.
package texc
