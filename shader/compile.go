// Package shader compiles WGSL kernel sources to the SPIR-V bytecode
// consumed by texc dispatch descriptors.
package shader

import (
	"fmt"

	"github.com/gogpu/naga"
)

// Compile compiles WGSL source to SPIR-V bytecode as little-endian
// bytes, ready to place in a dispatch descriptor's Shader field.
func Compile(wgslSource string) ([]byte, error) {
	spirv, err := naga.Compile(wgslSource)
	if err != nil {
		return nil, fmt.Errorf("shader: failed to compile: %w", err)
	}
	return spirv, nil
}

// CompileToWords compiles WGSL source to SPIR-V uint32 words, the form
// some HAL entry points take directly.
func CompileToWords(wgslSource string) ([]uint32, error) {
	spirvBytes, err := Compile(wgslSource)
	if err != nil {
		return nil, err
	}

	// SPIR-V is little-endian 32-bit words
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}

	return words, nil
}
