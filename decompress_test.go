package texc

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/texc/gpucore"
)

// stubWeightSource returns fixed bytes or a fixed error.
type stubWeightSource struct {
	data []byte
	err  error
}

func (s stubWeightSource) InferenceWeights(typ WeightType) ([]byte, error) {
	return s.data, s.err
}

func newTestDecompressionPass(t *testing.T, device *mockDevice, tableSize uint32) *DecompressionPass {
	t.Helper()
	pass, err := NewDecompressionPass(DecompressionConfig{Device: device, DescriptorTableSize: tableSize})
	if err != nil {
		t.Fatalf("NewDecompressionPass failed: %v", err)
	}
	return pass
}

func TestNewDecompressionPassValidation(t *testing.T) {
	if _, err := NewDecompressionPass(DecompressionConfig{}); !errors.Is(err, ErrNilDevice) {
		t.Errorf("nil device: error = %v, want ErrNilDevice", err)
	}

	device := newMockDevice()
	device.caps.SupportsCompute = false
	if _, err := NewDecompressionPass(DecompressionConfig{Device: device, DescriptorTableSize: 16}); !errors.Is(err, ErrComputeUnsupported) {
		t.Errorf("no compute: error = %v, want ErrComputeUnsupported", err)
	}

	device = newMockDevice()
	if _, err := NewDecompressionPass(DecompressionConfig{Device: device}); !errors.Is(err, ErrDescriptorTable) {
		t.Errorf("zero table size: error = %v, want ErrDescriptorTable", err)
	}
	over := device.caps.MaxDescriptorTableSize + 1
	if _, err := NewDecompressionPass(DecompressionConfig{Device: device, DescriptorTableSize: over}); !errors.Is(err, ErrDescriptorTable) {
		t.Errorf("oversized table: error = %v, want ErrDescriptorTable", err)
	}
}

func TestSetInputData(t *testing.T) {
	payload := make([]byte, 64)
	for i := range payload {
		payload[i] = byte(i)
	}

	tests := []struct {
		name string
		rng  Range
		want []byte
	}{
		{name: "explicit range", rng: Range{Offset: 16, Size: 32}, want: payload[16:48]},
		{name: "entire stream", rng: EntireStream, want: payload},
		{name: "rest of stream from offset", rng: Range{Offset: 40}, want: payload[40:]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := newMockDevice()
			pass := newTestDecompressionPass(t, device, 16)
			enc := newTestEncoder(t, device)

			if err := pass.SetInputData(enc, bytes.NewReader(payload), tt.rng); err != nil {
				t.Fatalf("SetInputData failed: %v", err)
			}

			_, buf := device.findBufferByLabel("decompression-latents")
			if buf == nil {
				t.Fatal("latent buffer not created")
			}
			if uint64(len(tt.want)) != uint64(len(buf.data)) {
				t.Fatalf("latent buffer size = %d, want %d", len(buf.data), len(tt.want))
			}
			if !bytes.Equal(buf.data, tt.want) {
				t.Error("latent buffer contents do not match the selected range")
			}
		})
	}
}

func TestSetInputDataErrors(t *testing.T) {
	payload := make([]byte, 16)

	tests := []struct {
		name string
		rng  Range
	}{
		{name: "range past end", rng: Range{Offset: 0, Size: 64}},
		{name: "offset past end with sentinel size", rng: Range{Offset: 32}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := newMockDevice()
			pass := newTestDecompressionPass(t, device, 16)
			enc := newTestEncoder(t, device)

			err := pass.SetInputData(enc, bytes.NewReader(payload), tt.rng)
			if !errors.Is(err, ErrStreamIO) {
				t.Errorf("error = %v, want ErrStreamIO", err)
			}
			if len(enc.ops) != 0 {
				t.Errorf("ops recorded despite stream error: %v", enc.ops)
			}
		})
	}
}

func TestSetInputDataRefusedWhileBorrowed(t *testing.T) {
	device := newMockDevice()
	pass := newTestDecompressionPass(t, device, 16)
	enc := newTestEncoder(t, device)

	external, err := device.CreateBuffer(&gpucore.BufferDesc{Label: "external", Size: 128, Usage: gputypes.BufferUsageStorage})
	if err != nil {
		t.Fatalf("CreateBuffer failed: %v", err)
	}
	pass.SetInputBuffer(external, 128)

	err = pass.SetInputData(enc, bytes.NewReader(make([]byte, 32)), EntireStream)
	if !errors.Is(err, ErrBufferBorrowed) {
		t.Errorf("error = %v, want ErrBufferBorrowed", err)
	}
	if _, ok := device.buffers[external]; !ok {
		t.Error("borrowed input buffer was destroyed")
	}
}

func TestSetWeights(t *testing.T) {
	device := newMockDevice()
	pass := newTestDecompressionPass(t, device, 16)
	enc := newTestEncoder(t, device)

	weights := []byte{10, 20, 30, 40}
	if err := pass.SetWeights(enc, stubWeightSource{data: weights}, WeightTypeGenericInt8); err != nil {
		t.Fatalf("SetWeights failed: %v", err)
	}

	_, buf := device.findBufferByLabel("decompression-weights")
	if buf == nil {
		t.Fatal("weight buffer not created")
	}
	if !bytes.Equal(buf.data, weights) {
		t.Errorf("weight buffer = %v, want %v", buf.data, weights)
	}
}

func TestSetWeightsErrors(t *testing.T) {
	device := newMockDevice()
	pass := newTestDecompressionPass(t, device, 16)
	enc := newTestEncoder(t, device)

	err := pass.SetWeights(enc, stubWeightSource{err: errors.New("unsupported layout")}, WeightTypeGenericFP8)
	if !errors.Is(err, ErrStreamIO) {
		t.Errorf("source error: error = %v, want ErrStreamIO", err)
	}

	err = pass.SetWeights(enc, stubWeightSource{}, WeightTypeGenericInt8)
	if !errors.Is(err, ErrStreamIO) {
		t.Errorf("empty weights: error = %v, want ErrStreamIO", err)
	}

	external, cerr := device.CreateBuffer(&gpucore.BufferDesc{Label: "external", Size: 64, Usage: gputypes.BufferUsageStorage})
	if cerr != nil {
		t.Fatalf("CreateBuffer failed: %v", cerr)
	}
	pass.SetWeightBuffer(external, 64)
	err = pass.SetWeights(enc, stubWeightSource{data: []byte{1}}, WeightTypeGenericInt8)
	if !errors.Is(err, ErrBufferBorrowed) {
		t.Errorf("borrowed weight buffer: error = %v, want ErrBufferBorrowed", err)
	}
}

func TestWriteDescriptor(t *testing.T) {
	device := newMockDevice()
	pass := newTestDecompressionPass(t, device, 4)

	tex := device.newTexture()
	if err := pass.WriteDescriptor(2, TextureBinding{Texture: tex, MipLevel: 1}); err != nil {
		t.Fatalf("WriteDescriptor failed: %v", err)
	}

	table := device.tables[pass.descriptorTable]
	if table == nil {
		t.Fatal("descriptor table not found")
	}
	if table.slots[2] != tex || table.mips[2] != 1 {
		t.Errorf("slot 2 = (%v, mip %d), want (%v, mip 1)", table.slots[2], table.mips[2], tex)
	}

	if err := pass.WriteDescriptor(4, TextureBinding{Texture: tex}); !errors.Is(err, ErrDescriptorTable) {
		t.Errorf("out-of-range slot: error = %v, want ErrDescriptorTable", err)
	}
}

func TestDecompressionDispatch(t *testing.T) {
	device := newMockDevice()
	pass := newTestDecompressionPass(t, device, 16)
	enc := newTestEncoder(t, device)

	if err := pass.SetInputData(enc, bytes.NewReader(make([]byte, 256)), EntireStream); err != nil {
		t.Fatalf("SetInputData failed: %v", err)
	}
	if err := pass.WriteDescriptor(0, TextureBinding{Texture: device.newTexture()}); err != nil {
		t.Fatalf("WriteDescriptor failed: %v", err)
	}
	enc.ops = nil

	desc := &ComputePassDesc{
		Shader:         testShader(0x41),
		DispatchWidth:  4,
		DispatchHeight: 4,
		Constants:      []byte{5, 6, 7, 8},
		Weights:        []byte{1, 1, 2, 3, 5, 8},
	}
	if err := pass.ExecuteComputePass(enc, desc); err != nil {
		t.Fatalf("ExecuteComputePass failed: %v", err)
	}

	want := []string{"write", "write", "begin-pass", "set-pipeline", "set-bind-group", "set-table", "dispatch", "end-pass"}
	if len(enc.ops) != len(want) {
		t.Fatalf("recorded ops = %v, want %v", enc.ops, want)
	}
	for i, op := range want {
		if enc.ops[i] != op {
			t.Fatalf("op[%d] = %q, want %q (full: %v)", i, enc.ops[i], op, enc.ops)
		}
	}

	// Descriptor weights sized and populated the owned weight buffer.
	_, weightBuf := device.findBufferByLabel("decompression-weights")
	if weightBuf == nil {
		t.Fatal("weight buffer not created")
	}
	if !bytes.Equal(weightBuf.data, desc.Weights) {
		t.Errorf("weight buffer = %v, want %v", weightBuf.data, desc.Weights)
	}
}

func TestDecompressionDispatchMissingBuffers(t *testing.T) {
	device := newMockDevice()
	pass := newTestDecompressionPass(t, device, 16)
	enc := newTestEncoder(t, device)

	desc := &ComputePassDesc{Shader: testShader(0x42), DispatchWidth: 1, DispatchHeight: 1}

	// No latent input at all.
	if err := pass.ExecuteComputePass(enc, desc); !errors.Is(err, ErrNoBuffer) {
		t.Errorf("missing input: error = %v, want ErrNoBuffer", err)
	}

	// Input present, but neither weights nor a weight payload.
	if err := pass.SetInputData(enc, bytes.NewReader(make([]byte, 32)), EntireStream); err != nil {
		t.Fatalf("SetInputData failed: %v", err)
	}
	enc.ops = nil
	if err := pass.ExecuteComputePass(enc, desc); !errors.Is(err, ErrNoBuffer) {
		t.Errorf("missing weights: error = %v, want ErrNoBuffer", err)
	}
	if len(enc.ops) != 0 {
		t.Errorf("ops recorded despite missing weights: %v", enc.ops)
	}
}

func TestDecompressionBorrowedBuffers(t *testing.T) {
	device := newMockDevice()
	pass := newTestDecompressionPass(t, device, 16)
	enc := newTestEncoder(t, device)

	latents, err := device.CreateBuffer(&gpucore.BufferDesc{Label: "ext-latents", Size: 512, Usage: gputypes.BufferUsageStorage})
	if err != nil {
		t.Fatalf("CreateBuffer failed: %v", err)
	}
	weights, err := device.CreateBuffer(&gpucore.BufferDesc{Label: "ext-weights", Size: 128, Usage: gputypes.BufferUsageStorage})
	if err != nil {
		t.Fatalf("CreateBuffer failed: %v", err)
	}

	pass.SetInputBuffer(latents, 512)
	pass.SetWeightBuffer(weights, 128)

	// Descriptor weights are ignored while the weight buffer is borrowed.
	desc := &ComputePassDesc{
		Shader:         testShader(0x43),
		DispatchWidth:  1,
		DispatchHeight: 1,
		Weights:        []byte{0xFF, 0xFF},
	}
	if err := pass.ExecuteComputePass(enc, desc); err != nil {
		t.Fatalf("ExecuteComputePass failed: %v", err)
	}
	if device.buffers[weights].data[0] == 0xFF {
		t.Error("dispatch overwrote a borrowed weight buffer")
	}

	// Release must not destroy borrowed buffers.
	pass.Release()
	if _, ok := device.buffers[latents]; !ok {
		t.Error("Release destroyed the borrowed latent buffer")
	}
	if _, ok := device.buffers[weights]; !ok {
		t.Error("Release destroyed the borrowed weight buffer")
	}
	if len(device.tables) != 0 {
		t.Errorf("%d descriptor tables alive after Release", len(device.tables))
	}
}
