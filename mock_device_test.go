package texc

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/texc/gpucore"
)

// =============================================================================
// Mock Device for Testing
// =============================================================================

// mockBuffer is the in-memory backing of one mock GPU buffer.
type mockBuffer struct {
	label string
	data  []byte
	usage gputypes.BufferUsage
}

// mockBindGroup remembers what a bind group was created over so tests
// can assert on structural reuse.
type mockBindGroup struct {
	layout  gpucore.BindGroupLayoutID
	entries []gpucore.BindGroupEntry
}

// mockTable is an emulated descriptor table.
type mockTable struct {
	slots []gpucore.TextureID
	mips  []uint32
}

// mockDevice is a test double for gpucore.Device with real byte
// storage, so buffer writes, copies, and readback behave like a
// device whose GPU work has already completed.
type mockDevice struct {
	caps   gpucore.Capabilities
	nextID uint64

	buffers   map[gpucore.BufferID]*mockBuffer
	textures  map[gpucore.TextureID]bool
	modules   map[gpucore.ShaderModuleID]bool
	layouts   map[gpucore.BindGroupLayoutID]*gpucore.BindGroupLayoutDesc
	pipeLayts map[gpucore.PipelineLayoutID]bool
	pipelines map[gpucore.ComputePipelineID]bool
	groups    map[gpucore.BindGroupID]*mockBindGroup
	tables    map[gpucore.DescriptorTableID]*mockTable

	// Optional overrides for error injection.
	createBufferFunc   func(*gpucore.BufferDesc) error
	createPipelineFunc func(*gpucore.ComputePipelineDesc) error
	createGroupFunc    func(gpucore.BindGroupLayoutID, []gpucore.BindGroupEntry) error

	// onDispatch simulates kernel output; it runs at Dispatch record
	// time, before any copy recorded after the dispatch.
	onDispatch func(d *mockDevice)

	// Call counters.
	buffersCreated   int
	buffersDestroyed int
	modulesCreated   int
	pipelinesCreated int
	groupsCreated    int
	groupsDestroyed  int
}

func newMockDevice() *mockDevice {
	return &mockDevice{
		caps: gpucore.Capabilities{
			SupportsCompute:        true,
			MaxWorkgroupSize:       [3]uint32{256, 256, 64},
			MaxBufferSize:          1 << 30,
			MaxDescriptorTableSize: 1024,
		},
		buffers:   make(map[gpucore.BufferID]*mockBuffer),
		textures:  make(map[gpucore.TextureID]bool),
		modules:   make(map[gpucore.ShaderModuleID]bool),
		layouts:   make(map[gpucore.BindGroupLayoutID]*gpucore.BindGroupLayoutDesc),
		pipeLayts: make(map[gpucore.PipelineLayoutID]bool),
		pipelines: make(map[gpucore.ComputePipelineID]bool),
		groups:    make(map[gpucore.BindGroupID]*mockBindGroup),
		tables:    make(map[gpucore.DescriptorTableID]*mockTable),
	}
}

func (d *mockDevice) newID() uint64 {
	d.nextID++
	return d.nextID
}

func (d *mockDevice) Capabilities() gpucore.Capabilities {
	return d.caps
}

func (d *mockDevice) CreateShaderModule(bytecode []byte, label string) (gpucore.ShaderModuleID, error) {
	if len(bytecode) == 0 {
		return gpucore.InvalidID, errors.New("mock: empty bytecode")
	}
	d.modulesCreated++
	id := gpucore.ShaderModuleID(d.newID())
	d.modules[id] = true
	return id, nil
}

func (d *mockDevice) DestroyShaderModule(id gpucore.ShaderModuleID) {
	delete(d.modules, id)
}

func (d *mockDevice) CreateBindGroupLayout(desc *gpucore.BindGroupLayoutDesc) (gpucore.BindGroupLayoutID, error) {
	id := gpucore.BindGroupLayoutID(d.newID())
	d.layouts[id] = desc
	return id, nil
}

func (d *mockDevice) DestroyBindGroupLayout(id gpucore.BindGroupLayoutID) {
	delete(d.layouts, id)
}

func (d *mockDevice) CreatePipelineLayout(layouts []gpucore.BindGroupLayoutID) (gpucore.PipelineLayoutID, error) {
	for _, l := range layouts {
		if _, ok := d.layouts[l]; !ok {
			return gpucore.InvalidID, fmt.Errorf("mock: bind group layout %d not found", l)
		}
	}
	id := gpucore.PipelineLayoutID(d.newID())
	d.pipeLayts[id] = true
	return id, nil
}

func (d *mockDevice) DestroyPipelineLayout(id gpucore.PipelineLayoutID) {
	delete(d.pipeLayts, id)
}

func (d *mockDevice) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	if d.createPipelineFunc != nil {
		if err := d.createPipelineFunc(desc); err != nil {
			return gpucore.InvalidID, err
		}
	}
	if _, ok := d.modules[desc.ShaderModule]; !ok {
		return gpucore.InvalidID, fmt.Errorf("mock: shader module %d not found", desc.ShaderModule)
	}
	d.pipelinesCreated++
	id := gpucore.ComputePipelineID(d.newID())
	d.pipelines[id] = true
	return id, nil
}

func (d *mockDevice) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	delete(d.pipelines, id)
}

func (d *mockDevice) CreateBindGroup(layout gpucore.BindGroupLayoutID, entries []gpucore.BindGroupEntry) (gpucore.BindGroupID, error) {
	if d.createGroupFunc != nil {
		if err := d.createGroupFunc(layout, entries); err != nil {
			return gpucore.InvalidID, err
		}
	}
	if _, ok := d.layouts[layout]; !ok {
		return gpucore.InvalidID, fmt.Errorf("mock: bind group layout %d not found", layout)
	}
	d.groupsCreated++
	id := gpucore.BindGroupID(d.newID())
	d.groups[id] = &mockBindGroup{
		layout:  layout,
		entries: append([]gpucore.BindGroupEntry(nil), entries...),
	}
	return id, nil
}

func (d *mockDevice) DestroyBindGroup(id gpucore.BindGroupID) {
	if _, ok := d.groups[id]; ok {
		d.groupsDestroyed++
		delete(d.groups, id)
	}
}

func (d *mockDevice) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	if d.createBufferFunc != nil {
		if err := d.createBufferFunc(desc); err != nil {
			return gpucore.InvalidID, err
		}
	}
	d.buffersCreated++
	id := gpucore.BufferID(d.newID())
	d.buffers[id] = &mockBuffer{
		label: desc.Label,
		data:  make([]byte, desc.Size),
		usage: desc.Usage,
	}
	return id, nil
}

func (d *mockDevice) DestroyBuffer(id gpucore.BufferID) {
	if _, ok := d.buffers[id]; ok {
		d.buffersDestroyed++
		delete(d.buffers, id)
	}
}

func (d *mockDevice) ReadBuffer(id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	buf, ok := d.buffers[id]
	if !ok {
		return nil, fmt.Errorf("mock: buffer %d not found", id)
	}
	if offset+size > uint64(len(buf.data)) {
		return nil, fmt.Errorf("mock: read past end of buffer %d", id)
	}
	out := make([]byte, size)
	copy(out, buf.data[offset:offset+size])
	return out, nil
}

func (d *mockDevice) CreateTexture(desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	id := gpucore.TextureID(d.newID())
	d.textures[id] = true
	return id, nil
}

func (d *mockDevice) DestroyTexture(id gpucore.TextureID) {
	delete(d.textures, id)
}

func (d *mockDevice) CreateDescriptorTable(capacity uint32) (gpucore.DescriptorTableID, error) {
	if capacity == 0 || capacity > d.caps.MaxDescriptorTableSize {
		return gpucore.InvalidID, fmt.Errorf("mock: table capacity %d out of range", capacity)
	}
	id := gpucore.DescriptorTableID(d.newID())
	d.tables[id] = &mockTable{
		slots: make([]gpucore.TextureID, capacity),
		mips:  make([]uint32, capacity),
	}
	return id, nil
}

func (d *mockDevice) DestroyDescriptorTable(id gpucore.DescriptorTableID) {
	delete(d.tables, id)
}

func (d *mockDevice) WriteDescriptorTable(table gpucore.DescriptorTableID, slot uint32, texture gpucore.TextureID, mipLevel uint32) error {
	t, ok := d.tables[table]
	if !ok {
		return fmt.Errorf("mock: table %d not found", table)
	}
	if slot >= uint32(len(t.slots)) {
		return fmt.Errorf("mock: slot %d out of range", slot)
	}
	t.slots[slot] = texture
	t.mips[slot] = mipLevel
	return nil
}

func (d *mockDevice) CreateCommandEncoder(label string) (gpucore.CommandEncoder, error) {
	return &mockEncoder{device: d}, nil
}

func (d *mockDevice) Submit(cmd gpucore.CommandBuffer) error { return nil }

func (d *mockDevice) WaitIdle() error { return nil }

// newTexture registers a texture directly, for tests that only need an ID.
func (d *mockDevice) newTexture() gpucore.TextureID {
	id := gpucore.TextureID(d.newID())
	d.textures[id] = true
	return id
}

// =============================================================================
// Mock Command Encoder
// =============================================================================

// mockEncoder applies writes and copies immediately, in recording
// order, mimicking a device whose submitted work has completed. The
// ops list lets tests assert that failed dispatches record nothing.
type mockEncoder struct {
	device *mockDevice
	ops    []string
}

func (e *mockEncoder) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) {
	e.ops = append(e.ops, "write")
	if buf, ok := e.device.buffers[id]; ok && offset+uint64(len(data)) <= uint64(len(buf.data)) {
		copy(buf.data[offset:], data)
	}
}

func (e *mockEncoder) CopyBufferToBuffer(src gpucore.BufferID, srcOffset uint64, dst gpucore.BufferID, dstOffset, size uint64) {
	e.ops = append(e.ops, "copy")
	srcBuf, srcOK := e.device.buffers[src]
	dstBuf, dstOK := e.device.buffers[dst]
	if srcOK && dstOK &&
		srcOffset+size <= uint64(len(srcBuf.data)) &&
		dstOffset+size <= uint64(len(dstBuf.data)) {
		copy(dstBuf.data[dstOffset:dstOffset+size], srcBuf.data[srcOffset:srcOffset+size])
	}
}

func (e *mockEncoder) BeginComputePass() gpucore.ComputePassEncoder {
	e.ops = append(e.ops, "begin-pass")
	return &mockPassEncoder{enc: e}
}

func (e *mockEncoder) Finish() (gpucore.CommandBuffer, error) {
	return mockCommandBuffer{}, nil
}

type mockCommandBuffer struct{}

func (mockCommandBuffer) Destroy() {}

// mockPassEncoder records compute pass commands.
type mockPassEncoder struct {
	enc *mockEncoder

	pipeline gpucore.ComputePipelineID
	groups   map[uint32]gpucore.BindGroupID
	tables   map[uint32]gpucore.DescriptorTableID
}

func (p *mockPassEncoder) SetPipeline(pipeline gpucore.ComputePipelineID) {
	p.enc.ops = append(p.enc.ops, "set-pipeline")
	p.pipeline = pipeline
}

func (p *mockPassEncoder) SetBindGroup(index uint32, group gpucore.BindGroupID) {
	p.enc.ops = append(p.enc.ops, "set-bind-group")
	if p.groups == nil {
		p.groups = make(map[uint32]gpucore.BindGroupID)
	}
	p.groups[index] = group
}

func (p *mockPassEncoder) SetDescriptorTable(index uint32, table gpucore.DescriptorTableID) {
	p.enc.ops = append(p.enc.ops, "set-table")
	if p.tables == nil {
		p.tables = make(map[uint32]gpucore.DescriptorTableID)
	}
	p.tables[index] = table
}

func (p *mockPassEncoder) Dispatch(x, y, z uint32) {
	p.enc.ops = append(p.enc.ops, "dispatch")
	if p.enc.device.onDispatch != nil {
		p.enc.device.onDispatch(p.enc.device)
	}
}

func (p *mockPassEncoder) End() {
	p.enc.ops = append(p.enc.ops, "end-pass")
}

// =============================================================================
// Shared test helpers
// =============================================================================

// testShader returns distinct fake SPIR-V bytecode per tag.
func testShader(tag byte) []byte {
	b := make([]byte, 16)
	for i := range b {
		b[i] = tag
	}
	return b
}

// findBufferByLabel returns the live buffer with the given label.
func (d *mockDevice) findBufferByLabel(label string) (gpucore.BufferID, *mockBuffer) {
	for id, buf := range d.buffers {
		if buf.label == label {
			return id, buf
		}
	}
	return gpucore.InvalidID, nil
}
