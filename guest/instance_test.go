package guest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tomyedwab/zpzhost/bridge"
	"github.com/tomyedwab/zpzhost/internal/wasmbin"
)

var (
	i32   = []wasmbin.ValueType{wasmbin.I32}
	i32x2 = []wasmbin.ValueType{wasmbin.I32, wasmbin.I32}
	i32x3 = []wasmbin.ValueType{wasmbin.I32, wasmbin.I32, wasmbin.I32}
	i32x4 = []wasmbin.ValueType{wasmbin.I32, wasmbin.I32, wasmbin.I32, wasmbin.I32}
)

// Addresses the test guests write their arguments to.
const (
	slotChar    = 100
	slotDown    = 104
	slotUp      = 108
	slotDisk    = 112
	slotTicks   = 116
	pixelOffset = 1024
)

func code(parts ...[]byte) []byte {
	var b []byte
	for _, p := range parts {
		b = append(b, p...)
	}
	return b
}

func constI32(v int32) []byte {
	return wasmbin.AppendI32([]byte{wasmbin.OpI32Const}, v)
}

func localGet(i byte) []byte {
	return []byte{wasmbin.OpLocalGet, i}
}

func call(idx uint32) []byte {
	return wasmbin.AppendU32([]byte{wasmbin.OpCall}, idx)
}

func store(addr int32, local byte) []byte {
	return code(constI32(addr), localGet(local), []byte{wasmbin.OpI32Store, 0x02, 0x00})
}

type guestOptions struct {
	importMemory bool
	withHandle   bool
	insertDisk   bool
	heapBase     int32
}

// buildGuest encodes a stand-in emulator. Entry points record their last
// argument at fixed slots, tick counts calls and presents a frame, and
// new_emulator allocates 16 bytes and returns the pointer as the handle.
func buildGuest(o guestOptions) []byte {
	m := wasmbin.NewModule()
	display := m.ImportFunc("env", "display", wasmbin.FuncType{Params: i32})
	malloc := m.ImportFunc("env", "malloc", wasmbin.FuncType{Params: i32, Results: i32})
	memset := m.ImportFunc("env", "memset", wasmbin.FuncType{Params: i32x3, Results: i32})
	if o.importMemory {
		m.ImportMemory("env", "memory", wasmbin.Limits{Min: 1})
	} else {
		m.Memory(wasmbin.Limits{Min: 1})
		m.ExportMemory("memory")
	}

	arg := byte(0)
	params1 := i32
	if o.withHandle {
		arg = 1
		params1 = i32x2
	}

	newEmulator := m.Func(wasmbin.FuncType{Results: i32}, nil, code(constI32(16), call(malloc)))
	inputChar := m.Func(wasmbin.FuncType{Params: params1}, nil, store(slotChar, arg))
	keyDown := m.Func(wasmbin.FuncType{Params: params1}, nil, store(slotDown, arg))
	keyUp := m.Func(wasmbin.FuncType{Params: params1}, nil, store(slotUp, arg))
	tick := m.Func(wasmbin.FuncType{Params: params1}, nil, code(
		constI32(slotTicks),
		constI32(slotTicks), []byte{wasmbin.OpI32Load, 0x02, 0x00},
		constI32(1), []byte{wasmbin.OpI32Add},
		[]byte{wasmbin.OpI32Store, 0x02, 0x00},
		// Paint the first pixel from the quantum, then present.
		constI32(pixelOffset), localGet(arg), constI32(4), call(memset), []byte{wasmbin.OpDrop},
		constI32(pixelOffset), call(display),
	))
	m.ExportFunc(ExportNewEmulator, newEmulator)
	m.ExportFunc(ExportInputChar, inputChar)
	m.ExportFunc(ExportKeyDown, keyDown)
	m.ExportFunc(ExportKeyUp, keyUp)
	m.ExportFunc(ExportTick, tick)

	if o.insertDisk {
		diskParams, last := i32x3, byte(2)
		if o.withHandle {
			diskParams, last = i32x4, 3
		}
		insert := m.Func(wasmbin.FuncType{Params: diskParams}, nil, store(slotDisk, last))
		m.ExportFunc(ExportInsertDisk, insert)
	}
	if o.heapBase != 0 {
		m.ExportGlobal(ExportHeapBase, m.Global(o.heapBase))
	}
	return m.Encode()
}

type captureFrames struct {
	frames [][]byte
}

func (c *captureFrames) SourceLen() uint32 {
	return 4
}

func (c *captureFrames) ShowFrame(src []byte) error {
	c.frames = append(c.frames, append([]byte(nil), src...))
	return nil
}

func newRuntime(t *testing.T) (context.Context, wazero.Runtime) {
	t.Helper()
	ctx := context.Background()
	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
	t.Cleanup(func() { r.Close(ctx) })
	return ctx, r
}

func readU32(t *testing.T, inst *Instance, addr uint32) uint32 {
	t.Helper()
	buf, err := inst.Arena().Bytes(addr, 4)
	if err != nil {
		t.Fatalf("Failed to read %d: %v", addr, err)
	}
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
}

func TestLoadGuestOwnedMemory(t *testing.T) {
	ctx, r := newRuntime(t)
	frames := &captureFrames{}
	b := bridge.New(bridge.Config{Frames: frames})

	inst, err := Load(ctx, r, buildGuest(guestOptions{heapBase: 4096, insertDisk: true}), b, Options{Checked: true})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if inst.Handle() != 4096 {
		t.Errorf("Expected handle allocated at heap base 4096, got %d", inst.Handle())
	}
	if inst.Arena().Offset() != 4112 {
		t.Errorf("Expected arena offset 4112, got %d", inst.Arena().Offset())
	}
	if b.Arena() != inst.Arena() {
		t.Error("Bridge is not bound to the instance arena")
	}

	if err := inst.InputChar(ctx, 97); err != nil {
		t.Fatalf("InputChar returned error: %v", err)
	}
	if err := inst.KeyDown(ctx, 37); err != nil {
		t.Fatalf("KeyDown returned error: %v", err)
	}
	if err := inst.KeyUp(ctx, 38); err != nil {
		t.Fatalf("KeyUp returned error: %v", err)
	}
	if err := inst.Tick(ctx, 16); err != nil {
		t.Fatalf("Tick returned error: %v", err)
	}
	if !inst.CanInsertMedia() {
		t.Fatal("Expected insert_disk to be bound")
	}
	if err := inst.InsertDisk(ctx, 1, 5000, 194816); err != nil {
		t.Fatalf("InsertDisk returned error: %v", err)
	}

	checks := map[uint32]uint32{slotChar: 97, slotDown: 37, slotUp: 38, slotTicks: 1, slotDisk: 194816}
	for addr, want := range checks {
		if got := readU32(t, inst, addr); got != want {
			t.Errorf("Slot %d: expected %d, got %d", addr, want, got)
		}
	}

	if len(frames.frames) != 1 {
		t.Fatalf("Expected one presented frame, got %d", len(frames.frames))
	}
	if frames.frames[0][0] != 16 || frames.frames[0][3] != 16 {
		t.Errorf("Expected pixel filled with the quantum, got %v", frames.frames[0])
	}
}

func TestLoadHostOwnedMemoryWithHandle(t *testing.T) {
	ctx, r := newRuntime(t)
	b := bridge.New(bridge.Config{})

	inst, err := Load(ctx, r, buildGuest(guestOptions{importMemory: true, withHandle: true}), b, Options{Pages: 4, Checked: true})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if inst.Arena().Capacity() != 4*65536 {
		t.Errorf("Expected 4 pages of arena, got %d bytes", inst.Arena().Capacity())
	}
	if inst.Handle() != 1 {
		t.Errorf("Expected the first allocation at offset 1, got %d", inst.Handle())
	}
	if inst.CanInsertMedia() {
		t.Error("Expected insert_disk to be absent")
	}
	if err := inst.InsertDisk(ctx, 0, 1, 1); err == nil {
		t.Error("Expected InsertDisk to fail without the export")
	}

	if err := inst.InputChar(ctx, 65); err != nil {
		t.Fatalf("InputChar returned error: %v", err)
	}
	if got := readU32(t, inst, slotChar); got != 65 {
		t.Errorf("Expected character 65 after the handle argument, got %d", got)
	}
	if err := inst.Tick(ctx, 16); err != nil {
		t.Fatalf("Tick returned error: %v", err)
	}
	if got := readU32(t, inst, slotTicks); got != 1 {
		t.Errorf("Expected one tick, got %d", got)
	}
}

func TestLoadRejectsMismatchedGuests(t *testing.T) {
	tests := []struct {
		name  string
		build func(m *wasmbin.Module)
		want  string
	}{
		{
			name: "unknown import",
			build: func(m *wasmbin.Module) {
				m.ImportFunc("env", "fopen", wasmbin.FuncType{Params: i32, Results: i32})
			},
			want: `"fopen"`,
		},
		{
			name: "wrong signature",
			build: func(m *wasmbin.Module) {
				m.ImportFunc("env", "memset", wasmbin.FuncType{Params: i32})
			},
			want: "signature (i32) -> ()",
		},
		{
			name: "wasi disabled",
			build: func(m *wasmbin.Module) {
				m.ImportFunc("wasi_snapshot_preview1", "fd_write", wasmbin.FuncType{Params: i32x4, Results: i32})
			},
			want: "WASI is disabled",
		},
		{
			name: "foreign module",
			build: func(m *wasmbin.Module) {
				m.ImportFunc("gl", "clear", wasmbin.FuncType{Params: i32})
			},
			want: "unknown import module",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, r := newRuntime(t)
			m := wasmbin.NewModule()
			tt.build(m)
			m.Memory(wasmbin.Limits{Min: 1})
			m.ExportMemory("memory")
			empty := wasmbin.FuncType{}
			nop := m.Func(wasmbin.FuncType{Params: i32}, nil, nil)
			m.ExportFunc(ExportNewEmulator, m.Func(wasmbin.FuncType{Results: i32}, nil, constI32(1)))
			m.ExportFunc(ExportInputChar, nop)
			m.ExportFunc(ExportKeyDown, nop)
			m.ExportFunc(ExportKeyUp, nop)
			m.ExportFunc(ExportTick, nop)
			m.ExportFunc("unused", m.Func(empty, nil, nil))

			_, err := Load(ctx, r, m.Encode(), bridge.New(bridge.Config{}), Options{})
			if err == nil {
				t.Fatal("Expected Load to fail")
			}
			var bindErr *BindError
			if !errors.As(err, &bindErr) {
				t.Errorf("Expected a BindError, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error to mention %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadReportsAllMissingExports(t *testing.T) {
	ctx, r := newRuntime(t)
	m := wasmbin.NewModule()
	m.Memory(wasmbin.Limits{Min: 1})
	m.ExportMemory("memory")
	m.ExportFunc(ExportNewEmulator, m.Func(wasmbin.FuncType{Results: i32}, nil, constI32(1)))
	m.ExportFunc(ExportTick, m.Func(wasmbin.FuncType{Params: i32x3}, nil, nil))

	_, err := Load(ctx, r, m.Encode(), bridge.New(bridge.Config{}), Options{})
	if err == nil {
		t.Fatal("Expected Load to fail")
	}
	for _, want := range []string{ExportInputChar, ExportKeyDown, ExportKeyUp, "takes 3 parameters"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Expected error to mention %q, got %v", want, err)
		}
	}
}

func TestLoadRequiresMemory(t *testing.T) {
	ctx, r := newRuntime(t)
	m := wasmbin.NewModule()
	nop := m.Func(wasmbin.FuncType{Params: i32}, nil, nil)
	m.ExportFunc(ExportNewEmulator, m.Func(wasmbin.FuncType{Results: i32}, nil, constI32(1)))
	m.ExportFunc(ExportInputChar, nop)
	m.ExportFunc(ExportKeyDown, nop)
	m.ExportFunc(ExportKeyUp, nop)
	m.ExportFunc(ExportTick, nop)

	_, err := Load(ctx, r, m.Encode(), bridge.New(bridge.Config{}), Options{})
	if err == nil || !strings.Contains(err.Error(), "neither imports nor exports memory") {
		t.Errorf("Expected missing memory error, got %v", err)
	}
}

func TestExhaustionFailsGuestCall(t *testing.T) {
	ctx, r := newRuntime(t)
	m := wasmbin.NewModule()
	malloc := m.ImportFunc("env", "malloc", wasmbin.FuncType{Params: i32, Results: i32})
	m.Memory(wasmbin.Limits{Min: 1})
	m.ExportMemory("memory")
	nop := m.Func(wasmbin.FuncType{Params: i32}, nil, nil)
	m.ExportFunc(ExportNewEmulator, m.Func(wasmbin.FuncType{Results: i32}, nil, constI32(1)))
	m.ExportFunc(ExportInputChar, nop)
	m.ExportFunc(ExportKeyDown, nop)
	m.ExportFunc(ExportKeyUp, nop)
	// tick allocates far more than one page.
	m.ExportFunc(ExportTick, m.Func(wasmbin.FuncType{Params: i32}, nil, code(constI32(1<<20), call(malloc), []byte{wasmbin.OpDrop})))

	inst, err := Load(ctx, r, m.Encode(), bridge.New(bridge.Config{}), Options{Checked: true})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	err = inst.Tick(ctx, 16)
	if err == nil {
		t.Fatal("Expected Tick to fail on arena exhaustion")
	}
	if !strings.Contains(err.Error(), "arena exhausted") {
		t.Errorf("Expected exhaustion in error, got %v", err)
	}
}

func TestShimLimits(t *testing.T) {
	tests := []struct {
		name  string
		pages uint32
		p     plan
		want  wasmbin.Limits
	}{
		{"configured pages", 1000, plan{memoryMin: 2}, wasmbin.Limits{Min: 1000}},
		{"raised to guest minimum", 10, plan{memoryMin: 17}, wasmbin.Limits{Min: 17}},
		{"capped by guest maximum", 1000, plan{memoryMin: 2, memoryMax: 256, memoryHasMax: true}, wasmbin.Limits{Min: 256, Max: 256, HasMax: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shimLimits(tt.pages, &tt.p); got != tt.want {
				t.Errorf("Expected %+v, got %+v", tt.want, got)
			}
		})
	}
}
