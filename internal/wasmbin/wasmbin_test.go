package wasmbin

import (
	"bytes"
	"context"
	"testing"

	"github.com/tetratelabs/wazero"
)

func TestAppendI32(t *testing.T) {
	tests := []struct {
		v    int32
		want []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{63, []byte{0x3f}},
		{64, []byte{0xc0, 0x00}},
		{-1, []byte{0x7f}},
		{-64, []byte{0x40}},
		{-65, []byte{0xbf, 0x7f}},
		{624485, []byte{0xe5, 0x8e, 0x26}},
	}
	for _, tt := range tests {
		if got := AppendI32(nil, tt.v); !bytes.Equal(got, tt.want) {
			t.Errorf("AppendI32(%d) = %x, want %x", tt.v, got, tt.want)
		}
	}
}

func TestEncodeRunsInWazero(t *testing.T) {
	ctx := context.Background()
	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
	defer r.Close(ctx)

	called := uint32(0)
	_, err := r.NewHostModuleBuilder("env").
		NewFunctionBuilder().WithFunc(func(v uint32) { called = v }).Export("note").
		Instantiate(ctx)
	if err != nil {
		t.Fatalf("Failed to instantiate host module: %v", err)
	}

	i32 := []ValueType{I32}
	m := NewModule()
	note := m.ImportFunc("env", "note", FuncType{Params: i32})
	m.Memory(Limits{Min: 1})
	base := m.Global(2048)
	add := m.Func(FuncType{Params: []ValueType{I32, I32}, Results: i32}, nil, []byte{
		OpLocalGet, 0,
		OpLocalGet, 1,
		OpI32Add,
	})
	poke := m.Func(FuncType{}, nil, []byte{
		OpI32Const, 0x80, 0x01, // 128
		OpCall, byte(note),
	})
	m.ExportFunc("add", add)
	m.ExportFunc("poke", poke)
	m.ExportMemory("memory")
	m.ExportGlobal("__heap_base", base)
	m.Data(16, []byte("hi"))

	mod, err := r.Instantiate(ctx, m.Encode())
	if err != nil {
		t.Fatalf("Failed to instantiate encoded module: %v", err)
	}

	res, err := mod.ExportedFunction("add").Call(ctx, 40, 2)
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if uint32(res[0]) != 42 {
		t.Errorf("Expected 42, got %d", res[0])
	}

	if _, err := mod.ExportedFunction("poke").Call(ctx); err != nil {
		t.Fatalf("poke failed: %v", err)
	}
	if called != 128 {
		t.Errorf("Expected host import called with 128, got %d", called)
	}

	if got := mod.ExportedGlobal("__heap_base").Get(); got != 2048 {
		t.Errorf("Expected __heap_base 2048, got %d", got)
	}
	buf, ok := mod.Memory().Read(16, 2)
	if !ok || string(buf) != "hi" {
		t.Errorf("Expected data segment at 16, got %q", buf)
	}
}
