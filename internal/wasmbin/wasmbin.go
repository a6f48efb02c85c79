// Package wasmbin builds small WebAssembly modules on top of wabin's module
// model: function imports, one memory, globals, exports, code and data. It
// covers what the host needs to generate its env shim and what tests need to
// build stand-in guests.
package wasmbin

import (
	"github.com/tetratelabs/wabin/binary"
	"github.com/tetratelabs/wabin/leb128"
	"github.com/tetratelabs/wabin/wasm"
)

type ValueType = wasm.ValueType

const (
	I32 = wasm.ValueTypeI32
	I64 = wasm.ValueTypeI64
)

// Opcodes used by hand-written function bodies.
const (
	OpEnd       = wasm.OpcodeEnd
	OpCall      = wasm.OpcodeCall
	OpDrop      = wasm.OpcodeDrop
	OpLocalGet  = wasm.OpcodeLocalGet
	OpLocalSet  = wasm.OpcodeLocalSet
	OpGlobalGet = wasm.OpcodeGlobalGet
	OpI32Load   = wasm.OpcodeI32Load
	OpI32Store  = wasm.OpcodeI32Store
	OpI32Store8 = wasm.OpcodeI32Store8
	OpI32Const  = wasm.OpcodeI32Const
	OpI32Add    = wasm.OpcodeI32Add
)

type FuncType struct {
	Params  []ValueType
	Results []ValueType
}

func (f FuncType) key() string {
	return string(f.Params) + "|" + string(f.Results)
}

type Limits struct {
	Min    uint32
	Max    uint32
	HasMax bool
}

func (l Limits) memory() *wasm.Memory {
	return &wasm.Memory{Min: l.Min, Max: l.Max, IsMaxEncoded: l.HasMax}
}

// Module accumulates sections. Function indices count imports first, so all
// imports must be added before any function is defined.
type Module struct {
	mod        wasm.Module
	typeIndex  map[string]wasm.Index
	funcImport uint32
}

func NewModule() *Module {
	return &Module{typeIndex: map[string]wasm.Index{}}
}

func (m *Module) typeOf(ft FuncType) wasm.Index {
	k := ft.key()
	if idx, ok := m.typeIndex[k]; ok {
		return idx
	}
	idx := wasm.Index(len(m.mod.TypeSection))
	m.mod.TypeSection = append(m.mod.TypeSection, &wasm.FunctionType{Params: ft.Params, Results: ft.Results})
	m.typeIndex[k] = idx
	return idx
}

// ImportFunc adds a function import and returns its function index.
func (m *Module) ImportFunc(module, name string, ft FuncType) uint32 {
	if len(m.mod.FunctionSection) > 0 {
		panic("wasmbin: imports must precede defined functions")
	}
	m.mod.ImportSection = append(m.mod.ImportSection, &wasm.Import{
		Type:     wasm.ExternTypeFunc,
		Module:   module,
		Name:     name,
		DescFunc: m.typeOf(ft),
	})
	m.funcImport++
	return m.funcImport - 1
}

// ImportMemory makes memory 0 an import rather than a definition.
func (m *Module) ImportMemory(module, name string, limits Limits) {
	m.mod.ImportSection = append(m.mod.ImportSection, &wasm.Import{
		Type:    wasm.ExternTypeMemory,
		Module:  module,
		Name:    name,
		DescMem: limits.memory(),
	})
}

// Func defines a function. body is the instruction sequence without the
// trailing end opcode. It returns the function index.
func (m *Module) Func(ft FuncType, locals []ValueType, body []byte) uint32 {
	m.mod.FunctionSection = append(m.mod.FunctionSection, m.typeOf(ft))
	code := make([]byte, 0, len(body)+1)
	code = append(append(code, body...), OpEnd)
	m.mod.CodeSection = append(m.mod.CodeSection, &wasm.Code{LocalTypes: locals, Body: code})
	return m.funcImport + uint32(len(m.mod.FunctionSection)) - 1
}

// Memory defines memory 0.
func (m *Module) Memory(limits Limits) {
	m.mod.MemorySection = limits.memory()
}

// Global defines an immutable i32 global and returns its index.
func (m *Module) Global(value int32) uint32 {
	m.mod.GlobalSection = append(m.mod.GlobalSection, &wasm.Global{
		Type: &wasm.GlobalType{ValType: I32},
		Init: &wasm.ConstantExpression{Opcode: OpI32Const, Data: leb128.EncodeInt32(value)},
	})
	return uint32(len(m.mod.GlobalSection) - 1)
}

func (m *Module) ExportFunc(name string, idx uint32) {
	m.export(wasm.ExternTypeFunc, name, idx)
}

func (m *Module) ExportMemory(name string) {
	m.export(wasm.ExternTypeMemory, name, 0)
}

func (m *Module) ExportGlobal(name string, idx uint32) {
	m.export(wasm.ExternTypeGlobal, name, idx)
}

func (m *Module) export(typ wasm.ExternType, name string, idx uint32) {
	m.mod.ExportSection = append(m.mod.ExportSection, &wasm.Export{Type: typ, Name: name, Index: idx})
}

// Data places bytes at a fixed offset of memory 0.
func (m *Module) Data(offset uint32, b []byte) {
	m.mod.DataSection = append(m.mod.DataSection, &wasm.DataSegment{
		OffsetExpression: &wasm.ConstantExpression{Opcode: OpI32Const, Data: leb128.EncodeInt32(int32(offset))},
		Init:             b,
	})
}

// Encode returns the binary module.
func (m *Module) Encode() []byte {
	return binary.EncodeModule(&m.mod)
}

// AppendI32 appends v as a signed LEB128, the immediate encoding of i32.const.
func AppendI32(b []byte, v int32) []byte {
	return append(b, leb128.EncodeInt32(v)...)
}

// AppendU32 appends v as an unsigned LEB128, used for indices.
func AppendU32(b []byte, v uint32) []byte {
	return append(b, leb128.EncodeUint32(v)...)
}
