package bridge

import (
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// Capability describes one env import the host provides. All parameters and
// results are i32.
type Capability struct {
	Name    string
	Params  int
	Results int
	bind    func(s Services) any
}

// ParamTypes returns the wasm parameter types of the import.
func (c Capability) ParamTypes() []api.ValueType {
	return i32s(c.Params)
}

// ResultTypes returns the wasm result types of the import.
func (c Capability) ResultTypes() []api.ValueType {
	return i32s(c.Results)
}

// Func returns the Go function wazero binds for this capability. Service
// errors become panics, which wazero turns into a failed guest call.
func (c Capability) Func(s Services) any {
	return c.bind(s)
}

// Capabilities is the complete set of env imports, in the order they're
// exported.
var Capabilities = []Capability{
	{Name: "display", Params: 1, bind: func(s Services) any {
		return func(pixels uint32) {
			// Display errors are logged and the frame dropped; the guest keeps running.
			_ = s.Display(pixels)
		}
	}},
	{Name: "addString", Params: 2, bind: func(s Services) any {
		return func(offset, size uint32) {
			check(s.LogAppend(offset, size))
		}
	}},
	{Name: "printString", bind: func(s Services) any {
		return func() {
			s.LogFlush()
		}
	}},
	{Name: "memset", Params: 3, Results: 1, bind: func(s Services) any {
		return func(ptr, value, size uint32) uint32 {
			return must(s.Fill(ptr, value, size))
		}
	}},
	{Name: "memcpy", Params: 3, Results: 1, bind: func(s Services) any {
		return func(dest, src, size uint32) uint32 {
			return must(s.Copy(dest, src, size))
		}
	}},
	{Name: "memcmp", Params: 3, Results: 1, bind: func(s Services) any {
		return func(p, q, size uint32) int32 {
			return must(s.Compare(p, q, size))
		}
	}},
	{Name: "malloc", Params: 1, Results: 1, bind: func(s Services) any {
		return func(size uint32) uint32 {
			return must(s.Allocate(size))
		}
	}},
	{Name: "free", Params: 1, bind: func(s Services) any {
		return func(ptr uint32) {
			s.Free(ptr)
		}
	}},
	{Name: "__assert_fail_js", Params: 4, bind: func(s Services) any {
		return func(assertion, file, line, function uint32) {
			s.ReportAssertFailure(assertion, file, line, function)
		}
	}},
	{Name: "__stack_fault_js", bind: func(s Services) any {
		return func() {
			s.ReportStackFault()
		}
	}},
}

// Lookup finds a capability by import name.
func Lookup(name string) (Capability, bool) {
	for _, c := range Capabilities {
		if c.Name == name {
			return c, true
		}
	}
	return Capability{}, false
}

// Export registers every capability on builder, backed by s.
func Export(builder wazero.HostModuleBuilder, s Services) wazero.HostModuleBuilder {
	for _, c := range Capabilities {
		builder = builder.NewFunctionBuilder().WithFunc(c.Func(s)).Export(c.Name)
	}
	return builder
}

func i32s(n int) []api.ValueType {
	types := make([]api.ValueType, n)
	for i := range types {
		types[i] = api.ValueTypeI32
	}
	return types
}

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func must[T any](v T, err error) T {
	check(err)
	return v
}
