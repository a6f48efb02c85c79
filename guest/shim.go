package guest

import (
	"github.com/tomyedwab/zpzhost/bridge"
	"github.com/tomyedwab/zpzhost/internal/wasmbin"
)

// hostModule is the name the bridge functions are registered under when the
// guest imports its memory. wazero host modules can't define memory, so a
// generated module named env imports the functions from here and re-exports
// them next to a memory it owns.
const hostModule = "zpzhost"

// envShim encodes the env module for a guest that imports env.memory.
func envShim(limits wasmbin.Limits) []byte {
	m := wasmbin.NewModule()
	for _, c := range bridge.Capabilities {
		idx := m.ImportFunc(hostModule, c.Name, wasmbin.FuncType{
			Params:  i32s(c.Params),
			Results: i32s(c.Results),
		})
		m.ExportFunc(c.Name, idx)
	}
	m.Memory(limits)
	m.ExportMemory(memoryName)
	return m.Encode()
}

// shimLimits sizes the shared memory: the configured page count, raised to
// the guest's declared minimum and capped by its maximum.
func shimLimits(pages uint32, p *plan) wasmbin.Limits {
	limits := wasmbin.Limits{Min: max(pages, p.memoryMin)}
	if p.memoryHasMax {
		limits.Max = p.memoryMax
		limits.HasMax = true
		limits.Min = min(limits.Min, p.memoryMax)
	}
	return limits
}

func i32s(n int) []wasmbin.ValueType {
	types := make([]wasmbin.ValueType, n)
	for i := range types {
		types[i] = wasmbin.I32
	}
	return types
}
