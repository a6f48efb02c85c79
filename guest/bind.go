package guest

import (
	"errors"
	"fmt"
	"slices"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tomyedwab/zpzhost/bridge"
)

const (
	envModule  = "env"
	wasiModule = "wasi_snapshot_preview1"
	memoryName = "memory"
)

// Guest export names.
const (
	ExportNewEmulator = "new_emulator"
	ExportInputChar   = "input_char"
	ExportKeyDown     = "keydown"
	ExportKeyUp       = "keyup"
	ExportTick        = "tick"
	ExportInsertDisk  = "insert_disk"
	ExportInitialize  = "_initialize"
	ExportHeapBase    = "__heap_base"
)

// BindError describes a guest import or export the host can't satisfy.
type BindError struct {
	Kind    string // "import", "export" or "memory"
	Name    string
	Details string
}

func (e *BindError) Error() string {
	return fmt.Sprintf("guest %s %q: %s", e.Kind, e.Name, e.Details)
}

// entrySpec is the expected shape of a guest export. Params counts the
// arguments without the instance handle; a guest may take one extra leading
// parameter, which is then the handle.
type entrySpec struct {
	name     string
	params   int
	results  []int
	optional bool
}

var entrySpecs = []entrySpec{
	{name: ExportNewEmulator, params: 0, results: []int{1}},
	{name: ExportInputChar, params: 1, results: []int{0, 1}},
	{name: ExportKeyDown, params: 1, results: []int{0, 1}},
	{name: ExportKeyUp, params: 1, results: []int{0, 1}},
	{name: ExportTick, params: 1, results: []int{0, 1}},
	{name: ExportInsertDisk, params: 3, results: []int{0, 1}, optional: true},
}

// plan is what validation learned about the guest.
type plan struct {
	importsMemory bool
	memoryMin     uint32
	memoryMax     uint32
	memoryHasMax  bool
	usesWASI      bool
	takesHandle   map[string]bool
	present       map[string]bool
	initialize    bool
}

// validate checks the compiled guest against the host capability set and
// the entry points the host drives. All problems are reported together.
func validate(compiled wazero.CompiledModule, allowWASI bool) (*plan, error) {
	p := &plan{
		takesHandle: map[string]bool{},
		present:     map[string]bool{},
	}
	var errs []error

	for _, def := range compiled.ImportedFunctions() {
		module, name, _ := def.Import()
		switch module {
		case envModule:
			c, ok := bridge.Lookup(name)
			if !ok {
				errs = append(errs, &BindError{Kind: "import", Name: name, Details: "host does not provide this function"})
				continue
			}
			if !slices.Equal(def.ParamTypes(), c.ParamTypes()) || !slices.Equal(def.ResultTypes(), c.ResultTypes()) {
				errs = append(errs, &BindError{
					Kind:    "import",
					Name:    name,
					Details: fmt.Sprintf("signature %s, host provides %s", signature(def.ParamTypes(), def.ResultTypes()), signature(c.ParamTypes(), c.ResultTypes())),
				})
			}
		case wasiModule:
			if !allowWASI {
				errs = append(errs, &BindError{Kind: "import", Name: module + "." + name, Details: "WASI is disabled"})
				continue
			}
			p.usesWASI = true
		default:
			errs = append(errs, &BindError{Kind: "import", Name: module + "." + name, Details: "unknown import module"})
		}
	}

	for _, def := range compiled.ImportedMemories() {
		module, name, _ := def.Import()
		if module != envModule || name != memoryName {
			errs = append(errs, &BindError{Kind: "memory", Name: module + "." + name, Details: "only env.memory can be imported"})
			continue
		}
		p.importsMemory = true
		p.memoryMin = def.Min()
		p.memoryMax, p.memoryHasMax = def.Max()
	}
	if !p.importsMemory {
		if _, ok := compiled.ExportedMemories()[memoryName]; !ok {
			errs = append(errs, &BindError{Kind: "memory", Name: memoryName, Details: "guest neither imports nor exports memory"})
		}
	}

	exports := compiled.ExportedFunctions()
	for _, want := range entrySpecs {
		def, ok := exports[want.name]
		if !ok {
			if !want.optional {
				errs = append(errs, &BindError{Kind: "export", Name: want.name, Details: "required entry point is missing"})
			}
			continue
		}
		if err := checkEntry(want, def); err != nil {
			errs = append(errs, err)
			continue
		}
		p.present[want.name] = true
		p.takesHandle[want.name] = len(def.ParamTypes()) == want.params+1
	}
	if def, ok := exports[ExportInitialize]; ok && len(def.ParamTypes()) == 0 {
		p.initialize = true
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return p, nil
}

func checkEntry(want entrySpec, def api.FunctionDefinition) error {
	params := def.ParamTypes()
	if len(params) != want.params && !(want.params > 0 && len(params) == want.params+1) {
		return &BindError{Kind: "export", Name: want.name, Details: fmt.Sprintf("takes %d parameters, expected %d (or %d with an instance handle)", len(params), want.params, want.params+1)}
	}
	for _, t := range params {
		if t != api.ValueTypeI32 {
			return &BindError{Kind: "export", Name: want.name, Details: "parameters must be i32"}
		}
	}
	results := def.ResultTypes()
	if !slices.Contains(want.results, len(results)) {
		return &BindError{Kind: "export", Name: want.name, Details: fmt.Sprintf("returns %d values", len(results))}
	}
	if want.name == ExportNewEmulator && results[0] != api.ValueTypeI32 {
		return &BindError{Kind: "export", Name: want.name, Details: "instance handle must be i32"}
	}
	return nil
}

func signature(params, results []api.ValueType) string {
	return fmt.Sprintf("(%s) -> (%s)", typeNames(params), typeNames(results))
}

func typeNames(types []api.ValueType) string {
	s := ""
	for i, t := range types {
		if i > 0 {
			s += ", "
		}
		s += api.ValueTypeName(t)
	}
	return s
}
