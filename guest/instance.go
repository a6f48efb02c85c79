// Package guest loads a machine-simulation guest module into wazero, checks it
// against the host capability set at bind time and exposes its entry points.
package guest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tomyedwab/zpzhost/arena"
	"github.com/tomyedwab/zpzhost/bridge"
)

// DefaultPages is the arena size, in 64KiB pages, when the host owns memory.
const DefaultPages = 1000

// Guest is the set of entry points the rest of the host drives.
type Guest interface {
	InputChar(ctx context.Context, code uint32) error
	KeyDown(ctx context.Context, code uint32) error
	KeyUp(ctx context.Context, code uint32) error
	Tick(ctx context.Context, quantum uint32) error
	InsertDisk(ctx context.Context, drive, ptr, size uint32) error
	CanInsertMedia() bool
}

type Options struct {
	Logger  *slog.Logger // Optional, defaults to slog.Default()
	Pages   uint32       // Optional, defaults to DefaultPages; used when the guest imports memory
	Checked bool         // Enforce arena capacity on allocation
	WASI    bool         // Allow wasi_snapshot_preview1 imports
}

type entry struct {
	fn          api.Function
	takesHandle bool
}

// Instance is one running guest plus the arena it shares with the host.
type Instance struct {
	module  api.Module
	shim    api.Module
	arena   *arena.Arena
	handle  uint32
	entries map[string]entry
	logger  *slog.Logger
}

var _ Guest = (*Instance)(nil)

// Load compiles wasm, validates it, binds b as its runtime services and
// constructs the emulator instance. Any failure here is fatal for the
// session.
func Load(ctx context.Context, r wazero.Runtime, wasm []byte, b *bridge.Bridge, opts Options) (*Instance, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "Guest")
	pages := opts.Pages
	if pages == 0 {
		pages = DefaultPages
	}

	compiled, err := r.CompileModule(ctx, wasm)
	if err != nil {
		return nil, fmt.Errorf("failed to compile guest: %w", err)
	}
	p, err := validate(compiled, opts.WASI)
	if err != nil {
		return nil, fmt.Errorf("guest does not match host capabilities: %w", err)
	}

	if p.usesWASI {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
			return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
		}
	}

	inst := &Instance{
		entries: map[string]entry{},
		logger:  logger,
	}

	var mem api.Memory
	if p.importsMemory {
		if _, err := bridge.Export(r.NewHostModuleBuilder(hostModule), b).Instantiate(ctx); err != nil {
			return nil, fmt.Errorf("failed to instantiate host services: %w", err)
		}
		limits := shimLimits(pages, p)
		inst.shim, err = r.InstantiateWithConfig(ctx, envShim(limits), wazero.NewModuleConfig().WithName(envModule))
		if err != nil {
			return nil, fmt.Errorf("failed to instantiate env memory: %w", err)
		}
		mem = inst.shim.Memory()
		logger.Info("Host-owned arena memory", "pages", limits.Min, "bytes", mem.Size())
	} else {
		if _, err := bridge.Export(r.NewHostModuleBuilder(envModule), b).Instantiate(ctx); err != nil {
			return nil, fmt.Errorf("failed to instantiate host services: %w", err)
		}
	}

	// Start functions run after the arena is bound, since they may allocate.
	inst.module, err = r.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("guest").WithStartFunctions())
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate guest: %w", err)
	}
	if mem == nil {
		mem = inst.module.Memory()
		logger.Info("Guest-owned arena memory", "bytes", mem.Size())
	}

	base := uint32(0)
	if g := inst.module.ExportedGlobal(ExportHeapBase); g != nil {
		base = uint32(g.Get())
	}
	inst.arena = arena.New(mem, arena.Config{Base: base, Checked: opts.Checked})
	b.Bind(inst.arena)

	for name := range p.present {
		inst.entries[name] = entry{
			fn:          inst.module.ExportedFunction(name),
			takesHandle: p.takesHandle[name],
		}
	}

	if p.initialize {
		if _, err := inst.module.ExportedFunction(ExportInitialize).Call(ctx); err != nil {
			return nil, fmt.Errorf("guest initialization failed: %w", err)
		}
	}

	res, err := inst.entries[ExportNewEmulator].fn.Call(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to construct emulator: %w", err)
	}
	inst.handle = uint32(res[0])
	logger.Info("Guest instance constructed", "handle", inst.handle, "arenaOffset", inst.arena.Offset())
	return inst, nil
}

func (i *Instance) call(ctx context.Context, name string, args ...uint64) error {
	e, ok := i.entries[name]
	if !ok {
		return fmt.Errorf("guest does not export %s", name)
	}
	if e.takesHandle {
		args = append([]uint64{uint64(i.handle)}, args...)
	}
	if _, err := e.fn.Call(ctx, args...); err != nil {
		return fmt.Errorf("%s failed: %w", name, err)
	}
	return nil
}

func (i *Instance) InputChar(ctx context.Context, code uint32) error {
	return i.call(ctx, ExportInputChar, uint64(code))
}

func (i *Instance) KeyDown(ctx context.Context, code uint32) error {
	return i.call(ctx, ExportKeyDown, uint64(code))
}

func (i *Instance) KeyUp(ctx context.Context, code uint32) error {
	return i.call(ctx, ExportKeyUp, uint64(code))
}

// Tick advances the simulation by quantum milliseconds of machine time.
func (i *Instance) Tick(ctx context.Context, quantum uint32) error {
	return i.call(ctx, ExportTick, uint64(quantum))
}

// InsertDisk tells the guest a disk image of size bytes is at ptr.
func (i *Instance) InsertDisk(ctx context.Context, drive, ptr, size uint32) error {
	return i.call(ctx, ExportInsertDisk, uint64(drive), uint64(ptr), uint64(size))
}

func (i *Instance) CanInsertMedia() bool {
	_, ok := i.entries[ExportInsertDisk]
	return ok
}

// Handle returns the value new_emulator returned.
func (i *Instance) Handle() uint32 {
	return i.handle
}

func (i *Instance) Arena() *arena.Arena {
	return i.arena
}

func (i *Instance) Close(ctx context.Context) error {
	return i.module.Close(ctx)
}
