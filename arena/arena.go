package arena

import (
	"errors"
	"fmt"
	"math"
)

// ErrExhausted is returned when an allocation would run past the end of the
// arena's memory.
var ErrExhausted = errors.New("arena exhausted")

// ErrOutOfRange is returned when an address range falls outside memory.
var ErrOutOfRange = errors.New("address out of range")

// Memory is the view of linear memory the arena allocates from. wazero's
// api.Memory satisfies it, as does Buffer.
type Memory interface {
	Size() uint32
	Read(offset, byteCount uint32) ([]byte, bool)
}

// Buffer is a Memory backed by a plain byte slice.
type Buffer []byte

func (b Buffer) Size() uint32 {
	return uint32(len(b))
}

func (b Buffer) Read(offset, byteCount uint32) ([]byte, bool) {
	end := uint64(offset) + uint64(byteCount)
	if end > uint64(len(b)) {
		return nil, false
	}
	return b[offset:end], true
}

// Config controls where allocation starts and whether capacity is enforced.
type Config struct {
	// Base is the first offset handed out. Zero is promoted to 1 since offset
	// 0 is the null address.
	Base uint32
	// Checked makes Allocate fail with ErrExhausted instead of returning an
	// offset past the end of memory.
	Checked bool
}

// Arena is a monotonic allocator over a single Memory. Nothing is ever freed.
type Arena struct {
	mem     Memory
	base    uint32
	free    uint32
	checked bool
	allocs  uint64
}

// Stats is a snapshot of arena usage.
type Stats struct {
	Base        uint32
	Offset      uint32
	Capacity    uint32
	Allocations uint64
}

// Used returns the number of bytes handed out since Base.
func (s Stats) Used() uint32 {
	return s.Offset - s.Base
}

// Remaining returns the number of bytes left before the arena is exhausted.
func (s Stats) Remaining() uint32 {
	if s.Offset >= s.Capacity {
		return 0
	}
	return s.Capacity - s.Offset
}

func New(mem Memory, cfg Config) *Arena {
	base := cfg.Base
	if base == 0 {
		base = 1
	}
	return &Arena{
		mem:     mem,
		base:    base,
		free:    base,
		checked: cfg.Checked,
	}
}

// Allocate returns the current free offset and advances it by size. The
// returned offset is never 0 and never overlaps a previous allocation as long
// as capacity holds.
func (a *Arena) Allocate(size uint32) (uint32, error) {
	ptr := a.free
	end := uint64(ptr) + uint64(size)
	if a.checked && (end > math.MaxUint32 || end > uint64(a.mem.Size())) {
		return 0, fmt.Errorf("allocate %d bytes at %d (capacity %d): %w", size, ptr, a.mem.Size(), ErrExhausted)
	}
	a.free = uint32(end)
	a.allocs++
	return ptr, nil
}

// Free is accepted for malloc/free callers and does nothing.
func (a *Arena) Free(offset uint32) {}

// Offset returns the next offset Allocate would hand out.
func (a *Arena) Offset() uint32 {
	return a.free
}

// Capacity returns the current size of the underlying memory.
func (a *Arena) Capacity() uint32 {
	return a.mem.Size()
}

// Checked reports whether Allocate enforces capacity.
func (a *Arena) Checked() bool {
	return a.checked
}

func (a *Arena) Stats() Stats {
	return Stats{
		Base:        a.base,
		Offset:      a.free,
		Capacity:    a.mem.Size(),
		Allocations: a.allocs,
	}
}

// Bytes returns a writable view of [offset, offset+n). The view aliases the
// arena's memory and is only valid until the memory grows.
func (a *Arena) Bytes(offset, n uint32) ([]byte, error) {
	buf, ok := a.mem.Read(offset, n)
	if !ok {
		return nil, fmt.Errorf("read %d bytes at %d (memory size %d): %w", n, offset, a.mem.Size(), ErrOutOfRange)
	}
	return buf, nil
}

// Write copies data into memory at offset.
func (a *Arena) Write(offset uint32, data []byte) error {
	if uint64(len(data)) > math.MaxUint32 {
		return fmt.Errorf("write %d bytes at %d: %w", len(data), offset, ErrOutOfRange)
	}
	buf, err := a.Bytes(offset, uint32(len(data)))
	if err != nil {
		return err
	}
	copy(buf, data)
	return nil
}

// Tail returns a view from offset to the end of memory, at most limit bytes
// long.
func (a *Arena) Tail(offset, limit uint32) []byte {
	size := a.mem.Size()
	if offset >= size {
		return nil
	}
	n := size - offset
	if n > limit {
		n = limit
	}
	buf, _ := a.mem.Read(offset, n)
	return buf
}
