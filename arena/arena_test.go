package arena

import (
	"errors"
	"testing"
)

func TestNewPromotesZeroBase(t *testing.T) {
	a := New(make(Buffer, 64), Config{})
	if a.Offset() != 1 {
		t.Fatalf("Expected first offset 1, got %d", a.Offset())
	}

	ptr, err := a.Allocate(0)
	if err != nil {
		t.Fatalf("Allocate returned error: %v", err)
	}
	if ptr == 0 {
		t.Fatal("Allocate returned the null offset")
	}
}

func TestAllocateMonotonicNonOverlapping(t *testing.T) {
	a := New(make(Buffer, 4096), Config{Checked: true})
	sizes := []uint32{0, 1, 7, 0, 64, 3, 1000, 0, 1}

	var prevPtr, prevEnd uint32
	for i, size := range sizes {
		ptr, err := a.Allocate(size)
		if err != nil {
			t.Fatalf("Allocate(%d) returned error: %v", size, err)
		}
		if ptr == 0 {
			t.Fatalf("Allocation %d returned offset 0", i)
		}
		if i > 0 {
			if ptr < prevPtr {
				t.Errorf("Allocation %d at %d went backwards from %d", i, ptr, prevPtr)
			}
			if ptr < prevEnd {
				t.Errorf("Allocation %d at %d overlaps previous range ending at %d", i, ptr, prevEnd)
			}
		}
		prevPtr, prevEnd = ptr, ptr+size
	}

	stats := a.Stats()
	if stats.Allocations != uint64(len(sizes)) {
		t.Errorf("Expected %d allocations, got %d", len(sizes), stats.Allocations)
	}
	if stats.Used() != 1076 {
		t.Errorf("Expected 1076 bytes used, got %d", stats.Used())
	}
}

func TestAllocateStrictlyIncreasingForNonZeroSizes(t *testing.T) {
	a := New(make(Buffer, 1<<16), Config{Base: 1024, Checked: true})
	last := uint32(0)
	for size := uint32(1); size < 200; size += 13 {
		ptr, err := a.Allocate(size)
		if err != nil {
			t.Fatalf("Allocate(%d) returned error: %v", size, err)
		}
		if ptr <= last {
			t.Fatalf("Expected offset above %d, got %d", last, ptr)
		}
		last = ptr
	}
}

func TestAllocateCheckedExhaustion(t *testing.T) {
	a := New(make(Buffer, 16), Config{Checked: true})

	if _, err := a.Allocate(15); err != nil {
		t.Fatalf("Allocate(15) returned error: %v", err)
	}
	before := a.Offset()
	_, err := a.Allocate(1)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("Expected ErrExhausted, got %v", err)
	}
	if a.Offset() != before {
		t.Errorf("Failed allocation moved the free offset from %d to %d", before, a.Offset())
	}
}

func TestAllocateUncheckedOverrun(t *testing.T) {
	a := New(make(Buffer, 16), Config{})
	ptr, err := a.Allocate(32)
	if err != nil {
		t.Fatalf("Unchecked Allocate returned error: %v", err)
	}
	if ptr != 1 {
		t.Errorf("Expected offset 1, got %d", ptr)
	}
	if a.Offset() != 33 {
		t.Errorf("Expected free offset 33, got %d", a.Offset())
	}
	if a.Stats().Remaining() != 0 {
		t.Errorf("Expected nothing remaining, got %d", a.Stats().Remaining())
	}
}

func TestFreeIsNoop(t *testing.T) {
	a := New(make(Buffer, 64), Config{Checked: true})
	ptr, _ := a.Allocate(8)
	a.Free(ptr)
	next, _ := a.Allocate(8)
	if next == ptr {
		t.Fatal("Freed memory was handed out again")
	}
}

func TestBytesAndWrite(t *testing.T) {
	mem := make(Buffer, 32)
	a := New(mem, Config{Checked: true})

	if err := a.Write(4, []byte("abc")); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if string(mem[4:7]) != "abc" {
		t.Errorf("Expected abc at offset 4, got %q", mem[4:7])
	}

	if _, err := a.Bytes(30, 4); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange, got %v", err)
	}
	if err := a.Write(31, []byte("xy")); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange, got %v", err)
	}
}

func TestTail(t *testing.T) {
	a := New(make(Buffer, 10), Config{})
	if got := len(a.Tail(2, 100)); got != 8 {
		t.Errorf("Expected 8 bytes, got %d", got)
	}
	if got := len(a.Tail(2, 3)); got != 3 {
		t.Errorf("Expected 3 bytes, got %d", got)
	}
	if got := a.Tail(10, 3); got != nil {
		t.Errorf("Expected nil at end of memory, got %v", got)
	}
}
