package bridge

import "github.com/tomyedwab/zpzhost/arena"

// Fill sets size bytes at ptr to the low byte of value and returns ptr.
func Fill(a *arena.Arena, ptr, value, size uint32) (uint32, error) {
	if size == 0 {
		return ptr, nil
	}
	buf, err := a.Bytes(ptr, size)
	if err != nil {
		return 0, err
	}
	b := byte(value)
	for i := range buf {
		buf[i] = b
	}
	return ptr, nil
}

// Copy moves size bytes from src to dest and returns dest. Overlapping ranges
// behave as if copied through a temporary buffer.
func Copy(a *arena.Arena, dest, src, size uint32) (uint32, error) {
	if size == 0 {
		return dest, nil
	}
	from, err := a.Bytes(src, size)
	if err != nil {
		return 0, err
	}
	to, err := a.Bytes(dest, size)
	if err != nil {
		return 0, err
	}
	// copy has memmove semantics.
	copy(to, from)
	return dest, nil
}

// Compare compares size bytes at p and q as unsigned values. It returns 0 when
// they are equal, otherwise the difference of the first mismatching pair.
func Compare(a *arena.Arena, p, q, size uint32) (int32, error) {
	if size == 0 {
		return 0, nil
	}
	left, err := a.Bytes(p, size)
	if err != nil {
		return 0, err
	}
	right, err := a.Bytes(q, size)
	if err != nil {
		return 0, err
	}
	for i := range left {
		if left[i] != right[i] {
			return int32(left[i]) - int32(right[i]), nil
		}
	}
	return 0, nil
}
