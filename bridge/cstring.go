package bridge

import (
	"bytes"
	"strings"

	"github.com/tomyedwab/zpzhost/arena"
)

// DefaultScanLimit bounds how far DecodeCString looks for a terminator.
const DefaultScanLimit = 255

// DecodeCString reads a zero-terminated string at ptr. At most limit bytes
// are examined; if none of them is zero the string is those limit bytes. The
// scan also stops at the end of memory. Invalid UTF-8 is replaced.
func DecodeCString(a *arena.Arena, ptr, limit uint32) string {
	if limit == 0 {
		limit = DefaultScanLimit
	}
	buf := a.Tail(ptr, limit)
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return strings.ToValidUTF8(string(buf), "�")
}
