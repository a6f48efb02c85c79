package bridge

import (
	"bytes"
	"strings"
)

// LogBuffer accumulates guest log text between flushes. Bytes are kept raw so
// a multi-byte character split across two appends still decodes.
type LogBuffer struct {
	buf bytes.Buffer
}

func NewLogBuffer() *LogBuffer {
	return &LogBuffer{}
}

func (l *LogBuffer) Append(p []byte) {
	l.buf.Write(p)
}

func (l *LogBuffer) Len() int {
	return l.buf.Len()
}

// Flush returns the accumulated text and empties the buffer.
func (l *LogBuffer) Flush() string {
	text := strings.ToValidUTF8(l.buf.String(), "�")
	l.buf.Reset()
	return text
}
