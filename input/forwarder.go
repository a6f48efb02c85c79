// Package input routes host keyboard events to the guest's input entry
// points.
//
// A key that produces a single printable character is forwarded as that
// character. Anything else is a named key and is forwarded by its numeric
// key code to keydown and, on release, keyup. Releases of printable keys are
// not forwarded since the character was already delivered on press.
package input

import (
	"context"
	"log/slog"
	"unicode/utf8"
)

// Target is the part of the guest the forwarder drives.
type Target interface {
	InputChar(ctx context.Context, code uint32) error
	KeyDown(ctx context.Context, code uint32) error
	KeyUp(ctx context.Context, code uint32) error
}

// Event is one key transition. Key is either the produced character or the
// key's name ("ArrowLeft", "F1"); Code is the numeric key code.
type Event struct {
	Key  string
	Code int
	Down bool
}

// Char returns the character code for keys that produce exactly one
// character unit.
func (e Event) Char() (uint32, bool) {
	r, size := utf8.DecodeRuneInString(e.Key)
	if size == 0 || size != len(e.Key) || r == utf8.RuneError || r > 0xFFFF {
		return 0, false
	}
	return uint32(r), true
}

type Forwarder struct {
	target Target
	logger *slog.Logger
}

func NewForwarder(target Target, logger *slog.Logger) *Forwarder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Forwarder{
		target: target,
		logger: logger.With("component", "InputForwarder"),
	}
}

func (f *Forwarder) Handle(ctx context.Context, ev Event) error {
	if code, ok := ev.Char(); ok {
		if !ev.Down {
			return nil
		}
		return f.target.InputChar(ctx, code)
	}
	if ev.Code <= 0 {
		f.logger.Debug("Ignoring key without code", "key", ev.Key)
		return nil
	}
	if ev.Down {
		return f.target.KeyDown(ctx, uint32(ev.Code))
	}
	return f.target.KeyUp(ctx, uint32(ev.Code))
}

// Type forwards each byte of text as a character.
func (f *Forwarder) Type(ctx context.Context, text []byte) error {
	for _, b := range text {
		if err := f.target.InputChar(ctx, uint32(b)); err != nil {
			return err
		}
	}
	return nil
}
