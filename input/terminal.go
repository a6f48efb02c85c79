package input

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/term"
)

const ctrlC = 0x03

// Terminal forwards stdin keystrokes when running without a window. The
// terminal is put in raw mode so keys arrive one at a time without echo.
type Terminal struct {
	in     *os.File
	logger *slog.Logger

	mu       sync.Mutex
	oldState *term.State
	stopOnce sync.Once
	done     chan struct{}
}

func NewTerminal(in *os.File, logger *slog.Logger) *Terminal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Terminal{
		in:     in,
		logger: logger.With("component", "Terminal"),
		done:   make(chan struct{}),
	}
}

// Start reads bytes until EOF, calling emit for each translated byte and
// interrupt on Ctrl+C. A stdin that is not a terminal is read as is.
func (t *Terminal) Start(emit func(b byte), interrupt func()) error {
	fd := int(t.in.Fd())
	if term.IsTerminal(fd) {
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("failed to set raw mode: %w", err)
		}
		t.mu.Lock()
		t.oldState = oldState
		t.mu.Unlock()
	}

	go func() {
		defer close(t.done)
		buf := make([]byte, 64)
		for {
			n, err := t.in.Read(buf)
			for _, b := range buf[:n] {
				if b == ctrlC && interrupt != nil {
					interrupt()
					continue
				}
				emit(TerminalByte(b))
			}
			if err != nil {
				if err != io.EOF {
					t.logger.Error("Failed to read terminal", "error", err)
				}
				return
			}
		}
	}()
	return nil
}

// Done is closed when the reader reaches EOF.
func (t *Terminal) Done() <-chan struct{} {
	return t.done
}

// Stop restores the terminal. The reader goroutine ends with the process
// or at EOF, whichever comes first.
func (t *Terminal) Stop() {
	t.stopOnce.Do(func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.oldState != nil {
			_ = term.Restore(int(t.in.Fd()), t.oldState)
			t.oldState = nil
		}
	})
}
