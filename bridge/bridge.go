// Package bridge implements the runtime services a guest module imports from
// the host: block fill/copy/compare on the shared arena, allocation, log text
// accumulation, frame display and diagnostic reporting.
package bridge

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/tomyedwab/zpzhost/arena"
)

// Diagnostic kinds passed to a Diagnostics recorder.
const (
	DiagAssertFailure = "assert_failure"
	DiagStackFault    = "stack_fault"
)

const stackFaultMessage = "guest stack exhausted: unrecoverable fault"

var ErrNotBound = errors.New("bridge has no arena bound")

// Diagnostics receives guest-reported failures in addition to the log.
type Diagnostics interface {
	RecordDiagnostic(kind, detail string) error
}

// FrameSink receives the guest's pixel buffer when it signals a finished
// frame. The slice aliases guest memory and must not be retained.
type FrameSink interface {
	SourceLen() uint32
	ShowFrame(src []byte) error
}

// Services is the capability set a guest may import. Every env import the
// host accepts is bound to exactly one of these methods; see Capabilities.
type Services interface {
	Display(pixels uint32) error
	LogAppend(offset, size uint32) error
	LogFlush()
	Fill(ptr, value, size uint32) (uint32, error)
	Copy(dest, src, size uint32) (uint32, error)
	Compare(p, q, size uint32) (int32, error)
	Allocate(size uint32) (uint32, error)
	Free(ptr uint32)
	ReportAssertFailure(assertion, file, line, function uint32)
	ReportStackFault()
}

type Config struct {
	Logger      *slog.Logger // Optional, defaults to slog.Default()
	Diagnostics Diagnostics  // Optional
	Frames      FrameSink    // Optional, frames are dropped without one
	ScanLimit   uint32       // Optional, defaults to DefaultScanLimit
}

// Bridge is the host's implementation of Services. The arena is bound after
// construction because with guest-owned memory it only exists once the guest
// is instantiated.
type Bridge struct {
	arena       *arena.Arena
	log         *LogBuffer
	logger      *slog.Logger
	diagnostics Diagnostics
	frames      FrameSink
	scanLimit   uint32
}

var _ Services = (*Bridge)(nil)

func New(config Config) *Bridge {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	scanLimit := config.ScanLimit
	if scanLimit == 0 {
		scanLimit = DefaultScanLimit
	}
	return &Bridge{
		log:         NewLogBuffer(),
		logger:      logger.With("component", "RuntimeBridge"),
		diagnostics: config.Diagnostics,
		frames:      config.Frames,
		scanLimit:   scanLimit,
	}
}

// Bind attaches the arena every service addresses.
func (b *Bridge) Bind(a *arena.Arena) {
	b.arena = a
}

func (b *Bridge) Arena() *arena.Arena {
	return b.arena
}

// SetFrameSink replaces the display target.
func (b *Bridge) SetFrameSink(frames FrameSink) {
	b.frames = frames
}

func (b *Bridge) Fill(ptr, value, size uint32) (uint32, error) {
	if b.arena == nil {
		return 0, ErrNotBound
	}
	return Fill(b.arena, ptr, value, size)
}

func (b *Bridge) Copy(dest, src, size uint32) (uint32, error) {
	if b.arena == nil {
		return 0, ErrNotBound
	}
	return Copy(b.arena, dest, src, size)
}

func (b *Bridge) Compare(p, q, size uint32) (int32, error) {
	if b.arena == nil {
		return 0, ErrNotBound
	}
	return Compare(b.arena, p, q, size)
}

func (b *Bridge) Allocate(size uint32) (uint32, error) {
	if b.arena == nil {
		return 0, ErrNotBound
	}
	ptr, err := b.arena.Allocate(size)
	if err != nil {
		b.logger.Error("Guest allocation failed", "size", size, "error", err)
		return 0, err
	}
	return ptr, nil
}

func (b *Bridge) Free(ptr uint32) {
	if b.arena != nil {
		b.arena.Free(ptr)
	}
}

func (b *Bridge) LogAppend(offset, size uint32) error {
	if b.arena == nil {
		return ErrNotBound
	}
	buf, err := b.arena.Bytes(offset, size)
	if err != nil {
		return err
	}
	b.log.Append(buf)
	return nil
}

func (b *Bridge) LogFlush() {
	b.logger.Info("Guest log", "text", b.log.Flush())
}

// PendingLog returns the number of bytes appended since the last flush.
func (b *Bridge) PendingLog() int {
	return b.log.Len()
}

// Display hands the pixel buffer at pixels to the frame sink. A buffer that
// doesn't fit in memory drops the frame.
func (b *Bridge) Display(pixels uint32) error {
	if b.frames == nil {
		return nil
	}
	if b.arena == nil {
		return ErrNotBound
	}
	src, err := b.arena.Bytes(pixels, b.frames.SourceLen())
	if err != nil {
		b.logger.Error("Dropping frame", "offset", pixels, "error", err)
		return err
	}
	if err := b.frames.ShowFrame(src); err != nil {
		b.logger.Error("Failed to show frame", "offset", pixels, "error", err)
		return err
	}
	return nil
}

// FormatAssertFailure renders the diagnostic for a failed guest assertion.
func (b *Bridge) FormatAssertFailure(assertion, file, line, function uint32) string {
	return fmt.Sprintf("%s(%d): %s in %s",
		DecodeCString(b.arena, file, b.scanLimit),
		line,
		DecodeCString(b.arena, assertion, b.scanLimit),
		DecodeCString(b.arena, function, b.scanLimit))
}

// ReportAssertFailure logs a guest assertion failure. Execution continues;
// whether to abort is the guest's decision.
func (b *Bridge) ReportAssertFailure(assertion, file, line, function uint32) {
	if b.arena == nil {
		b.logger.Error("Guest assertion failed before arena was bound", "line", line)
		return
	}
	message := b.FormatAssertFailure(assertion, file, line, function)
	b.logger.Error("Guest assertion failed", "diagnostic", message)
	b.record(DiagAssertFailure, message)
}

func (b *Bridge) ReportStackFault() {
	b.logger.Error(stackFaultMessage)
	b.record(DiagStackFault, stackFaultMessage)
}

func (b *Bridge) record(kind, detail string) {
	if b.diagnostics == nil {
		return
	}
	if err := b.diagnostics.RecordDiagnostic(kind, detail); err != nil {
		b.logger.Warn("Failed to record diagnostic", "kind", kind, "error", err)
	}
}
