package session

import (
	"context"
	"fmt"
	"image/png"
	"os"

	"github.com/tomyedwab/zpzhost/input"
	"github.com/tomyedwab/zpzhost/scheduler"
)

// RunHeadless drives the guest from a timer instead of a display. Keys typed
// on the terminal go to the guest as characters; Ctrl+C stops the session.
func (s *Session) RunHeadless(ctx context.Context) error {
	h := s.cfg.Headless
	refresh := scheduler.NewTickerRefresh(h.Interval())
	defer refresh.Stop()

	if h.Terminal {
		term := input.NewTerminal(os.Stdin, s.logger)
		emit := func(b byte) {
			if err := s.TypeText([]byte{b}); err != nil {
				s.logger.Debug("Dropped terminal input", "error", err)
			}
		}
		if err := term.Start(emit, s.Stop); err != nil {
			return err
		}
		defer term.Stop()
	}

	s.logger.Info("Running headless", "interval", h.Interval(), "frames", h.Frames)
	runErr := s.Run(ctx, refresh)

	if h.Screenshot != "" {
		path := s.cfg.Resolve(h.Screenshot)
		if err := s.WriteScreenshot(path); err != nil {
			s.logger.Error("Failed to write screenshot", "path", path, "error", err)
			if runErr == nil {
				runErr = err
			}
		}
	}
	return runErr
}

// WriteScreenshot saves the current frame as a PNG.
func (s *Session) WriteScreenshot(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := png.Encode(f, s.frame.Image()); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	s.logger.Info("Screenshot written", "path", path, "frame", s.frame.Count())
	return nil
}
