// Package session wires a guest, its runtime services and the host
// front ends into one running machine.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tetratelabs/wazero"
	"github.com/tomyedwab/zpzhost/bridge"
	"github.com/tomyedwab/zpzhost/config"
	"github.com/tomyedwab/zpzhost/display"
	"github.com/tomyedwab/zpzhost/guest"
	"github.com/tomyedwab/zpzhost/input"
	"github.com/tomyedwab/zpzhost/journal"
	"github.com/tomyedwab/zpzhost/media"
	"github.com/tomyedwab/zpzhost/scheduler"
)

type Options struct {
	Logger        *slog.Logger         // Optional, defaults to slog.Default()
	RuntimeConfig wazero.RuntimeConfig // Optional, defaults to wazero.NewRuntimeConfig()
	Wasm          []byte               // Optional, read from Guest.Path when nil
}

// Session owns everything that lives for one run of a guest.
type Session struct {
	cfg    *config.Config
	logger *slog.Logger

	runtime   wazero.Runtime
	bridge    *bridge.Bridge
	instance  *guest.Instance
	frame     *display.Frame
	scheduler *scheduler.Scheduler
	forwarder *input.Forwarder
	loader    *media.Loader
	journal   *journal.Journal

	outcome string
}

// New loads the guest and builds the session around it. Any error is
// fatal; nothing is left running.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{cfg: cfg, logger: logger.With("component", "Session")}
	ready := false
	defer func() {
		if !ready {
			s.Close(ctx)
		}
	}()

	var err error
	wasm := opts.Wasm
	if wasm == nil {
		path := cfg.Resolve(cfg.Guest.Path)
		if wasm, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("failed to read guest %s: %w", path, err)
		}
	}

	var diagnostics bridge.Diagnostics
	var recorder media.Recorder
	if cfg.Journal.Path != "" {
		if s.journal, err = journal.Open(cfg.Resolve(cfg.Journal.Path)); err != nil {
			return nil, err
		}
		diagnostics = s.journal
		recorder = s.journal

		id, err := s.journal.StartSession(filepath.Base(cfg.Guest.Path), cfg.Arena.Pages)
		if err != nil {
			return nil, fmt.Errorf("failed to start journal session: %w", err)
		}
		s.logger.Info("Journal session started", "session", id)
	}

	comp, err := display.NewCompositor(cfg.Display.Width, cfg.Display.Height)
	if err != nil {
		return nil, err
	}
	s.frame = display.NewFrame(comp)

	s.bridge = bridge.New(bridge.Config{
		Logger:      logger,
		Diagnostics: diagnostics,
		Frames:      s.frame,
	})

	runtimeConfig := opts.RuntimeConfig
	if runtimeConfig == nil {
		runtimeConfig = wazero.NewRuntimeConfig()
	}
	s.runtime = wazero.NewRuntimeWithConfig(ctx, runtimeConfig)

	s.instance, err = guest.Load(ctx, s.runtime, wasm, s.bridge, guest.Options{
		Logger:  logger,
		Pages:   cfg.Arena.Pages,
		Checked: cfg.Arena.Checked,
		WASI:    cfg.Guest.WASI,
	})
	if err != nil {
		return nil, err
	}

	var maxFrames uint64
	if cfg.Headless.Enabled {
		maxFrames = cfg.Headless.Frames
	}
	s.scheduler = scheduler.New(s.instance, scheduler.Config{
		Quantum:   cfg.Scheduler.Quantum,
		MaxFrames: maxFrames,
		Logger:    logger,
	})
	s.forwarder = input.NewForwarder(s.instance, logger)
	s.loader = media.NewLoader(s.instance, s.instance.Arena(), media.Config{
		Logger:   logger,
		Recorder: recorder,
	})

	// The scheduler isn't running yet, so startup disks go in directly.
	for drive, path := range []string{cfg.Drives.A, cfg.Drives.B} {
		if path == "" {
			continue
		}
		file := media.FileFromPath(cfg.Resolve(path))
		if err := s.loader.Select(ctx, uint32(drive), []media.File{file}); err != nil {
			return nil, fmt.Errorf("failed to insert %s: %w", path, err)
		}
	}
	ready = true
	return s, nil
}

// Run drives the guest until it stops. See scheduler.Scheduler.Run.
func (s *Session) Run(ctx context.Context, refresh scheduler.Refresh) error {
	err := s.scheduler.Run(ctx, refresh)
	stats := s.scheduler.Stats()
	s.logger.Info("Session finished",
		"frames", stats.Frames,
		"averageTick", stats.AverageTick(),
		"overruns", stats.Overruns,
		"arenaOffset", s.instance.Arena().Offset())
	s.outcome = fmt.Sprintf("stopped after %d frames", stats.Frames)
	if err != nil {
		s.outcome = fmt.Sprintf("failed after %d frames: %v", stats.Frames, err)
	}
	return err
}

func (s *Session) Stop() {
	s.scheduler.Stop()
}

// Done is closed once the session has been asked to stop.
func (s *Session) Done() <-chan struct{} {
	return s.scheduler.Done()
}

// PostKey queues a key event for the guest. It never blocks, so it is safe
// to call from the UI thread; a full queue drops the event.
func (s *Session) PostKey(ev input.Event) error {
	return s.scheduler.TryPost(func(ctx context.Context) error {
		return s.forwarder.Handle(ctx, ev)
	})
}

// PostText queues text to be typed into the guest without blocking.
func (s *Session) PostText(text []byte) error {
	if len(text) == 0 {
		return nil
	}
	return s.scheduler.TryPost(s.typeTask(text))
}

// TypeText is PostText for callers off the UI thread: it waits for room in
// the queue instead of dropping the text.
func (s *Session) TypeText(text []byte) error {
	if len(text) == 0 {
		return nil
	}
	return s.scheduler.Post(s.typeTask(text))
}

func (s *Session) typeTask(text []byte) scheduler.Task {
	return func(ctx context.Context) error {
		return s.forwarder.Type(ctx, text)
	}
}

// Drop reads the disk image among files in the background and queues its
// insertion. done, when not nil, is called exactly once with the outcome,
// including scheduler.ErrStopped if the session stops first.
func (s *Session) Drop(drive uint32, files []media.File, done func(error)) {
	finish := func(err error) {
		if err != nil {
			s.logger.Error("Failed to insert disk", "drive", media.DriveName(drive), "error", err)
		}
		if done != nil {
			done(err)
		}
	}
	go func() {
		img, err := s.loader.Read(files)
		if err != nil || img == nil {
			finish(err)
			return
		}
		err = s.scheduler.PostOrDrop(func(ctx context.Context) error {
			err := s.loader.Insert(ctx, drive, img)
			finish(err)
			return err
		}, finish)
		if err != nil {
			finish(err)
		}
	}()
}

func (s *Session) Frame() *display.Frame {
	return s.frame
}

// Labels lists the inserted disks.
func (s *Session) Labels() []string {
	return s.loader.Labels()
}

func (s *Session) Stats() scheduler.Stats {
	return s.scheduler.Stats()
}

func (s *Session) Instance() *guest.Instance {
	return s.instance
}

// Close records the end of the session and releases the runtime.
func (s *Session) Close(ctx context.Context) error {
	var errs []error
	if s.journal != nil {
		if s.journal.SessionID() != "" {
			reason := s.outcome
			if reason == "" {
				reason = "never started"
			}
			if err := s.journal.EndSession(reason); err != nil {
				errs = append(errs, err)
			}
		}
		if err := s.journal.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.runtime != nil {
		if err := s.runtime.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
