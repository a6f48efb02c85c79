// Package scheduler pumps the guest forward one fixed quantum per display
// refresh. It owns the single logical thread every guest call runs on: host
// events are posted as tasks and drained between ticks.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultQuantum is one frame of machine time, in milliseconds.
	DefaultQuantum   = 16
	defaultQueueSize = 256
)

var (
	// ErrStopped is returned by Post once the scheduler has stopped, and
	// passed to the drop callback of tasks that never ran.
	ErrStopped = errors.New("scheduler stopped")
	// ErrQueueFull is returned by TryPost when the task queue has no room.
	ErrQueueFull = errors.New("scheduler task queue is full")
)

type State int32

const (
	Running State = iota
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Advancer is the guest's time-advance entry point.
type Advancer interface {
	Tick(ctx context.Context, quantum uint32) error
}

// Refresh blocks until the next display refresh.
type Refresh interface {
	Wait(ctx context.Context) error
}

// Task is host work that must run on the scheduler's thread, such as
// forwarding input to the guest.
type Task func(ctx context.Context) error

type queued struct {
	run     Task
	dropped func(error)
}

type Config struct {
	Quantum   uint32       // Optional, defaults to DefaultQuantum
	MaxFrames uint64       // Optional, stop after this many ticks
	QueueSize int          // Optional, defaults to 256
	Logger    *slog.Logger // Optional, defaults to slog.Default()
}

// Stats reports tick counts and wall-clock timing. The timing is observed
// only; it never changes the quantum handed to the guest.
type Stats struct {
	Frames    uint64
	Tasks     uint64
	LastFrame time.Duration // wall-clock time between the last two ticks
	LastTick  time.Duration // time spent inside the guest on the last tick
	TotalTick time.Duration
	Overruns  uint64 // ticks that took longer than the quantum
}

// AverageTick returns the mean guest time per tick.
func (s Stats) AverageTick() time.Duration {
	if s.Frames == 0 {
		return 0
	}
	return s.TotalTick / time.Duration(s.Frames)
}

type Scheduler struct {
	guest     Advancer
	quantum   uint32
	maxFrames uint64
	logger    *slog.Logger

	state    atomic.Int32
	stopCh   chan struct{}
	stopOnce sync.Once
	postMu   sync.RWMutex
	queue    chan queued

	statsMu   sync.Mutex
	stats     Stats
	lastStart time.Time
}

func New(guest Advancer, config Config) *Scheduler {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	quantum := config.Quantum
	if quantum == 0 {
		quantum = DefaultQuantum
	}
	queueSize := config.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Scheduler{
		guest:     guest,
		quantum:   quantum,
		maxFrames: config.MaxFrames,
		logger:    logger.With("component", "FrameScheduler"),
		stopCh:    make(chan struct{}),
		queue:     make(chan queued, queueSize),
	}
}

func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Stop requests that no further refresh be waited for. A refresh already
// being waited on still runs its tick when it fires. Stop is idempotent and
// there is no way back to Running.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.state.Store(int32(Stopped))
		close(s.stopCh)
		s.logger.Info("Stop requested")
	})
}

// Done is closed once Stop has been called.
func (s *Scheduler) Done() <-chan struct{} {
	return s.stopCh
}

// Post queues task to run before the next tick. It blocks while the queue
// is full.
func (s *Scheduler) Post(task Task) error {
	return s.PostOrDrop(task, nil)
}

// PostOrDrop is Post, except that dropped is called with ErrStopped if the
// scheduler stops before task gets to run. Once PostOrDrop returns nil,
// exactly one of task or dropped is called.
func (s *Scheduler) PostOrDrop(task Task, dropped func(error)) error {
	s.postMu.RLock()
	defer s.postMu.RUnlock()
	select {
	case <-s.stopCh:
		return ErrStopped
	default:
	}
	select {
	case s.queue <- queued{run: task, dropped: dropped}:
		return nil
	case <-s.stopCh:
		return ErrStopped
	}
}

// TryPost queues task without blocking. It is meant for the UI thread,
// which must keep drawing for the scheduler to make progress.
func (s *Scheduler) TryPost(task Task) error {
	s.postMu.RLock()
	defer s.postMu.RUnlock()
	select {
	case <-s.stopCh:
		return ErrStopped
	default:
	}
	select {
	case s.queue <- queued{run: task}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *Scheduler) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

// Run ticks the guest once per refresh until stopped, the guest fails or ctx
// is cancelled. A guest failure stops the scheduler and is returned.
func (s *Scheduler) Run(ctx context.Context, refresh Refresh) error {
	s.logger.Info("Starting frame loop", "quantum", s.quantum)
	defer s.discard()
	for {
		// Checking here, rather than after the wait, lets an in-flight
		// refresh complete its tick after Stop.
		select {
		case <-s.stopCh:
			s.logger.Info("Frame loop stopped", "frames", s.Stats().Frames)
			return nil
		default:
		}

		if err := refresh.Wait(ctx); err != nil {
			s.Stop()
			return err
		}

		s.drain(ctx)
		if err := s.tick(ctx); err != nil {
			s.Stop()
			return err
		}

		if s.maxFrames > 0 && s.Stats().Frames >= s.maxFrames {
			s.Stop()
		}
	}
}

func (s *Scheduler) drain(ctx context.Context) {
	for {
		select {
		case task := <-s.queue:
			if err := task.run(ctx); err != nil {
				s.logger.Error("Host task failed", "error", err)
			}
			s.statsMu.Lock()
			s.stats.Tasks++
			s.statsMu.Unlock()
		default:
			return
		}
	}
}

// discard drops every task still queued after the loop has ended. Posts
// hold postMu for reading, so none can slip a task in behind it.
func (s *Scheduler) discard() {
	s.postMu.Lock()
	defer s.postMu.Unlock()
	n := 0
	for {
		select {
		case task := <-s.queue:
			n++
			if task.dropped != nil {
				task.dropped(ErrStopped)
			}
		default:
			if n > 0 {
				s.logger.Debug("Discarded queued tasks", "count", n)
			}
			return
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) error {
	start := time.Now()
	err := s.guest.Tick(ctx, s.quantum)
	elapsed := time.Since(start)

	s.statsMu.Lock()
	if !s.lastStart.IsZero() {
		s.stats.LastFrame = start.Sub(s.lastStart)
	}
	s.lastStart = start
	s.stats.LastTick = elapsed
	if err == nil {
		s.stats.Frames++
		s.stats.TotalTick += elapsed
		if elapsed > time.Duration(s.quantum)*time.Millisecond {
			s.stats.Overruns++
		}
	}
	s.statsMu.Unlock()

	if err != nil {
		s.logger.Error("Guest tick failed", "error", err)
		return fmt.Errorf("guest tick failed: %w", err)
	}
	return nil
}
