// Package scheduler runs fixed-period handlers, each on its own goroutine.
//
// It stands in for the cyclic handlers of a real-time OS: a task is
// registered once with a period, then started and stopped by id as its
// owner goes on and off duty.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-ev3way/internal/log"
)

// TaskID identifies a periodic task.
type TaskID int

const (
	// CaptainTask runs the commander's decision logic.
	CaptainTask TaskID = iota + 1
	// ObserverTask polls the discrete sensors.
	ObserverTask
	// NavigatorTask runs whichever navigator currently holds the watch.
	NavigatorTask
)

func (id TaskID) String() string {
	switch id {
	case CaptainTask:
		return "captain"
	case ObserverTask:
		return "observer"
	case NavigatorTask:
		return "navigator"
	default:
		return fmt.Sprintf("task(%d)", int(id))
	}
}

// Handler is one cycle of a periodic task. A non-nil error is fatal: the
// task stops and the error is reported on Errors.
type Handler func(ctx context.Context) error

// Stats describes a task's activity.
type Stats struct {
	Period   time.Duration `json:"period"`
	Running  bool          `json:"running"`
	Ticks    uint64        `json:"ticks"`
	Overruns uint64        `json:"overruns"` // cycles that took longer than Period
}

type task struct {
	id     TaskID
	period time.Duration
	fn     Handler

	stop chan struct{} // nil while stopped
	done chan struct{} // closed when the last run goroutine exits

	ticks    atomic.Uint64
	overruns atomic.Uint64
}

// Scheduler owns the periodic tasks.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    *slog.Logger

	mu     sync.Mutex
	tasks  map[TaskID]*task
	closed bool

	errs chan error
}

// New creates a scheduler whose handlers receive ctx.
// Cancelling ctx stops every task.
func New(ctx context.Context) *Scheduler {
	ctx, cancel := context.WithCancel(ctx)
	return &Scheduler{
		ctx:    ctx,
		cancel: cancel,
		log:    log.With("component", "scheduler"),
		tasks:  make(map[TaskID]*task),
		errs:   make(chan error, 8),
	}
}

// Register adds a task. It does not start it.
func (s *Scheduler) Register(id TaskID, period time.Duration, fn Handler) error {
	if period <= 0 {
		return fmt.Errorf("%w: %s period %v", ErrInvalidPeriod, id, period)
	}
	if fn == nil {
		return fmt.Errorf("scheduler: %s handler is nil", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, ok := s.tasks[id]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
	}
	s.tasks[id] = &task{id: id, period: period, fn: fn}
	return nil
}

// Start begins firing the task every period. Starting a running task does
// nothing. If the task was stopped while a cycle was in flight, Start waits
// for that cycle to finish, so two cycles of one task never overlap.
// It must not be called from the task's own handler.
func (s *Scheduler) Start(id TaskID) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	if t.stop != nil {
		s.mu.Unlock()
		return nil
	}
	prev := t.done
	stop := make(chan struct{})
	done := make(chan struct{})
	t.stop = stop
	t.done = done
	s.mu.Unlock()

	go func() {
		if prev != nil {
			<-prev
		}
		s.run(t, stop, done)
	}()

	s.log.Debug("task started", "task", id, "period", t.period)
	return nil
}

// Stop deregisters the task from firing. A cycle already executing is
// allowed to complete; no new cycle starts after Stop returns.
// Stopping a stopped task does nothing.
func (s *Scheduler) Stop(id TaskID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	if t.stop == nil {
		return nil
	}
	close(t.stop)
	t.stop = nil

	s.log.Debug("task stopped", "task", id)
	return nil
}

// Running reports whether the task is currently started.
func (s *Scheduler) Running(id TaskID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return ok && t.stop != nil
}

// Stats returns counters for a registered task.
func (s *Scheduler) Stats(id TaskID) (Stats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return Stats{}, false
	}
	return Stats{
		Period:   t.period,
		Running:  t.stop != nil,
		Ticks:    t.ticks.Load(),
		Overruns: t.overruns.Load(),
	}, true
}

// Errors delivers handler failures. Every error on this channel is fatal
// for the mission.
func (s *Scheduler) Errors() <-chan error {
	return s.errs
}

// Close stops every task and waits for in-flight cycles to finish.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	var waits []chan struct{}
	for _, t := range s.tasks {
		if t.stop != nil {
			close(t.stop)
			t.stop = nil
		}
		if t.done != nil {
			waits = append(waits, t.done)
		}
	}
	s.mu.Unlock()

	s.cancel()
	for _, done := range waits {
		<-done
	}
}

func (s *Scheduler) run(t *task, stop <-chan struct{}, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(t.period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			// A tick may race with Stop; Stop wins.
			select {
			case <-stop:
				return
			default:
			}

			start := time.Now()
			err := t.fn(s.ctx)
			t.ticks.Add(1)
			if time.Since(start) > t.period {
				t.overruns.Add(1)
			}

			if err != nil {
				s.fail(t, stop, err)
				return
			}
		}
	}
}

// fail stops t after a handler error and reports it.
func (s *Scheduler) fail(t *task, stop <-chan struct{}, err error) {
	s.mu.Lock()
	if t.stop != nil && t.stop == stop {
		close(t.stop)
		t.stop = nil
	}
	s.mu.Unlock()

	terr := &TaskError{Task: t.id, Err: err}
	s.log.Error("task failed", "task", t.id, "error", err)

	select {
	case s.errs <- terr:
	default:
		s.log.Warn("error channel full, dropping task error", "task", t.id)
	}
}
