// Package scheduler runs named recurring and one-shot tasks until they are cancelled
// or the scheduler is shut down.
//
// A recurring task is re-armed only after its previous invocation returns, so a given
// handle never overlaps with itself, and a task that observes shutdown is never re-armed.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is invoked with the scheduler's shutdown context.
type Task func(ctx context.Context)

// Handle identifies a scheduled task.
type Handle struct {
	name     string
	interval time.Duration
	once     bool

	mu        sync.Mutex
	timer     *time.Timer
	cancelled bool
	runs      int

	done     chan struct{}
	doneOnce sync.Once
}

// Name returns the task name.
func (h *Handle) Name() string { return h.name }

// Runs returns how many times the task has started.
func (h *Handle) Runs() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runs
}

// Cancel prevents any further invocation. Safe to call repeatedly and after the task fired.
func (h *Handle) Cancel() {
	h.mu.Lock()
	if h.cancelled {
		h.mu.Unlock()
		return
	}
	h.cancelled = true
	if h.timer != nil {
		h.timer.Stop()
	}
	h.mu.Unlock()
	h.finish()
}

// Cancelled reports whether Cancel was called.
func (h *Handle) Cancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

// Done is closed once no further invocation will start.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) finish() {
	h.doneOnce.Do(func() { close(h.done) })
}

// Scheduler owns a set of handles and the shutdown token passed to every task.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	mu      sync.Mutex
	handles map[*Handle]struct{}
	wg      sync.WaitGroup
}

// New creates a scheduler whose shutdown token is derived from parent.
func New(parent context.Context, logger *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(parent)
	return &Scheduler{
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger.Named("scheduler"),
		handles: make(map[*Handle]struct{}),
	}
}

// Context returns the shutdown token. It is done once Shutdown is called.
func (s *Scheduler) Context() context.Context { return s.ctx }

// Every runs task right away and then interval after each completed run.
func (s *Scheduler) Every(name string, interval time.Duration, task Task) *Handle {
	return s.add(&Handle{name: name, interval: interval, done: make(chan struct{})}, 0, task)
}

// After runs task once after delay.
func (s *Scheduler) After(name string, delay time.Duration, task Task) *Handle {
	return s.add(&Handle{name: name, once: true, done: make(chan struct{})}, delay, task)
}

// Cancel cancels h. It is equivalent to h.Cancel.
func (s *Scheduler) Cancel(h *Handle) {
	if h == nil {
		return
	}
	h.Cancel()
	s.forget(h)
}

// Shutdown signals the shutdown token and cancels every outstanding handle.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	s.cancel()
	handles := make([]*Handle, 0, len(s.handles))
	for h := range s.handles {
		handles = append(handles, h)
	}
	s.handles = make(map[*Handle]struct{})
	s.mu.Unlock()

	for _, h := range handles {
		h.Cancel()
	}
	s.logger.Info("Scheduler shut down", zap.Int("cancelled_handles", len(handles)))
}

// Wait blocks until every in-flight invocation has returned, or ctx expires.
func (s *Scheduler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of handles still scheduled.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

func (s *Scheduler) add(h *Handle, delay time.Duration, task Task) *Handle {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		h.Cancel()
		return h
	}
	s.handles[h] = struct{}{}
	s.mu.Unlock()

	h.mu.Lock()
	h.timer = time.AfterFunc(delay, func() { s.fire(h, task) })
	h.mu.Unlock()

	s.logger.Debug("Task scheduled", zap.String("task", h.name), zap.Duration("delay", delay), zap.Duration("interval", h.interval))
	return h
}

func (s *Scheduler) fire(h *Handle, task Task) {
	// Registering with wg under mu keeps Add from racing Wait after Shutdown.
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	h.mu.Lock()
	if h.cancelled {
		h.mu.Unlock()
		return
	}
	h.runs++
	h.mu.Unlock()

	s.run(h, task)

	if h.once {
		h.finish()
		s.forget(h)
		return
	}
	s.rearm(h, task)
}

func (s *Scheduler) run(h *Handle, task Task) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Task panicked", zap.String("task", h.name), zap.Any("panic", r))
		}
	}()
	task(s.ctx)
}

func (s *Scheduler) rearm(h *Handle, task Task) {
	h.mu.Lock()
	if h.cancelled || s.ctx.Err() != nil {
		h.mu.Unlock()
		h.finish()
		s.forget(h)
		return
	}
	h.timer = time.AfterFunc(h.interval, func() { s.fire(h, task) })
	h.mu.Unlock()
}

func (s *Scheduler) forget(h *Handle) {
	s.mu.Lock()
	delete(s.handles, h)
	s.mu.Unlock()
}
