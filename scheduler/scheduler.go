package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TaskFn is the function signature for scheduled tasks.
// ctx is cancelled when the task is removed or the scheduler stops.
type TaskFn func(ctx context.Context)

// Task kinds reported by Tasks.
const (
	KindTicker = "ticker"
	KindDelay  = "delay"
)

// TaskInfo describes a registered task.
type TaskInfo struct {
	Name     string        `json:"name"`
	Kind     string        `json:"kind"`
	Interval time.Duration `json:"interval"`
	Runs     int64         `json:"runs"`
	LastRun  time.Time     `json:"last_run"`
}

// Scheduler manages periodic and delayed tasks.
// Runs of one ticker never overlap.
type Scheduler struct {
	mu     sync.Mutex
	tasks  map[string]*entry
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

type entry struct {
	kind     string
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
	runs     int64
	lastRun  time.Time
}

// New creates a new Scheduler.
func New(logger *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		tasks:  make(map[string]*entry),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddTicker registers a task to run on a fixed interval.
// If a task with the same name exists, it is replaced.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dropLocked(name)
	ctx, cancel := context.WithCancel(s.ctx)
	e := &entry{kind: KindTicker, interval: interval, cancel: cancel, done: make(chan struct{})}
	s.tasks[name] = e

	go func() {
		defer close(e.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.run(ctx, name, e, fn)
			case <-ctx.Done():
				return
			}
		}
	}()
	s.logger.Debug("scheduler task registered", zap.String("name", name), zap.Duration("interval", interval))
}

// AddDelay runs fn once after the given delay.
func (s *Scheduler) AddDelay(name string, delay time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dropLocked(name)
	ctx, cancel := context.WithCancel(s.ctx)
	e := &entry{kind: KindDelay, interval: delay, cancel: cancel, done: make(chan struct{})}
	s.tasks[name] = e

	go func() {
		defer close(e.done)
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return
		}
		s.run(ctx, name, e, fn)
		s.mu.Lock()
		if s.tasks[name] == e {
			delete(s.tasks, name)
		}
		s.mu.Unlock()
		cancel()
	}()
}

func (s *Scheduler) run(ctx context.Context, name string, e *entry, fn TaskFn) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler task panicked",
				zap.String("task", name),
				zap.Any("recover", r))
		}
	}()
	s.mu.Lock()
	e.runs++
	e.lastRun = time.Now()
	s.mu.Unlock()
	fn(ctx)
}

func (s *Scheduler) dropLocked(name string) *entry {
	e, ok := s.tasks[name]
	if !ok {
		return nil
	}
	e.cancel()
	delete(s.tasks, name)
	return e
}

// Remove stops and removes a ticker or delay task by name.
// A run already in progress sees its context cancelled but is not awaited.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked(name)
}

// RemoveWait removes the task and blocks until any in-flight run returns.
// It must not be called from inside the task being removed.
func (s *Scheduler) RemoveWait(name string) {
	s.mu.Lock()
	e := s.dropLocked(name)
	s.mu.Unlock()
	if e != nil {
		<-e.done
	}
}

// RemoveAllWait removes every task not named in keep and blocks until their
// in-flight runs return. It returns the removed names. It must not be called
// from inside one of the removed tasks.
func (s *Scheduler) RemoveAllWait(keep ...string) []string {
	kept := make(map[string]bool, len(keep))
	for _, k := range keep {
		kept[k] = true
	}
	s.mu.Lock()
	var (
		names   []string
		pending []*entry
	)
	for name := range s.tasks {
		if kept[name] {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		pending = append(pending, s.dropLocked(name))
	}
	s.mu.Unlock()
	for _, e := range pending {
		<-e.done
	}
	return names
}

// Has reports whether a task with the given name is registered.
func (s *Scheduler) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[name]
	return ok
}

// Stop stops all tasks.
func (s *Scheduler) Stop() {
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = make(map[string]*entry)
}

// ListTickers returns the names of all registered ticker tasks.
func (s *Scheduler) ListTickers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tasks))
	for name, e := range s.tasks {
		if e.kind == KindTicker {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Tasks returns a snapshot of all registered tasks sorted by name.
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskInfo, 0, len(s.tasks))
	for name, e := range s.tasks {
		out = append(out, TaskInfo{Name: name, Kind: e.kind, Interval: e.interval, Runs: e.runs, LastRun: e.lastRun})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
