// Package heartbeat runs Connor's periodic lifecycle tasks. Each task owns
// its own ticker and cancel func, so one can be stopped without the others.
package heartbeat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sipeed/connor/pkg/logger"
)

// TaskFunc is one tick of a periodic task.
type TaskFunc func(ctx context.Context) error

type task struct {
	name     string
	interval time.Duration
	fn       TaskFunc
	cancel   context.CancelFunc
}

// Service schedules registered tasks.
type Service struct {
	mu      sync.Mutex
	tasks   []*task
	running bool
	wg      sync.WaitGroup
}

func NewService() *Service {
	return &Service{}
}

// Register adds a task. Tasks registered after Start are started at once.
func (s *Service) Register(ctx context.Context, name string, interval time.Duration, fn TaskFunc) error {
	if interval <= 0 {
		return fmt.Errorf("heartbeat task %q: interval must be positive", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.name == name {
			return fmt.Errorf("heartbeat task %q already registered", name)
		}
	}
	t := &task{name: name, interval: interval, fn: fn}
	s.tasks = append(s.tasks, t)
	if s.running {
		s.startLocked(ctx, t)
	}
	return nil
}

// Start launches every registered task.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	for _, t := range s.tasks {
		s.startLocked(ctx, t)
	}
	logger.InfoCF("heartbeat", "Heartbeat service started", map[string]any{"tasks": len(s.tasks)})
}

func (s *Service) startLocked(parent context.Context, t *task) {
	ctx, cancel := context.WithCancel(parent)
	t.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx, t)
	}()
}

// Cancel stops a single task by name.
func (s *Service) Cancel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.name == name && t.cancel != nil {
			t.cancel()
			t.cancel = nil
			return true
		}
	}
	return false
}

// Stop cancels every task and waits for in-flight ticks to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	for _, t := range s.tasks {
		if t.cancel != nil {
			t.cancel()
			t.cancel = nil
		}
	}
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	logger.InfoC("heartbeat", "Heartbeat service stopped")
}

func (s *Service) run(ctx context.Context, t *task) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	logger.DebugCF("heartbeat", "Task started", map[string]any{
		"task":     t.name,
		"interval": t.interval.String(),
	})

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick(ctx, t)
		}
	}
}

// tick runs one iteration. Errors and panics are logged; the next tick
// still happens.
func tick(ctx context.Context, t *task) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("heartbeat", "Task panicked", map[string]any{
				"task":  t.name,
				"panic": fmt.Sprint(r),
			})
		}
	}()
	if err := t.fn(ctx); err != nil {
		logger.WarnCF("heartbeat", "Task failed", map[string]any{
			"task":  t.name,
			"error": err.Error(),
		})
	}
}
