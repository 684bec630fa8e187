package scheduler

import (
	"context"
	"log"
	"sync"
	"time"
)

// Task is a named maintenance job run at a fixed interval.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) (int, error)
}

// Service runs maintenance tasks in the background. A task never overlaps
// with itself.
type Service struct {
	tasks []Task

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	taskMu      sync.Mutex
	taskRunning map[string]bool
}

func NewService(tasks ...Task) *Service {
	return &Service{
		tasks:       tasks,
		taskRunning: make(map[string]bool),
	}
}

// Start launches one loop per task. Calling Start twice is a no-op.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	for _, task := range s.tasks {
		if task.Interval <= 0 || task.Run == nil {
			log.Printf("[scheduler] skipping task %q: no interval or func", task.Name)
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, task)
	}
	log.Printf("[scheduler] started %d tasks", len(s.tasks))
}

// Stop cancels all loops and waits for running tasks until ctx expires.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Println("[scheduler] stopped")
	case <-ctx.Done():
		log.Println("[scheduler] stopped (timeout)")
	}
	s.running = false
}

func (s *Service) loop(ctx context.Context, task Task) {
	defer s.wg.Done()
	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunNow(ctx, task)
		}
	}
}

// RunNow executes task unless a previous run is still in progress. It
// reports whether the task ran.
func (s *Service) RunNow(ctx context.Context, task Task) bool {
	s.taskMu.Lock()
	if s.taskRunning[task.Name] {
		s.taskMu.Unlock()
		return false
	}
	s.taskRunning[task.Name] = true
	s.taskMu.Unlock()

	defer func() {
		s.taskMu.Lock()
		delete(s.taskRunning, task.Name)
		s.taskMu.Unlock()
	}()

	n, err := task.Run(ctx)
	switch {
	case err != nil:
		log.Printf("[scheduler] task %s failed: %v", task.Name, err)
	case n > 0:
		log.Printf("[scheduler] task %s removed %d entries", task.Name, n)
	}
	return true
}
