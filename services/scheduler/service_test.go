package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStart_RunsTasksUntilStopped(t *testing.T) {
	var calls atomic.Int32
	svc := NewService(Task{
		Name:     "count",
		Interval: 5 * time.Millisecond,
		Run: func(context.Context) (int, error) {
			calls.Add(1)
			return 1, nil
		},
	})

	svc.Start(context.Background())
	svc.Start(context.Background())
	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	svc.Stop(ctx)

	after := calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, calls.Load())
}

func TestRunNow_DoesNotOverlap(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	task := Task{
		Name:     "slow",
		Interval: time.Hour,
		Run: func(context.Context) (int, error) {
			close(started)
			<-release
			return 0, nil
		},
	}
	svc := NewService(task)

	done := make(chan bool)
	go func() { done <- svc.RunNow(context.Background(), task) }()
	<-started

	assert.False(t, svc.RunNow(context.Background(), task))
	close(release)
	assert.True(t, <-done)
}

func TestRunNow_ErrorIsReported(t *testing.T) {
	task := Task{
		Name:     "broken",
		Interval: time.Hour,
		Run:      func(context.Context) (int, error) { return 0, errors.New("disk full") },
	}
	assert.True(t, NewService(task).RunNow(context.Background(), task))
}

func TestStop_WithoutStart(t *testing.T) {
	NewService().Stop(context.Background())
}
