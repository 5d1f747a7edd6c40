package outbox

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestTickWorker_StartAndStop(t *testing.T) {
	workDone := make(chan bool)
	workFunc := func(ctx context.Context) error {
		workDone <- true
		return nil
	}

	worker := NewTickWorker("test-worker", 20*time.Millisecond, zap.NewNop(), workFunc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go worker.Start(ctx)

	// Wait for the worker to do some work
	<-workDone

	worker.Stop()

	// No further work after stopping
	select {
	case <-workDone:
		t.Fatal("work should not have been done after worker was stopped")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTickWorker_ContextCancellation(t *testing.T) {
	var workCounter int32
	workFunc := func(ctx context.Context) error {
		atomic.AddInt32(&workCounter, 1)
		return nil
	}

	worker := NewTickWorker("test-worker", 20*time.Millisecond, zap.NewNop(), workFunc)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	worker.Start(ctx)

	countAfterStop := atomic.LoadInt32(&workCounter)
	assert.Greater(t, countAfterStop, int32(0), "worker should have done some work")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, countAfterStop, atomic.LoadInt32(&workCounter), "work should not be done after context is cancelled")
}

func TestTickWorker_StopIsIdempotent(t *testing.T) {
	workDone := make(chan bool)
	workFunc := func(ctx context.Context) error {
		workDone <- true
		return nil
	}

	worker := NewTickWorker("test-worker", 20*time.Millisecond, zap.NewNop(), workFunc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go worker.Start(ctx)
	<-workDone

	worker.Stop()
	worker.Stop()

	assert.NotPanics(t, func() {
		worker.Stop()
	})
}

func TestTickWorker_StopWaitsForWorkToFinish(t *testing.T) {
	workStarted := make(chan bool, 1)
	workFinished := make(chan bool, 1)

	workFunc := func(ctx context.Context) error {
		workStarted <- true
		time.Sleep(100 * time.Millisecond)
		workFinished <- true
		return nil
	}

	worker := NewTickWorker("test-worker", 20*time.Millisecond, zap.NewNop(), workFunc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go worker.Start(ctx)

	<-workStarted

	stopCalledTime := time.Now()
	worker.Stop()
	stopFinishedTime := time.Now()

	assert.True(t, stopFinishedTime.Sub(stopCalledTime) >= 100*time.Millisecond)

	select {
	case <-workFinished:
	default:
		t.Fatal("work should have been finished")
	}
}
