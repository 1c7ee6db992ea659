package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestSleep_OutsideTask_BlocksCallingGoroutine(t *testing.T) {
	start := time.Now()
	Sleep(context.Background(), 20*time.Millisecond)
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Sleep returned after %v, want at least 20ms", elapsed)
	}
}

func TestSleep_FromTask_ResumesAfterDuration(t *testing.T) {
	rt := NewRuntime(2, DefaultRuntimeConfig())
	defer rt.Shutdown()

	start := time.Now()
	var elapsed time.Duration
	var wg sync.WaitGroup
	wg.Add(1)

	Run(rt, "sleeper", func(ctx context.Context) {
		defer wg.Done()
		Sleep(ctx, 30*time.Millisecond)
		elapsed = time.Since(start)
	})

	waitOrTimeout(t, &wg, 2*time.Second)

	if elapsed < 30*time.Millisecond {
		t.Errorf("task resumed after %v, want at least 30ms", elapsed)
	}
}

func TestSleep_OrderingRoughlyMonotonic(t *testing.T) {
	rt := NewRuntime(4, DefaultRuntimeConfig())
	defer rt.Shutdown()

	var mu sync.Mutex
	var order []string
	var wg sync.WaitGroup

	schedule := []struct {
		name string
		d    time.Duration
	}{
		{"short", 10 * time.Millisecond},
		{"medium", 30 * time.Millisecond},
		{"long", 60 * time.Millisecond},
	}

	for _, s := range schedule {
		wg.Add(1)
		s := s
		Run(rt, s.name, func(ctx context.Context) {
			defer wg.Done()
			Sleep(ctx, s.d)
			mu.Lock()
			order = append(order, s.name)
			mu.Unlock()
		})
	}

	waitOrTimeout(t, &wg, 2*time.Second)

	want := []string{"short", "medium", "long"}
	if len(order) != len(want) {
		t.Fatalf("got order %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("got order %v, want %v", order, want)
		}
	}
}

func TestSleepService_Granularity_StillWakesEntries(t *testing.T) {
	rt := &Runtime{queue: newRunQueue(0), workerCount: 1, config: DefaultRuntimeConfig()}
	s := newSleepService(rt, &NilMetrics{}, 15*time.Millisecond)
	defer s.stop()

	task := NewTask("t", func(ctx context.Context) {})
	s.addSleep(task, 5*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for s.size() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("entry was never woken under granularity polling")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSleepService_OverdueEntry_ProcessedWithoutWaitingForFallbackTimer(t *testing.T) {
	rt := &Runtime{queue: newRunQueue(0), workerCount: 1, config: DefaultRuntimeConfig()}
	s := newSleepService(rt, &NilMetrics{}, 0)
	defer s.stop()

	task := NewTask("t", func(ctx context.Context) {})

	// Push an entry whose wakeAt is already in the past, bypassing addSleep's
	// wakeup signal so the loop can only notice it via calculateNextRun's
	// next<0 branch, not the earliest-push fast path.
	s.mu.Lock()
	s.heap.Push(&sleepEntry{wakeAt: time.Now().Add(-time.Hour), sequence: s.nextSequence, task: task})
	s.nextSequence++
	s.mu.Unlock()
	select {
	case s.wakeup <- struct{}{}:
	default:
	}

	deadline := time.Now().Add(time.Second)
	for s.size() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("overdue entry was not processed promptly; loop likely armed the 1000h fallback timer")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSleepService_SizeTracksPendingEntries(t *testing.T) {
	rt := &Runtime{queue: newRunQueue(0), workerCount: 1, config: DefaultRuntimeConfig()}
	s := newSleepService(rt, &NilMetrics{}, 0)
	defer s.stop()

	task := NewTask("t", func(ctx context.Context) {})
	s.addSleep(task, time.Hour)

	if got := s.size(); got != 1 {
		t.Errorf("got size %d, want 1", got)
	}
}
