package coro

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/coro-project/coro/core"
)

func newTestRuntime(t *testing.T, workers int) *Runtime {
	t.Helper()
	rt := NewRuntime(workers, core.DefaultRuntimeConfig())
	t.Cleanup(rt.Shutdown)
	return rt
}

// waitOrTimeout fails the test if wg does not complete within d.
func waitOrTimeout(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("timed out waiting for goroutines")
	}
}

// Scenario 1: two tasks ping-pong values across a channel.
func TestPingPong(t *testing.T) {
	rt := newTestRuntime(t, 2)

	ping := core.NewChannel[int](rt)
	pong := core.NewChannel[int](rt)

	var rounds []int
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(2)

	core.Run(rt, "pinger", func(ctx context.Context) {
		defer wg.Done()
		sender := ping.GetSender()
		receiver := pong.GetReceiver()
		for i := 0; i < 3; i++ {
			sender.Send(ctx, i)
			v := receiver.Receive(ctx)
			mu.Lock()
			rounds = append(rounds, v)
			mu.Unlock()
		}
	})

	core.Run(rt, "ponger", func(ctx context.Context) {
		defer wg.Done()
		receiver := ping.GetReceiver()
		sender := pong.GetSender()
		for i := 0; i < 3; i++ {
			v := receiver.Receive(ctx)
			sender.Send(ctx, v*10)
		}
	})

	waitOrTimeout(t, &wg, 2*time.Second)

	want := []int{0, 10, 20}
	if len(rounds) != len(want) {
		t.Fatalf("got %v, want %v", rounds, want)
	}
	for i := range want {
		if rounds[i] != want[i] {
			t.Fatalf("got %v, want %v", rounds, want)
		}
	}
}

// Scenario 2: one sender, two receivers, each value delivered to exactly one.
func TestTwoReceiversOneSender(t *testing.T) {
	rt := newTestRuntime(t, 4)
	ch := core.NewBufferedChannel[int](rt, 2)
	sender := ch.GetSender()
	r1 := ch.GetReceiver()
	r2 := ch.GetReceiver()

	var got1, got2 int
	var wg sync.WaitGroup
	wg.Add(3)

	core.Run(rt, "sender", func(ctx context.Context) {
		defer wg.Done()
		sender.Send(ctx, 1)
		sender.Send(ctx, 2)
	})
	core.Run(rt, "receiver-1", func(ctx context.Context) {
		defer wg.Done()
		got1 = r1.Receive(ctx)
	})
	core.Run(rt, "receiver-2", func(ctx context.Context) {
		defer wg.Done()
		got2 = r2.Receive(ctx)
	})

	waitOrTimeout(t, &wg, 2*time.Second)

	if got1+got2 != 3 {
		t.Errorf("got %d and %d, want them to sum to 3", got1, got2)
	}
}

// Scenario 3: sleeps of different durations resume in the order they expire.
func TestSleepOrdering(t *testing.T) {
	rt := newTestRuntime(t, 4)

	var mu sync.Mutex
	var order []string
	var wg sync.WaitGroup

	for _, s := range []struct {
		name string
		d    time.Duration
	}{
		{"short", 10 * time.Millisecond},
		{"medium", 30 * time.Millisecond},
		{"long", 60 * time.Millisecond},
	} {
		wg.Add(1)
		s := s
		core.Run(rt, s.name, func(ctx context.Context) {
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
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

// Scenario 4: sends below a buffered channel's capacity never block.
func TestBufferedChannelCapacity(t *testing.T) {
	rt := newTestRuntime(t, 2)
	ch := core.NewBufferedChannel[int](rt, 4)
	sender := ch.GetSender()

	done := make(chan struct{})
	go func() {
		defer close(done)
		sender.Send(context.Background(), 1)
		sender.Send(context.Background(), 2)
		sender.Send(context.Background(), 3)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sends below capacity should not block")
	}
}

// Scenario 5: a task awaits another task's result via ResultHandle.
func TestDependentAwait(t *testing.T) {
	rt := newTestRuntime(t, 2)

	handle := core.RunWithResult(rt, "producer", func(ctx context.Context) int {
		return 41
	})

	var result int
	var wg sync.WaitGroup
	wg.Add(1)

	core.Run(rt, "consumer", func(ctx context.Context) {
		defer wg.Done()
		result = handle.Value(ctx) + 1
	})

	waitOrTimeout(t, &wg, 2*time.Second)

	if result != 42 {
		t.Errorf("got %d, want 42", result)
	}
}

// Scenario 6: a runtime built from LoadConfig honors COMAXPROCS.
func TestRuntime_WorkerCount_HonorsCOMAXPROCS(t *testing.T) {
	os.Setenv("COMAXPROCS", "2")
	defer os.Unsetenv("COMAXPROCS")

	cfg := LoadConfig()
	rt := newTestRuntime(t, cfg.Workers)

	if got := rt.WorkerCount(); got != 2 {
		t.Errorf("got WorkerCount %d, want 2", got)
	}
}
