package prometheus

import (
	"context"
	"testing"
	"time"

	"github.com/coro-project/coro/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type runtimeStub struct {
	stats core.RuntimeStats
}

func (s runtimeStub) Stats() core.RuntimeStats { return s.stats }

func TestSnapshotPoller_CollectsRuntimeStats(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	poller.AddRuntime("main", runtimeStub{stats: core.RuntimeStats{
		Workers:        4,
		QueueDepth:     3,
		SleepHeapSize:  1,
		TasksCompleted: 12,
		TasksPanicked:  2,
		Running:        true,
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		depth := testutil.ToFloat64(poller.queueDepth.WithLabelValues("main"))
		workers := testutil.ToFloat64(poller.workers.WithLabelValues("main"))
		return depth == 3 && workers == 4
	})

	if got := testutil.ToFloat64(poller.running.WithLabelValues("main")); got != 1 {
		t.Fatalf("running gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.tasksPanicked.WithLabelValues("main")); got != 2 {
		t.Fatalf("tasks panicked gauge = %v, want 2", got)
	}
}

func TestSnapshotPoller_ReportsNotRunning(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	poller.AddRuntime("shutdown", runtimeStub{stats: core.RuntimeStats{Running: false}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		return testutil.ToFloat64(poller.running.WithLabelValues("shutdown")) == 0
	})
}

func TestSnapshotPoller_StartStop_Idempotent(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Start(ctx)
	poller.Start(ctx)
	poller.Stop()
	poller.Stop()
}

func assertEventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
