package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/coro-project/coro/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// RuntimeSnapshotProvider provides current Runtime stats snapshots.
type RuntimeSnapshotProvider interface {
	Stats() core.RuntimeStats
}

// SnapshotPoller periodically exports Runtime.Stats() snapshots into
// Prometheus gauges, for the state Metrics can't capture as it happens
// (worker count, whether the runtime is still running).
type SnapshotPoller struct {
	interval time.Duration

	mu        sync.RWMutex
	providers map[string]RuntimeSnapshotProvider

	workers       *prom.GaugeVec
	queueDepth    *prom.GaugeVec
	sleepHeap     *prom.GaugeVec
	tasksComplete *prom.GaugeVec
	tasksPanicked *prom.GaugeVec
	running       *prom.GaugeVec

	stateMu sync.Mutex
	active  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	workers := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "coro",
		Name:      "runtime_workers",
		Help:      "Worker count per runtime.",
	}, []string{"runtime"})
	queueDepth := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "coro",
		Name:      "runtime_queue_depth",
		Help:      "Runnable queue depth per runtime.",
	}, []string{"runtime"})
	sleepHeap := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "coro",
		Name:      "runtime_sleep_heap_size",
		Help:      "Sleep service heap size per runtime.",
	}, []string{"runtime"})
	tasksComplete := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "coro",
		Name:      "runtime_tasks_completed",
		Help:      "Cumulative completed task count per runtime, as of last poll.",
	}, []string{"runtime"})
	tasksPanicked := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "coro",
		Name:      "runtime_tasks_panicked",
		Help:      "Cumulative panicked task count per runtime, as of last poll.",
	}, []string{"runtime"})
	running := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "coro",
		Name:      "runtime_running",
		Help:      "Runtime running state (1=running, 0=shut down).",
	}, []string{"runtime"})

	var err error
	if workers, err = registerCollector(reg, workers); err != nil {
		return nil, err
	}
	if queueDepth, err = registerCollector(reg, queueDepth); err != nil {
		return nil, err
	}
	if sleepHeap, err = registerCollector(reg, sleepHeap); err != nil {
		return nil, err
	}
	if tasksComplete, err = registerCollector(reg, tasksComplete); err != nil {
		return nil, err
	}
	if tasksPanicked, err = registerCollector(reg, tasksPanicked); err != nil {
		return nil, err
	}
	if running, err = registerCollector(reg, running); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:      interval,
		providers:     make(map[string]RuntimeSnapshotProvider),
		workers:       workers,
		queueDepth:    queueDepth,
		sleepHeap:     sleepHeap,
		tasksComplete: tasksComplete,
		tasksPanicked: tasksPanicked,
		running:       running,
	}, nil
}

// AddRuntime adds or replaces a runtime snapshot provider by name.
func (p *SnapshotPoller) AddRuntime(name string, provider RuntimeSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "runtime")
	p.mu.Lock()
	p.providers[name] = provider
	p.mu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}
	p.stateMu.Lock()
	if p.active {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.active = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}
	p.stateMu.Lock()
	if !p.active {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.active = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for name, provider := range p.providers {
		stats := provider.Stats()
		p.workers.WithLabelValues(name).Set(float64(stats.Workers))
		p.queueDepth.WithLabelValues(name).Set(float64(stats.QueueDepth))
		p.sleepHeap.WithLabelValues(name).Set(float64(stats.SleepHeapSize))
		p.tasksComplete.WithLabelValues(name).Set(float64(stats.TasksCompleted))
		p.tasksPanicked.WithLabelValues(name).Set(float64(stats.TasksPanicked))
		if stats.Running {
			p.running.WithLabelValues(name).Set(1)
		} else {
			p.running.WithLabelValues(name).Set(0)
		}
	}
}
