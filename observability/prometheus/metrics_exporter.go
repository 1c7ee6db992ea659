package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/coro-project/coro/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	taskDurationSeconds *prom.HistogramVec
	taskPanicTotal      *prom.CounterVec
	queueDepth          prom.Gauge
	channelWaitDepth    *prom.GaugeVec
	sleepHeapSize       prom.Gauge
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for
// core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "coro"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Task execution duration in seconds, from dispatch to completion or suspension.",
		Buckets:   buckets,
	}, []string{"task"})
	panicVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_panic_total",
		Help:      "Total number of task body panics.",
	}, []string{"task"})
	queueDepth := prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "runqueue_depth",
		Help:      "Current length of the runtime's global runnable queue.",
	})
	channelWaitVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "channel_wait_depth",
		Help:      "Number of tasks parked on a channel wait-queue, by direction.",
	}, []string{"direction"})
	sleepHeapSize := prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "sleep_heap_size",
		Help:      "Number of tasks currently parked in the sleep service's timer heap.",
	})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if panicVec, err = registerCollector(reg, panicVec); err != nil {
		return nil, err
	}
	if queueDepth, err = registerCollector(reg, queueDepth); err != nil {
		return nil, err
	}
	if channelWaitVec, err = registerCollector(reg, channelWaitVec); err != nil {
		return nil, err
	}
	if sleepHeapSize, err = registerCollector(reg, sleepHeapSize); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		taskDurationSeconds: durationVec,
		taskPanicTotal:      panicVec,
		queueDepth:          queueDepth,
		channelWaitDepth:    channelWaitVec,
		sleepHeapSize:       sleepHeapSize,
	}, nil
}

// RecordTaskDuration records task execution duration.
func (m *MetricsExporter) RecordTaskDuration(taskName string, duration time.Duration) {
	if m == nil {
		return
	}
	m.taskDurationSeconds.WithLabelValues(normalizeLabel(taskName, "unknown")).Observe(duration.Seconds())
}

// RecordTaskPanic records task panic events.
func (m *MetricsExporter) RecordTaskPanic(taskName string, panicInfo any) {
	if m == nil {
		return
	}
	m.taskPanicTotal.WithLabelValues(normalizeLabel(taskName, "unknown")).Inc()
}

// RecordQueueDepth records the runnable queue's current depth.
func (m *MetricsExporter) RecordQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

// RecordChannelWait records a channel wait-queue's current depth.
func (m *MetricsExporter) RecordChannelWait(direction string, depth int) {
	if m == nil {
		return
	}
	m.channelWaitDepth.WithLabelValues(normalizeLabel(direction, "unknown")).Set(float64(depth))
}

// RecordSleepHeapSize records the sleep service's current heap size.
func (m *MetricsExporter) RecordSleepHeapSize(size int) {
	if m == nil {
		return
	}
	m.sleepHeapSize.Set(float64(size))
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
