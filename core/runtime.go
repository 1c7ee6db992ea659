package core

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
)

// Runtime is the M:N scheduler: a pool of worker goroutines (procs), grown
// on demand up to a cap, pulling runnable tasks off a single global queue.
// There is no raw OS thread management here — procs are goroutines, and
// COMAXPROCS bounds how many of them can exist for the runtime's lifetime.
type Runtime struct {
	config *RuntimeConfig

	workerCount int
	procs       []*proc
	queue       *runQueue
	sleep       *sleepService

	startOnce sync.Once
	wg        sync.WaitGroup

	tasksCompleted atomic.Int64
	tasksPanicked  atomic.Int64

	mu       sync.Mutex
	shutdown bool
}

// NewRuntime builds a Runtime capped at workerCount workers (resolved by
// callers from COMAXPROCS or config; see coro.LoadConfig) and starts one of
// them immediately; the rest are spawned on demand as tasks are admitted.
// workerCount <= 0 falls back to runtime.NumCPU().
func NewRuntime(workerCount int, config *RuntimeConfig) *Runtime {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	if config == nil {
		config = DefaultRuntimeConfig()
	} else {
		cfg := *config
		if cfg.PanicHandler == nil {
			cfg.PanicHandler = &DefaultPanicHandler{}
		}
		if cfg.Metrics == nil {
			cfg.Metrics = &NilMetrics{}
		}
		if cfg.Logger == nil {
			cfg.Logger = &DefaultLogger{}
		}
		config = &cfg
	}
	rt := &Runtime{
		config:      config,
		workerCount: workerCount,
		queue:       newRunQueue(config.QueueCapacity),
	}
	rt.sleep = newSleepService(rt, config.Metrics, config.SleepGranularity)
	rt.start()
	return rt
}

// ResolveWorkerCount reads COMAXPROCS: unset means "use the host's CPU
// count"; set-but-unparseable is fatal.
func ResolveWorkerCount() (int, error) {
	env := os.Getenv("COMAXPROCS")
	if env == "" {
		return runtime.NumCPU(), nil
	}
	n, err := strconv.Atoi(env)
	if err != nil {
		return 0, fmt.Errorf("core: failed to parse COMAXPROCS: %w", err)
	}
	return n, nil
}

// start spawns exactly one proc, eagerly, at runtime construction. Further
// procs are grown on demand by ensureWorkerCount as AddTask admits
// not-yet-started tasks, up to workerCount.
func (rt *Runtime) start() {
	rt.startOnce.Do(func() {
		rt.spawnProc()
	})
}

// spawnProc starts one more proc goroutine if the pool has not yet reached
// workerCount and the runtime has not been shut down. Returns false if it
// declined to spawn.
func (rt *Runtime) spawnProc() bool {
	rt.mu.Lock()
	if rt.shutdown || len(rt.procs) >= rt.workerCount {
		rt.mu.Unlock()
		return false
	}
	p := newProc(len(rt.procs), rt)
	rt.procs = append(rt.procs, p)
	rt.wg.Add(1)
	rt.mu.Unlock()

	go func() {
		defer rt.wg.Done()
		p.mainLoop()
	}()
	return true
}

// ensureWorkerCount grows the worker pool by one proc, up to workerCount,
// mirroring EnsureThreadCount from the coroutine scheduler this runtime is
// modeled on: called whenever AddTask admits a not-yet-started task, so the
// pool fills in lazily under load instead of reserving workerCount
// goroutines up front.
func (rt *Runtime) ensureWorkerCount() {
	rt.spawnProc()
}

// AddTask admits a task to the runtime. A not-yet-started task grows the
// worker pool by one (up to workerCount) before being enqueued; a paused
// task is re-admitted only if it successfully claims the Running transition
// first (tryClaimRunning), so two callers racing to wake the same paused
// task can never both push it onto the queue.
func (rt *Runtime) AddTask(task *Task) {
	if task == nil {
		return
	}
	switch task.State() {
	case TaskRunning:
		return
	case TaskNotStarted:
		if !task.tryClaimRunning() {
			return
		}
		rt.ensureWorkerCount()
	case TaskPaused:
		if !task.tryClaimRunning() {
			return
		}
	default:
		return
	}
	rt.queue.Push(task)
	rt.config.Metrics.RecordQueueDepth(rt.queue.Len())
}

// CurrentTask returns the task running on the calling goroutine's fiber, as
// carried in ctx, or nil outside of any task.
func (rt *Runtime) CurrentTask(ctx context.Context) *Task {
	return GetCurrentTask(ctx)
}

// PreemptCurrent suspends the task running under ctx and returns control to
// its dispatching proc. It is a no-op if ctx carries no current task.
func (rt *Runtime) PreemptCurrent(ctx context.Context) {
	p := procFromContext(ctx)
	task := GetCurrentTask(ctx)
	if p == nil || task == nil {
		return
	}
	task.markParked("runqueue")
	SwitchTo(task.fiber, p.fiber)
}

// PreemptForDependentTask suspends the task running under ctx and records it
// as dep's dependent, so it resumes automatically, on the same worker,
// immediately after dep completes. If dep has already completed by the time
// SetDependent is attempted, it returns immediately instead of parking,
// since dep's worker has already taken (or will never take) a dependent.
// It is also a no-op outside of a task.
func (rt *Runtime) PreemptForDependentTask(ctx context.Context, dep *Task) {
	p := procFromContext(ctx)
	task := GetCurrentTask(ctx)
	if p == nil || task == nil {
		return
	}
	if !dep.SetDependent(task) {
		return
	}
	task.markParked("dependent")
	SwitchTo(task.fiber, p.fiber)
}

// QueueDepth reports the runnable queue's current length.
func (rt *Runtime) QueueDepth() int { return rt.queue.Len() }

// WorkerCount reports the worker cap this runtime was configured with, not
// the number of procs currently spawned (see LiveWorkerCount).
func (rt *Runtime) WorkerCount() int { return rt.workerCount }

// LiveWorkerCount reports how many procs have actually been spawned so far,
// which grows lazily from 1 up to WorkerCount as tasks are admitted.
func (rt *Runtime) LiveWorkerCount() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.procs)
}

// Stats returns a point-in-time snapshot for observability.
func (rt *Runtime) Stats() RuntimeStats {
	rt.mu.Lock()
	running := !rt.shutdown
	rt.mu.Unlock()
	return RuntimeStats{
		Workers:        rt.workerCount,
		QueueDepth:     rt.queue.Len(),
		SleepHeapSize:  rt.sleep.size(),
		TasksCompleted: rt.tasksCompleted.Load(),
		TasksPanicked:  rt.tasksPanicked.Load(),
		Running:        running,
	}
}

// Shutdown stops accepting new work implicitly (callers should stop calling
// AddTask) and blocks until every worker and the sleep service goroutine
// has exited. A task still runnable when Shutdown is called is abandoned:
// its fiber's backing goroutine is left blocked and reclaimed by the
// garbage collector once the Task becomes unreachable.
func (rt *Runtime) Shutdown() {
	rt.mu.Lock()
	if rt.shutdown {
		rt.mu.Unlock()
		return
	}
	rt.shutdown = true
	liveWorkers := len(rt.procs)
	rt.mu.Unlock()

	rt.sleep.stop()
	rt.queue.Shutdown(liveWorkers)
	rt.wg.Wait()
}

// =============================================================================
// Global singleton
// =============================================================================

var (
	globalRuntime     *Runtime
	globalRuntimeOnce sync.Once
)

// Global returns the process-wide Runtime, lazily initializing it from
// COMAXPROCS on first use. It panics if COMAXPROCS is set but unparseable,
// treating a bad worker-count override as a startup-time configuration
// error rather than something to silently fall back from.
func Global() *Runtime {
	globalRuntimeOnce.Do(func() {
		n, err := ResolveWorkerCount()
		if err != nil {
			panic(err)
		}
		globalRuntime = NewRuntime(n, DefaultRuntimeConfig())
	})
	return globalRuntime
}
