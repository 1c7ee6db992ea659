package coro

import (
	"context"
	"time"

	"github.com/coro-project/coro/core"
)

// Task is a single unit of cooperatively-scheduled work.
type Task = core.Task

// TaskWithResult is a Task whose body produces a value of type R.
type TaskWithResult[R any] = core.TaskWithResult[R]

// ResultHandle awaits a Task with no return value.
type ResultHandle = core.ResultHandle

// ResultHandleWithValue awaits a TaskWithResult[R] and yields its value.
type ResultHandleWithValue[R any] = core.ResultHandleWithValue[R]

// Channel is a bounded rendezvous channel between tasks.
type Channel[T any] = core.Channel[T]

// Sender is the send half of a Channel.
type Sender[T any] = core.Sender[T]

// Receiver is the receive half of a Channel.
type Receiver[T any] = core.Receiver[T]

// Runtime is the M:N scheduler: a pool of worker goroutines, grown on demand
// up to a cap, pulling runnable tasks off a single global queue.
type Runtime = core.Runtime

// Metrics is the observability hook a Runtime reports task and queue
// activity through.
type Metrics = core.Metrics

// Logger is the structured logging interface the runtime and its
// components log through.
type Logger = core.Logger

// runtimeFor resolves which Runtime a package-level call should act on: the
// one dispatching the currently-running task, if ctx carries one, otherwise
// the process-wide Global runtime. This mirrors Sleep's own fallback and is
// what lets top-level Run/RunWithResult/NewChannel be called both from
// inside a task body and from ordinary, non-task goroutines.
func runtimeFor(ctx context.Context) *Runtime {
	if rt := core.RuntimeFromContext(ctx); rt != nil {
		return rt
	}
	return globalRuntime()
}

// Run schedules fn as a new task on the runtime bound to ctx (or the global
// runtime, if ctx carries none) and returns a handle for awaiting it.
func Run(ctx context.Context, name string, fn func(ctx context.Context)) *ResultHandle {
	return core.Run(runtimeFor(ctx), name, fn)
}

// RunWithResult schedules fn as a new task on the runtime bound to ctx (or
// the global runtime) and returns a handle for awaiting its result.
func RunWithResult[R any](ctx context.Context, name string, fn func(ctx context.Context) R) *ResultHandleWithValue[R] {
	return core.RunWithResult(runtimeFor(ctx), name, fn)
}

// Sleep suspends the calling task for at least d.
func Sleep(ctx context.Context, d time.Duration) {
	core.Sleep(ctx, d)
}

// NewChannel creates a channel with the smallest buffer (two values) bound to
// the runtime resolved from ctx.
func NewChannel[T any](ctx context.Context) *Channel[T] {
	return core.NewChannel[T](runtimeFor(ctx))
}

// NewBufferedChannel creates a channel with room for capacity values in
// flight (at least two), bound to the runtime resolved from ctx.
func NewBufferedChannel[T any](ctx context.Context, capacity int) *Channel[T] {
	return core.NewBufferedChannel[T](runtimeFor(ctx), capacity)
}

// NewRuntime builds and starts a Runtime capped at workerCount workers, one
// started immediately and the rest on demand. workerCount <= 0 falls back to
// runtime.NumCPU().
func NewRuntime(workerCount int, config *core.RuntimeConfig) *Runtime {
	return core.NewRuntime(workerCount, config)
}

// Global returns the process-wide Runtime, lazily initialized from
// LoadConfig on first use.
func Global() *Runtime {
	return globalRuntime()
}
