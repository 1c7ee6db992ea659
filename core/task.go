package core

import (
	"context"
	"sync"
)

// TaskFunc is the unit of work a Task wraps. It receives a context carrying
// the ambient "current task" (see GetCurrentTask), giving the body implicit
// access to the coroutine it's running on without a thread-local.
type TaskFunc func(ctx context.Context)

// TaskState is the lifecycle state of a Task.
type TaskState int32

const (
	// TaskNotStarted has never been dispatched to a worker.
	TaskNotStarted TaskState = iota
	// TaskRunning is currently executing on some worker's fiber.
	TaskRunning
	// TaskPaused has voluntarily suspended (channel wait, sleep, dependent
	// await) and is parked somewhere other than the runnable queue.
	TaskPaused
	// TaskCompleted has run its body to completion.
	TaskCompleted
)

// taskRunnerKeyType is a private context key type, the idiomatic Go stand-in
// for a thread-local "current task" pointer.
type taskRunnerKeyType struct{}

var taskContextKey taskRunnerKeyType

// GetCurrentTask retrieves the Task running on the calling goroutine's
// fiber, or nil if ctx carries none.
func GetCurrentTask(ctx context.Context) *Task {
	if v := ctx.Value(taskContextKey); v != nil {
		return v.(*Task)
	}
	return nil
}

func withCurrentTask(ctx context.Context, t *Task) context.Context {
	return context.WithValue(ctx, taskContextKey, t)
}

// Task is a single unit of cooperatively-scheduled work bound to a Fiber.
//
// A single mutex guards every mutable field (state, dependent, parkedOn,
// markedForDeletion). One lock is enough because nothing here is held
// across a fiber switch.
type Task struct {
	name  string
	fn    TaskFunc
	fiber *Fiber

	// dispatchCtx is set by the proc immediately before switching onto the
	// task's fiber, carrying the ambient "current proc" for the duration of
	// this dispatch. It is not guarded by mu: it is only ever written by
	// the single proc currently running this task, and only ever read from
	// inside that same task's body.
	dispatchCtx context.Context

	mu   sync.Mutex
	cond *sync.Cond

	state             TaskState
	dependent         *Task
	parkedOn          string // debugging aid: "" | "runqueue" (PreemptCurrent, used by channels) | "sleep" | "dependent"
	markedForDeletion bool
	panicValue        any
}

// NewTask constructs a Task in TaskNotStarted state. The Fiber backing it is
// created lazily on first dispatch by the worker, not here, since a Task may
// be discarded before ever running.
func NewTask(name string, fn TaskFunc) *Task {
	t := &Task{name: name, fn: fn, state: TaskNotStarted}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Name returns the task's diagnostic name.
func (t *Task) Name() string { return t.name }

// State returns the task's current lifecycle state.
func (t *Task) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// SetDependent records dep to run immediately, on the same worker, once this
// task completes. It returns false without recording anything if this task
// has already reached TaskCompleted, since takeDependent has then either
// already run or never will — the caller must not park in that case.
func (t *Task) SetDependent(dep *Task) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == TaskCompleted {
		return false
	}
	t.dependent = dep
	return true
}

func (t *Task) takeDependent() *Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	dep := t.dependent
	t.dependent = nil
	return dep
}

// setState transitions the task's state under lock and wakes anyone blocked
// in Await.
func (t *Task) setState(s TaskState) {
	t.mu.Lock()
	t.state = s
	if s == TaskCompleted {
		t.cond.Broadcast()
	}
	t.mu.Unlock()
}

// tryClaimRunning atomically moves a Paused (or NotStarted) task to
// Running, returning false if it was in neither state. AddTask uses this
// instead of unconditionally overwriting state, which would let a task get
// enqueued twice by two racing callers.
func (t *Task) tryClaimRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TaskPaused && t.state != TaskNotStarted {
		return false
	}
	t.state = TaskRunning
	t.parkedOn = ""
	return true
}

func (t *Task) markParked(where string) {
	t.mu.Lock()
	t.state = TaskPaused
	t.parkedOn = where
	t.mu.Unlock()
}

// Await blocks the calling goroutine (not a fiber) until the task reaches
// TaskCompleted. A task body reaches it only through ResultHandle.Await,
// after PreemptForDependentTask has returned, by which point the task has
// already completed.
func (t *Task) Await() {
	t.mu.Lock()
	for t.state != TaskCompleted {
		t.cond.Wait()
	}
	t.mu.Unlock()
}

// MarkForDeletion marks the task for deletion. It returns true exactly once
// across all callers, implementing the handshake between a worker finishing
// a task and a ResultHandle awaiting it: the first caller only marks it, and
// a caller that gets false finds the other side already done and disposes
// of the task.
func (t *Task) MarkForDeletion() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.markedForDeletion {
		return false
	}
	t.markedForDeletion = true
	return true
}

// execute runs the task body with panic recovery so a misbehaving task
// cannot take its worker's goroutine down with it. The panic value is
// stashed for the runtime's PanicHandler/Metrics to observe; the task still
// transitions to TaskCompleted, per the "task body failure is the task's
// own problem" contract.
func (t *Task) execute(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.mu.Lock()
			t.panicValue = r
			t.mu.Unlock()
		}
	}()
	t.fn(withCurrentTask(ctx, t))
}

// PanicValue returns the recovered panic value, if the task's body panicked.
func (t *Task) PanicValue() any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.panicValue
}

// TaskWithResult is a Task whose body produces a value of type R, retrieved
// once the task completes. The body writes the result before TaskCompleted
// is set under Task's mutex, and Result reads it under that same mutex, so a
// reader observing TaskCompleted always observes the final result.
type TaskWithResult[R any] struct {
	Task
	result R
}

// NewTaskWithResult wraps fn, whose return value becomes the task's result.
func NewTaskWithResult[R any](name string, fn func(ctx context.Context) R) *TaskWithResult[R] {
	t := &TaskWithResult[R]{}
	t.name = name
	t.state = TaskNotStarted
	t.cond = sync.NewCond(&t.mu)
	t.fn = func(ctx context.Context) {
		t.result = fn(ctx)
	}
	return t
}

// Result returns the task's produced value. Callers must have already
// observed TaskCompleted (typically via a ResultHandle's Await) before
// calling this.
func (t *TaskWithResult[R]) Result() R {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}
