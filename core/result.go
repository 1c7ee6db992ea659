package core

import "context"

// ResultHandle awaits a Task with no return value. It is the client-facing
// handle a caller gets back from Run; the runtime and the handle
// jointly own the underlying Task until one of them wins the disposal
// handshake (see Task.MarkForDeletion).
type ResultHandle struct {
	rt   *Runtime
	task *Task
}

// NewResultHandle wraps task as a caller-facing handle bound to rt.
func NewResultHandle(rt *Runtime, task *Task) *ResultHandle {
	return &ResultHandle{rt: rt, task: task}
}

// Await blocks (cooperatively if called from within another task, via
// PreemptForDependentTask; directly otherwise) until the wrapped task
// completes, then resolves the disposal handshake.
func (h *ResultHandle) Await(ctx context.Context) {
	h.rt.PreemptForDependentTask(ctx, h.task)
	h.task.Await()
	if !h.task.MarkForDeletion() {
		Destroy(h.task.fiber)
	}
}

// Task exposes the underlying task, chiefly so tests can inspect state.
func (h *ResultHandle) Task() *Task { return h.task }

// ResultHandleWithValue awaits a TaskWithResult[R] and yields its value.
type ResultHandleWithValue[R any] struct {
	rt   *Runtime
	task *TaskWithResult[R]
}

// NewResultHandleWithValue wraps task as a caller-facing handle bound to rt.
func NewResultHandleWithValue[R any](rt *Runtime, task *TaskWithResult[R]) *ResultHandleWithValue[R] {
	return &ResultHandleWithValue[R]{rt: rt, task: task}
}

// Await blocks until the wrapped task completes and resolves the disposal
// handshake, without reading the result (use Value for that).
func (h *ResultHandleWithValue[R]) Await(ctx context.Context) {
	h.rt.PreemptForDependentTask(ctx, &h.task.Task)
	h.task.Await()
	if !h.task.MarkForDeletion() {
		Destroy(h.task.fiber)
	}
}

// Value awaits the task, then returns its result.
func (h *ResultHandleWithValue[R]) Value(ctx context.Context) R {
	h.Await(ctx)
	return h.task.Result()
}

// Task exposes the underlying task, chiefly so tests can inspect state.
func (h *ResultHandleWithValue[R]) Task() *TaskWithResult[R] { return h.task }
