package core

import "context"

// Run schedules fn to run as a new task on rt and returns a handle for
// awaiting its completion.
func Run(rt *Runtime, name string, fn TaskFunc) *ResultHandle {
	task := NewTask(name, fn)
	rt.AddTask(task)
	return NewResultHandle(rt, task)
}

// RunWithResult schedules fn to run as a new task on rt and returns a handle
// for awaiting its completion and reading its result.
func RunWithResult[R any](rt *Runtime, name string, fn func(ctx context.Context) R) *ResultHandleWithValue[R] {
	task := NewTaskWithResult(name, fn)
	rt.AddTask(&task.Task)
	return NewResultHandleWithValue(rt, task)
}
