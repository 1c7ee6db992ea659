package core

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"
)

const coroutineStackSize = 8 * 1024

// proc is a single worker: one goroutine that repeatedly fetches a runnable
// task from the Runtime's global queue and drives it to completion or the
// next suspension point. One proc occupies exactly one goroutine for its
// whole life, which is what COMAXPROCS actually bounds.
type proc struct {
	id    int
	rt    *Runtime
	fiber *Fiber // thread-adopted: represents this proc's own goroutine
}

func newProc(id int, rt *Runtime) *proc {
	return &proc{id: id, rt: rt}
}

// mainLoop is the proc's entire lifetime: adopt this goroutine as a fiber,
// then pull and run tasks until the runtime shuts down.
func (p *proc) mainLoop() {
	p.fiber = CreateFromThread()
	p.rt.config.Logger.Info("worker started", F("worker", p.id))
	for {
		task, ok := p.rt.queue.Pop()
		if !ok {
			break
		}
		p.runTask(task)
	}
	p.rt.config.Logger.Info("worker exited", F("worker", p.id))
}

// runTask dispatches task onto its fiber and reacts to the state it's in
// when it comes back: complete (run any dependent task as a tail call, then
// resolve the disposal handshake) or paused (loop back for more work).
func (p *proc) runTask(task *Task) {
	if task.fiber == nil {
		task.fiber, _ = Create(coroutineStackSize, func() { p.fiberMain(task) })
	}

	ctx := context.WithValue(context.Background(), procContextKey{}, p)
	task.dispatchCtx = ctx

	start := time.Now()
	SwitchTo(p.fiber, task.fiber)

	switch task.State() {
	case TaskCompleted:
		p.rt.config.Metrics.RecordTaskDuration(task.name, time.Since(start))
		p.rt.tasksCompleted.Add(1)
		if pv := task.PanicValue(); pv != nil {
			p.rt.tasksPanicked.Add(1)
			p.rt.config.Metrics.RecordTaskPanic(task.name, pv)
			p.rt.config.PanicHandler.HandlePanic(ctx, task.name, p.id, pv, debug.Stack())
		}
		p.rt.config.Logger.Debug("task completed", F("worker", p.id), F("task", task.name))

		if dep := task.takeDependent(); dep != nil {
			dep.tryClaimRunning()
			p.runTask(dep)
		}

		// Single-winner cleanup handshake: whichever side's MarkForDeletion
		// call discovers the task already marked is the one that runs
		// cleanup, so the worker only tears down the fiber once it knows
		// no ResultHandle can still be reading the task.
		if !task.MarkForDeletion() {
			Destroy(task.fiber)
		}
	case TaskPaused, TaskRunning:
		// TaskRunning here means the task parked and was re-admitted by
		// AddTask before this proc read its state: it is already back on the
		// runnable queue, so it is handled exactly like a pause.
		p.rt.config.Metrics.RecordTaskDuration(task.name, time.Since(start))
		p.rt.config.Logger.Debug("task paused", F("worker", p.id), F("task", task.name), F("parked_on", task.parkedOn))
	default:
		panic(fmt.Sprintf("core: task %q returned from fiber switch in unexpected state %v", task.name, task.State()))
	}
}

// fiberMain is the trampoline every task fiber runs: it transitions the
// task to Running, executes its body, transitions it to Completed, then
// switches back to the dispatching proc's fiber.
func (p *proc) fiberMain(task *Task) {
	task.setState(TaskRunning)
	task.execute(task.dispatchCtx)
	task.setState(TaskCompleted)
	SwitchTo(task.fiber, p.fiber)
}

// procContextKey is the context key under which the dispatching proc is
// stashed, so PreemptCurrent/PreemptForDependent can find their way back to
// the worker's own fiber without any thread-local state.
type procContextKey struct{}

func procFromContext(ctx context.Context) *proc {
	if v := ctx.Value(procContextKey{}); v != nil {
		return v.(*proc)
	}
	return nil
}

// RuntimeFromContext returns the Runtime dispatching the task running under
// ctx, or nil outside of any task. It lets package-level helpers (coro.Run,
// coro.RunWithResult, coro.NewChannel) resolve "the runtime I'm currently running on"
// without a thread-local, falling back to the global Runtime when ctx
// carries none.
func RuntimeFromContext(ctx context.Context) *Runtime {
	if p := procFromContext(ctx); p != nil {
		return p.rt
	}
	return nil
}
