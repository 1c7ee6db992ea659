// Package coro is an M:N coroutine runtime: a pool of worker goroutines,
// grown on demand up to a cap, cooperatively scheduling lightweight tasks,
// plus a bounded
// rendezvous channel and a timer-based sleep service for coordinating
// between them.
//
// A task is just a function taking a context.Context; it runs until it
// returns, blocks on Sleep, or blocks sending or receiving on a Channel, at
// which point its worker moves on to other runnable work and resumes the
// task later from exactly where it left off. Called with a context that
// carries no task, as here, the package-level functions use the process-wide
// Global runtime:
//
//	ch := coro.NewChannel[int](context.Background())
//	handle := coro.Run(context.Background(), "producer", func(ctx context.Context) {
//		ch.GetSender().Send(ctx, 42)
//	})
//	handle.Await(context.Background())
//
// The COMAXPROCS environment variable bounds how many worker goroutines the
// process-wide Global runtime can grow to; see LoadConfig for the rest of
// the tunables.
package coro
