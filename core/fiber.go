package core

import "errors"

// ErrInvalidFiber is returned by Create when the stack size or entry point
// does not describe a runnable fiber.
var ErrInvalidFiber = errors.New("core: invalid fiber parameters")

// Fiber is a suspendable execution context: it can be parked mid-execution
// and resumed later on any worker goroutine.
//
// Go already owns stack growth and register save/restore for every
// goroutine, so a Fiber here is a dedicated goroutine plus a pair of
// unbuffered handoff channels rather than a hand-rolled context switch. The
// two channels serialize control the same way a raw stack switch does:
// exactly one side is ever runnable at a time.
type Fiber struct {
	entry         func()
	resume        chan struct{}
	yield         chan struct{}
	threadAdopted bool
	started       bool
}

// CreateFromThread wraps the calling goroutine itself as a Fiber. It never
// spawns anything; SwitchTo treats it as the "give control back to whoever
// dispatched me" target.
func CreateFromThread() *Fiber {
	return &Fiber{threadAdopted: true}
}

// Create builds a Fiber whose backing goroutine will run entry once resumed
// for the first time. The goroutine is not started until the first SwitchTo.
func Create(stackSize uint32, entry func()) (*Fiber, error) {
	if stackSize == 0 || entry == nil {
		return nil, ErrInvalidFiber
	}
	return &Fiber{
		entry:  entry,
		resume: make(chan struct{}),
		yield:  make(chan struct{}),
	}, nil
}

// SwitchTo transfers control from the currently running fiber to another.
// Calling it from anywhere other than the goroutine currently running from
// is a caller error.
func SwitchTo(from, to *Fiber) {
	if from == to {
		return
	}
	if to.threadAdopted {
		// from is running and wants to hand control back to the fiber
		// that dispatched it.
		from.yield <- struct{}{}
		<-from.resume
		return
	}
	if !to.started {
		to.started = true
		go to.run()
	}
	to.resume <- struct{}{}
	<-to.yield
}

func (f *Fiber) run() {
	<-f.resume
	f.entry()
	// entry returned: the task is done. One final yield hands control back
	// without a matching resume receive, so this goroutine exits cleanly.
	f.yield <- struct{}{}
}

// Destroy releases a fiber. For a thread-adopted fiber, or one whose backing
// goroutine has already exited, this is a no-op: Go's garbage collector
// reclaims the channels once the Fiber becomes unreachable. The call is kept
// as an explicit lifecycle hook so callers don't need to special-case it.
func Destroy(f *Fiber) {}
