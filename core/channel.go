package core

import (
	"context"
	goruntime "runtime"
	"sync"
	"sync/atomic"

	"code.hybscloud.com/lfq"
)

// lfqQueue is the subset of code.hybscloud.com/lfq's queue interface a
// Channel needs. All of NewSPSC/NewMPSC/NewSPMC/NewMPMC satisfy it; Channel
// always asks for an MPMC since any number of Sender/Receiver handles may
// share one channel.
type lfqQueue[T any] interface {
	Enqueue(*T) error
	Dequeue() (T, error)
}

// Channel is a bounded, FIFO, rendezvous-style channel between tasks. Value
// storage is a lock-free bounded queue (code.hybscloud.com/lfq); the sender
// and receiver wait-queues layered on top share a single mutex, with no
// separate receiver-notified flag.
type Channel[T any] struct {
	buf lfqQueue[T]
	rt  *Runtime

	mu           sync.Mutex
	senderWait   []*Task
	receiverWait []*Task

	refs int32
}

// NewChannel creates a channel with the smallest buffer NewBufferedChannel
// allows, bound to the given runtime. It requests capacity 1, which is
// raised to 2, so two values can be buffered before a Send blocks.
func NewChannel[T any](rt *Runtime) *Channel[T] {
	return NewBufferedChannel[T](rt, 1)
}

// NewBufferedChannel creates a channel that can hold up to capacity values
// before a Send must block. A capacity below 2 is raised to 2, and capacity
// is rounded up to a power of two by the backing lfq queue.
func NewBufferedChannel[T any](rt *Runtime, capacity int) *Channel[T] {
	if capacity < 2 {
		capacity = 2
	}
	return &Channel[T]{
		buf:  lfq.NewMPMC[T](capacity),
		rt:   rt,
		refs: 1,
	}
}

// GetSender returns a reference-counted send handle.
func (c *Channel[T]) GetSender() *Sender[T] {
	atomic.AddInt32(&c.refs, 1)
	return &Sender[T]{ch: c}
}

// GetReceiver returns a reference-counted receive handle.
func (c *Channel[T]) GetReceiver() *Receiver[T] {
	atomic.AddInt32(&c.refs, 1)
	return &Receiver[T]{ch: c}
}

func (c *Channel[T]) release() {
	atomic.AddInt32(&c.refs, -1)
}

// RefCount reports the number of live references to this channel, for
// diagnostics: one for the Channel itself plus one per Sender/Receiver
// handle not yet closed.
func (c *Channel[T]) RefCount() int32 {
	return atomic.LoadInt32(&c.refs)
}

// send parks the calling task (if any) on the sender wait-queue and yields
// until buffer space opens up.
func (c *Channel[T]) send(ctx context.Context, v T) {
	for {
		c.mu.Lock()
		if err := c.buf.Enqueue(&v); err == nil {
			c.wakeOneLocked(&c.receiverWait)
			c.mu.Unlock()
			return
		}
		task := GetCurrentTask(ctx)
		if task != nil {
			c.senderWait = append(c.senderWait, task)
		}
		waiting := len(c.senderWait)
		c.mu.Unlock()

		c.rt.config.Metrics.RecordChannelWait("sender", waiting)

		c.rt.PreemptCurrent(ctx)
		if task == nil {
			// No task context to be woken by the runtime; this is a
			// non-task caller. There is nothing to yield to, so give the
			// scheduler a chance to run whoever might drain the buffer.
			goruntime.Gosched()
		}
	}
}

// recv parks the calling task (if any) on the receiver wait-queue and
// yields until a value is available.
func (c *Channel[T]) recv(ctx context.Context) T {
	for {
		c.mu.Lock()
		v, err := c.buf.Dequeue()
		if err == nil {
			c.wakeOneLocked(&c.senderWait)
			c.mu.Unlock()
			return v
		}
		task := GetCurrentTask(ctx)
		if task != nil {
			c.receiverWait = append(c.receiverWait, task)
		}
		waiting := len(c.receiverWait)
		c.mu.Unlock()

		c.rt.config.Metrics.RecordChannelWait("receiver", waiting)

		c.rt.PreemptCurrent(ctx)
		if task == nil {
			goruntime.Gosched()
		}
	}
}

// wakeOneLocked pops one task off the given wait-queue and re-admits it to
// the runtime. Called with c.mu held.
func (c *Channel[T]) wakeOneLocked(q *[]*Task) {
	if len(*q) == 0 {
		return
	}
	t := (*q)[0]
	*q = (*q)[1:]
	c.rt.AddTask(t)
}

// Sender is a reference-counted handle for sending values on a Channel.
type Sender[T any] struct {
	ch *Channel[T]
}

// Send blocks (cooperatively, if called from a task) until the value has
// been accepted into the channel's buffer.
func (s *Sender[T]) Send(ctx context.Context, v T) { s.ch.send(ctx, v) }

// Close releases this handle's reference to the underlying channel. Closing
// carries no signal to peers: the channel has no closed-channel semantics,
// only many-to-many reference sharing.
func (s *Sender[T]) Close() { s.ch.release() }

// Receiver is a reference-counted handle for receiving values from a Channel.
type Receiver[T any] struct {
	ch *Channel[T]
}

// Receive blocks (cooperatively, if called from a task) until a value is
// available.
func (r *Receiver[T]) Receive(ctx context.Context) T { return r.ch.recv(ctx) }

// Close releases this handle's reference to the underlying channel.
func (r *Receiver[T]) Close() { r.ch.release() }
