package core

import (
	"context"
	"sync"
	"time"

	"github.com/emirpasic/gods/trees/binaryheap"
)

// sleepEntry is one pending wakeup, ordered by wakeAt then sequence (for
// deterministic tie-breaking when two sleeps expire at the same instant).
type sleepEntry struct {
	wakeAt   time.Time
	sequence uint64
	task     *Task
}

func sleepEntryComparator(a, b any) int {
	ea, eb := a.(*sleepEntry), b.(*sleepEntry)
	switch {
	case ea.wakeAt.Before(eb.wakeAt):
		return -1
	case ea.wakeAt.After(eb.wakeAt):
		return 1
	case ea.sequence < eb.sequence:
		return -1
	case ea.sequence > eb.sequence:
		return 1
	default:
		return 0
	}
}

// sleepService is the runtime's single timer-wakeup goroutine: a
// binaryheap-backed min-heap of pending wakeups, woken by a time.Timer reset
// to the next expiry.
type sleepService struct {
	rt          *Runtime
	metrics     Metrics
	granularity time.Duration

	mu           sync.Mutex
	heap         *binaryheap.Heap
	nextSequence uint64
	wakeup       chan struct{}
	done         chan struct{}
}

// newSleepService starts the timer-wakeup goroutine. granularity <= 0 wakes
// precisely at each entry's expiry; a positive granularity instead polls on
// a fixed interval, coalescing wakeups for entries that expire close
// together at the cost of up to one granularity's worth of extra delay.
func newSleepService(rt *Runtime, metrics Metrics, granularity time.Duration) *sleepService {
	s := &sleepService{
		rt:          rt,
		metrics:     metrics,
		granularity: granularity,
		heap:        binaryheap.NewWith(sleepEntryComparator),
		wakeup:      make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	go s.loop()
	return s
}

// addSleep schedules task to be re-admitted to the runtime after d elapses.
func (s *sleepService) addSleep(task *Task, d time.Duration) {
	s.mu.Lock()
	entry := &sleepEntry{wakeAt: time.Now().Add(d), sequence: s.nextSequence, task: task}
	s.nextSequence++
	s.heap.Push(entry)
	isEarliest := s.peekLocked() == entry
	s.mu.Unlock()

	if isEarliest {
		select {
		case s.wakeup <- struct{}{}:
		default:
		}
	}
}

func (s *sleepService) peekLocked() *sleepEntry {
	v, ok := s.heap.Peek()
	if !ok {
		return nil
	}
	return v.(*sleepEntry)
}

func (s *sleepService) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heap.Size()
}

func (s *sleepService) loop() {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	for {
		next := s.calculateNextRun()
		if next < 0 {
			// The earliest entry is already overdue: nothing "next" is
			// coming, it's due now, so process it without arming a timer.
			s.processExpired()
			continue
		}
		if next == 0 {
			next = 1000 * time.Hour
		}
		timer.Reset(next)

		select {
		case <-s.done:
			timer.Stop()
			return
		case <-timer.C:
			s.processExpired()
		case <-s.wakeup:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
	}
}

func (s *sleepService) calculateNextRun() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.peekLocked()
	if entry == nil {
		return 0
	}
	if s.granularity > 0 {
		return s.granularity
	}
	if until := time.Until(entry.wakeAt); until > 0 {
		return until
	}
	return -1
}

func (s *sleepService) processExpired() {
	s.mu.Lock()
	now := time.Now()
	var expired []*Task
	for {
		entry := s.peekLocked()
		if entry == nil || entry.wakeAt.After(now) {
			break
		}
		s.heap.Pop()
		expired = append(expired, entry.task)
	}
	s.metrics.RecordSleepHeapSize(s.heap.Size())
	s.mu.Unlock()

	for _, t := range expired {
		s.rt.AddTask(t)
	}
}

// stop signals the loop to exit. done is unbuffered, so the send returns only
// once the loop has taken the signal and is leaving.
func (s *sleepService) stop() {
	s.done <- struct{}{}
}

// Sleep suspends the calling task for at least d. If called from inside a
// task body (ctx carries a current task and its dispatching proc), the task
// is parked in that proc's runtime's sleep service and the worker moves on
// to other work. If called outside any task, it falls back to blocking the
// calling goroutine directly, which is the documented behavior for client
// code not running under the runtime.
func Sleep(ctx context.Context, d time.Duration) {
	task := GetCurrentTask(ctx)
	p := procFromContext(ctx)
	if task == nil || p == nil {
		time.Sleep(d)
		return
	}
	p.rt.sleep.addSleep(task, d)
	task.markParked("sleep")
	SwitchTo(task.fiber, p.fiber)
}
