package core

// RuntimeStats is a snapshot of a Runtime's observability state, sampled
// periodically by a SnapshotPoller.
type RuntimeStats struct {
	Workers        int
	QueueDepth     int
	SleepHeapSize  int
	TasksCompleted int64
	TasksPanicked  int64
	Running        bool
}
