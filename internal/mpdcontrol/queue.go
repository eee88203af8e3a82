package mpdcontrol

import "sync"

// Task is a deferred protocol operation. It runs on the coordinator
// goroutine, the only place allowed to touch the Conn. The returned error is
// logged and counted by the coordinator; it never reaches the submitter.
type Task func(Conn) error

// TaskQueue is a FIFO of tasks with many producers and a single consumer.
// The lock is held only while pushing or popping, never while a task runs.
type TaskQueue struct {
	mu    sync.Mutex
	tasks []Task

	// wake holds at most one pending signal so a consumer blocked in a
	// bounded wait can return early after a submission.
	wake chan struct{}
}

// NewTaskQueue returns an empty queue.
func NewTaskQueue() *TaskQueue {
	return &TaskQueue{wake: make(chan struct{}, 1)}
}

// Push appends t. It never blocks.
func (q *TaskQueue) Push(t Task) {
	if t == nil {
		return
	}
	q.mu.Lock()
	q.tasks = append(q.tasks, t)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Pop removes and returns the oldest task.
func (q *TaskQueue) Pop() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil, false
	}
	t := q.tasks[0]
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	return t, true
}

// Len returns the number of queued tasks.
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Wake is signalled after a Push. A receive does not imply the queue is
// still non-empty.
func (q *TaskQueue) Wake() <-chan struct{} { return q.wake }
