package assistant

import (
	"fmt"
	"sync"
)

// Executor runs tasks on some execution context. Tasks posted to the same
// Executor must run one at a time in post order, and never inline on the
// caller's goroutine.
type Executor interface {
	Execute(task func())
}

// serialQueue runs posted tasks one at a time, in post order, on a
// goroutine of its own. Posting never blocks.
type serialQueue struct {
	name string

	mu     sync.Mutex
	tasks  []func()
	closed bool
	wake   chan struct{}

	closeCh chan struct{}
	done    chan struct{}

	startOnce sync.Once
	endOnce   sync.Once
}

func newSerialQueue(name string) *serialQueue {
	q := &serialQueue{
		name:    name,
		wake:    make(chan struct{}, 1),
		closeCh: make(chan struct{}),
		done:    make(chan struct{}),
	}
	q.start()
	return q
}

func (q *serialQueue) start() {
	q.startOnce.Do(func() {
		go func() {
			defer close(q.done)

			for {
				if task, ok := q.next(); ok {
					q.run(task)
					continue
				}

				select {
				case <-q.wake:
				case <-q.closeCh:
					for {
						task, ok := q.next()
						if !ok {
							return
						}
						q.run(task)
					}
				}
			}
		}()
	})
}

// Post queues task and reports whether it was accepted. Tasks are rejected
// once the queue is closed.
func (q *serialQueue) Post(task func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.tasks = append(q.tasks, task)
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

func (q *serialQueue) Execute(task func()) {
	if !q.Post(task) {
		logger.Debug("dropping task posted to closed queue", "queue", q.name)
	}
}

func (q *serialQueue) next() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil, false
	}
	task := q.tasks[0]
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	return task, true
}

func (q *serialQueue) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("task panicked", "queue", q.name, "panic", fmt.Sprint(r))
		}
	}()
	task()
}

// Close stops accepting tasks. Tasks already queued still run.
func (q *serialQueue) Close() {
	q.endOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		close(q.closeCh)
	})
}

// Shutdown closes the queue and waits for queued tasks to finish. It must
// not be called from a task running on q.
func (q *serialQueue) Shutdown() {
	q.Close()
	<-q.done
}
