package cgm

import (
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// ErrQueueStopped is returned when work is submitted to a stopped queue
var ErrQueueStopped = errors.New("session queue stopped")

// Queue runs submitted tasks one at a time on a single goroutine. Pending
// tasks are kept in submission order; the backlog grows as needed so a task
// may submit follow-up work to its own queue.
type Queue struct {
	name     string
	pending  []func()
	wake     chan struct{}
	running  *atomic.Bool
	stopChan chan struct{}
	done     chan struct{}
	mutex    sync.RWMutex
	backlog  sync.Mutex
}

// NewQueue creates a stopped queue with room for size pending tasks before
// the backlog has to grow
func NewQueue(name string, size int) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{
		name:    name,
		pending: make([]func(), 0, size),
		wake:    make(chan struct{}, 1),
		running: atomic.NewBool(false),
	}
}

// Start begins draining the queue
func (q *Queue) Start() {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.running.Load() {
		return
	}
	q.stopChan = make(chan struct{})
	q.done = make(chan struct{})
	q.running.Store(true)

	log.Debugf("Starting session queue %s", q.name)

	go q.loop(q.stopChan, q.done)
}

// Stop halts the queue once the tasks already accepted have run. Like Do, it
// must not be called from a task.
func (q *Queue) Stop() {
	q.mutex.Lock()
	if !q.running.CompareAndSwap(true, false) {
		q.mutex.Unlock()
		return
	}
	close(q.stopChan)
	done := q.done
	q.mutex.Unlock()

	log.Debugf("Stopping session queue %s", q.name)
	<-done
}

// Running returns true between Start and Stop
func (q *Queue) Running() bool {
	return q.running.Load()
}

// Submit enqueues task and returns without waiting for it
func (q *Queue) Submit(task func()) error {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	if !q.running.Load() {
		return ErrQueueStopped
	}

	q.backlog.Lock()
	q.pending = append(q.pending, task)
	q.backlog.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Do enqueues task and waits until it has run. It must not be called from a
// task running on the same queue.
func (q *Queue) Do(task func()) error {
	finished := make(chan struct{})
	if err := q.Submit(func() {
		defer close(finished)
		task()
	}); err != nil {
		return err
	}
	<-finished
	return nil
}

func (q *Queue) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-q.wake:
			q.drain()
		case <-stop:
			q.drain()
			return
		}
	}
}

// drain runs pending tasks until the backlog is empty
func (q *Queue) drain() {
	for {
		q.backlog.Lock()
		if len(q.pending) == 0 {
			q.backlog.Unlock()
			return
		}
		task := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.backlog.Unlock()

		q.run(task)
	}
}

func (q *Queue) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Session queue %s: task panicked: %v", q.name, r)
		}
	}()
	task()
}
