package session

import "sync"

// Queue runs posted functions one by one in the order of posting.
// It is unbounded, Post never blocks.
type Queue struct {
	mu     sync.Mutex
	items  []func()
	wake   chan struct{}
	closed bool

	onPanic func(v any)
	after   func()
}

// NewQueue creates a queue. The onPanic function is called on the
// queue goroutine with a recovered panic value of an item, after is
// called once every item is done. Both may be nil.
func NewQueue(onPanic func(v any), after func()) *Queue {
	return &Queue{wake: make(chan struct{}, 1), onPanic: onPanic, after: after}
}

// Post adds fn to the queue, false means the queue is closed.
func (q *Queue) Post(fn func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, fn)
	q.mu.Unlock()
	q.signal()
	return true
}

// Close stops accepting new items.
// Items posted before Close still run.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Run processes the queue until it is closed and drained.
func (q *Queue) Run() {
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			<-q.wake
			continue
		}
		fn := q.items[0]
		q.items[0] = nil
		q.items = q.items[1:]
		q.mu.Unlock()

		q.exec(fn)
	}
}

func (q *Queue) exec(fn func()) {
	defer func() {
		if q.after != nil {
			q.after()
		}
	}()
	defer func() {
		if r := recover(); r != nil && q.onPanic != nil {
			q.onPanic(r)
		}
	}()
	fn()
}
