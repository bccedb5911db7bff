package peer

import "sync"

// eventQueue is an unbounded FIFO of engine events.
//
// pion invokes callbacks on its own goroutines; pushing onto this queue never
// blocks them, while a single forwarder drains it in order.
type eventQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	closed   bool
	events   []Event
}

func newEventQueue() *eventQueue {
	q := &eventQueue{}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Push appends ev. It reports false once the queue is closed.
func (q *eventQueue) Push(ev Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.events = append(q.events, ev)
	q.notEmpty.Signal()
	return true
}

// Pop blocks until an event is available or the queue is closed.
func (q *eventQueue) Pop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.events) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if q.closed {
		return Event{}, false
	}
	ev := q.events[0]
	q.events[0] = Event{}
	q.events = q.events[1:]
	return ev, true
}

func (q *eventQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.events = nil
	q.mu.Unlock()
	q.notEmpty.Broadcast()
}
