package watch

import "sync"

// Queue accumulates batches until the frame pump drains them. Pushing never
// blocks the watcher; draining never waits for events.
type Queue struct {
	events []Event
	index  map[string]int
	mu     sync.Mutex
}

// NewQueue creates an empty queue
func NewQueue() *Queue {
	return &Queue{index: make(map[string]int)}
}

// Push appends a batch, collapsing repeated paths to their latest op
func (q *Queue) Push(batch []Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, ev := range batch {
		if i, ok := q.index[ev.Path]; ok {
			q.events[i].Op = ev.Op
			continue
		}
		q.index[ev.Path] = len(q.events)
		q.events = append(q.events, ev)
	}
}

// Drain returns and clears everything queued
func (q *Queue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.events
	q.events = nil
	q.index = make(map[string]int)
	return out
}

// Len returns the number of queued events
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
