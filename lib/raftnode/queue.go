package raftnode

import "sync"

// RequestQueue hands requests from serving goroutines to the execution loop.
//
// Submit is safe for concurrent use. Drain and Close are called by the loop only.
// The mutex guards the slice and the closed flag, nothing else; no call blocks
// while holding it.
type RequestQueue struct {
	mu     sync.Mutex
	items  []Request
	closed bool
	wake   chan struct{}
}

// NewRequestQueue creates an empty queue
func NewRequestQueue() *RequestQueue {
	return &RequestQueue{wake: make(chan struct{}, 1)}
}

// Submit appends a request and wakes the loop. It never blocks.
func (q *RequestQueue) Submit(req Request) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrStopped
	}
	q.items = append(q.items, req)
	q.mu.Unlock()

	// a pending signal already covers this request
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Wake returns the channel signalled after a Submit
func (q *RequestQueue) Wake() <-chan struct{} {
	return q.wake
}

// Drain removes and returns all queued requests in submission order
func (q *RequestQueue) Drain() []Request {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()
	return items
}

// Close rejects further submissions and returns the requests still queued
func (q *RequestQueue) Close() []Request {
	q.mu.Lock()
	q.closed = true
	items := q.items
	q.items = nil
	q.mu.Unlock()
	return items
}

// Len returns the number of queued requests
func (q *RequestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
