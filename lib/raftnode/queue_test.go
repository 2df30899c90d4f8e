package raftnode

import (
	"errors"
	"sync"
	"testing"
)

func TestQueueDrainOrder(t *testing.T) {
	q := NewRequestQueue()
	const n = 100

	submitted := make([]Request, n)
	for i := range submitted {
		submitted[i] = NewInfoRequest()
		if err := q.Submit(submitted[i]); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}

	if q.Len() != n {
		t.Fatalf("Len() = %d, want %d", q.Len(), n)
	}

	drained := q.Drain()
	if len(drained) != n {
		t.Fatalf("Drain() returned %d requests, want %d", len(drained), n)
	}
	for i := range drained {
		if drained[i] != submitted[i] {
			t.Fatalf("request %d out of order", i)
		}
	}
	if q.Len() != 0 || len(q.Drain()) != 0 {
		t.Errorf("queue not empty after Drain()")
	}
}

func TestQueueWakeIsCoalesced(t *testing.T) {
	q := NewRequestQueue()
	for i := 0; i < 10; i++ {
		_ = q.Submit(NewInfoRequest())
	}

	select {
	case <-q.Wake():
	default:
		t.Fatal("no wake signal after Submit()")
	}
	select {
	case <-q.Wake():
		t.Fatal("more than one pending wake signal")
	default:
	}
}

func TestQueueConcurrentSubmit(t *testing.T) {
	q := NewRequestQueue()
	const (
		writers   = 8
		perWriter = 200
	)

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				req := NewAddNodeRequest(peerRecord(uint64(w*perWriter + i + 1)))
				if err := q.Submit(req); err != nil {
					t.Errorf("Submit() error = %v", err)
				}
			}
		}(w)
	}

	// drain while writers are active
	var total []Request
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for finished := false; !finished; {
		select {
		case <-done:
			finished = true
		case <-q.Wake():
		}
		total = append(total, q.Drain()...)
	}
	total = append(total, q.Drain()...)

	if len(total) != writers*perWriter {
		t.Fatalf("drained %d requests, want %d", len(total), writers*perWriter)
	}

	// each writer's requests keep their relative order
	last := make(map[int]uint64)
	for _, r := range total {
		id := r.(*AddNodeRequest).Peer.ID
		w := int((id - 1) / perWriter)
		if id <= last[w] {
			t.Fatalf("writer %d: id %d drained after %d", w, id, last[w])
		}
		last[w] = id
	}
}

func TestQueueClose(t *testing.T) {
	q := NewRequestQueue()
	_ = q.Submit(NewInfoRequest())
	_ = q.Submit(NewInfoRequest())

	left := q.Close()
	if len(left) != 2 {
		t.Errorf("Close() returned %d requests, want 2", len(left))
	}
	if err := q.Submit(NewInfoRequest()); !errors.Is(err, ErrStopped) {
		t.Errorf("Submit() after Close() error = %v, want %v", err, ErrStopped)
	}
}
