package memory

import (
	"sync"

	"github.com/albertogalvez-dev/queue/internal/store"
)

// eventRing is the bounded event feed. Old entries are overwritten once the
// ring fills; consumers that fall further behind than the buffer holds miss
// events and should resync from a snapshot.
//
// Appends happen inside the store's mu critical section that assigns the
// event's Seq, so ring order always matches Seq order and list(since, ...)
// never skips a committed event.
type eventRing struct {
	mu    sync.Mutex
	buf   []store.Event
	head  int
	count int
}

func newEventRing(size int) *eventRing {
	return &eventRing{buf: make([]store.Event, size)}
}

func (r *eventRing) append(event store.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = event
		r.count++
		return
	}
	r.buf[r.head] = event
	r.head = (r.head + 1) % len(r.buf)
}

func (r *eventRing) list(since uint64, limit int) []store.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	events := make([]store.Event, 0)
	for i := 0; i < r.count; i++ {
		event := r.buf[(r.head+i)%len(r.buf)]
		if event.Seq <= since {
			continue
		}
		events = append(events, event)
		if len(events) >= limit {
			break
		}
	}
	return events
}
