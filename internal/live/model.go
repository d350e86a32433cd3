// Package live delivers pushed announcements: WebSocket and gRPC clients
// that feed a Sink, a deduplicating Hub that fans records out to
// subscribers, and a replay source for archived days.
package live

import (
	"sync"

	"annfeed/internal/domain"
	"annfeed/internal/feed"
)

// Sink receives pushed records. *feed.Feed satisfies it.
type Sink interface {
	Merge(rec domain.Announcement) bool
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(rec domain.Announcement) bool

// Merge implements Sink.
func (f SinkFunc) Merge(rec domain.Announcement) bool { return f(rec) }

// StatusFunc is told about connection state changes.
type StatusFunc func(feed.LiveStatus)

func (f StatusFunc) report(s feed.LiveStatus) {
	if f != nil {
		f(s)
	}
}

// Hub keeps recently pushed announcements, deduplicated by id, and fans new
// ones out to subscribers. The seen set and the snapshot are both bounded.
type Hub struct {
	mu           sync.RWMutex
	recent       []domain.Announcement // delivery order, oldest first
	seen         map[string]struct{}
	seenOrder    []string
	snapshotSize int
	seenLimit    int

	subsMu    sync.Mutex
	nextSubID int
	subs      map[int]chan domain.Announcement
}

// NewHub creates a Hub keeping up to snapshotSize recent records and
// remembering up to seenLimit ids for deduplication.
func NewHub(snapshotSize, seenLimit int) *Hub {
	if snapshotSize <= 0 {
		snapshotSize = 200
	}
	if seenLimit < snapshotSize {
		seenLimit = snapshotSize
	}
	return &Hub{
		seen:         make(map[string]struct{}),
		snapshotSize: snapshotSize,
		seenLimit:    seenLimit,
		subs:         make(map[int]chan domain.Announcement),
	}
}

// Add inserts a record and notifies subscribers. Returns false for records
// without an id and for duplicates.
func (h *Hub) Add(rec domain.Announcement) bool {
	if !h.insert(rec) {
		return false
	}

	// Notify subscribers (non-blocking send).
	h.subsMu.Lock()
	for _, ch := range h.subs {
		select {
		case ch <- rec:
		default:
			// Slow subscriber, drop event.
		}
	}
	h.subsMu.Unlock()
	return true
}

// Merge implements Sink.
func (h *Hub) Merge(rec domain.Announcement) bool {
	return h.Add(rec)
}

// AddBatch inserts records without notifying subscribers; they reach new
// subscribers through the snapshot. Returns the number of new records.
func (h *Hub) AddBatch(recs []domain.Announcement) int {
	added := 0
	for _, rec := range recs {
		if h.insert(rec) {
			added++
		}
	}
	return added
}

func (h *Hub) insert(rec domain.Announcement) bool {
	if rec.ID == "" {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, dup := h.seen[rec.ID]; dup {
		return false
	}
	h.seen[rec.ID] = struct{}{}
	h.seenOrder = append(h.seenOrder, rec.ID)
	if len(h.seenOrder) > h.seenLimit {
		evict := len(h.seenOrder) - h.seenLimit
		for _, id := range h.seenOrder[:evict] {
			delete(h.seen, id)
		}
		h.seenOrder = append(h.seenOrder[:0:0], h.seenOrder[evict:]...)
	}

	h.recent = append(h.recent, rec)
	if len(h.recent) > h.snapshotSize {
		h.recent = append(h.recent[:0:0], h.recent[len(h.recent)-h.snapshotSize:]...)
	}
	return true
}

// Snapshot returns a copy of the recent records in delivery order.
func (h *Hub) Snapshot() []domain.Announcement {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]domain.Announcement, len(h.recent))
	copy(out, h.recent)
	return out
}

// Counts returns the snapshot size, the number of remembered ids, and the
// number of subscribers.
func (h *Hub) Counts() (recent, seen, subscribers int) {
	h.mu.RLock()
	recent, seen = len(h.recent), len(h.seen)
	h.mu.RUnlock()
	h.subsMu.Lock()
	subscribers = len(h.subs)
	h.subsMu.Unlock()
	return
}

// Subscribe returns a subscriber ID and a channel that receives every new
// record. The channel has the given buffer size; if full, events are dropped.
func (h *Hub) Subscribe(bufSize int) (int, <-chan domain.Announcement) {
	ch := make(chan domain.Announcement, bufSize)
	h.subsMu.Lock()
	id := h.nextSubID
	h.nextSubID++
	h.subs[id] = ch
	h.subsMu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id int) {
	h.subsMu.Lock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
	h.subsMu.Unlock()
}
