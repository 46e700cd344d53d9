// Package live streams report updates to browsers over WebSocket.
package live

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/roach88/autopsy/internal/report"
)

// DefaultQueueSize bounds each subscriber's pending messages.
const DefaultQueueSize = 256

// MessageSnapshot is the type of the first message every subscriber gets.
const MessageSnapshot = "snapshot"

// SnapshotFunc returns the current full state.
type SnapshotFunc func() *report.Snapshot

// SnapshotMessage carries the full state to a new subscriber.
type SnapshotMessage struct {
	Type string           `json:"type"`
	Data *report.Snapshot `json:"data"`
}

// Hub fans updates out to subscribers. Publish never blocks: a subscriber
// whose queue is full loses the update.
type Hub struct {
	source    SnapshotFunc
	logger    *slog.Logger
	queueSize int

	mu     sync.Mutex
	subs   map[string]*Subscription
	closed bool

	dropped     atomic.Int64
	transmitted atomic.Bool
}

var _ report.Sink = (*Hub)(nil)

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithQueueSize sets the per-subscriber queue bound.
func WithQueueSize(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// WithHubLogger sets the logger for dropped updates.
func WithHubLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) { h.logger = logger }
}

// NewHub returns a Hub that greets subscribers with source's snapshot.
func NewHub(source SnapshotFunc, opts ...HubOption) *Hub {
	h := &Hub{
		source:    source,
		logger:    slog.Default(),
		queueSize: DefaultQueueSize,
		subs:      make(map[string]*Subscription),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscription is one subscriber's queue. Messages are SnapshotMessage
// first, then report.Update values in index order.
type Subscription struct {
	ID string
	C  <-chan any

	hub   *Hub
	queue chan any

	// pending buffers updates published while the snapshot is taken.
	ready   bool
	pending []report.Update
	once    sync.Once
}

// Subscribe registers a subscriber and queues the current snapshot.
//
// Updates published while the snapshot is built are held back and only
// those the snapshot does not already contain are queued after it.
func (h *Hub) Subscribe() *Subscription {
	queue := make(chan any, h.queueSize)
	sub := &Subscription{ID: uuid.NewString(), C: queue, hub: h, queue: queue}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.once.Do(func() { close(queue) })
		return sub
	}
	h.subs[sub.ID] = sub
	h.mu.Unlock()

	// The source takes the report's lock, which Publish callers already
	// hold, so it must run without h.mu.
	var snap *report.Snapshot
	if h.source != nil {
		snap = h.source()
	}
	seen := lastIndex(snap)

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub.ID]; !ok {
		return sub
	}
	sub.ready = true
	h.enqueue(sub, SnapshotMessage{Type: MessageSnapshot, Data: snap})
	for _, u := range sub.pending {
		if u.ValueGroup.LogIndex > seen {
			h.enqueue(sub, u)
		}
	}
	sub.pending = nil
	return sub
}

// Close unsubscribes. The channel is closed once.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

// Publish queues u for every subscriber.
func (h *Hub) Publish(u report.Update) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		if !sub.ready {
			sub.pending = append(sub.pending, u)
			continue
		}
		h.enqueue(sub, u)
	}
}

// enqueue never blocks. Caller holds mu.
func (h *Hub) enqueue(sub *Subscription, msg any) {
	select {
	case sub.queue <- msg:
	default:
		n := h.dropped.Add(1)
		h.logger.Debug("live update dropped", "subscriber", sub.ID, "dropped_total", n)
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, sub.ID)
	sub.once.Do(func() { close(sub.queue) })
}

// Close unsubscribes everyone. Later subscriptions are closed at once.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		sub.once.Do(func() { close(sub.queue) })
	}
}

// Subscribers returns the number of active subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped returns how many updates were lost to full queues.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// LogsTransmitted reports whether a snapshot ever reached a client.
func (h *Hub) LogsTransmitted() bool { return h.transmitted.Load() }

func (h *Hub) markTransmitted() { h.transmitted.Store(true) }

// lastIndex is the highest log index in snap, or -1.
func lastIndex(snap *report.Snapshot) int {
	last := -1
	if snap == nil {
		return last
	}
	for _, site := range snap.CallSites {
		for _, g := range site.ValueGroups {
			last = max(last, g.LogIndex)
		}
	}
	return last
}
