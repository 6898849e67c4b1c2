package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// FilterKind selects which Filter predicate a subscriber applies.
type FilterKind int

const (
	FilterAll FilterKind = iota
	FilterScanID
	FilterEventType
	FilterCustom
)

// Filter decides whether a subscriber receives a given event.
type Filter struct {
	Kind      FilterKind
	ScanID    uuid.UUID
	EventType EventType
	Custom    func(ScanEvent) bool
}

func (f Filter) matches(e ScanEvent) bool {
	switch f.Kind {
	case FilterAll:
		return true
	case FilterScanID:
		return e.ScanID == f.ScanID
	case FilterEventType:
		return e.Type == f.EventType
	case FilterCustom:
		return f.Custom != nil && f.Custom(e)
	default:
		return false
	}
}

type subscriber struct {
	id     uint64
	ch     chan ScanEvent
	filter Filter
}

// Stats reports the bus's C10 query surface: (total, dropped,
// subscribers, history_size) per spec §4.10.
type Stats struct {
	Total       int
	Dropped     int
	Subscribers int
	HistorySize int
}

// Bus is a pub/sub broadcaster with bounded ring-buffer history,
// grounded on the original event_bus.rs's subscription/history model.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[uint64]*subscriber
	nextID      uint64

	history     []ScanEvent
	historyCap  int
	historyHead int
	historyLen  int

	total   int
	dropped int
}

// New constructs a Bus retaining up to historyCap past events.
func New(historyCap int) *Bus {
	if historyCap <= 0 {
		historyCap = 1024
	}
	return &Bus{
		subscribers: make(map[uint64]*subscriber),
		history:     make([]ScanEvent, historyCap),
		historyCap:  historyCap,
	}
}

// Subscribe registers a new channel that receives events matching
// filter. The returned unsubscribe func removes it and closes the
// channel; Publish additionally recovers from a send-on-closed-channel
// panic (a concurrent unsubscribe racing a fanned-out send) and drops
// that subscriber, so a racing Unsubscribe can never crash Publish.
func (b *Bus) Subscribe(filter Filter, bufSize int) (<-chan ScanEvent, func()) {
	if bufSize <= 0 {
		bufSize = 64
	}
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	sub := &subscriber{id: id, ch: make(chan ScanEvent, bufSize), filter: filter}
	b.subscribers[id] = sub
	b.mu.Unlock()

	return sub.ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(s.ch)
		}
	}
}

// Publish validates and records e, then fans it out to every matching
// subscriber without blocking: a subscriber whose buffer is full has
// the event dropped for it (not globally) rather than stalling the
// publisher.
//
// Per spec §7's propagation policy, an event that fails Validate is
// never returned to the caller as an error: it is silently dropped
// and counted in Stats().Dropped, so a noisy or buggy producer can
// never abort a scan by publishing a malformed event.
func (b *Bus) Publish(e ScanEvent) error {
	if err := e.Validate(); err != nil {
		b.mu.Lock()
		b.dropped++
		b.mu.Unlock()
		return nil
	}

	b.mu.Lock()
	b.total++
	b.history[(b.historyHead+b.historyLen)%b.historyCap] = e
	if b.historyLen < b.historyCap {
		b.historyLen++
	} else {
		b.historyHead = (b.historyHead + 1) % b.historyCap
	}
	subs := make([]*subscriber, 0, len(b.subscribers))
	for _, s := range b.subscribers {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		if !s.filter.matches(e) {
			continue
		}
		b.safeSend(s, e)
	}
	return nil
}

// safeSend delivers e to s without blocking, and recovers a panic from
// sending on a channel that Subscribe's unsubscribe func closed
// between the snapshot taken in Publish and this send, removing the
// stale subscriber if so.
func (b *Bus) safeSend(s *subscriber, e ScanEvent) {
	defer func() {
		if recover() != nil {
			b.mu.Lock()
			delete(b.subscribers, s.id)
			b.mu.Unlock()
		}
	}()
	select {
	case s.ch <- e:
	default:
		// buffer full: drop for this subscriber, others unaffected.
	}
}

// SubscriberCount reports the number of currently registered channels.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Statistics reports (total, dropped, subscribers, history_size), per
// spec §4.10.
func (b *Bus) Statistics() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Stats{
		Total:       b.total,
		Dropped:     b.dropped,
		Subscribers: len(b.subscribers),
		HistorySize: b.historyLen,
	}
}

// History returns the last n buffered events, oldest first, per spec
// §4.10's history(n) query. n <= 0 or n > the buffered count returns
// everything currently buffered.
func (b *Bus) History(n int) []ScanEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n <= 0 || n > b.historyLen {
		n = b.historyLen
	}
	start := b.historyLen - n
	out := make([]ScanEvent, 0, n)
	for i := start; i < b.historyLen; i++ {
		out = append(out, b.history[(b.historyHead+i)%b.historyCap])
	}
	return out
}

// Query returns buffered events matching filter, oldest first,
// capped at limit results (limit <= 0 means unlimited), per spec
// §4.10's query(filter, limit).
func (b *Bus) Query(filter Filter, limit int) []ScanEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]ScanEvent, 0, b.historyLen)
	for i := 0; i < b.historyLen; i++ {
		e := b.history[(b.historyHead+i)%b.historyCap]
		if filter.matches(e) {
			out = append(out, e)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out
}

// GetTimeRange returns buffered events whose Timestamp falls within
// [from, to], inclusive.
func (b *Bus) GetTimeRange(from, to time.Time) []ScanEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]ScanEvent, 0)
	for i := 0; i < b.historyLen; i++ {
		e := b.history[(b.historyHead+i)%b.historyCap]
		if !e.Timestamp.Before(from) && !e.Timestamp.After(to) {
			out = append(out, e)
		}
	}
	return out
}

// ClearHistory discards all buffered events without affecting live
// subscribers.
func (b *Bus) ClearHistory() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.historyHead, b.historyLen = 0, 0
}
