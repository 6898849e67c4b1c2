package events

import (
	"testing"
)

func TestPublishFanOutAndHistory(t *testing.T) {
	b := New(16)
	ch, unsub := b.Subscribe(Filter{Kind: FilterAll}, 4)
	defer unsub()

	scanID := NewScanID()
	if err := b.Publish(ScanEvent{Type: EventScanStarted, ScanID: scanID}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case e := <-ch:
		if e.Type != EventScanStarted {
			t.Fatalf("Type = %v, want EventScanStarted", e.Type)
		}
	default:
		t.Fatalf("expected event delivered to subscriber")
	}

	hist := b.Query(Filter{Kind: FilterScanID, ScanID: scanID}, 0)
	if len(hist) != 1 {
		t.Fatalf("len(hist) = %d, want 1", len(hist))
	}

	stats := b.Statistics()
	if stats.Total != 1 || stats.Dropped != 0 || stats.Subscribers != 1 || stats.HistorySize != 1 {
		t.Fatalf("Statistics() = %+v, want {Total:1 Dropped:0 Subscribers:1 HistorySize:1}", stats)
	}
}

// TestPublishDropsInvalidEventSilently covers spec §7's propagation
// policy: a validation failure at Publish never surfaces as an error
// to the caller (that would let one malformed event abort a live
// scan) — it is silently dropped and counted instead.
func TestPublishDropsInvalidEventSilently(t *testing.T) {
	b := New(4)
	if err := b.Publish(ScanEvent{Type: EventScanStarted}); err != nil {
		t.Fatalf("Publish() of an invalid event must not return an error, got %v", err)
	}
	if hist := b.Query(Filter{Kind: FilterAll}, 0); len(hist) != 0 {
		t.Fatalf("invalid event should not enter history, got %d entries", len(hist))
	}
	stats := b.Statistics()
	if stats.Dropped != 1 {
		t.Fatalf("Statistics().Dropped = %d, want 1", stats.Dropped)
	}
}

func TestHistoryReturnsLastN(t *testing.T) {
	b := New(16)
	scanID := NewScanID()
	for i := 0; i < 5; i++ {
		_ = b.Publish(ScanEvent{Type: EventScanProgress, ScanID: scanID, Completed: uint64(i)})
	}
	last := b.History(2)
	if len(last) != 2 {
		t.Fatalf("len(History(2)) = %d, want 2", len(last))
	}
	if last[0].Completed != 3 || last[1].Completed != 4 {
		t.Fatalf("History(2) = %+v, want the last two published events", last)
	}
}

func TestQueryRespectsLimit(t *testing.T) {
	b := New(16)
	scanID := NewScanID()
	for i := 0; i < 5; i++ {
		_ = b.Publish(ScanEvent{Type: EventPortFound, ScanID: scanID, Host: "10.0.0.1", Port: i})
	}
	out := b.Query(Filter{Kind: FilterScanID, ScanID: scanID}, 2)
	if len(out) != 2 {
		t.Fatalf("len(Query(..., 2)) = %d, want 2", len(out))
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New(4)
	ch, unsub := b.Subscribe(Filter{Kind: FilterAll}, 1)
	unsub()
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel closed after unsubscribe")
	}
	if b.SubscriberCount() != 0 {
		t.Fatalf("SubscriberCount() = %d, want 0", b.SubscriberCount())
	}
}

func TestEventTypeFilter(t *testing.T) {
	b := New(16)
	ch, unsub := b.Subscribe(Filter{Kind: FilterEventType, EventType: EventPortFound}, 4)
	defer unsub()

	scanID := NewScanID()
	_ = b.Publish(ScanEvent{Type: EventScanStarted, ScanID: scanID})
	_ = b.Publish(ScanEvent{Type: EventPortFound, ScanID: scanID, Host: "10.0.0.1", Port: 80})

	select {
	case e := <-ch:
		if e.Type != EventPortFound {
			t.Fatalf("delivered event type = %v, want EventPortFound", e.Type)
		}
	default:
		t.Fatalf("expected the matching event to be delivered")
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected extra delivery: %+v", e)
	default:
	}
}
