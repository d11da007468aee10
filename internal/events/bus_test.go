package events

import "testing"

func TestPublishDeliversToSubscribers(t *testing.T) {
	bus := NewBus()
	var got []Event
	bus.Subscribe(TypeTimelineEdited, func(ev Event) { got = append(got, ev) })

	bus.Publish(Event{Type: TypeTimelineEdited, Payload: "a"})
	bus.Publish(Event{Type: TypeDemuxProgress, Payload: "b"})

	if len(got) != 1 {
		t.Fatalf("expected 1 delivered event, got %d", len(got))
	}
	if got[0].Payload != "a" {
		t.Fatalf("unexpected payload %v", got[0].Payload)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()
	calls := 0
	unsubscribe := bus.Subscribe(TypeExportComplete, func(Event) { calls++ })

	bus.Publish(Event{Type: TypeExportComplete})
	unsubscribe()
	bus.Publish(Event{Type: TypeExportComplete})

	if calls != 1 {
		t.Fatalf("expected 1 call before unsubscribe, got %d", calls)
	}
}

func TestUnsubscribeOnlyRemovesOwnHandler(t *testing.T) {
	bus := NewBus()
	var firstCalls, secondCalls int
	unsubFirst := bus.Subscribe(TypeExportFailed, func(Event) { firstCalls++ })
	bus.Subscribe(TypeExportFailed, func(Event) { secondCalls++ })

	unsubFirst()
	bus.Publish(Event{Type: TypeExportFailed})

	if firstCalls != 0 {
		t.Fatalf("expected unsubscribed handler not to run, ran %d times", firstCalls)
	}
	if secondCalls != 1 {
		t.Fatalf("expected remaining handler to still run once, ran %d times", secondCalls)
	}
}
