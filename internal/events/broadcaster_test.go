package events

import "testing"

func TestPublishOrder(t *testing.T) {
	b := NewBroadcaster[int]()
	var got []string
	b.Subscribe(func(v int) { got = append(got, "a") })
	b.Subscribe(func(v int) { got = append(got, "b") })

	b.Publish(1)

	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected order: %v", got)
	}
}

func TestUnsubscribe(t *testing.T) {
	b := NewBroadcaster[string]()
	calls := 0
	unsub := b.Subscribe(func(string) { calls++ })

	b.Publish("x")
	unsub()
	unsub()
	b.Publish("y")

	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
	if b.Len() != 0 {
		t.Fatalf("expected no handlers, got %d", b.Len())
	}
}

func TestUnsubscribeDuringPublish(t *testing.T) {
	b := NewBroadcaster[int]()
	var unsub func()
	calls := 0
	unsub = b.Subscribe(func(int) {
		calls++
		unsub()
	})

	b.Publish(1)
	b.Publish(2)

	if calls != 1 {
		t.Fatalf("expected handler to run once, got %d", calls)
	}
}
