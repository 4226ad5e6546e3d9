package eventbus

import (
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	bus := New()
	if bus == nil || bus.subscribers == nil {
		t.Error("New() returned nil or subscribers map is nil")
	}
}

func TestSubscribeAndPublish(t *testing.T) {
	bus := New()
	topic := "gateway.session.s1.ready"

	ch, unsubscribe := bus.Subscribe(topic, 1)
	defer unsubscribe()

	bus.Publish(topic, "payload", 100*time.Millisecond)

	select {
	case event := <-ch:
		if event.Topic != topic {
			t.Errorf("expected topic %s, got %s", topic, event.Topic)
		}
		if event.Data != "payload" {
			t.Errorf("expected data %v, got %v", "payload", event.Data)
		}
	case <-time.After(200 * time.Millisecond):
		t.Error("timeout waiting for event")
	}
}

func TestWildcardSubscription(t *testing.T) {
	bus := New()

	ch, unsubscribe := bus.Subscribe("gateway.session.*.*", 4)
	defer unsubscribe()

	bus.Publish("gateway.session.s1.qr", "a", 100*time.Millisecond)
	bus.Publish("gateway.session.s2.ready", "b", 100*time.Millisecond)
	bus.Publish("gateway.other.s1.qr", "c", 100*time.Millisecond)

	var got []string
	timeout := time.After(200 * time.Millisecond)
	for len(got) < 2 {
		select {
		case event := <-ch:
			got = append(got, event.Data.(string))
		case <-timeout:
			t.Fatalf("timeout, received %v", got)
		}
	}

	select {
	case event := <-ch:
		t.Errorf("unexpected extra event: %v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := New()
	topic := "gateway.session.s1.message"

	ch, unsubscribe := bus.Subscribe(topic, 1)
	unsubscribe()

	bus.Publish(topic, "late", 50*time.Millisecond)

	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after unsubscribe")
	}
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	bus := New()
	topic := "gateway.session.s1.message"

	ch, unsubscribe := bus.Subscribe(topic, 1)
	defer unsubscribe()

	bus.Publish(topic, 1, 10*time.Millisecond)
	bus.Publish(topic, 2, 10*time.Millisecond) // buffer full, dropped

	select {
	case event := <-ch:
		if event.Data != 1 {
			t.Errorf("expected first event, got %v", event.Data)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for first event")
	}

	select {
	case event := <-ch:
		t.Errorf("expected second event dropped, got %v", event.Data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestShutdownClosesSubscribers(t *testing.T) {
	bus := New()
	ch, _ := bus.Subscribe("gateway.session.*.*", 1)

	bus.Shutdown()

	if _, ok := <-ch; ok {
		t.Error("expected channel closed after Shutdown")
	}
}

func TestMatchTopic(t *testing.T) {
	cases := []struct {
		pattern string
		topic   string
		want    bool
	}{
		{"*", "anything", true},
		{"a.b.c", "a.b.c", true},
		{"a.*.c", "a.b.c", true},
		{"a.*.*", "a.b.c", true},
		{"a.b", "a.b.c", false},
		{"a.b.d", "a.b.c", false},
		{"", "a.b.c", false},
		{"a.b.c", "", false},
	}
	for _, tc := range cases {
		if got := matchTopic(tc.pattern, tc.topic); got != tc.want {
			t.Errorf("matchTopic(%q, %q) = %v, want %v", tc.pattern, tc.topic, got, tc.want)
		}
	}
}
