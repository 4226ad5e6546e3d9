// Package eventbus provides an in-memory publish/subscribe bus carrying
// session lifecycle events from the session manager to the realtime hub.
// Topics are dot-separated and subscriptions may use "*" wildcards per
// component.
package eventbus

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Event is a single published event.
type Event struct {
	Topic string // event topic for routing
	Data  any    // event payload
}

// Subscriber is one subscription with a buffered delivery channel.
type Subscriber struct {
	ID         string
	Topic      string // subscribed topic pattern
	BufferSize int
	Channel    chan Event
	Context    context.Context
	Cancel     context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// TimedSend attempts to deliver an event within the timeout. Returns false if
// the subscriber is closed or its buffer stays full.
func (s *Subscriber) TimedSend(event Event, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	select {
	case s.Channel <- event:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Close shuts the subscriber down, cancelling its context and closing the
// delivery channel.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		s.Cancel()
		close(s.Channel)
	}
}

// EventBus routes published events to pattern-matched subscribers.
type EventBus struct {
	sync.RWMutex
	subscribers map[string]map[string]*Subscriber // pattern -> subscriberID -> Subscriber
	counter     uint64
}

// New creates an EventBus ready for subscription and publishing.
func New() *EventBus {
	return &EventBus{
		subscribers: make(map[string]map[string]*Subscriber),
	}
}

// Subscribe registers for events matching the topic pattern, returning the
// delivery channel and an unsubscribe function.
func (bus *EventBus) Subscribe(topic string, bufferSize int) (<-chan Event, func()) {
	id := fmt.Sprintf("sub-%d", atomic.AddUint64(&bus.counter, 1))

	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan Event, bufferSize)

	sub := &Subscriber{
		ID:         id,
		Topic:      topic,
		BufferSize: bufferSize,
		Channel:    ch,
		Context:    ctx,
		Cancel:     cancel,
	}

	bus.Lock()
	defer bus.Unlock()

	if _, ok := bus.subscribers[topic]; !ok {
		bus.subscribers[topic] = make(map[string]*Subscriber)
	}
	bus.subscribers[topic][id] = sub

	unsubscribe := func() {
		bus.Lock()
		defer bus.Unlock()

		if subMap, ok := bus.subscribers[topic]; ok {
			if s, ok := subMap[id]; ok {
				s.Close()
				delete(subMap, id)
				if len(subMap) == 0 {
					delete(bus.subscribers, topic)
				}
			}
		}
	}

	return ch, unsubscribe
}

// Publish sends an event to all subscribers whose pattern matches the topic.
// Non-blocking beyond the timeout; slow subscribers drop events.
func (bus *EventBus) Publish(topic string, data any, timeout time.Duration) {
	event := Event{Topic: topic, Data: data}

	bus.RLock()
	defer bus.RUnlock()

	for pattern, subMap := range bus.subscribers {
		if matchTopic(pattern, topic) {
			for _, sub := range subMap {
				select {
				case <-sub.Context.Done():
					continue
				default:
					sub.TimedSend(event, timeout)
				}
			}
		}
	}
}

// Shutdown closes all subscribers and clears the bus.
func (bus *EventBus) Shutdown() {
	bus.Lock()
	defer bus.Unlock()

	for _, subs := range bus.subscribers {
		for _, sub := range subs {
			sub.Close()
		}
	}
	bus.subscribers = make(map[string]map[string]*Subscriber)
}

// matchTopic reports whether a topic matches a pattern. Patterns are exact
// topics, "*", or dot-separated components where "*" matches one component.
func matchTopic(pattern, topic string) bool {
	if pattern == "" || topic == "" {
		return false
	}
	if pattern == "*" || pattern == topic {
		return true
	}
	patternParts := strings.Split(pattern, ".")
	topicParts := strings.Split(topic, ".")

	if len(patternParts) != len(topicParts) {
		return false
	}

	for i := 0; i < len(patternParts); i++ {
		if patternParts[i] == "*" {
			continue
		}
		if patternParts[i] != topicParts[i] {
			return false
		}
	}
	return true
}
