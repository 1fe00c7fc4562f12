package events

import (
	"sync"
)

// subscriber is one registered channel. An empty topic means "all topics".
type subscriber struct {
	topic string
	ch    chan Event
}

// Bus is a channel-based pub-sub bus for chain telemetry. Publishing is
// non-blocking: events are dropped for subscribers whose buffers are full.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscriber
	closed bool
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a channel for events published to the given topic.
// bufSize defaults to 256 if <= 0.
func (b *Bus) Subscribe(topic string, bufSize int) <-chan Event {
	return b.add(topic, bufSize)
}

// SubscribeAll registers a channel that receives events from every topic.
func (b *Bus) SubscribeAll(bufSize int) <-chan Event {
	return b.add("", bufSize)
}

func (b *Bus) add(topic string, bufSize int) <-chan Event {
	if bufSize <= 0 {
		bufSize = 256
	}
	ch := make(chan Event, bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, subscriber{topic: topic, ch: ch})
	return ch
}

// Publish delivers an event to subscribers of the topic and to all-topic
// subscribers. Slow subscribers lose events rather than block the engine.
func (b *Bus) Publish(topic string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, s := range b.subs {
		if s.topic != "" && s.topic != topic {
			continue
		}
		select {
		case s.ch <- event:
		default:
			// Buffer full, drop for this subscriber.
		}
	}
}

// Close closes the bus and every subscriber channel. Idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, s := range b.subs {
		close(s.ch)
	}
	b.subs = nil
}
