package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// TickEventType is the kind of the event that asks front ends to redraw.
const TickEventType = "FIG_UPDATE_TIME"

// TickEvent is published once per tick interval.
type TickEvent struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
}

// Broker is an in-process pub/sub for tick events.
type Broker struct {
	mu   sync.RWMutex
	subs map[chan []byte]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[chan []byte]struct{}),
	}
}

// Subscribe returns a channel that receives JSON-encoded tick events.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a channel from the subscribers.
func (b *Broker) Unsubscribe(ch chan []byte) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}

// Subscribers returns the number of open subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish sends an event to all subscribers.
func (b *Broker) Publish(event TickEvent) {
	data, _ := json.Marshal(event)
	b.mu.RLock()
	for ch := range b.subs {
		select {
		case ch <- data:
		default:
			// Drop if subscriber is slow.
		}
	}
	b.mu.RUnlock()
}

// Run publishes a tick every interval until ctx is done.
func (b *Broker) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-ticker.C:
			b.Publish(TickEvent{Type: TickEventType, At: t.UTC()})
		}
	}
}
