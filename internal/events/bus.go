// Copyright 2026 The Covox Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Subscription is a handle for a registered subscriber.
type Subscription struct {
	ID          string
	Event       Type
	Callback    func(*Event)
	Filter      func(*Event) bool
	Unsubscribe func()
}

// Bus manages event distribution to subscribers. Publish is synchronous;
// PublishAsync enqueues onto a bounded queue drained by a background
// goroutine and drops events once the queue is full.
type Bus struct {
	subscribers  map[Type][]*Subscription
	mu           sync.RWMutex
	eventQueue   chan *Event
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
	shutdown     bool
}

// NewBus creates a bus and starts its async processor.
func NewBus() *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	bus := &Bus{
		subscribers: make(map[Type][]*Subscription),
		eventQueue:  make(chan *Event, 1000),
		ctx:         ctx,
		cancel:      cancel,
	}

	go bus.processQueue()

	return bus
}

// Subscribe registers a callback for a specific event type.
func (b *Bus) Subscribe(event Type, callback func(*Event)) *Subscription {
	return b.SubscribeWithFilter(event, callback, nil)
}

// SubscribeWithFilter registers a callback with an optional filter function.
func (b *Bus) SubscribeWithFilter(event Type, callback func(*Event), filter func(*Event) bool) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		ID:       fmt.Sprintf("%d", time.Now().UnixNano()),
		Event:    event,
		Callback: callback,
		Filter:   filter,
	}
	sub.Unsubscribe = func() { b.unsubscribe(sub) }

	b.subscribers[event] = append(b.subscribers[event], sub)
	return sub
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[sub.Event]
	for i, s := range subs {
		if s.ID == sub.ID {
			b.subscribers[sub.Event] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

// Publish distributes an event to all subscribers synchronously.
func (b *Bus) Publish(evt *Event) {
	b.mu.RLock()
	subs := b.subscribers[evt.Type]
	// Copy to avoid holding the lock during callbacks
	activeSubs := make([]*Subscription, len(subs))
	copy(activeSubs, subs)
	b.mu.RUnlock()

	for _, sub := range activeSubs {
		if sub.Filter == nil || sub.Filter(evt) {
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Errorf("Panic in event subscriber for %s: %v", evt.Type, r)
					}
				}()
				sub.Callback(evt)
			}()
		}
	}
}

// PublishAsync distributes an event via the background queue.
func (b *Bus) PublishAsync(evt *Event) {
	b.mu.RLock()
	isShutdown := b.shutdown
	b.mu.RUnlock()

	if isShutdown {
		return
	}

	select {
	case <-b.ctx.Done():
		return
	case b.eventQueue <- evt:
	default:
		log.Warnf("Event queue full, dropping event: %s", evt.Type)
	}
}

func (b *Bus) processQueue() {
	for {
		select {
		case <-b.ctx.Done():
			return
		case evt := <-b.eventQueue:
			if evt != nil {
				b.Publish(evt)
			}
		}
	}
}

// Shutdown stops the event bus processing. The queue channel is left open:
// a concurrent PublishAsync may still be past its shutdown check, and a
// send to a closed channel would panic. Stragglers either hit the ctx case
// or land in the queue, which is garbage collected with the bus.
func (b *Bus) Shutdown() {
	b.shutdownOnce.Do(func() {
		b.mu.Lock()
		b.shutdown = true
		b.mu.Unlock()

		b.cancel()
	})
}
