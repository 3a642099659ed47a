package events

import "sync"

// Subscriber receives events from the bus.
type Subscriber interface {
	Receive(ev Event)
	Closed() bool
}

// SubscriberFunc adapts a function to a Subscriber that never closes.
type SubscriberFunc func(ev Event)

func (f SubscriberFunc) Receive(ev Event) { f(ev) }
func (f SubscriberFunc) Closed() bool     { return false }

// Bus is a per-account pub/sub event bus with support for global
// subscribers. Services emit events; the server's announcer listens
// globally and each logged-in connection follows its own account.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int][]Subscriber
	global      []Subscriber
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[int][]Subscriber),
	}
}

// Subscribe registers a subscriber for a specific account's events.
func (b *Bus) Subscribe(account int, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[account] = append(b.subscribers[account], sub)
}

// Unsubscribe removes a subscriber for a specific account.
func (b *Bus) Unsubscribe(account int, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[account]
	for i, s := range subs {
		if s == sub {
			b.subscribers[account] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subscribers[account]) == 0 {
		delete(b.subscribers, account)
	}
}

// SubscribeGlobal registers a subscriber that receives all events.
func (b *Bus) SubscribeGlobal(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.global = append(b.global, sub)
}

// Emit sends an event to the subscribers of ev.Account and to all global
// subscribers. A nil bus drops the event.
func (b *Bus) Emit(ev Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	var subs []Subscriber
	if ev.Account != 0 {
		subs = b.subscribers[ev.Account]
	}
	globals := b.global
	b.mu.RUnlock()

	for _, s := range subs {
		if !s.Closed() {
			s.Receive(ev)
		}
	}
	for _, s := range globals {
		if !s.Closed() {
			s.Receive(ev)
		}
	}
}
