// Package feed fans class change notifications out to live subscribers.
package feed

import (
	"sync"
)

// Hub delivers change notifications per topic (a class id).
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Subscription]struct{})}
}

// Publish notifies every started subscription on topic. It never blocks:
// a subscriber that has not drained its previous notification keeps just one pending.
func (h *Hub) Publish(topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs[topic] {
		select {
		case s.ch <- struct{}{}:
		default:
		}
	}
}

// Subscribers returns the number of started subscriptions on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[topic])
}

// Subscribe returns an idle handle for topic; call Start to receive notifications.
func (h *Hub) Subscribe(topic string) *Subscription {
	return &Subscription{hub: h, topic: topic, ch: make(chan struct{}, 1)}
}

// Subscription is a handle on one topic's change stream.
type Subscription struct {
	hub   *Hub
	topic string
	ch    chan struct{}

	once    sync.Once
	started bool
	closed  bool
}

// Start registers the subscription and queues an initial notification so the
// consumer computes its first snapshot without waiting for a write.
func (s *Subscription) Start() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true
	set, ok := s.hub.subs[s.topic]
	if !ok {
		set = make(map[*Subscription]struct{})
		s.hub.subs[s.topic] = set
	}
	set[s] = struct{}{}
	s.ch <- struct{}{}
}

// Cancel unregisters the subscription and closes C. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		if set, ok := s.hub.subs[s.topic]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(s.hub.subs, s.topic)
			}
		}
		s.closed = true
		close(s.ch)
	})
}

// C yields one value per batch of changes and is closed by Cancel.
func (s *Subscription) C() <-chan struct{} { return s.ch }
