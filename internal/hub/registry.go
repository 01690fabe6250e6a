package hub

import "sync"

// Subscriber receives event frames. Sessions implement it; tests can
// substitute fakes.
type Subscriber interface {
	Send(v interface{}) error
}

// subscription is one subscribe_events registration. Subscriptions are
// keyed by the request's correlation id: reusing an id on the same
// connection overwrites the earlier registration in place.
type subscription struct {
	id        int
	sub       Subscriber
	eventType string // empty matches every event class
}

// Registry tracks subscriptions in registration order.
type Registry struct {
	mu   sync.Mutex
	subs []*subscription
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers a subscription for the given subscriber and correlation
// id. An empty eventType matches all event classes.
func (r *Registry) Add(sub Subscriber, id int, eventType string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.subs {
		if s.sub == sub && s.id == id {
			s.eventType = eventType
			return
		}
	}

	r.subs = append(r.subs, &subscription{id: id, sub: sub, eventType: eventType})
}

// RemoveAll drops every subscription owned by the given subscriber.
// Called when its connection closes.
func (r *Registry) RemoveAll(sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.subs[:0]
	for _, s := range r.subs {
		if s.sub != sub {
			kept = append(kept, s)
		}
	}
	r.subs = kept
}

// Matching returns a snapshot of the subscribers whose filter accepts
// the given event class, in registration order. The snapshot keeps
// iteration safe against concurrent disconnects during fan-out.
func (r *Registry) Matching(eventType string) []Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Subscriber, 0, len(r.subs))
	for _, s := range r.subs {
		if s.eventType == "" || s.eventType == eventType {
			out = append(out, s.sub)
		}
	}
	return out
}

// Len returns the number of registered subscriptions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}
