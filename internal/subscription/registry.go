package subscription

import (
	"sync"

	"github.com/google/uuid"

	"github.com/claudeayi/kalyptia-ledger/internal/chain"
	"github.com/claudeayi/kalyptia-ledger/internal/events"
)

// Receiver is the delivery side of a live subscription. Deliver must not
// block; a receiver that cannot keep up returns an error and is torn down by
// the broadcaster.
type Receiver interface {
	Deliver(e *chain.Entry) error
	Close(err error)
}

// Subscription ties one connected session to its identity. An identity may
// hold several concurrent subscriptions (multiple tabs, devices); each gets
// its own receiver and its own delivery queue.
type Subscription struct {
	ID       string
	Identity events.Identity
	Admin    bool
	Receiver Receiver
}

// Registry tracks live subscriptions and answers routing queries. It holds
// no durable state: a subscription exists exactly as long as its session.
type Registry struct {
	mu         sync.RWMutex
	subs       map[string]*Subscription
	byIdentity map[events.Identity]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		subs:       make(map[string]*Subscription),
		byIdentity: make(map[events.Identity]map[string]struct{}),
	}
}

// Register adds a live subscription for identity and returns it. Registration
// is atomic with respect to Match: once Register returns, every later
// dispatch that routes to identity includes this receiver.
func (r *Registry) Register(identity events.Identity, admin bool, recv Receiver) *Subscription {
	sub := &Subscription{
		ID:       uuid.NewString(),
		Identity: identity,
		Admin:    admin,
		Receiver: recv,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[sub.ID] = sub
	ids, ok := r.byIdentity[identity]
	if !ok {
		ids = make(map[string]struct{})
		r.byIdentity[identity] = ids
	}
	ids[sub.ID] = struct{}{}
	return sub
}

// Unregister removes a subscription. Unknown IDs are ignored, so teardown
// paths may race without harm.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return
	}
	delete(r.subs, id)
	if ids, ok := r.byIdentity[sub.Identity]; ok {
		delete(ids, id)
		if len(ids) == 0 {
			delete(r.byIdentity, sub.Identity)
		}
	}
}

// Match returns every live subscription addressed by the route set: direct
// identity matches, everyone when the set carries the broadcast scope, and
// admin sessions when it carries the admin scope. A subscription is returned
// at most once even when several rules select it.
func (r *Registry) Match(rs events.RouteSet) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if rs.Has(events.ScopeAll) {
		out := make([]*Subscription, 0, len(r.subs))
		for _, sub := range r.subs {
			out = append(out, sub)
		}
		return out
	}

	seen := make(map[string]struct{})
	var out []*Subscription
	for identity := range rs {
		if identity == events.ScopeAdmin {
			continue
		}
		for id := range r.byIdentity[identity] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, r.subs[id])
		}
	}
	if rs.Has(events.ScopeAdmin) {
		for _, sub := range r.subs {
			if !sub.Admin {
				continue
			}
			if _, dup := seen[sub.ID]; dup {
				continue
			}
			seen[sub.ID] = struct{}{}
			out = append(out, sub)
		}
	}
	return out
}

// Len reports the number of live subscriptions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}
