// Package events defines the closed event taxonomy recorded in the ledger and
// the delivery-route computation that decides which identities see an event.
package events

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Type names a declared ledger event kind. Free-form types are rejected at
// append time; new kinds must be registered.
type Type string

// Built-in event types emitted by the marketplace services.
const (
	DatasetCreated   Type = "DATASET_CREATED"
	DatasetUpdated   Type = "DATASET_UPDATED"
	DatasetDeleted   Type = "DATASET_DELETED"
	DatasetPurchased Type = "DATASET_PURCHASED"
	PaymentSuccess   Type = "PAYMENT_SUCCESS"
	PaymentStripe    Type = "PAYMENT_STRIPE"
	PaymentPayPal    Type = "PAYMENT_PAYPAL"
	PaymentCinetPay  Type = "PAYMENT_CINETPAY"
	UserRegistered   Type = "USER_REGISTERED"
)

// Identity is a routing target: a user id, or one of the scope sentinels.
type Identity string

// Scope sentinels. ScopeAll routes to every connected subscriber; ScopeAdmin
// routes to subscribers registered with the admin role.
const (
	ScopeAll   Identity = "all"
	ScopeAdmin Identity = "admin"
)

// RouteSet is the set of identities eligible to receive an event.
type RouteSet map[Identity]struct{}

// Add inserts an identity, ignoring empty ids.
func (rs RouteSet) Add(id Identity) {
	if id != "" {
		rs[id] = struct{}{}
	}
}

// Has reports membership.
func (rs RouteSet) Has(id Identity) bool { _, ok := rs[id]; return ok }

// Covers reports whether a session with the given identity (and admin
// standing) is in the audience: a direct match, the broadcast scope, or the
// admin scope for admin sessions.
func (rs RouteSet) Covers(id Identity, admin bool) bool {
	if rs.Has(id) || rs.Has(ScopeAll) {
		return true
	}
	return admin && rs.Has(ScopeAdmin)
}

// Identities returns the set in sorted order, for deterministic logs/tests.
func (rs RouteSet) Identities() []Identity {
	out := make([]Identity, 0, len(rs))
	for id := range rs {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RouteFunc computes the route set for a decoded payload. Implementations may
// panic on malformed payloads; callers recover and treat the event as routed
// to admin only.
type RouteFunc func(payload map[string]interface{}) RouteSet

// ErrUnknownType reports an event type outside the declared taxonomy.
var ErrUnknownType = errors.New("events: unknown event type")

var (
	mu       sync.RWMutex
	registry = map[Type]RouteFunc{}
)

// Register declares an event type with its route function. Registering an
// already-declared type replaces its route function.
func Register(t Type, fn RouteFunc) {
	if t == "" {
		panic("events: empty type")
	}
	if fn == nil {
		fn = func(map[string]interface{}) RouteSet { return RouteSet{} }
	}
	mu.Lock()
	registry[t] = fn
	mu.Unlock()
}

// IsDeclared reports whether t is part of the taxonomy.
func IsDeclared(t Type) bool {
	mu.RLock()
	_, ok := registry[t]
	mu.RUnlock()
	return ok
}

// Declared returns the sorted list of registered types.
func Declared() []Type {
	mu.RLock()
	out := make([]Type, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func routeFunc(t Type) (RouteFunc, bool) {
	mu.RLock()
	fn, ok := registry[t]
	mu.RUnlock()
	return fn, ok
}

// identityField extracts a user identity from a payload value. The
// marketplace services emit ids as JSON numbers; older clients send strings.
func identityField(payload map[string]interface{}, key string) Identity {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return Identity(x)
	case float64:
		return Identity(fmt.Sprintf("%.0f", x))
	case int:
		return Identity(fmt.Sprintf("%d", x))
	case int64:
		return Identity(fmt.Sprintf("%d", x))
	default:
		return ""
	}
}

// participants collects the conventional participant fields.
func participants(payload map[string]interface{}) RouteSet {
	rs := RouteSet{}
	for _, key := range []string{"userId", "buyerId", "sellerId", "ownerId"} {
		rs.Add(identityField(payload, key))
	}
	return rs
}

// broadcastRoute routes to everyone plus the admin scope.
func broadcastRoute(payload map[string]interface{}) RouteSet {
	rs := participants(payload)
	rs.Add(ScopeAll)
	rs.Add(ScopeAdmin)
	return rs
}

// participantRoute routes to the involved parties plus the admin scope only.
func participantRoute(payload map[string]interface{}) RouteSet {
	rs := participants(payload)
	rs.Add(ScopeAdmin)
	return rs
}

func init() {
	// Catalog events are public marketplace activity; money movement is
	// visible to its participants and operators only.
	Register(DatasetCreated, broadcastRoute)
	Register(DatasetUpdated, broadcastRoute)
	Register(DatasetDeleted, broadcastRoute)
	Register(UserRegistered, broadcastRoute)
	Register(DatasetPurchased, participantRoute)
	Register(PaymentSuccess, participantRoute)
	Register(PaymentStripe, participantRoute)
	Register(PaymentPayPal, participantRoute)
	Register(PaymentCinetPay, participantRoute)
}
