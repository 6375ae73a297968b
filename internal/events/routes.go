package events

import (
	"encoding/json"
	"fmt"
)

// RoutesFor computes the set of identities eligible to receive an event with
// the given type and raw payload.
//
// A panicking route function yields a RoutingError and an admin-only route
// set: the entry stays committed and operators still see it, but fan-out to
// the miscomputed audience is skipped.
func RoutesFor(t Type, payload json.RawMessage) (rs RouteSet, err error) {
	fn, ok := routeFunc(t)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, t)
	}

	var decoded map[string]interface{}
	if len(payload) > 0 {
		if uerr := json.Unmarshal(payload, &decoded); uerr != nil {
			return nil, &RoutingError{Type: t, Cause: uerr}
		}
	}

	defer func() {
		if r := recover(); r != nil {
			rs = RouteSet{ScopeAdmin: struct{}{}}
			err = &RoutingError{Type: t, Cause: fmt.Errorf("route function panic: %v", r)}
		}
	}()
	rs = fn(decoded)
	return rs, nil
}

// RoutingError reports a failed route computation. Delivery-path only: the
// originating commit is never rolled back because of it.
type RoutingError struct {
	Type  Type
	Cause error
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("events: routing %s failed: %v", e.Type, e.Cause)
}

func (e *RoutingError) Unwrap() error { return e.Cause }
