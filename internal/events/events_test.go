package events

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDeclaredTaxonomy(t *testing.T) {
	for _, typ := range []Type{DatasetCreated, DatasetPurchased, PaymentSuccess} {
		if !IsDeclared(typ) {
			t.Fatalf("%s should be declared", typ)
		}
	}
	if IsDeclared(Type("SOMETHING_ELSE")) {
		t.Fatalf("undeclared type reported as declared")
	}
}

func TestRoutesForPurchase(t *testing.T) {
	payload := json.RawMessage(`{"datasetId":1,"buyerId":7,"sellerId":3}`)
	rs, err := RoutesFor(DatasetPurchased, payload)
	if err != nil {
		t.Fatalf("routes: %v", err)
	}
	for _, want := range []Identity{"7", "3", ScopeAdmin} {
		if !rs.Has(want) {
			t.Fatalf("missing route %q in %v", want, rs.Identities())
		}
	}
	if rs.Has(ScopeAll) {
		t.Fatalf("purchase must not broadcast to all")
	}
}

func TestRoutesForCatalogBroadcast(t *testing.T) {
	rs, err := RoutesFor(DatasetCreated, json.RawMessage(`{"id":1,"name":"X","ownerId":"u-9"}`))
	if err != nil {
		t.Fatalf("routes: %v", err)
	}
	if !rs.Has(ScopeAll) || !rs.Has(ScopeAdmin) || !rs.Has("u-9") {
		t.Fatalf("unexpected routes %v", rs.Identities())
	}
}

func TestRoutesForUnknownType(t *testing.T) {
	if _, err := RoutesFor(Type("NOPE"), nil); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("want ErrUnknownType, got %v", err)
	}
}

func TestRoutesForPanicIsolated(t *testing.T) {
	Register(Type("PANICKY"), func(map[string]interface{}) RouteSet {
		panic("bad route fn")
	})
	rs, err := RoutesFor(Type("PANICKY"), json.RawMessage(`{}`))
	var rerr *RoutingError
	if !errors.As(err, &rerr) {
		t.Fatalf("want RoutingError, got %v", err)
	}
	if !rs.Has(ScopeAdmin) || len(rs) != 1 {
		t.Fatalf("panic fallback should be admin-only, got %v", rs.Identities())
	}
}

func TestRoutesForMalformedPayload(t *testing.T) {
	if _, err := RoutesFor(DatasetCreated, json.RawMessage(`{"broken"`)); err == nil {
		t.Fatalf("expected error for malformed payload")
	}
}
