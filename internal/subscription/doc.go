// Package subscription tracks which identities are connected right now and
// which live sessions a routed event should reach. The registry is purely
// in-memory; durable delivery state lives in the ledger's watermarks.
package subscription
