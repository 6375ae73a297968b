// Package runtime assembles a single-node ledgerd instance: Pebble storage,
// the hash-linked chain, the subscription registry, the broadcast loop, and
// the reconciliation gateway, wired to one metrics registry and one logger.
package runtime
