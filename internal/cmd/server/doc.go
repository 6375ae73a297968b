// Package serverrun boots a ledgerd server process: logger, runtime, HTTP
// transport, and signal-driven graceful shutdown.
package serverrun
