// Package clientcmd implements the CLI subcommands that talk to a running
// ledgerd over its HTTP API.
package clientcmd
