// Package log provides ledgerd's structured logging facade and utilities.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// Field type for structured context. A slog bridge lets standard library and
// third-party slog users share the same formatter/output pipeline.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("chain"))
//	l.Info("store opened", log.Uint64("tail_seq", 42))
//
// # Configuration
//
// Use ApplyConfig to build a logger from a declarative Config supporting text
// or JSON formatting. To integrate with libraries expecting *log.Logger, use
// ToStdLogger or RedirectStdLog.
package log
