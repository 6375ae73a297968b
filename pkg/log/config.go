package log

import (
	stdlog "log"
	"strings"
)

// Config declares a logger declaratively (flags/env/config file friendly).
type Config struct {
	// Level: debug|info|warn|error|fatal (default info).
	Level string `json:"level" yaml:"level"`
	// Format: text|json (default text).
	Format string `json:"format" yaml:"format"`
}

// ApplyConfig builds a Logger from a declarative Config.
func ApplyConfig(cfg *Config) (Logger, error) {
	level := InfoLevel
	if cfg != nil && cfg.Level != "" {
		parsed, err := ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		level = parsed
	}
	var formatter Formatter = &TextFormatter{}
	if cfg != nil && strings.EqualFold(cfg.Format, "json") {
		formatter = &JSONFormatter{}
	}
	return NewLogger(
		WithLevel(level),
		WithFormatter(formatter),
		WithOutput(NewConsoleOutput()),
	), nil
}

// stdWriter adapts a Logger into an io.Writer for the standard library log
// package. Lines are emitted at info level.
type stdWriter struct{ logger Logger }

func (w stdWriter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	if msg != "" {
		w.logger.Info(msg)
	}
	return len(p), nil
}

// RedirectStdLog routes standard library log output (used by Pebble and other
// dependencies) through the provided Logger.
func RedirectStdLog(logger Logger) {
	stdlog.SetFlags(0)
	stdlog.SetOutput(stdWriter{logger: logger})
}

// ToStdLogger returns a *log.Logger writing through the provided Logger, for
// libraries that require one (e.g. http.Server.ErrorLog).
func ToStdLogger(logger Logger) *stdlog.Logger {
	return stdlog.New(stdWriter{logger: logger}, "", 0)
}
