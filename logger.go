package registration

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
)

// Logger is the structured logger used across the package
type Logger = glog.Logger

// LoggerProvider hands out named loggers
type LoggerProvider interface {
	GetLogger(name string) Logger
}

// ResolveLogger returns a provider and a named logger. Explicit loggers win
// over the provider, and a provider that yields nil falls back to the
// explicit logger or the package default.
func ResolveLogger(name string, provider LoggerProvider, logger Logger) (LoggerProvider, Logger) {
	if provider != nil {
		if scoped := provider.GetLogger(name); scoped != nil {
			if logger == nil {
				logger = scoped
			}
			return provider, logger
		}
	}

	if logger == nil {
		logger = defaultLogger().GetLogger(name)
	}

	return staticProvider{logger: logger}, logger
}

type staticProvider struct {
	logger Logger
}

func (s staticProvider) GetLogger(string) Logger {
	return s.logger
}

func defaultLogger() *glog.BaseLogger {
	return glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Info),
		glog.WithName("registration"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)
}

type nopLogger struct{}

func (nopLogger) Trace(string, ...any)                {}
func (nopLogger) Debug(string, ...any)                {}
func (nopLogger) Info(string, ...any)                 {}
func (nopLogger) Warn(string, ...any)                 {}
func (nopLogger) Error(string, ...any)                {}
func (nopLogger) Fatal(string, ...any)                {}
func (n nopLogger) WithContext(context.Context) Logger { return n }

// NopLogger discards every message
func NopLogger() Logger {
	return nopLogger{}
}
