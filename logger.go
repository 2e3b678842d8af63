package identity

import (
	"github.com/goliatone/go-logger/glog"
)

// Logger is the leveled, structured logger contract used across the
// package. It aliases the glog logger so any glog-compatible
// implementation can be injected directly.
type Logger = glog.Logger

// LoggerProvider resolves named, scoped loggers (e.g. "identity.machine").
type LoggerProvider interface {
	GetLogger(name string) Logger
}

// ResolveLogger resolves a scoped logger for name. The provider wins
// when it yields a non-nil logger; otherwise the explicit logger is
// used, falling back to the package default. The returned provider
// always resolves to a usable logger.
func ResolveLogger(name string, provider LoggerProvider, logger Logger) (LoggerProvider, Logger) {
	if provider != nil {
		if scoped := provider.GetLogger(name); scoped != nil {
			return fallbackLoggerProvider{inner: provider, fallback: scoped}, scoped
		}
	}

	if logger == nil {
		logger = defaultLogger()
	}

	return fallbackLoggerProvider{inner: provider, fallback: logger}, logger
}

func defaultLogger() Logger {
	return glog.NewLogger(
		glog.WithName("identity"),
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Info),
		glog.WithAddSource(false),
	).GetLogger("identity")
}

type fallbackLoggerProvider struct {
	inner    LoggerProvider
	fallback Logger
}

func (p fallbackLoggerProvider) GetLogger(name string) Logger {
	if p.inner != nil {
		if logger := p.inner.GetLogger(name); logger != nil {
			return logger
		}
	}
	return p.fallback
}
