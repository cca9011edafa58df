package main

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

const sentryFlushTimeout = 2 * time.Second

// ErrorReporter forwards unexpected failures to an error tracker. Tags are
// key-value pairs attached to the report, e.g. "dapps", "signTransactionV2".
type ErrorReporter interface {
	Report(err error, tags ...string)
	Flush()
}

// NoopReporter drops every report. It is used when no DSN is configured.
type NoopReporter struct{}

func (NoopReporter) Report(error, ...string) {}
func (NoopReporter) Flush()                  {}

// SentryReporter captures errors with sentry-go.
type SentryReporter struct {
	hub *sentry.Hub
}

// NewErrorReporter initializes Sentry for dsn. An empty dsn yields a NoopReporter.
func NewErrorReporter(dsn, environment string, logger Logger) (ErrorReporter, error) {
	if dsn == "" {
		logger.Warn("empty DSN found, skipping sentry reporter initialization")
		return NoopReporter{}, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
		Release:     "wcnode@" + Version,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init sentry: %w", err)
	}
	logger.Info("sentry error reporter initialized")
	return &SentryReporter{hub: sentry.CurrentHub()}, nil
}

func (r *SentryReporter) Report(err error, tags ...string) {
	if err == nil {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		for i := 0; i+1 < len(tags); i += 2 {
			scope.SetTag(tags[i], tags[i+1])
		}
		r.hub.CaptureException(err)
	})
}

func (r *SentryReporter) Flush() {
	r.hub.Flush(sentryFlushTimeout)
}
