package tracker

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
)

// Tracker reports errors to an external tracking service.
type Tracker interface {
	CaptureError(ctx context.Context, err error, tags map[string]string)
	Flush(timeout time.Duration)
}

// Noop discards everything. Used when no DSN is configured.
type Noop struct{}

func (Noop) CaptureError(context.Context, error, map[string]string) {}
func (Noop) Flush(time.Duration)                                   {}

// Sentry implements Tracker via Sentry.
type Sentry struct {
	hub *sentry.Hub
}

// NewSentry initializes the Sentry client.
func NewSentry(dsn, environment, release string) (*Sentry, error) {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
		Release:     release,
	})
	if err != nil {
		return nil, err
	}
	return &Sentry{hub: sentry.CurrentHub()}, nil
}

// New returns a Sentry tracker, or Noop when dsn is empty.
func New(dsn, environment, release string) (Tracker, error) {
	if dsn == "" {
		return Noop{}, nil
	}
	return NewSentry(dsn, environment, release)
}

func (t *Sentry) CaptureError(_ context.Context, err error, tags map[string]string) {
	if err == nil {
		return
	}
	hub := t.hub.Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
	})
	hub.CaptureException(err)
}

func (t *Sentry) Flush(timeout time.Duration) {
	t.hub.Flush(timeout)
}
