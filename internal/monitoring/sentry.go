package monitoring

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/ignite/signup-portal/internal/config"
	"github.com/ignite/signup-portal/internal/pkg/logger"
)

// SentrySink delivers captured exceptions to Sentry through a dedicated hub.
type SentrySink struct {
	hub          *sentry.Hub
	flushTimeout time.Duration
}

// SentryOption customises the underlying client options.
type SentryOption func(*sentry.ClientOptions)

// WithBeforeSend installs a hook that sees every outgoing event.
func WithBeforeSend(fn func(*sentry.Event, *sentry.EventHint) *sentry.Event) SentryOption {
	return func(o *sentry.ClientOptions) { o.BeforeSend = fn }
}

// NewSentrySink creates a Sentry client from cfg. An empty DSN yields a
// client that drops events after BeforeSend runs.
func NewSentrySink(cfg config.MonitoringConfig, opts ...SentryOption) (*SentrySink, error) {
	options := sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
		SampleRate:  cfg.SampleRate,
		Debug:       cfg.Debug,
	}
	for _, opt := range opts {
		opt(&options)
	}

	client, err := sentry.NewClient(options)
	if err != nil {
		return nil, fmt.Errorf("creating sentry client: %w", err)
	}

	return &SentrySink{
		hub:          sentry.NewHub(client, sentry.NewScope()),
		flushTimeout: cfg.FlushTimeout(),
	}, nil
}

// CaptureException sends exception to Sentry. Errors keep their identity
// as the event's original exception; strings become message events; any
// other value is captured under its printed form.
func (s *SentrySink) CaptureException(exception any) {
	if s == nil || s.hub == nil {
		return
	}
	var id *sentry.EventID
	switch v := exception.(type) {
	case nil:
		return
	case error:
		id = s.hub.CaptureException(v)
	case string:
		id = s.hub.CaptureMessage(v)
	default:
		id = s.hub.CaptureException(fmt.Errorf("%v", v))
	}
	if id != nil {
		logger.Debug("sentry event captured", "event_id", string(*id))
	}
}

// Flush waits up to the configured timeout for buffered events to be sent.
func (s *SentrySink) Flush() bool {
	if s == nil || s.hub == nil {
		return true
	}
	return s.hub.Flush(s.flushTimeout)
}
