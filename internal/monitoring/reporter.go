package monitoring

import (
	"fmt"
	"sync"

	"github.com/ignite/signup-portal/internal/pkg/logger"
)

// Sink is the capture entry point of an error-monitoring backend.
type Sink interface {
	CaptureException(exception any)
}

type noopSink struct{}

func (noopSink) CaptureException(any) {}

var (
	sinkMu sync.RWMutex
	sink   Sink = noopSink{}
)

// SetSink installs the process-wide sink. A nil sink restores the no-op
// default. A typed nil such as (*SentrySink)(nil) is installed as is and
// drops every event.
func SetSink(s Sink) {
	if s == nil {
		s = noopSink{}
	}
	sinkMu.Lock()
	sink = s
	sinkMu.Unlock()
}

func currentSink() Sink {
	sinkMu.RLock()
	defer sinkMu.RUnlock()
	return sink
}

// CaptureException forwards exception, unmodified, to the installed sink.
// Failures inside the sink are not caught here.
func CaptureException(exception any) {
	currentSink().CaptureException(exception)
}

// LogSink writes captured exceptions to the structured logger. It is the
// fallback sink when no monitoring DSN is configured.
type LogSink struct{}

// CaptureException logs the exception at ERROR level.
func (LogSink) CaptureException(exception any) {
	logger.Error("exception captured", "type", fmt.Sprintf("%T", exception), "error", exception)
}
