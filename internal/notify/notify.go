// Package notify delivers notifications to subscribers.
//
// The poller only knows the Sink interface. Concrete sinks post to a Discord
// webhook, write to the log, or record to the Postgres journal; Hub fans a
// notification out to several of them.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/Shivanand-hulikatti/course-seat-watcher/internal/metrics"
	"github.com/Shivanand-hulikatti/course-seat-watcher/internal/model"
)

// Sink delivers one notification. Delivery is fire-and-forget from the
// watcher's point of view: errors are logged and never retried.
type Sink interface {
	Deliver(ctx context.Context, n model.Notification) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n model.Notification) error

// Deliver calls f.
func (f SinkFunc) Deliver(ctx context.Context, n model.Notification) error { return f(ctx, n) }

// Hub dispatches a notification to every registered sink in parallel.
type Hub struct {
	metrics *metrics.Metrics
	names   []string
	sinks   []Sink
}

// NewHub creates an empty Hub. m may be nil.
func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{metrics: m}
}

// Add registers a sink under name, used in logs and metrics.
func (h *Hub) Add(name string, s Sink) *Hub {
	h.names = append(h.names, name)
	h.sinks = append(h.sinks, s)
	return h
}

// Len returns the number of registered sinks.
func (h *Hub) Len() int { return len(h.sinks) }

// Deliver sends n to all sinks and waits for them. Failures are counted and
// returned joined; one failing sink never stops the others.
func (h *Hub) Deliver(ctx context.Context, n model.Notification) error {
	errs := make([]error, len(h.sinks))

	var wg sync.WaitGroup
	for i, s := range h.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Deliver(ctx, n); err != nil {
				h.metrics.ObserveDeliveryFailure(h.names[i])
				errs[i] = fmt.Errorf("%s: %w", h.names[i], err)
			}
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}

// LogSink writes notifications to the structured log. It is the fallback
// when no webhook is configured.
type LogSink struct {
	Logger *slog.Logger
}

// Deliver logs n at INFO.
func (s LogSink) Deliver(ctx context.Context, n model.Notification) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, n.Text,
		"kind", string(n.Kind),
		"crn", n.CRN,
		"mentions", strings.Join(n.Mentions, " "),
		"id", n.ID)
	return nil
}

// Recorder stores notifications, implemented by repository.JournalRepository.
type Recorder interface {
	Record(ctx context.Context, n model.Notification) error
}

// JournalSink records every notification through a Recorder.
type JournalSink struct {
	Recorder Recorder
}

// Deliver records n.
func (s JournalSink) Deliver(ctx context.Context, n model.Notification) error {
	return s.Recorder.Record(ctx, n)
}
