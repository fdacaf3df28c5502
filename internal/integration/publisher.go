package integration

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hmflow/gprs-puller/internal/models"
	"github.com/hmflow/gprs-puller/internal/monitor"
)

// Publisher is implemented by every telemetry sink
type Publisher interface {
	PublishTelemetry(ctx context.Context, msg *models.TelemetryMessage) error
	PublishStatus(ctx context.Context, msg *models.StatusMessage) error
}

type namedSink struct {
	name string
	pub  Publisher
}

// Multi fans readings out to every configured sink. A failing sink does not
// stop the others.
type Multi struct {
	sinks []namedSink
}

// NewMulti creates an empty fan-out
func NewMulti() *Multi {
	return &Multi{}
}

// Add registers a sink under name, used as the metrics label
func (m *Multi) Add(name string, p Publisher) {
	m.sinks = append(m.sinks, namedSink{name: name, pub: p})
}

// Len returns the number of sinks
func (m *Multi) Len() int {
	return len(m.sinks)
}

// PublishTelemetry publishes msg to every sink
func (m *Multi) PublishTelemetry(ctx context.Context, msg *models.TelemetryMessage) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.pub.PublishTelemetry(ctx, msg); err != nil {
			monitor.PublishErrors.WithLabelValues(s.name).Inc()
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

// PublishStatus publishes msg to every sink
func (m *Multi) PublishStatus(ctx context.Context, msg *models.StatusMessage) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.pub.PublishStatus(ctx, msg); err != nil {
			monitor.PublishErrors.WithLabelValues(s.name).Inc()
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink that holds a connection
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if c, ok := s.pub.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
			}
		}
	}
	return errors.Join(errs...)
}
