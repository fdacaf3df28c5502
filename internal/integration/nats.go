package integration

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/hmflow/gprs-puller/internal/models"
)

// DeviceSubject returns <prefix>.device.<port_id>.<kind>
func DeviceSubject(prefix, portID, kind string) string {
	return fmt.Sprintf("%s.device.%s.%s", prefix, portID, kind)
}

// NATSPublisher publishes readings on <prefix>.device.<port_id>.telemetry and
// status changes on <prefix>.device.<port_id>.status.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSPublisher creates a publisher on an existing connection
func NewNATSPublisher(nc *nats.Conn, prefix string) *NATSPublisher {
	return &NATSPublisher{nc: nc, prefix: prefix}
}

// PublishTelemetry publishes one reading
func (p *NATSPublisher) PublishTelemetry(_ context.Context, msg *models.TelemetryMessage) error {
	return p.publish(DeviceSubject(p.prefix, msg.PortID, "telemetry"), msg)
}

// PublishStatus publishes an online/offline change
func (p *NATSPublisher) PublishStatus(_ context.Context, msg *models.StatusMessage) error {
	return p.publish(DeviceSubject(p.prefix, msg.PortID, "status"), msg)
}

func (p *NATSPublisher) publish(subject string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}
