package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/hmflow/gprs-puller/internal/config"
	"github.com/hmflow/gprs-puller/internal/models"
)

const mqttPublishTimeout = 5 * time.Second

// DeviceTopic returns <prefix>/device/<port_id>/<kind>
func DeviceTopic(prefix, portID, kind string) string {
	return fmt.Sprintf("%s/device/%s/%s", prefix, portID, kind)
}

// MQTTForwarder forwards readings and status changes to an MQTT broker.
// Status messages are retained so subscribers see the last known state.
type MQTTForwarder struct {
	client mqtt.Client
	prefix string
	qos    byte
}

// NewMQTTForwarder connects to the broker in cfg
func NewMQTTForwarder(cfg *config.MQTTConfig) (*MQTTForwarder, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetKeepAlive(30 * time.Second)

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info().
			Str("broker", cfg.Broker).
			Msg("MQTT client connected")
	})

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Error().
			Err(err).
			Str("broker", cfg.Broker).
			Msg("MQTT connection lost")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connect to %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Broker, err)
	}

	return &MQTTForwarder{
		client: client,
		prefix: cfg.TopicPrefix,
		qos:    cfg.QoS,
	}, nil
}

// PublishTelemetry publishes one reading
func (f *MQTTForwarder) PublishTelemetry(_ context.Context, msg *models.TelemetryMessage) error {
	return f.publish(DeviceTopic(f.prefix, msg.PortID, "telemetry"), false, msg)
}

// PublishStatus publishes an online/offline change
func (f *MQTTForwarder) PublishStatus(_ context.Context, msg *models.StatusMessage) error {
	return f.publish(DeviceTopic(f.prefix, msg.PortID, "status"), true, msg)
}

func (f *MQTTForwarder) publish(topic string, retained bool, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	token := f.client.Publish(topic, f.qos, retained, data)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	log.Debug().
		Str("topic", topic).
		Int("size", len(data)).
		Msg("Forwarded to MQTT")

	return nil
}

// Close disconnects from the broker
func (f *MQTTForwarder) Close() error {
	if f.client.IsConnected() {
		f.client.Disconnect(250)
	}
	return nil
}
