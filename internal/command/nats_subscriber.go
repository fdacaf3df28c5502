package command

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/hmflow/gprs-puller/internal/models"
	"github.com/hmflow/gprs-puller/pkg/hmframe"
)

// NATSSubscriber feeds commands and mode switches from NATS into the
// dispatcher. Subjects are <prefix>.device.<port_id>.command and
// <prefix>.device.<port_id>.mode.
type NATSSubscriber struct {
	nc         *nats.Conn
	dispatcher *Dispatcher
	prefix     string
	subs       []*nats.Subscription
}

// NewNATSSubscriber creates NATS subscriber
func NewNATSSubscriber(nc *nats.Conn, dispatcher *Dispatcher, prefix string) *NATSSubscriber {
	return &NATSSubscriber{
		nc:         nc,
		dispatcher: dispatcher,
		prefix:     prefix,
		subs:       make([]*nats.Subscription, 0),
	}
}

// CommandRequest is the JSON body of a command message
type CommandRequest struct {
	DataType  hmframe.DataType `json:"dataType"`
	Interval  int              `json:"interval"`
	Timestamp time.Time        `json:"timestamp"`
}

// ModeRequest is the JSON body of a mode message
type ModeRequest struct {
	Mode  string    `json:"mode"`
	Start time.Time `json:"start"`
}

// Reply is sent back when the message carries a reply subject
type Reply struct {
	OK        bool   `json:"ok"`
	CommandID string `json:"commandId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Start subscribes and blocks until ctx is done
func (s *NATSSubscriber) Start(ctx context.Context) error {
	sub1, err := s.nc.Subscribe(s.prefix+".device.*.command", s.handleCommand)
	if err != nil {
		return fmt.Errorf("subscribe commands: %w", err)
	}
	s.subs = append(s.subs, sub1)

	sub2, err := s.nc.Subscribe(s.prefix+".device.*.mode", s.handleMode)
	if err != nil {
		sub1.Unsubscribe()
		return fmt.Errorf("subscribe mode: %w", err)
	}
	s.subs = append(s.subs, sub2)

	log.Info().
		Int("subscriptions", len(s.subs)).
		Str("prefix", s.prefix).
		Msg("NATS command subscriber started")

	<-ctx.Done()

	// Unsubscribe
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}

	return ctx.Err()
}

// portFromSubject extracts the port id token of <prefix>.device.<port_id>.<kind>
func (s *NATSSubscriber) portFromSubject(subject string) (string, bool) {
	rest, ok := strings.CutPrefix(subject, s.prefix+".device.")
	if !ok {
		return "", false
	}
	i := strings.LastIndexByte(rest, '.')
	if i <= 0 {
		return "", false
	}
	return rest[:i], true
}

// handleCommand handles command messages
func (s *NATSSubscriber) handleCommand(msg *nats.Msg) {
	log.Debug().
		Str("subject", msg.Subject).
		Int("size", len(msg.Data)).
		Msg("Received command")

	portID, ok := s.portFromSubject(msg.Subject)
	if !ok {
		s.reply(msg, Reply{Error: "bad subject"})
		return
	}

	var req CommandRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		log.Error().Err(err).Str("port_id", portID).Msg("Failed to unmarshal command")
		s.reply(msg, Reply{Error: err.Error()})
		return
	}

	cmd := &models.Command{
		PortID:    portID,
		DataType:  req.DataType,
		Interval:  req.Interval,
		Timestamp: req.Timestamp,
	}
	if err := s.dispatcher.Submit(cmd); err != nil {
		log.Warn().Err(err).Str("port_id", portID).Msg("Command rejected")
		s.reply(msg, Reply{Error: err.Error()})
		return
	}

	s.reply(msg, Reply{OK: true, CommandID: cmd.ID.String()})
}

// handleMode handles mode switch messages
func (s *NATSSubscriber) handleMode(msg *nats.Msg) {
	portID, ok := s.portFromSubject(msg.Subject)
	if !ok {
		s.reply(msg, Reply{Error: "bad subject"})
		return
	}

	var req ModeRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		log.Error().Err(err).Str("port_id", portID).Msg("Failed to unmarshal mode request")
		s.reply(msg, Reply{Error: err.Error()})
		return
	}

	mode, err := models.ParseCollectMode(req.Mode)
	if err == nil {
		err = s.dispatcher.SetMode(portID, mode, req.Start)
	}
	if err != nil {
		log.Warn().Err(err).Str("port_id", portID).Msg("Mode switch rejected")
		s.reply(msg, Reply{Error: err.Error()})
		return
	}

	s.reply(msg, Reply{OK: true})
}

func (s *NATSSubscriber) reply(msg *nats.Msg, r Reply) {
	if msg.Reply == "" {
		return
	}

	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	if err := msg.Respond(data); err != nil {
		log.Warn().Err(err).Str("subject", msg.Reply).Msg("Failed to send reply")
	}
}
