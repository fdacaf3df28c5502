package command

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hmflow/gprs-puller/internal/models"
	"github.com/hmflow/gprs-puller/internal/session"
)

// Sessions looks up live sessions; *session.Registry implements it
type Sessions interface {
	Get(portID string) (*session.Session, bool)
}

// Dispatcher routes commands and mode switches from the API and NATS to
// live sessions.
type Dispatcher struct {
	queue    *Queue
	sessions Sessions
}

// NewDispatcher creates a dispatcher
func NewDispatcher(queue *Queue, sessions Sessions) *Dispatcher {
	return &Dispatcher{queue: queue, sessions: sessions}
}

// Queue returns the underlying queue
func (d *Dispatcher) Queue() *Queue {
	return d.queue
}

// Submit queues cmd for a live session and wakes it if it polls commands
func (d *Dispatcher) Submit(cmd *models.Command) error {
	s, ok := d.sessions.Get(cmd.PortID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSession, cmd.PortID)
	}

	if err := d.queue.Enqueue(cmd); err != nil {
		return err
	}

	mode := s.Mode()
	log.Info().
		Str("port_id", cmd.PortID).
		Str("command_id", cmd.ID.String()).
		Stringer("data_type", cmd.DataType).
		Int("interval", cmd.Interval).
		Str("mode", mode.String()).
		Msg("Command queued")

	// other modes pick the command up after switching to command mode
	if mode == models.ModeCommand {
		s.Wake()
	}
	return nil
}

// SetMode switches the polling mode of a live session
func (d *Dispatcher) SetMode(portID string, mode models.CollectMode, start time.Time) error {
	s, ok := d.sessions.Get(portID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSession, portID)
	}
	return s.SetMode(mode, start)
}
