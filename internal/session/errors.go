package session

import (
	"context"
	"errors"

	"github.com/hmflow/gprs-puller/pkg/hmframe"
)

var (
	// ErrConnection wraps read, write and deadline failures on the device stream.
	ErrConnection = errors.New("session: connection error")

	// ErrSessionClosed is returned once a session has been closed.
	ErrSessionClosed = errors.New("session: closed")

	// ErrInvalidMode is returned by SetMode for an unknown mode or a history
	// request without a cursor.
	ErrInvalidMode = errors.New("session: invalid mode")
)

// CloseReason records why a session ended
type CloseReason string

const (
	ReasonConnection CloseReason = "connection"
	ReasonProtocol   CloseReason = "protocol"
	ReasonShutdown   CloseReason = "shutdown"
	ReasonReplaced   CloseReason = "replaced"
	ReasonClosed     CloseReason = "closed"
)

// classify maps a cycle error to a close reason. Every reason ends the session.
func classify(err error) CloseReason {
	switch {
	case errors.Is(err, hmframe.ErrProtocol),
		errors.Is(err, hmframe.ErrChecksum),
		errors.Is(err, hmframe.ErrDecode),
		errors.Is(err, hmframe.ErrEncoding):
		return ReasonProtocol
	case errors.Is(err, ErrSessionClosed),
		errors.Is(err, context.Canceled):
		return ReasonShutdown
	default:
		return ReasonConnection
	}
}
