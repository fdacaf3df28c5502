package command

import "errors"

var (
	// ErrQueueFull is returned when a device already has the maximum number
	// of pending commands.
	ErrQueueFull = errors.New("command: queue full")

	// ErrNoSession is returned for a port id with no live session.
	ErrNoSession = errors.New("command: no live session")

	// ErrInvalidCommand is returned for a command the codec cannot encode.
	ErrInvalidCommand = errors.New("command: invalid command")
)
