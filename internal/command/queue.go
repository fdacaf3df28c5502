package command

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hmflow/gprs-puller/internal/models"
)

// DefaultQueueLimit bounds the pending commands per device
const DefaultQueueLimit = 64

// Queue holds pending commands per port id in FIFO order. It is the command
// source sessions read from in command mode.
type Queue struct {
	mu      sync.Mutex
	pending map[string][]*models.Command
	limit   int
	now     func() time.Time
}

// NewQueue creates a queue holding at most limit commands per device
func NewQueue(limit int) *Queue {
	if limit <= 0 {
		limit = DefaultQueueLimit
	}
	return &Queue{
		pending: make(map[string][]*models.Command),
		limit:   limit,
		now:     time.Now,
	}
}

// Enqueue validates cmd, fills its defaults and appends it
func (q *Queue) Enqueue(cmd *models.Command) error {
	cmd.Normalize(q.now())
	if err := cmd.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending[cmd.PortID]) >= q.limit {
		return fmt.Errorf("%w: %s has %d pending", ErrQueueFull, cmd.PortID, q.limit)
	}
	q.pending[cmd.PortID] = append(q.pending[cmd.PortID], cmd)

	return nil
}

// FetchPendingCommand pops the oldest command for portID
func (q *Queue) FetchPendingCommand(_ context.Context, portID string) (*models.Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	cmds := q.pending[portID]
	if len(cmds) == 0 {
		return nil, false
	}

	cmd := cmds[0]
	if len(cmds) == 1 {
		delete(q.pending, portID)
	} else {
		q.pending[portID] = cmds[1:]
	}

	return cmd, true
}

// Pending returns a copy of the commands waiting for portID
func (q *Queue) Pending(portID string) []*models.Command {
	q.mu.Lock()
	defer q.mu.Unlock()

	return append([]*models.Command(nil), q.pending[portID]...)
}

// Clear drops every command for portID and returns how many were dropped
func (q *Queue) Clear(portID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.pending[portID])
	delete(q.pending, portID)
	return n
}
