package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hmflow/gprs-puller/pkg/hmframe"
)

// Command is one read request queued for a device. It fully determines the
// request frame.
type Command struct {
	ID        uuid.UUID        `json:"id"`
	PortID    string           `json:"portId"`
	DataType  hmframe.DataType `json:"dataType"`
	Interval  int              `json:"interval"`
	Timestamp time.Time        `json:"timestamp"`
	CreatedAt time.Time        `json:"createdAt"`
}

// Normalize fills defaults: a fresh id, interval 1 and, for history reads
// without a target, the current time.
func (c *Command) Normalize(now time.Time) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Interval == 0 {
		c.Interval = hmframe.Interval1Min
	}
	if c.Timestamp.IsZero() && c.DataType == hmframe.HistoryData {
		c.Timestamp = now
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
}

// Validate rejects commands the codec cannot encode
func (c *Command) Validate() error {
	if !c.DataType.Valid() {
		return fmt.Errorf("%w: data type %d", hmframe.ErrEncoding, c.DataType)
	}
	if !hmframe.ValidInterval(c.Interval) {
		return fmt.Errorf("%w: %d", hmframe.ErrInvalidInterval, c.Interval)
	}
	return nil
}
