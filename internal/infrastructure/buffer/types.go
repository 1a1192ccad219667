package buffer

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Item is an encoded event waiting to be relayed while the broker is unavailable.
type Item struct {
	ID        string          `json:"id"`
	EventName string          `json:"event_name"`
	SegmentID int64           `json:"segment_id"`
	Data      json.RawMessage `json:"data"`
	Retries   int             `json:"retries"`
	Timestamp time.Time       `json:"timestamp"`

	bucketKey []byte
}

func (i *Item) normalize() {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.Timestamp.IsZero() {
		i.Timestamp = time.Now()
	}
}
