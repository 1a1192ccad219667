package domain

import "time"

// EventName identifies a segment lifecycle notification.
type EventName string

const (
	EventSegmentCreate EventName = "segment-create"
	EventSegmentUpdate EventName = "segment-update"
	EventSegmentDelete EventName = "segment-delete"
)

// Event represents a committed change published to observers.
type Event struct {
	ID              string    `json:"id"`
	Name            EventName `json:"name"`
	Segment         *Segment  `json:"segment"`
	ActorID         int64     `json:"actor_id,omitempty"`
	RevisionMessage *string   `json:"revision_message,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}
