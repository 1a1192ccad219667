package domain

import "time"

// RevisionModelSegment is the model name stored on segment revisions.
const RevisionModelSegment = "Segment"

// Snapshot is the serialized state of an entity at one point in its history.
type Snapshot map[string]any

// UnmarshalJSON keeps numbers as json.Number, matching Definition.
func (s *Snapshot) UnmarshalJSON(raw []byte) error {
	out, err := DecodeObject(raw)
	if err != nil {
		return err
	}
	*s = out
	return nil
}

// Revision is an immutable snapshot recorded for a single mutation.
type Revision struct {
	ID          int64     `json:"id"`
	Model       string    `json:"model"`
	ModelID     int64     `json:"model_id"`
	UserID      int64     `json:"user_id"`
	Object      Snapshot  `json:"object"`
	Message     *string   `json:"message,omitempty"`
	IsCreation  bool      `json:"is_creation"`
	IsReversion bool      `json:"is_reversion"`
	Timestamp   time.Time `json:"timestamp"`
}
