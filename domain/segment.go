package domain

import (
	"context"
	"strings"
	"time"
)

// Segment is a named, reusable filter definition scoped to a table.
type Segment struct {
	ID          int64      `json:"id"`
	TableID     int64      `json:"table_id"`
	CreatorID   int64      `json:"creator_id"`
	Name        string     `json:"name"`
	Description *string    `json:"description,omitempty"`
	Definition  Definition `json:"definition"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	creators UserResolver
}

// UserResolver looks up users on demand. Repositories satisfy it.
type UserResolver interface {
	GetByID(ctx context.Context, id int64) (*User, error)
}

// WithResolver attaches the lookup used by Creator and returns the segment.
func (s *Segment) WithResolver(r UserResolver) *Segment {
	if s != nil {
		s.creators = r
	}
	return s
}

// Creator resolves the user that created the segment. The lookup happens on
// every call and only when asked for.
func (s *Segment) Creator(ctx context.Context) (*User, error) {
	if s == nil {
		return nil, ErrSegmentNotFound
	}
	if s.creators == nil {
		return nil, WrapError(ErrCodeInternal, "creator resolver not attached", ErrUserNotFound)
	}
	return s.creators.GetByID(ctx, s.CreatorID)
}

// Clone returns a deep copy that shares no mutable state with s.
func (s *Segment) Clone() *Segment {
	if s == nil {
		return nil
	}
	out := *s
	if s.Description != nil {
		d := *s.Description
		out.Description = &d
	}
	out.Definition = s.Definition.Clone()
	return &out
}

// Archive marks the segment inactive.
func (s *Segment) Archive() {
	s.IsActive = false
	s.UpdatedAt = time.Now()
}

// Apply replaces the mutable fields with the provided values.
func (s *Segment) Apply(name string, description *string, def Definition) {
	s.Name = name
	s.Description = cloneString(description)
	s.Definition = def.Clone()
	s.UpdatedAt = time.Now()
}

// NewSegment carries the inputs required to create a segment.
type NewSegment struct {
	TableID     int64
	CreatorID   int64
	Name        string
	Description *string
	Definition  Definition
}

// Validate checks the create constraints.
func (n NewSegment) Validate() error {
	if n.TableID <= 0 {
		return Invalidf("table_id must be a positive integer")
	}
	if n.CreatorID <= 0 {
		return Invalidf("creator_id must be a positive integer")
	}
	if strings.TrimSpace(n.Name) == "" {
		return Invalidf("name must not be empty")
	}
	return n.Definition.Validate()
}

// SegmentChanges carries the replacement values for an update.
type SegmentChanges struct {
	Name            string
	Description     *string
	Definition      Definition
	RevisionMessage string
}

// Validate checks the update constraints.
func (c SegmentChanges) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return Invalidf("name must not be empty")
	}
	if err := c.Definition.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.RevisionMessage) == "" {
		return Invalidf("revision_message must not be empty")
	}
	return nil
}

// SegmentState selects segments by their active flag.
type SegmentState string

const (
	SegmentStateActive  SegmentState = "active"
	SegmentStateDeleted SegmentState = "deleted"
	SegmentStateAll     SegmentState = "all"
)

// ParseSegmentState maps a query value to a state. Empty means active.
func ParseSegmentState(raw string) (SegmentState, error) {
	switch SegmentState(strings.ToLower(strings.TrimSpace(raw))) {
	case "", SegmentStateActive:
		return SegmentStateActive, nil
	case SegmentStateDeleted:
		return SegmentStateDeleted, nil
	case SegmentStateAll:
		return SegmentStateAll, nil
	default:
		return "", Invalidf("unknown segment state %q", raw)
	}
}

// Matches reports whether a segment with the given flag belongs to the state.
func (st SegmentState) Matches(active bool) bool {
	switch st {
	case SegmentStateDeleted:
		return !active
	case SegmentStateAll:
		return true
	default:
		return active
	}
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
