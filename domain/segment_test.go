package domain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver struct {
	calls int
	users map[int64]*User
}

func (s *stubResolver) GetByID(_ context.Context, id int64) (*User, error) {
	s.calls++
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, ErrUserNotFound
}

func TestNewSegmentValidate(t *testing.T) {
	valid := NewSegment{
		TableID:    1,
		CreatorID:  7,
		Name:       "Active Users",
		Definition: Definition{"filter": []any{">", []any{"field", 5}, 30}},
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(n *NewSegment)
	}{
		{"zero table", func(n *NewSegment) { n.TableID = 0 }},
		{"negative creator", func(n *NewSegment) { n.CreatorID = -1 }},
		{"blank name", func(n *NewSegment) { n.Name = "   " }},
		{"empty definition", func(n *NewSegment) { n.Definition = Definition{} }},
		{"nil definition", func(n *NewSegment) { n.Definition = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			err := in.Validate()
			require.Error(t, err)
			assert.True(t, IsDomainError(err, ErrCodeInvalid))
		})
	}
}

func TestSegmentChangesRequireMessage(t *testing.T) {
	changes := SegmentChanges{
		Name:       "Renamed",
		Definition: Definition{"filter": "x"},
	}
	err := changes.Validate()
	require.Error(t, err)
	assert.True(t, IsDomainError(err, ErrCodeInvalid))

	changes.RevisionMessage = "rename"
	assert.NoError(t, changes.Validate())
}

func TestSegmentCloneIsIndependent(t *testing.T) {
	desc := "people who logged in"
	original := &Segment{
		ID:          3,
		Name:        "Active",
		Description: &desc,
		Definition:  Definition{"filter": []any{"=", []any{"field", 1}, "yes"}},
		IsActive:    true,
	}

	clone := original.Clone()
	*clone.Description = "changed"
	clone.Definition["filter"].([]any)[2] = "no"
	clone.Name = "Other"

	assert.Equal(t, "people who logged in", *original.Description)
	assert.Equal(t, "yes", original.Definition["filter"].([]any)[2])
	assert.Equal(t, "Active", original.Name)
	assert.Nil(t, (*Segment)(nil).Clone())
}

func TestSegmentCreatorResolvesOnDemand(t *testing.T) {
	resolver := &stubResolver{users: map[int64]*User{7: {ID: 7, Role: RoleAdmin}}}
	segment := (&Segment{ID: 1, CreatorID: 7}).WithResolver(resolver)
	assert.Equal(t, 0, resolver.calls)

	creator, err := segment.Creator(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), creator.ID)
	assert.Equal(t, 1, resolver.calls)

	_, err = (&Segment{CreatorID: 7}).Creator(context.Background())
	assert.True(t, IsDomainError(err, ErrCodeInternal))
}

func TestSegmentArchiveAndApply(t *testing.T) {
	segment := &Segment{Name: "A", IsActive: true, Definition: Definition{"a": 1.0}}
	segment.Archive()
	assert.False(t, segment.IsActive)
	assert.False(t, segment.UpdatedAt.IsZero())

	desc := "d"
	def := Definition{"b": 2.0}
	segment.Apply("B", &desc, def)
	desc = "mutated"
	def["b"] = 3.0

	assert.Equal(t, "B", segment.Name)
	assert.Equal(t, "d", *segment.Description)
	assert.Equal(t, 2.0, segment.Definition["b"])
}

func TestParseSegmentState(t *testing.T) {
	tests := []struct {
		raw  string
		want SegmentState
	}{
		{"", SegmentStateActive},
		{"active", SegmentStateActive},
		{"DELETED", SegmentStateDeleted},
		{" all ", SegmentStateAll},
	}
	for _, tt := range tests {
		got, err := ParseSegmentState(tt.raw)
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}

	_, err := ParseSegmentState("archived")
	assert.True(t, IsDomainError(err, ErrCodeInvalid))
}

func TestSegmentStateMatches(t *testing.T) {
	assert.True(t, SegmentStateActive.Matches(true))
	assert.False(t, SegmentStateActive.Matches(false))
	assert.True(t, SegmentStateDeleted.Matches(false))
	assert.False(t, SegmentStateDeleted.Matches(true))
	assert.True(t, SegmentStateAll.Matches(true))
	assert.True(t, SegmentStateAll.Matches(false))
}

func TestCallerFromUser(t *testing.T) {
	caller := CallerFromUser(&User{ID: 9, Role: RoleAdmin})
	assert.Equal(t, int64(9), caller.UserID)
	assert.True(t, caller.IsAdmin())

	assert.False(t, CallerFromUser(nil).IsAdmin())
	assert.False(t, CallerFromUser(&User{ID: 2, Role: RoleUser}).IsAdmin())
}
