package repository

import (
	"context"

	"github.com/fastygo/segments/domain"
)

type SegmentFilter struct {
	TableID int64
	State   domain.SegmentState
}

// SegmentRepository persists segments. Mutating methods and GetForUpdate join
// the transaction carried by ctx when there is one.
type SegmentRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Segment, error)
	// GetForUpdate reads the row and holds a write lock on it until the
	// surrounding transaction ends.
	GetForUpdate(ctx context.Context, id int64) (*domain.Segment, error)
	ListByTable(ctx context.Context, filter SegmentFilter) ([]domain.Segment, error)
	Create(ctx context.Context, segment *domain.Segment) error
	Update(ctx context.Context, segment *domain.Segment) error
	Delete(ctx context.Context, id int64) error
}

// SegmentCache is an optional read-through cache in front of GetByID.
//
// Get returns the cached segment, or nil on a miss, together with the
// current generation token. A reader passes that token to Set after loading
// the row; Set stores nothing and reports false when Invalidate ran in
// between. Writers call Invalidate after commit.
type SegmentCache interface {
	Get(ctx context.Context, id int64) (*domain.Segment, string, error)
	Set(ctx context.Context, segment *domain.Segment, generation string) (bool, error)
	Invalidate(ctx context.Context, id int64) error
}
