// Package revision records segment snapshots and turns them into history.
package revision

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fastygo/segments/domain"
	"github.com/fastygo/segments/repository"
)

// RecordInput describes one mutation to snapshot.
type RecordInput struct {
	Segment     *domain.Segment
	UserID      int64
	Message     *string
	IsCreation  bool
	IsReversion bool
}

// HistoryEntry is a revision together with the changes it introduced.
type HistoryEntry struct {
	Revision domain.Revision `json:"revision"`
	Changes  []string        `json:"changes"`
}

type Recorder struct {
	revisions repository.RevisionRepository
	logger    *zap.Logger
}

func New(revisions repository.RevisionRepository, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		revisions: revisions,
		logger:    logger,
	}
}

// Record stores a snapshot of in.Segment. Call it with the ctx of the
// mutation's transaction so the snapshot commits or rolls back with it.
func (r *Recorder) Record(ctx context.Context, in RecordInput) (*domain.Revision, error) {
	if in.Segment == nil || in.Segment.ID <= 0 {
		return nil, domain.ErrInvalidPayload
	}
	rev := &domain.Revision{
		Model:       domain.RevisionModelSegment,
		ModelID:     in.Segment.ID,
		UserID:      in.UserID,
		Object:      Serialize(in.Segment),
		Message:     in.Message,
		IsCreation:  in.IsCreation,
		IsReversion: in.IsReversion,
	}
	if err := r.revisions.Create(ctx, rev); err != nil {
		return nil, fmt.Errorf("record revision for segment %d: %w", in.Segment.ID, err)
	}
	r.logger.Debug("revision recorded",
		zap.Int64("segment_id", rev.ModelID),
		zap.Int64("revision_id", rev.ID),
		zap.Bool("creation", rev.IsCreation),
		zap.Bool("reversion", rev.IsReversion))
	return rev, nil
}

// Get returns one revision of a segment.
func (r *Recorder) Get(ctx context.Context, segmentID, revisionID int64) (*domain.Revision, error) {
	rev, err := r.revisions.GetByID(ctx, revisionID)
	if err != nil {
		return nil, err
	}
	if rev.Model != domain.RevisionModelSegment || rev.ModelID != segmentID {
		return nil, domain.ErrRevisionNotFound
	}
	return rev, nil
}

// History returns the segment's revisions newest first, each paired with
// the diff against the revision before it.
func (r *Recorder) History(ctx context.Context, segmentID int64) ([]HistoryEntry, error) {
	revisions, err := r.revisions.ListByModel(ctx, domain.RevisionModelSegment, segmentID)
	if err != nil {
		return nil, fmt.Errorf("load history for segment %d: %w", segmentID, err)
	}

	entries := make([]HistoryEntry, len(revisions))
	var previous domain.Snapshot
	for i, rev := range revisions {
		entries[len(revisions)-1-i] = HistoryEntry{
			Revision: rev,
			Changes:  DescribeDiff(previous, rev.Object),
		}
		previous = rev.Object
	}
	return entries, nil
}

// Purge removes every revision of the segment.
func (r *Recorder) Purge(ctx context.Context, segmentID int64) error {
	return r.revisions.DeleteByModel(ctx, domain.RevisionModelSegment, segmentID)
}
