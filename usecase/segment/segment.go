// Package segment is the segment store: the only path that creates, changes
// and removes segments.
package segment

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fastygo/segments/domain"
	"github.com/fastygo/segments/repository"
	"github.com/fastygo/segments/usecase/access"
	"github.com/fastygo/segments/usecase/event"
	"github.com/fastygo/segments/usecase/revision"
)

// Options are fixed at construction time.
type Options struct {
	// AllowPurge enables physical deletion. Leave it off in production.
	AllowPurge bool
}

// Deps groups the collaborators of the store. Cache is optional.
type Deps struct {
	Segments   repository.SegmentRepository
	Users      repository.UserRepository
	Transactor repository.Transactor
	Recorder   *revision.Recorder
	Events     *event.Publisher
	Policy     access.Policy
	Cache      repository.SegmentCache
}

type UseCase struct {
	segments repository.SegmentRepository
	users    repository.UserRepository
	tx       repository.Transactor
	recorder *revision.Recorder
	events   *event.Publisher
	policy   access.Policy
	cache    repository.SegmentCache
	opts     Options
	logger   *zap.Logger
}

func New(deps Deps, opts Options, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Policy == nil {
		deps.Policy = access.NewRolePolicy()
	}
	if deps.Events == nil {
		deps.Events = event.NewPublisher(logger)
	}
	return &UseCase{
		segments: deps.Segments,
		users:    deps.Users,
		tx:       deps.Transactor,
		recorder: deps.Recorder,
		events:   deps.Events,
		policy:   deps.Policy,
		cache:    deps.Cache,
		opts:     opts,
		logger:   logger,
	}
}

// Events exposes observer registration.
func (uc *UseCase) Events() *event.Publisher {
	return uc.events
}

func (uc *UseCase) Create(ctx context.Context, caller domain.Caller, in domain.NewSegment) (*domain.Segment, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	def, err := domain.ParseDefinition(in.Definition)
	if err != nil {
		return nil, err
	}

	segment := &domain.Segment{
		TableID:    in.TableID,
		CreatorID:  in.CreatorID,
		Name:       strings.TrimSpace(in.Name),
		Definition: def,
		IsActive:   true,
	}
	if in.Description != nil {
		d := *in.Description
		segment.Description = &d
	}

	if !uc.policy.CanWrite(caller, segment) {
		return nil, domain.ErrPermissionDenied
	}
	if _, err := uc.users.GetByID(ctx, in.CreatorID); err != nil {
		if domain.IsDomainError(err, domain.ErrCodeNotFound) {
			return nil, domain.Invalidf("creator %d does not exist", in.CreatorID)
		}
		return nil, fmt.Errorf("look up creator: %w", err)
	}

	err = uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := uc.segments.Create(ctx, segment); err != nil {
			return err
		}
		_, err := uc.recorder.Record(ctx, revision.RecordInput{
			Segment:    segment,
			UserID:     caller.UserID,
			IsCreation: true,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create segment: %w", err)
	}

	uc.publish(ctx, domain.EventSegmentCreate, segment, caller.UserID, nil)
	return uc.hydrate(segment.Clone()), nil
}

// Exists reports whether an active segment with id exists.
func (uc *UseCase) Exists(ctx context.Context, id int64) (bool, error) {
	segment, err := uc.Retrieve(ctx, id)
	if err != nil {
		if domain.IsDomainError(err, domain.ErrCodeNotFound) {
			return false, nil
		}
		return false, err
	}
	return segment.IsActive, nil
}

// Retrieve returns the segment whether or not it is active.
func (uc *UseCase) Retrieve(ctx context.Context, id int64) (*domain.Segment, error) {
	if id <= 0 {
		return nil, domain.ErrSegmentNotFound
	}

	var generation string
	fill := uc.cache != nil
	if uc.cache != nil {
		cached, gen, err := uc.cache.Get(ctx, id)
		switch {
		case err != nil:
			uc.logger.Warn("segment cache read failed", zap.Int64("segment_id", id), zap.Error(err))
			fill = false
		case cached != nil:
			return uc.hydrate(cached), nil
		default:
			generation = gen
		}
	}

	segment, err := uc.segments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if fill {
		stored, err := uc.cache.Set(ctx, segment, generation)
		switch {
		case err != nil:
			uc.logger.Warn("segment cache write failed", zap.Int64("segment_id", id), zap.Error(err))
		case !stored:
			uc.logger.Debug("segment changed during read, cache fill skipped", zap.Int64("segment_id", id))
		}
	}
	return uc.hydrate(segment), nil
}

// RetrieveForTable lists a table's segments by name.
func (uc *UseCase) RetrieveForTable(ctx context.Context, tableID int64, state domain.SegmentState) ([]domain.Segment, error) {
	if tableID <= 0 {
		return nil, domain.Invalidf("table_id must be a positive integer")
	}
	if state == "" {
		state = domain.SegmentStateActive
	}
	if _, err := domain.ParseSegmentState(string(state)); err != nil {
		return nil, err
	}

	segments, err := uc.segments.ListByTable(ctx, repository.SegmentFilter{TableID: tableID, State: state})
	if err != nil {
		return nil, fmt.Errorf("list segments for table %d: %w", tableID, err)
	}
	for i := range segments {
		segments[i].WithResolver(uc.users)
	}
	return segments, nil
}

func (uc *UseCase) Update(ctx context.Context, caller domain.Caller, id int64, changes domain.SegmentChanges) (*domain.Segment, error) {
	if err := changes.Validate(); err != nil {
		return nil, err
	}
	def, err := domain.ParseDefinition(changes.Definition)
	if err != nil {
		return nil, err
	}
	message := strings.TrimSpace(changes.RevisionMessage)

	updated, err := uc.mutate(ctx, caller, id, func(ctx context.Context, current *domain.Segment) (*domain.Segment, revision.RecordInput, error) {
		current.Apply(strings.TrimSpace(changes.Name), changes.Description, def)
		return current, revision.RecordInput{Message: &message}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("update segment %d: %w", id, err)
	}

	uc.invalidate(ctx, id)
	uc.publish(ctx, domain.EventSegmentUpdate, updated, caller.UserID, &message)
	return uc.hydrate(updated.Clone()), nil
}

// Delete archives the segment. It stays addressable by id.
func (uc *UseCase) Delete(ctx context.Context, caller domain.Caller, id int64) (*domain.Segment, error) {
	archived, err := uc.mutate(ctx, caller, id, func(ctx context.Context, current *domain.Segment) (*domain.Segment, revision.RecordInput, error) {
		current.Archive()
		return current, revision.RecordInput{}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("delete segment %d: %w", id, err)
	}

	uc.invalidate(ctx, id)
	uc.publish(ctx, domain.EventSegmentDelete, archived, caller.UserID, nil)
	return uc.hydrate(archived.Clone()), nil
}

// Revert restores name, description and definition from a stored revision.
func (uc *UseCase) Revert(ctx context.Context, caller domain.Caller, id, revisionID int64) (*domain.Segment, error) {
	message := fmt.Sprintf("reverted to revision %d", revisionID)

	reverted, err := uc.mutate(ctx, caller, id, func(ctx context.Context, current *domain.Segment) (*domain.Segment, revision.RecordInput, error) {
		rev, err := uc.recorder.Get(ctx, id, revisionID)
		if err != nil {
			return nil, revision.RecordInput{}, err
		}
		next, err := revision.RevertTo(current, rev.Object)
		if err != nil {
			return nil, revision.RecordInput{}, err
		}
		return next, revision.RecordInput{Message: &message, IsReversion: true}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("revert segment %d: %w", id, err)
	}

	uc.invalidate(ctx, id)
	uc.publish(ctx, domain.EventSegmentUpdate, reverted, caller.UserID, &message)
	return uc.hydrate(reverted.Clone()), nil
}

// History returns the segment's revisions newest first.
func (uc *UseCase) History(ctx context.Context, id int64) ([]revision.HistoryEntry, error) {
	if _, err := uc.segments.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return uc.recorder.History(ctx, id)
}

// Purge physically removes the segment and its revisions. It only works when
// the store was built with AllowPurge and publishes no event.
func (uc *UseCase) Purge(ctx context.Context, caller domain.Caller, id int64) error {
	if !uc.opts.AllowPurge {
		return domain.ErrOperationNotPermitted
	}

	err := uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := uc.segments.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !uc.policy.CanWrite(caller, current) {
			return domain.ErrPermissionDenied
		}
		if err := uc.recorder.Purge(ctx, id); err != nil {
			return err
		}
		return uc.segments.Delete(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("purge segment %d: %w", id, err)
	}

	uc.invalidate(ctx, id)
	uc.logger.Warn("segment purged", zap.Int64("segment_id", id), zap.Int64("actor_id", caller.UserID))
	return nil
}

type mutation func(ctx context.Context, current *domain.Segment) (*domain.Segment, revision.RecordInput, error)

// mutate locks the segment, applies change, persists it and records exactly
// one revision, all in one transaction. change receives the transaction ctx.
func (uc *UseCase) mutate(ctx context.Context, caller domain.Caller, id int64, change mutation) (*domain.Segment, error) {
	var result *domain.Segment
	err := uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := uc.segments.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !uc.policy.CanWrite(caller, current) {
			return domain.ErrPermissionDenied
		}
		if !current.IsActive {
			return domain.ErrSegmentArchived
		}

		next, in, err := change(ctx, current)
		if err != nil {
			return err
		}
		if err := uc.segments.Update(ctx, next); err != nil {
			return err
		}

		in.Segment = next
		in.UserID = caller.UserID
		if _, err := uc.recorder.Record(ctx, in); err != nil {
			return err
		}
		result = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// invalidate runs after commit. Rotating the generation also refuses fills
// from reads that started before the commit.
func (uc *UseCase) invalidate(ctx context.Context, id int64) {
	if uc.cache == nil {
		return
	}
	if err := uc.cache.Invalidate(ctx, id); err != nil {
		uc.logger.Warn("segment cache invalidation failed", zap.Int64("segment_id", id), zap.Error(err))
	}
}

func (uc *UseCase) publish(ctx context.Context, name domain.EventName, segment *domain.Segment, actorID int64, message *string) {
	uc.events.Publish(ctx, domain.Event{
		Name:            name,
		Segment:         segment.Clone(),
		ActorID:         actorID,
		RevisionMessage: message,
	})
}

func (uc *UseCase) hydrate(segment *domain.Segment) *domain.Segment {
	return segment.WithResolver(uc.users)
}
