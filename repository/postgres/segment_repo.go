package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/segments/domain"
	"github.com/fastygo/segments/repository"
)

const segmentColumns = `id, table_id, creator_id, name, description, definition, is_active, created_at, updated_at`

type segmentRepository struct {
	pool *pgxpool.Pool
}

// NewSegmentRepository returns a Postgres-backed implementation of SegmentRepository.
func NewSegmentRepository(pool *pgxpool.Pool) repository.SegmentRepository {
	return &segmentRepository{pool: pool}
}

func (r *segmentRepository) GetByID(ctx context.Context, id int64) (*domain.Segment, error) {
	query := `SELECT ` + segmentColumns + ` FROM segments WHERE id = $1`
	return scanSegment(conn(ctx, r.pool).QueryRow(ctx, query, id))
}

func (r *segmentRepository) GetForUpdate(ctx context.Context, id int64) (*domain.Segment, error) {
	query := `SELECT ` + segmentColumns + ` FROM segments WHERE id = $1 FOR UPDATE`
	return scanSegment(conn(ctx, r.pool).QueryRow(ctx, query, id))
}

func (r *segmentRepository) ListByTable(ctx context.Context, filter repository.SegmentFilter) ([]domain.Segment, error) {
	query := `
	SELECT ` + segmentColumns + `
	FROM segments
	WHERE table_id = $1
	  AND ($2 = 'all' OR is_active = ($2 = 'active'))
	ORDER BY name ASC, id ASC
	`
	state := filter.State
	if state == "" {
		state = domain.SegmentStateActive
	}

	rows, err := conn(ctx, r.pool).Query(ctx, query, filter.TableID, string(state))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	segments := []domain.Segment{}
	for rows.Next() {
		segment, err := scanSegment(rows)
		if err != nil {
			return nil, err
		}
		segments = append(segments, *segment)
	}
	return segments, rows.Err()
}

func (r *segmentRepository) Create(ctx context.Context, segment *domain.Segment) error {
	if segment == nil {
		return domain.ErrInvalidPayload
	}
	definition, err := segment.Definition.Encode()
	if err != nil {
		return err
	}

	const query = `
	INSERT INTO segments (table_id, creator_id, name, description, definition, is_active)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING id, created_at, updated_at
	`

	if err := conn(ctx, r.pool).QueryRow(ctx, query,
		segment.TableID,
		segment.CreatorID,
		segment.Name,
		segment.Description,
		definition,
		segment.IsActive,
	).Scan(&segment.ID, &segment.CreatedAt, &segment.UpdatedAt); err != nil {
		return mapWriteError("insert segment", err)
	}
	return nil
}

func (r *segmentRepository) Update(ctx context.Context, segment *domain.Segment) error {
	if segment == nil {
		return domain.ErrInvalidPayload
	}
	definition, err := segment.Definition.Encode()
	if err != nil {
		return err
	}

	const query = `
	UPDATE segments
	SET name = $2,
		description = $3,
		definition = $4,
		is_active = $5,
		updated_at = NOW()
	WHERE id = $1
	RETURNING updated_at
	`

	if err := conn(ctx, r.pool).QueryRow(ctx, query,
		segment.ID,
		segment.Name,
		segment.Description,
		definition,
		segment.IsActive,
	).Scan(&segment.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrSegmentNotFound
		}
		return mapWriteError("update segment", err)
	}
	return nil
}

func (r *segmentRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM segments WHERE id = $1`
	tag, err := conn(ctx, r.pool).Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSegmentNotFound
	}
	return nil
}

func scanSegment(row rowScanner) (*domain.Segment, error) {
	var (
		segment    domain.Segment
		definition []byte
	)

	if err := row.Scan(
		&segment.ID,
		&segment.TableID,
		&segment.CreatorID,
		&segment.Name,
		&segment.Description,
		&definition,
		&segment.IsActive,
		&segment.CreatedAt,
		&segment.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSegmentNotFound
		}
		return nil, err
	}

	def, err := domain.DecodeDefinition(definition)
	if err != nil {
		return nil, fmt.Errorf("segment %d: %w", segment.ID, err)
	}
	segment.Definition = def
	return &segment, nil
}
