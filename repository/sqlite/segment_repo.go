package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fastygo/segments/domain"
	"github.com/fastygo/segments/repository"
)

const segmentColumns = `id, table_id, creator_id, name, description, definition, is_active, created_at, updated_at`

type segmentRepository struct {
	db *sql.DB
}

// NewSegmentRepository returns a SQLite-backed SegmentRepository.
func NewSegmentRepository(db *sql.DB) repository.SegmentRepository {
	return &segmentRepository{db: db}
}

func (r *segmentRepository) GetByID(ctx context.Context, id int64) (*domain.Segment, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx, `SELECT `+segmentColumns+` FROM segments WHERE id = ?`, id)
	return scanSegment(row)
}

// GetForUpdate relies on the single writer connection for row exclusivity.
func (r *segmentRepository) GetForUpdate(ctx context.Context, id int64) (*domain.Segment, error) {
	return r.GetByID(ctx, id)
}

func (r *segmentRepository) ListByTable(ctx context.Context, filter repository.SegmentFilter) ([]domain.Segment, error) {
	query := `SELECT ` + segmentColumns + ` FROM segments WHERE table_id = ?`
	args := []any{filter.TableID}
	switch filter.State {
	case domain.SegmentStateAll:
	case domain.SegmentStateDeleted:
		query += ` AND is_active = 0`
	default:
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY name ASC, id ASC`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing segments: %w", err)
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

	now := time.Now().UTC()
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO segments (table_id, creator_id, name, description, definition, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		segment.TableID,
		segment.CreatorID,
		segment.Name,
		nullString(segment.Description),
		string(definition),
		segment.IsActive,
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return mapWriteError("insert segment", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert segment: %w", err)
	}

	segment.ID = id
	segment.CreatedAt = now
	segment.UpdatedAt = now
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

	now := time.Now().UTC()
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE segments SET name = ?, description = ?, definition = ?, is_active = ?, updated_at = ? WHERE id = ?`,
		segment.Name,
		nullString(segment.Description),
		string(definition),
		segment.IsActive,
		formatTime(now),
		segment.ID,
	)
	if err != nil {
		return mapWriteError("update segment", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrSegmentNotFound
	}
	segment.UpdatedAt = now
	return nil
}

func (r *segmentRepository) Delete(ctx context.Context, id int64) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM segments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete segment: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrSegmentNotFound
	}
	return nil
}

func scanSegment(row rowScanner) (*domain.Segment, error) {
	var (
		segment     domain.Segment
		description sql.NullString
		definition  string
		createdAt   string
		updatedAt   string
	)

	if err := row.Scan(
		&segment.ID,
		&segment.TableID,
		&segment.CreatorID,
		&segment.Name,
		&description,
		&definition,
		&segment.IsActive,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSegmentNotFound
		}
		return nil, fmt.Errorf("scanning segment: %w", err)
	}

	def, err := domain.DecodeDefinition([]byte(definition))
	if err != nil {
		return nil, fmt.Errorf("segment %d: %w", segment.ID, err)
	}
	segment.Definition = def
	segment.Description = stringPtr(description)

	if segment.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("segment %d: created_at: %w", segment.ID, err)
	}
	if segment.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("segment %d: updated_at: %w", segment.ID, err)
	}
	return &segment, nil
}
