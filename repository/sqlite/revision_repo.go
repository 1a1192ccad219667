package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fastygo/segments/domain"
	"github.com/fastygo/segments/repository"
)

const revisionColumns = `id, model, model_id, user_id, object, message, is_creation, is_reversion, timestamp`

type revisionRepository struct {
	db *sql.DB
}

// NewRevisionRepository returns a SQLite-backed RevisionRepository.
func NewRevisionRepository(db *sql.DB) repository.RevisionRepository {
	return &revisionRepository{db: db}
}

func (r *revisionRepository) GetByID(ctx context.Context, id int64) (*domain.Revision, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx, `SELECT `+revisionColumns+` FROM revisions WHERE id = ?`, id)
	return scanRevision(row)
}

func (r *revisionRepository) ListByModel(ctx context.Context, model string, modelID int64) ([]domain.Revision, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		`SELECT `+revisionColumns+` FROM revisions WHERE model = ? AND model_id = ? ORDER BY id ASC`,
		model, modelID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing revisions: %w", err)
	}
	defer rows.Close()

	revisions := []domain.Revision{}
	for rows.Next() {
		rev, err := scanRevision(rows)
		if err != nil {
			return nil, err
		}
		revisions = append(revisions, *rev)
	}
	return revisions, rows.Err()
}

func (r *revisionRepository) Create(ctx context.Context, revision *domain.Revision) error {
	if revision == nil {
		return domain.ErrInvalidPayload
	}
	object, err := json.Marshal(revision.Object)
	if err != nil {
		return fmt.Errorf("encode revision object: %w", err)
	}

	now := time.Now().UTC()
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO revisions (model, model_id, user_id, object, message, is_creation, is_reversion, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		revision.Model,
		revision.ModelID,
		revision.UserID,
		string(object),
		nullString(revision.Message),
		revision.IsCreation,
		revision.IsReversion,
		formatTime(now),
	)
	if err != nil {
		return mapWriteError("insert revision", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert revision: %w", err)
	}

	revision.ID = id
	revision.Timestamp = now
	return nil
}

func (r *revisionRepository) DeleteByModel(ctx context.Context, model string, modelID int64) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM revisions WHERE model = ? AND model_id = ?`, model, modelID)
	if err != nil {
		return fmt.Errorf("delete revisions: %w", err)
	}
	return nil
}

func scanRevision(row rowScanner) (*domain.Revision, error) {
	var (
		rev       domain.Revision
		object    string
		message   sql.NullString
		timestamp string
	)

	if err := row.Scan(
		&rev.ID,
		&rev.Model,
		&rev.ModelID,
		&rev.UserID,
		&object,
		&message,
		&rev.IsCreation,
		&rev.IsReversion,
		&timestamp,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRevisionNotFound
		}
		return nil, fmt.Errorf("scanning revision: %w", err)
	}

	if err := json.Unmarshal([]byte(object), &rev.Object); err != nil {
		return nil, fmt.Errorf("revision %d: decode object: %w", rev.ID, err)
	}
	rev.Message = stringPtr(message)

	ts, err := parseTime(timestamp)
	if err != nil {
		return nil, fmt.Errorf("revision %d: timestamp: %w", rev.ID, err)
	}
	rev.Timestamp = ts
	return &rev, nil
}
