package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/segments/domain"
	"github.com/fastygo/segments/repository"
)

const revisionColumns = `id, model, model_id, user_id, object, message, is_creation, is_reversion, timestamp`

type revisionRepository struct {
	pool *pgxpool.Pool
}

// NewRevisionRepository creates a Postgres-backed RevisionRepository implementation.
func NewRevisionRepository(pool *pgxpool.Pool) repository.RevisionRepository {
	return &revisionRepository{pool: pool}
}

func (r *revisionRepository) GetByID(ctx context.Context, id int64) (*domain.Revision, error) {
	query := `SELECT ` + revisionColumns + ` FROM revisions WHERE id = $1`
	return scanRevision(conn(ctx, r.pool).QueryRow(ctx, query, id))
}

func (r *revisionRepository) ListByModel(ctx context.Context, model string, modelID int64) ([]domain.Revision, error) {
	query := `
	SELECT ` + revisionColumns + `
	FROM revisions
	WHERE model = $1 AND model_id = $2
	ORDER BY id ASC
	`
	rows, err := conn(ctx, r.pool).Query(ctx, query, model, modelID)
	if err != nil {
		return nil, err
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

	const query = `
	INSERT INTO revisions (model, model_id, user_id, object, message, is_creation, is_reversion)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING id, timestamp
	`

	if err := conn(ctx, r.pool).QueryRow(ctx, query,
		revision.Model,
		revision.ModelID,
		revision.UserID,
		object,
		revision.Message,
		revision.IsCreation,
		revision.IsReversion,
	).Scan(&revision.ID, &revision.Timestamp); err != nil {
		return mapWriteError("insert revision", err)
	}
	return nil
}

func (r *revisionRepository) DeleteByModel(ctx context.Context, model string, modelID int64) error {
	const query = `DELETE FROM revisions WHERE model = $1 AND model_id = $2`
	_, err := conn(ctx, r.pool).Exec(ctx, query, model, modelID)
	return err
}

func scanRevision(row rowScanner) (*domain.Revision, error) {
	var (
		rev    domain.Revision
		object []byte
	)

	if err := row.Scan(
		&rev.ID,
		&rev.Model,
		&rev.ModelID,
		&rev.UserID,
		&object,
		&rev.Message,
		&rev.IsCreation,
		&rev.IsReversion,
		&rev.Timestamp,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRevisionNotFound
		}
		return nil, err
	}

	if len(object) > 0 {
		if err := json.Unmarshal(object, &rev.Object); err != nil {
			return nil, fmt.Errorf("revision %d: decode object: %w", rev.ID, err)
		}
	}
	return &rev, nil
}
