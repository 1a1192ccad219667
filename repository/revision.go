package repository

import (
	"context"

	"github.com/fastygo/segments/domain"
)

type RevisionRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Revision, error)
	// ListByModel returns revisions oldest first.
	ListByModel(ctx context.Context, model string, modelID int64) ([]domain.Revision, error)
	Create(ctx context.Context, revision *domain.Revision) error
	DeleteByModel(ctx context.Context, model string, modelID int64) error
}
