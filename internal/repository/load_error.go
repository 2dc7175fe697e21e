package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/archiveworks/mailarch/interfaces"
	"github.com/archiveworks/mailarch/internal/models"
	"github.com/archiveworks/mailarch/internal/tracing"
)

type loadErrorRepository struct {
	db *gorm.DB
}

func NewLoadErrorRepository(db *gorm.DB) interfaces.LoadErrorRepository {
	return &loadErrorRepository{
		db: db,
	}
}

func (r *loadErrorRepository) Record(ctx context.Context, loadError *models.LoadError) error {
	span, ctx := tracing.StartSpanFromContext(ctx, "loadErrorRepository.Record")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if err := r.db.WithContext(ctx).Create(loadError).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}
