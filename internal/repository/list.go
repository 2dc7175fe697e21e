package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/archiveworks/mailarch/interfaces"
	"github.com/archiveworks/mailarch/internal/models"
	"github.com/archiveworks/mailarch/internal/tracing"
)

type listRepository struct {
	db *gorm.DB
}

func NewListRepository(db *gorm.DB) interfaces.ListRepository {
	return &listRepository{
		db: db,
	}
}

func (r *listRepository) GetByName(ctx context.Context, name string) (*models.List, error) {
	span, ctx := tracing.StartSpanFromContext(ctx, "listRepository.GetByName")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var list models.List
	if err := r.db.WithContext(ctx).Where("listname = ?", name).First(&list).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &list, nil
}

func (r *listRepository) GetAll(ctx context.Context) ([]models.List, error) {
	span, ctx := tracing.StartSpanFromContext(ctx, "listRepository.GetAll")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var lists []models.List
	if err := r.db.WithContext(ctx).Order("listid").Find(&lists).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return lists, nil
}

func (r *listRepository) GetAllGroups(ctx context.Context) ([]models.ListGroup, error) {
	span, ctx := tracing.StartSpanFromContext(ctx, "listRepository.GetAllGroups")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var groups []models.ListGroup
	if err := r.db.WithContext(ctx).Order("groupid").Find(&groups).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return groups, nil
}

func (r *listRepository) SaveList(ctx context.Context, list *models.List) error {
	span, ctx := tracing.StartSpanFromContext(ctx, "listRepository.SaveList")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "listid"}},
		UpdateAll: true,
	}).Create(list).Error
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}

func (r *listRepository) SaveGroup(ctx context.Context, group *models.ListGroup) error {
	span, ctx := tracing.StartSpanFromContext(ctx, "listRepository.SaveGroup")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "groupid"}},
		UpdateAll: true,
	}).Create(group).Error
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}
