package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/archiveworks/mailarch/interfaces"
	"github.com/archiveworks/mailarch/internal/models"
	"github.com/archiveworks/mailarch/internal/tracing"
)

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) interfaces.MessageRepository {
	return &messageRepository{
		db: db,
	}
}

func (r *messageRepository) GetByMessageID(ctx context.Context, messageID string) (*models.Message, error) {
	span, ctx := tracing.StartSpanFromContext(ctx, "messageRepository.GetByMessageID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var message models.Message
	if err := r.db.WithContext(ctx).Where("messageid = ?", messageID).First(&message).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &message, nil
}

func (r *messageRepository) UpdateHiddenStatus(ctx context.Context, id int, status *int) error {
	span, ctx := tracing.StartSpanFromContext(ctx, "messageRepository.UpdateHiddenStatus")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	result := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ?", id).
		Update("hiddenstatus", status)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}
	if result.RowsAffected != 1 {
		err := errors.New("hidden status update affected no rows")
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *messageRepository) UpdateRawTxt(ctx context.Context, id int, rawtxt []byte) error {
	span, ctx := tracing.StartSpanFromContext(ctx, "messageRepository.UpdateRawTxt")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	result := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ?", id).
		Update("rawtxt", rawtxt)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}
	if result.RowsAffected != 1 {
		err := errors.New("rawtxt update affected no rows")
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}
