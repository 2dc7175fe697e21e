package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/archiveworks/mailarch/interfaces"
	"github.com/archiveworks/mailarch/internal/models"
	"github.com/archiveworks/mailarch/internal/tracing"
)

type resendRepository struct {
	db *gorm.DB
}

func NewResendRepository(db *gorm.DB) interfaces.ResendRepository {
	return &resendRepository{
		db: db,
	}
}

func (r *resendRepository) NextPending(ctx context.Context) (*models.ResendMessage, *models.Message, error) {
	span, ctx := tracing.StartSpanFromContext(ctx, "resendRepository.NextPending")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	// Single consumer. With more than one resender this would need a
	// locking claim inside a transaction spanning the delete.
	var resend models.ResendMessage
	err := r.db.WithContext(ctx).
		Raw("SELECT * FROM resend_messages ORDER BY id LIMIT 1").
		Scan(&resend).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, nil, err
	}
	if resend.ID == 0 {
		return nil, nil, nil
	}

	var message models.Message
	if err := r.db.WithContext(ctx).Where("id = ?", resend.MessageID).First(&message).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Queue row points at nothing, hand it back so the caller
			// can drop it.
			return &resend, nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, nil, err
	}
	return &resend, &message, nil
}

func (r *resendRepository) Delete(ctx context.Context, id int) error {
	span, ctx := tracing.StartSpanFromContext(ctx, "resendRepository.Delete")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if err := r.db.WithContext(ctx).Delete(&models.ResendMessage{}, "id = ?", id).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}
