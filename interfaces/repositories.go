package interfaces

import (
	"context"

	"github.com/archiveworks/mailarch/internal/models"
)

type MessageRepository interface {
	// GetByMessageID returns nil, nil when no message exists.
	GetByMessageID(ctx context.Context, messageID string) (*models.Message, error)
	UpdateHiddenStatus(ctx context.Context, id int, status *int) error
	UpdateRawTxt(ctx context.Context, id int, rawtxt []byte) error
}

type ListRepository interface {
	// GetByName returns nil, nil when the list does not exist.
	GetByName(ctx context.Context, name string) (*models.List, error)
	GetAll(ctx context.Context) ([]models.List, error)
	GetAllGroups(ctx context.Context) ([]models.ListGroup, error)
	SaveList(ctx context.Context, list *models.List) error
	SaveGroup(ctx context.Context, group *models.ListGroup) error
}

type LoadErrorRepository interface {
	Record(ctx context.Context, loadError *models.LoadError) error
}

type ResendRepository interface {
	// NextPending returns the oldest queued resend together with the
	// message it points at; nil, nil, nil when the queue is empty.
	// Assumes a single consumer process.
	NextPending(ctx context.Context) (*models.ResendMessage, *models.Message, error)
	Delete(ctx context.Context, id int) error
}
