package repository

import (
	"gorm.io/gorm"

	"github.com/archiveworks/mailarch/interfaces"
	"github.com/archiveworks/mailarch/internal/models"
)

type Repositories struct {
	db *gorm.DB

	Messages   interfaces.MessageRepository
	Lists      interfaces.ListRepository
	LoadErrors interfaces.LoadErrorRepository
	Resend     interfaces.ResendRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		db:         db,
		Messages:   NewMessageRepository(db),
		Lists:      NewListRepository(db),
		LoadErrors: NewLoadErrorRepository(db),
		Resend:     NewResendRepository(db),
	}
}

func MigrateDB(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.ListGroup{},
		&models.List{},
		&models.Message{},
		&models.Attachment{},
		&models.ListThread{},
		&models.ListMonth{},
		&models.UnresolvedMessage{},
		&models.LoadError{},
		&models.ResendMessage{},
	)
	if err != nil {
		return err
	}

	// Thread ids are allocated from a dedicated sequence, lazily and
	// outside any row default.
	return db.Exec("CREATE SEQUENCE IF NOT EXISTS threadid_seq").Error
}
