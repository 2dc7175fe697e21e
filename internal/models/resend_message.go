package models

import "time"

// ResendMessage queues a stored message for one-shot SMTP redelivery
// to an authenticated user. Rows are deleted after the single attempt
// regardless of outcome.
type ResendMessage struct {
	ID        int       `gorm:"column:id;primaryKey;autoIncrement"`
	MessageID int       `gorm:"column:message;index;not null"`
	SendTo    string    `gorm:"column:sendto;type:varchar(500);not null"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz;default:current_timestamp"`
}

func (ResendMessage) TableName() string {
	return "resend_messages"
}
