package models

// Attachment belongs to exactly one message. Overwriting a message
// deletes and recreates its attachments.
type Attachment struct {
	ID          int    `gorm:"column:id;primaryKey;autoIncrement"`
	MessageID   int    `gorm:"column:message;index;not null"`
	Filename    string `gorm:"column:filename;type:varchar(1000);not null"`
	ContentType string `gorm:"column:contenttype;type:varchar(1000);not null"`
	Attachment  []byte `gorm:"column:attachment;type:bytea;not null"`
}

func (Attachment) TableName() string {
	return "attachments"
}
