package models

import (
	"time"

	"github.com/lib/pq"
)

// Hidden-message reason codes, stored in messages.hiddenstatus.
// 0 / NULL means visible.
const (
	HiddenReasonVirus          = 1
	HiddenReasonViolatesPolicy = 2
	HiddenReasonPrivacy        = 3
	HiddenReasonCorrupt        = 4
)

var HiddenReasons = map[int]string{
	HiddenReasonVirus:          "virus",
	HiddenReasonViolatesPolicy: "violates policies",
	HiddenReasonPrivacy:        "privacy",
	HiddenReasonCorrupt:        "corrupt",
}

// Message is one archived mail. Identity is the normalized messageid
// (angle brackets stripped, internal whitespace removed); the row is
// never deleted in normal operation, only overwritten by reparse or
// hidden by moderation.
type Message struct {
	ID            int            `gorm:"column:id;primaryKey;autoIncrement"`
	MessageID     string         `gorm:"column:messageid;type:varchar(1000);uniqueIndex;not null"`
	ThreadID      int64          `gorm:"column:threadid;index;not null"`
	ParentID      *int           `gorm:"column:parentid;index"`
	From          string         `gorm:"column:_from;type:text;not null"`
	To            string         `gorm:"column:_to;type:text;not null"`
	CC            string         `gorm:"column:cc;type:text;not null"`
	Subject       string         `gorm:"column:subject;type:text;not null"`
	Date          time.Time      `gorm:"column:date;type:timestamptz;index;not null"`
	HasAttachment bool           `gorm:"column:has_attachment;not null;default:false"`
	HiddenStatus  *int           `gorm:"column:hiddenstatus"`
	BodyTxt       string         `gorm:"column:bodytxt;type:text;not null"`
	RawTxt        []byte         `gorm:"column:rawtxt;type:bytea"`
	Refs          pq.StringArray `gorm:"column:refs;type:text[]"`
	LoadedAt      time.Time      `gorm:"column:loaded_at;type:timestamptz;default:current_timestamp"`
}

func (Message) TableName() string {
	return "messages"
}
