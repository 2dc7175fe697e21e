package models

import "time"

// LoadError is the audit row written for every message that failed
// analysis, so a batch never aborts and failures stay reprocessable.
type LoadError struct {
	ID        int       `gorm:"column:id;primaryKey;autoIncrement"`
	ListID    int       `gorm:"column:listid;not null"`
	MsgID     string    `gorm:"column:msgid;type:varchar(1000);not null"`
	SrcType   string    `gorm:"column:srctype;type:varchar(50);not null"`
	Src       string    `gorm:"column:src;type:text;not null"`
	Err       string    `gorm:"column:err;type:text;not null"`
	RunID     string    `gorm:"column:runid;type:varchar(50);index"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz;default:current_timestamp"`
}

func (LoadError) TableName() string {
	return "loaderror"
}
