package models

// UnresolvedMessage records a parent messageid that a stored message
// claims but that has not arrived yet. Priority is the reference's
// position in the candidate chain, lower means more authoritative.
// Rows are deleted once the referenced message arrives and adopts the
// child.
type UnresolvedMessage struct {
	MessageID int    `gorm:"column:message;primaryKey;autoIncrement:false"`
	Priority  int    `gorm:"column:priority;primaryKey;autoIncrement:false"`
	MsgID     string `gorm:"column:msgid;type:varchar(1000);index;not null"`
}

func (UnresolvedMessage) TableName() string {
	return "unresolved_messages"
}
