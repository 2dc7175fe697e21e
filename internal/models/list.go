package models

type ListGroup struct {
	GroupID   int    `gorm:"column:groupid;primaryKey"`
	GroupName string `gorm:"column:groupname;type:varchar(200);not null"`
	SortKey   int    `gorm:"column:sortkey;not null"`
}

func (ListGroup) TableName() string {
	return "listgroups"
}

type List struct {
	ListID      int    `gorm:"column:listid;primaryKey"`
	ListName    string `gorm:"column:listname;type:varchar(200);uniqueIndex;not null"`
	ShortDesc   string `gorm:"column:shortdesc;type:text;not null"`
	Description string `gorm:"column:description;type:text;not null"`
	Active      bool   `gorm:"column:active;not null"`
	GroupID     int    `gorm:"column:groupid;not null"`
}

func (List) TableName() string {
	return "lists"
}

// ListThread tags a thread onto a list. Cross-posted threads appear on
// several lists; a thread is tagged onto a list at most once.
type ListThread struct {
	ThreadID int64 `gorm:"column:threadid;primaryKey;autoIncrement:false"`
	ListID   int   `gorm:"column:listid;primaryKey;autoIncrement:false"`
}

func (ListThread) TableName() string {
	return "list_threads"
}

// ListMonth marks that at least one message exists for a list in a
// given month. The first observation of a combination drives a
// frontend cache purge.
type ListMonth struct {
	ListID int `gorm:"column:listid;primaryKey;autoIncrement:false"`
	Year   int `gorm:"column:year;primaryKey;autoIncrement:false"`
	Month  int `gorm:"column:month;primaryKey;autoIncrement:false"`
}

func (ListMonth) TableName() string {
	return "list_months"
}
