package models

// Setting holds process-wide configuration documents, one JSON value per key.
type Setting struct {
	Key   string `gorm:"primaryKey;type:varchar(64)"`
	Value string `gorm:"type:text;not null"`
}

func (Setting) TableName() string {
	return "settings"
}
