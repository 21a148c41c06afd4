package models

type AuthToken struct {
	ID        uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID    uint   `json:"userID" gorm:"not null;index"`
	Token     string `json:"-" gorm:"uniqueIndex;not null"`
	ExpiresAt int64  `json:"expiresAt" gorm:"not null"`

	User User `json:"-" gorm:"foreignKey:UserID"`
}

func (AuthToken) TableName() string {
	return "auth_tokens"
}
