package models

// DefaultMaxStorageBytes is the quota applied when max_storage_bytes is NULL.
// A stored value of 0 means unlimited.
const DefaultMaxStorageBytes int64 = 1 << 30

type User struct {
	ID              uint     `json:"id" gorm:"primaryKey;autoIncrement"`
	Username        string   `json:"username" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash    string   `json:"-" gorm:"column:password;type:text;not null"`
	IsAdmin         bool     `json:"isAdmin" gorm:"not null;default:false"`
	MaxStorageBytes *int64   `json:"maxStorageBytes,omitempty"`
	Folders         []Folder `json:"-" gorm:"foreignKey:UserID"`
	Files           []File   `json:"-" gorm:"foreignKey:UserID"`
}

func (User) TableName() string {
	return "users"
}

// QuotaLimit resolves the effective ceiling in bytes. Zero means unlimited.
func (u *User) QuotaLimit() int64 {
	if u.MaxStorageBytes == nil {
		return DefaultMaxStorageBytes
	}
	return *u.MaxStorageBytes
}
