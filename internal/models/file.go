package models

// File rows carry two identifiers: MessageID is the stable logical id used
// everywhere inside the system, FileID is whatever locator the storage backend
// returned for the payload. TgMessageID is only set by channel-style backends
// that need a native message reference for physical deletion.
type File struct {
	MessageID   string  `json:"messageID" gorm:"primaryKey;column:message_id"`
	FileName    string  `json:"fileName" gorm:"type:varchar(255);not null;uniqueIndex:uniq_file_slot,priority:1"`
	MimeType    string  `json:"mimeType" gorm:"column:mimetype;type:varchar(255)"`
	FileID      string  `json:"-" gorm:"column:file_id;type:text;not null"`
	ThumbFileID *string `json:"-" gorm:"column:thumb_file_id;type:text"`
	TgMessageID *int64  `json:"-" gorm:"column:tg_message_id"`
	Date        int64   `json:"date"`
	Size        int64   `json:"size" gorm:"not null;default:0"`
	FolderID    uint    `json:"folderID" gorm:"uniqueIndex:uniq_file_slot,priority:2;index"`
	UserID      uint    `json:"userID" gorm:"not null;uniqueIndex:uniq_file_slot,priority:3;index"`
	StorageType string  `json:"storageType" gorm:"type:varchar(32)"`

	IsDeleted bool   `json:"isDeleted" gorm:"not null;default:false;index"`
	DeletedAt *int64 `json:"deletedAt,omitempty"`

	ShareToken     *string `json:"-" gorm:"index"`
	ShareExpiresAt *int64  `json:"-"`
	SharePassword  *string `json:"-"`

	Folder *Folder `json:"-" gorm:"foreignKey:FolderID"`
}

func (File) TableName() string {
	return "files"
}
