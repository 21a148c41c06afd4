package models

type Folder struct {
	ID       uint    `json:"id" gorm:"primaryKey;autoIncrement"`
	Name     string  `json:"name" gorm:"type:varchar(255);not null;uniqueIndex:uniq_folder_slot,priority:1"`
	ParentID *uint   `json:"parentID,omitempty" gorm:"uniqueIndex:uniq_folder_slot,priority:2;index"`
	UserID   uint    `json:"userID" gorm:"not null;uniqueIndex:uniq_folder_slot,priority:3;index"`
	Password *string `json:"-" gorm:"type:text"`

	IsDeleted bool   `json:"isDeleted" gorm:"not null;default:false;index"`
	DeletedAt *int64 `json:"deletedAt,omitempty"`

	ShareToken     *string `json:"-" gorm:"index"`
	ShareExpiresAt *int64  `json:"-"`
	SharePassword  *string `json:"-"`

	Parent   *Folder  `json:"-" gorm:"foreignKey:ParentID"`
	Children []Folder `json:"-" gorm:"foreignKey:ParentID"`
	Files    []File   `json:"-" gorm:"foreignKey:FolderID"`
}

func (Folder) TableName() string {
	return "folders"
}

// IsLocked reports whether the folder carries a non-empty password.
func (f *Folder) IsLocked() bool {
	return f.Password != nil && *f.Password != ""
}

// IsRoot reports whether the folder is the owner's root (no parent).
func (f *Folder) IsRoot() bool {
	return f.ParentID == nil
}
