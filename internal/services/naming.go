package services

import (
	"fmt"
	"strings"

	"github.com/Nexavor/yidongwagnpan/internal/models"
	"gorm.io/gorm"
)

const (
	kindFile   = "file"
	kindFolder = "folder"
)

// splitFileName separates the stem from the last extension. A leading dot is
// part of the stem, so ".bashrc" has no extension.
func splitFileName(name string) (stem, ext string) {
	idx := strings.LastIndex(name, ".")
	if idx <= 0 {
		return name, ""
	}
	return name[:idx], name[idx:]
}

// UniqueName returns desired unchanged when no active sibling occupies it in
// the folder, otherwise probes "stem (n)ext" for n = 1, 2, ... until a free
// name is found. Soft-deleted siblings do not count as occupants.
func UniqueName(db *gorm.DB, folderID uint, desired string, userID uint, kind string) (string, error) {
	stem, ext := desired, ""
	if kind == kindFile {
		stem, ext = splitFileName(desired)
	}

	name := desired
	for n := 1; ; n++ {
		taken, err := nameTaken(db, folderID, name, userID, kind)
		if err != nil {
			return "", err
		}
		if !taken {
			return name, nil
		}
		name = fmt.Sprintf("%s (%d)%s", stem, n, ext)
	}
}

func nameTaken(db *gorm.DB, folderID uint, name string, userID uint, kind string) (bool, error) {
	var count int64
	var err error
	if kind == kindFile {
		err = db.Model(&models.File{}).
			Where("folder_id = ? AND file_name = ? AND user_id = ? AND is_deleted = ?", folderID, name, userID, false).
			Count(&count).Error
	} else {
		err = db.Model(&models.Folder{}).
			Where("parent_id = ? AND name = ? AND user_id = ? AND is_deleted = ?", folderID, name, userID, false).
			Count(&count).Error
	}
	return count > 0, err
}
