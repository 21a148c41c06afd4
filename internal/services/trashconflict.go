package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/Nexavor/yidongwagnpan/internal/models"
	"github.com/Nexavor/yidongwagnpan/pkg/utils"
	"gorm.io/gorm"
)

// trashPlaceholder builds a guaranteed-unique name for a trashed item that
// must vacate its slot. The original name stays as the prefix so the item is
// still recognizable in the trash view.
func trashPlaceholder(name string) string {
	rand, err := utils.RandomHex(3)
	if err != nil {
		rand = fmt.Sprintf("%06x", time.Now().UnixNano()&0xffffff)
	}
	return fmt.Sprintf("%s_deleted_%d_%s", name, time.Now().UnixMilli(), rand)
}

// resolveFileTrashConflict handles a unique-violation on a file slot: when the
// occupant is soft-deleted it is renamed out of the way and true is returned,
// telling the caller to retry the failed write once. An active or missing
// occupant returns false; that conflict is genuine.
func resolveFileTrashConflict(db *gorm.DB, folderID uint, name string, userID uint) (bool, error) {
	var occupant models.File
	err := db.Where("folder_id = ? AND file_name = ? AND user_id = ?", folderID, name, userID).
		First(&occupant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !occupant.IsDeleted {
		return false, nil
	}

	err = db.Model(&models.File{}).
		Where("message_id = ?", occupant.MessageID).
		Update("file_name", trashPlaceholder(name)).Error
	if err != nil {
		return false, err
	}
	return true, nil
}

func resolveFolderTrashConflict(db *gorm.DB, parentID uint, name string, userID uint) (bool, error) {
	var occupant models.Folder
	err := db.Where("parent_id = ? AND name = ? AND user_id = ?", parentID, name, userID).
		First(&occupant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !occupant.IsDeleted {
		return false, nil
	}

	err = db.Model(&models.Folder{}).
		Where("id = ?", occupant.ID).
		Update("name", trashPlaceholder(name)).Error
	if err != nil {
		return false, err
	}
	return true, nil
}

// writeWithTrashRetry runs write inside a savepoint so a unique violation does
// not poison the surrounding transaction, then lets resolve relocate a trashed
// occupant and retries exactly once. An unresolved violation is a Conflict.
func writeWithTrashRetry(tx *gorm.DB, write func(*gorm.DB) error, resolve func(*gorm.DB) (bool, error)) error {
	err := tx.Transaction(write)
	if err == nil || !isUniqueViolation(err) {
		return err
	}

	resolved, rerr := resolve(tx)
	if rerr != nil {
		return rerr
	}
	if !resolved {
		return ErrConflict
	}
	return tx.Transaction(write)
}
