package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Nexavor/yidongwagnpan/internal/models"
	"github.com/Nexavor/yidongwagnpan/internal/storage"
	"github.com/Nexavor/yidongwagnpan/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConflictMode selects how a move, merge or restore treats an active namesake
// already occupying the destination slot.
type ConflictMode string

const (
	ConflictOverwrite ConflictMode = "overwrite"
	ConflictRename    ConflictMode = "rename"
	ConflictSkip      ConflictMode = "skip"
)

// ParseConflictMode validates a caller-supplied mode. An empty value defaults
// to rename, the non-destructive choice.
func ParseConflictMode(s string) (ConflictMode, error) {
	switch ConflictMode(s) {
	case ConflictOverwrite, ConflictRename, ConflictSkip:
		return ConflictMode(s), nil
	case "":
		return ConflictRename, nil
	}
	return "", fmt.Errorf("invalid conflict mode %q", s)
}

// BackendProvider yields the payload backend currently selected by the
// storage configuration.
type BackendProvider interface {
	Current(ctx context.Context) (storage.Backend, error)
}

// Lifecycle implements the tree-mutation engine: soft-delete, purge, move,
// merge and restore over the folder/file hierarchy. Metadata mutations run
// inside transactions; payload removal goes through the injected backend and
// is best-effort only.
type Lifecycle struct {
	DB       *gorm.DB
	Backends BackendProvider
}

func NewLifecycle(db *gorm.DB, backends BackendProvider) *Lifecycle {
	return &Lifecycle{DB: db, Backends: backends}
}

// NewMessageID issues the time-derived logical id for a file row. The time
// prefix keeps ids roughly sortable by creation, the uuid tail makes them
// collision-free.
func NewMessageID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// DeletionScope is the full transitive content of a folder, including the
// folder itself.
type DeletionScope struct {
	Files   []models.File
	Folders []models.Folder
}

// collectDeletionScope walks the subtree with an explicit stack, so depth is
// bounded by memory rather than the call stack. Folders are appended parent
// before children.
func collectDeletionScope(db *gorm.DB, folderID, userID uint) (*DeletionScope, error) {
	scope := &DeletionScope{}
	stack := []uint{folderID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		var folder models.Folder
		err := db.First(&folder, "id = ? AND user_id = ?", id, userID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		scope.Folders = append(scope.Folders, folder)

		var files []models.File
		if err := db.Where("folder_id = ? AND user_id = ?", id, userID).Find(&files).Error; err != nil {
			return nil, err
		}
		scope.Files = append(scope.Files, files...)

		var childIDs []uint
		err = db.Model(&models.Folder{}).
			Where("parent_id = ? AND user_id = ?", id, userID).
			Order("id").
			Pluck("id", &childIDs).Error
		if err != nil {
			return nil, err
		}
		for i := len(childIDs) - 1; i >= 0; i-- {
			stack = append(stack, childIDs[i])
		}
	}
	return scope, nil
}

func (l *Lifecycle) CollectDeletionScope(ctx context.Context, folderID, userID uint) (*DeletionScope, error) {
	return collectDeletionScope(l.DB.WithContext(ctx), folderID, userID)
}

func scopeLockedFolder(folders []models.Folder) *models.Folder {
	for i := range folders {
		if folders[i].IsLocked() {
			return &folders[i]
		}
	}
	return nil
}

// isDescendant reports whether candidate is ancestor itself or lies inside
// its subtree. The walk goes upward from candidate, so cost is bounded by
// tree depth; a repeated id means the hierarchy is corrupt.
func isDescendant(db *gorm.DB, ancestorID, candidateID, userID uint) (bool, error) {
	current := candidateID
	visited := make(map[uint]struct{})
	for {
		if current == ancestorID {
			return true, nil
		}
		if _, ok := visited[current]; ok {
			return false, fmt.Errorf("folder hierarchy contains a cycle at id %d", current)
		}
		visited[current] = struct{}{}

		var folder models.Folder
		err := db.First(&folder, "id = ? AND user_id = ?", current, userID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if folder.ParentID == nil {
			return false, nil
		}
		current = *folder.ParentID
	}
}

// EnsureRootFolder returns the user's root folder, creating it on first
// login.
func (l *Lifecycle) EnsureRootFolder(ctx context.Context, userID uint) (*models.Folder, error) {
	db := l.DB.WithContext(ctx)
	var root models.Folder
	err := db.First(&root, "parent_id IS NULL AND user_id = ?", userID).Error
	if err == nil {
		return &root, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	root = models.Folder{Name: "root", UserID: userID}
	if err := db.Create(&root).Error; err != nil {
		return nil, err
	}
	return &root, nil
}

func rootFolder(db *gorm.DB, userID uint) (*models.Folder, error) {
	var root models.Folder
	err := db.First(&root, "parent_id IS NULL AND user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: root folder", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &root, nil
}

// CreateFolder inserts a folder under parent. An active namesake is a
// Conflict; a trashed namesake is displaced and the insert retried once.
func (l *Lifecycle) CreateFolder(ctx context.Context, name string, parentID, userID uint) (*models.Folder, error) {
	db := l.DB.WithContext(ctx)

	var parent models.Folder
	err := db.First(&parent, "id = ? AND user_id = ? AND is_deleted = ?", parentID, userID, false).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: parent folder", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	taken, err := nameTaken(db, parentID, name, userID, kindFolder)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, fmt.Errorf("%w: %s", ErrConflict, name)
	}

	folder := &models.Folder{Name: name, ParentID: &parentID, UserID: userID}
	err = writeWithTrashRetry(db,
		func(tx *gorm.DB) error { return tx.Create(folder).Error },
		func(tx *gorm.DB) (bool, error) { return resolveFolderTrashConflict(tx, parentID, name, userID) })
	if err != nil {
		return nil, err
	}
	return folder, nil
}

// AddFile persists the metadata row for an uploaded payload. The display name
// is disambiguated against active siblings up front, so uploads never surface
// naming conflicts to the caller.
func (l *Lifecycle) AddFile(ctx context.Context, file *models.File) (*models.File, error) {
	db := l.DB.WithContext(ctx)

	if file.MessageID == "" {
		file.MessageID = NewMessageID()
	}
	if file.Date == 0 {
		file.Date = time.Now().UnixMilli()
	}

	name, err := UniqueName(db, file.FolderID, file.FileName, file.UserID, kindFile)
	if err != nil {
		return nil, err
	}
	file.FileName = name

	err = writeWithTrashRetry(db,
		func(tx *gorm.DB) error { return tx.Create(file).Error },
		func(tx *gorm.DB) (bool, error) {
			return resolveFileTrashConflict(tx, file.FolderID, file.FileName, file.UserID)
		})
	if err != nil {
		return nil, err
	}
	return file, nil
}

// RenameFile renames an active file in place. Active namesakes are a
// Conflict; a trashed namesake is displaced and the rename retried once.
func (l *Lifecycle) RenameFile(ctx context.Context, messageID, newName string, userID uint) (*models.File, error) {
	db := l.DB.WithContext(ctx)

	var file models.File
	err := db.First(&file, "message_id = ? AND user_id = ? AND is_deleted = ?", messageID, userID, false).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: file", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if file.FileName == newName {
		return &file, nil
	}

	taken, err := nameTaken(db, file.FolderID, newName, userID, kindFile)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, fmt.Errorf("%w: %s", ErrConflict, newName)
	}

	err = writeWithTrashRetry(db,
		func(tx *gorm.DB) error {
			return tx.Model(&models.File{}).Where("message_id = ?", file.MessageID).
				Update("file_name", newName).Error
		},
		func(tx *gorm.DB) (bool, error) {
			return resolveFileTrashConflict(tx, file.FolderID, newName, userID)
		})
	if err != nil {
		return nil, err
	}
	file.FileName = newName
	return &file, nil
}

func (l *Lifecycle) RenameFolder(ctx context.Context, folderID uint, newName string, userID uint) (*models.Folder, error) {
	db := l.DB.WithContext(ctx)

	var folder models.Folder
	err := db.First(&folder, "id = ? AND user_id = ? AND is_deleted = ?", folderID, userID, false).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && folder.IsRoot()) {
		return nil, fmt.Errorf("%w: folder", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if folder.Name == newName {
		return &folder, nil
	}

	taken, err := nameTaken(db, *folder.ParentID, newName, userID, kindFolder)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, fmt.Errorf("%w: %s", ErrConflict, newName)
	}

	parentID := *folder.ParentID
	err = writeWithTrashRetry(db,
		func(tx *gorm.DB) error {
			return tx.Model(&models.Folder{}).Where("id = ?", folder.ID).
				Update("name", newName).Error
		},
		func(tx *gorm.DB) (bool, error) {
			return resolveFolderTrashConflict(tx, parentID, newName, userID)
		})
	if err != nil {
		return nil, err
	}
	folder.Name = newName
	return &folder, nil
}

// SoftDeleteItems moves the targeted files and folder subtrees to trash. The
// whole subtree of each folder transitions together under one timestamp.
// Locked folders anywhere in scope refuse the operation; root folders are
// never trashed. Already-deleted items are left untouched.
func (l *Lifecycle) SoftDeleteItems(ctx context.Context, fileIDs []string, folderIDs []uint, userID uint) error {
	db := l.DB.WithContext(ctx)
	now := time.Now().UnixMilli()

	fileScope := append([]string(nil), fileIDs...)
	var folderScope []uint
	for _, id := range folderIDs {
		var folder models.Folder
		err := db.First(&folder, "id = ? AND user_id = ?", id, userID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if folder.IsRoot() {
			continue
		}

		scope, err := collectDeletionScope(db, id, userID)
		if err != nil {
			return err
		}
		if locked := scopeLockedFolder(scope.Folders); locked != nil {
			return fmt.Errorf("%w: %s", ErrLockedFolder, locked.Name)
		}
		for i := range scope.Folders {
			folderScope = append(folderScope, scope.Folders[i].ID)
		}
		for i := range scope.Files {
			fileScope = append(fileScope, scope.Files[i].MessageID)
		}
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if len(folderScope) > 0 {
			err := tx.Model(&models.Folder{}).
				Where("id IN ? AND user_id = ? AND is_deleted = ?", folderScope, userID, false).
				Updates(map[string]interface{}{"is_deleted": true, "deleted_at": now}).Error
			if err != nil {
				return err
			}
		}
		if len(fileScope) > 0 {
			err := tx.Model(&models.File{}).
				Where("message_id IN ? AND user_id = ? AND is_deleted = ?", fileScope, userID, false).
				Updates(map[string]interface{}{"is_deleted": true, "deleted_at": now}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Purge permanently removes the targeted files and folder subtrees. Payload
// removal happens first and is best-effort: failures are logged and the row
// deletion proceeds, since metadata consistency must not depend on a
// possibly-unreachable backend.
func (l *Lifecycle) Purge(ctx context.Context, fileIDs []string, folderIDs []uint, userID uint) error {
	db := l.DB.WithContext(ctx)

	var files []models.File
	if len(fileIDs) > 0 {
		if err := db.Where("message_id IN ? AND user_id = ?", fileIDs, userID).Find(&files).Error; err != nil {
			return err
		}
	}

	var folderScope []uint
	for _, id := range folderIDs {
		var folder models.Folder
		err := db.First(&folder, "id = ? AND user_id = ?", id, userID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if folder.IsRoot() {
			continue
		}

		scope, err := collectDeletionScope(db, id, userID)
		if err != nil {
			return err
		}
		if locked := scopeLockedFolder(scope.Folders); locked != nil {
			return fmt.Errorf("%w: %s", ErrLockedFolder, locked.Name)
		}
		for i := range scope.Folders {
			folderScope = append(folderScope, scope.Folders[i].ID)
		}
		files = append(files, scope.Files...)
	}

	seen := make(map[string]struct{}, len(files))
	rowIDs := make([]string, 0, len(files))
	removals := make([]storage.RemovalFile, 0, len(files))
	for i := range files {
		f := &files[i]
		if _, ok := seen[f.MessageID]; ok {
			continue
		}
		seen[f.MessageID] = struct{}{}
		rowIDs = append(rowIDs, f.MessageID)
		removals = append(removals, storage.RemovalFile{
			MessageID:   f.MessageID,
			FileID:      f.FileID,
			ThumbFileID: f.ThumbFileID,
			TgMessageID: f.TgMessageID,
		})
	}

	if len(removals) > 0 && l.Backends != nil {
		backend, err := l.Backends.Current(ctx)
		if err != nil {
			logger.Warn("purge_backend_unavailable", map[string]interface{}{
				"error": err.Error(),
				"count": len(removals),
			})
		} else if err := backend.Remove(ctx, removals, userID); err != nil {
			logger.Error("purge_payload_removal_failed", err, map[string]interface{}{
				"count": len(removals),
			})
		}
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if len(rowIDs) > 0 {
			if err := tx.Where("message_id IN ? AND user_id = ?", rowIDs, userID).Delete(&models.File{}).Error; err != nil {
				return err
			}
		}
		if len(folderScope) > 0 {
			if err := tx.Where("id IN ? AND user_id = ?", folderScope, userID).Delete(&models.Folder{}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// EmptyTrash purges every item currently visible at the top level of the
// user's trash; descendants go with their ancestors through scope collection.
func (l *Lifecycle) EmptyTrash(ctx context.Context, userID uint) error {
	db := l.DB.WithContext(ctx)
	files, folders, err := trashTopLevel(db, userID)
	if err != nil {
		return err
	}

	fileIDs := make([]string, 0, len(files))
	for i := range files {
		fileIDs = append(fileIDs, files[i].MessageID)
	}
	folderIDs := make([]uint, 0, len(folders))
	for i := range folders {
		folderIDs = append(folderIDs, folders[i].ID)
	}
	if len(fileIDs) == 0 && len(folderIDs) == 0 {
		return nil
	}
	return l.Purge(ctx, fileIDs, folderIDs, userID)
}

// MoveReport summarizes a batch move or restore.
type MoveReport struct {
	Moved   int `json:"moved"`
	Skipped int `json:"skipped"`
}

// MoveItems re-parents the targeted items into targetFolderID, resolving
// active namesakes per mode. Moving a folder into itself or its own
// descendant is rejected before anything mutates.
func (l *Lifecycle) MoveItems(ctx context.Context, fileIDs []string, folderIDs []uint, targetFolderID, userID uint, mode ConflictMode) (*MoveReport, error) {
	db := l.DB.WithContext(ctx)

	var target models.Folder
	err := db.First(&target, "id = ? AND user_id = ? AND is_deleted = ?", targetFolderID, userID, false).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: target folder", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	for _, id := range folderIDs {
		contained, err := isDescendant(db, id, targetFolderID, userID)
		if err != nil {
			return nil, err
		}
		if contained {
			return nil, ErrSelfContainment
		}
	}

	report := &MoveReport{}
	err = db.Transaction(func(tx *gorm.DB) error {
		for _, id := range fileIDs {
			var file models.File
			err := tx.First(&file, "message_id = ? AND user_id = ? AND is_deleted = ?", id, userID, false).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				report.Skipped++
				continue
			}
			if err != nil {
				return err
			}
			if file.FolderID == targetFolderID {
				report.Skipped++
				continue
			}
			moved, err := l.moveFile(tx, &file, targetFolderID, mode)
			if err != nil {
				return err
			}
			bumpReport(report, moved)
		}

		for _, id := range folderIDs {
			var folder models.Folder
			err := tx.First(&folder, "id = ? AND user_id = ? AND is_deleted = ?", id, userID, false).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				report.Skipped++
				continue
			}
			if err != nil {
				return err
			}
			if folder.IsRoot() || (folder.ParentID != nil && *folder.ParentID == targetFolderID) {
				report.Skipped++
				continue
			}
			moved, err := l.moveFolder(tx, &folder, &target, mode)
			if err != nil {
				return err
			}
			bumpReport(report, moved)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func bumpReport(r *MoveReport, moved bool) {
	if moved {
		r.Moved++
	} else {
		r.Skipped++
	}
}

func (l *Lifecycle) moveFile(tx *gorm.DB, file *models.File, targetID uint, mode ConflictMode) (bool, error) {
	occupant, err := activeFileIn(tx, targetID, file.FileName, file.UserID)
	if err != nil {
		return false, err
	}
	if occupant != nil {
		switch mode {
		case ConflictOverwrite:
			if err := trashFileAside(tx, occupant); err != nil {
				return false, err
			}
			return true, moveFileRow(tx, file, targetID, file.FileName)
		case ConflictRename:
			name, err := UniqueName(tx, targetID, file.FileName, file.UserID, kindFile)
			if err != nil {
				return false, err
			}
			return true, moveFileRow(tx, file, targetID, name)
		default:
			return false, nil
		}
	}
	return true, moveFileRow(tx, file, targetID, file.FileName)
}

func (l *Lifecycle) moveFolder(tx *gorm.DB, folder, target *models.Folder, mode ConflictMode) (bool, error) {
	occupant, err := activeFolderIn(tx, target.ID, folder.Name, folder.UserID)
	if err != nil {
		return false, err
	}
	if occupant != nil {
		switch mode {
		case ConflictOverwrite:
			if err := l.mergeFolders(tx, folder, occupant, mode); err != nil {
				return false, err
			}
			return true, deleteIfEmptyShell(tx, folder.ID, folder.UserID)
		case ConflictRename:
			name, err := UniqueName(tx, target.ID, folder.Name, folder.UserID, kindFolder)
			if err != nil {
				return false, err
			}
			return true, moveFolderRow(tx, folder, target.ID, name)
		default:
			return false, nil
		}
	}
	return true, moveFolderRow(tx, folder, target.ID, folder.Name)
}

// MergeFolders folds one active folder's contents into another and drops the
// emptied source shell. Merging a folder into itself or its own subtree is
// rejected.
func (l *Lifecycle) MergeFolders(ctx context.Context, sourceID, targetID, userID uint, mode ConflictMode) error {
	db := l.DB.WithContext(ctx)

	var source models.Folder
	err := db.First(&source, "id = ? AND user_id = ? AND is_deleted = ?", sourceID, userID, false).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: source folder", ErrNotFound)
	}
	if err != nil {
		return err
	}
	var target models.Folder
	err = db.First(&target, "id = ? AND user_id = ? AND is_deleted = ?", targetID, userID, false).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: target folder", ErrNotFound)
	}
	if err != nil {
		return err
	}

	contained, err := isDescendant(db, sourceID, targetID, userID)
	if err != nil {
		return err
	}
	if contained {
		return ErrSelfContainment
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := l.mergeFolders(tx, &source, &target, mode); err != nil {
			return err
		}
		return deleteIfEmptyShell(tx, source.ID, userID)
	})
}

type mergeJob struct {
	sourceID uint
	targetID uint
}

// mergeFolders folds the contents of source into target. Sub-folders with an
// active namesake in the target are merged in turn via an explicit work
// queue; namesake-free sub-folders are re-parented wholesale without being
// walked. Source shells emptied by a merge are deleted children-first.
func (l *Lifecycle) mergeFolders(tx *gorm.DB, source, target *models.Folder, mode ConflictMode) error {
	userID := source.UserID
	queue := []mergeJob{{source.ID, target.ID}}
	var emptied []uint

	for len(queue) > 0 {
		job := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		var files []models.File
		err := tx.Where("folder_id = ? AND user_id = ? AND is_deleted = ?", job.sourceID, userID, false).
			Find(&files).Error
		if err != nil {
			return err
		}
		for i := range files {
			if _, err := l.moveFile(tx, &files[i], job.targetID, mode); err != nil {
				return err
			}
		}

		var subs []models.Folder
		err = tx.Where("parent_id = ? AND user_id = ? AND is_deleted = ?", job.sourceID, userID, false).
			Order("id").
			Find(&subs).Error
		if err != nil {
			return err
		}
		for i := range subs {
			sub := &subs[i]
			occupant, err := activeFolderIn(tx, job.targetID, sub.Name, userID)
			if err != nil {
				return err
			}
			if occupant == nil {
				if err := moveFolderRow(tx, sub, job.targetID, sub.Name); err != nil {
					return err
				}
				continue
			}
			switch mode {
			case ConflictOverwrite:
				queue = append(queue, mergeJob{sub.ID, occupant.ID})
				emptied = append(emptied, sub.ID)
			case ConflictRename:
				name, err := UniqueName(tx, job.targetID, sub.Name, userID, kindFolder)
				if err != nil {
					return err
				}
				if err := moveFolderRow(tx, sub, job.targetID, name); err != nil {
					return err
				}
			default:
			}
		}
	}

	// emptied is in discovery order, ancestors first; delete in reverse so a
	// parent's emptiness check sees its merged children already gone.
	for i := len(emptied) - 1; i >= 0; i-- {
		if err := deleteIfEmptyShell(tx, emptied[i], userID); err != nil {
			return err
		}
	}
	return nil
}

// RestoreItems brings trashed items back to their original parent, or to the
// root when that parent is gone or itself still trashed. Folder restores
// cascade to the whole previously-deleted subtree.
func (l *Lifecycle) RestoreItems(ctx context.Context, fileIDs []string, folderIDs []uint, userID uint, mode ConflictMode) (*MoveReport, error) {
	db := l.DB.WithContext(ctx)
	root, err := rootFolder(db, userID)
	if err != nil {
		return nil, err
	}

	report := &MoveReport{}
	err = db.Transaction(func(tx *gorm.DB) error {
		for _, id := range fileIDs {
			var file models.File
			err := tx.First(&file, "message_id = ? AND user_id = ? AND is_deleted = ?", id, userID, true).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				report.Skipped++
				continue
			}
			if err != nil {
				return err
			}

			targetID, err := restoreTarget(tx, file.FolderID, root.ID, userID)
			if err != nil {
				return err
			}
			restored, err := l.restoreFile(tx, &file, targetID, mode)
			if err != nil {
				return err
			}
			bumpReport(report, restored)
		}

		for _, id := range folderIDs {
			var folder models.Folder
			err := tx.First(&folder, "id = ? AND user_id = ? AND is_deleted = ?", id, userID, true).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				report.Skipped++
				continue
			}
			if err != nil {
				return err
			}

			targetID := root.ID
			if folder.ParentID != nil {
				targetID, err = restoreTarget(tx, *folder.ParentID, root.ID, userID)
				if err != nil {
					return err
				}
			}
			restored, err := l.restoreFolder(tx, &folder, targetID, mode)
			if err != nil {
				return err
			}
			bumpReport(report, restored)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// restoreTarget picks the original parent when it still exists outside the
// trash, otherwise the root.
func restoreTarget(tx *gorm.DB, originalID, rootID, userID uint) (uint, error) {
	var parent models.Folder
	err := tx.First(&parent, "id = ? AND user_id = ?", originalID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return rootID, nil
	}
	if err != nil {
		return 0, err
	}
	if parent.IsDeleted {
		return rootID, nil
	}
	return parent.ID, nil
}

func (l *Lifecycle) restoreFile(tx *gorm.DB, file *models.File, targetID uint, mode ConflictMode) (bool, error) {
	occupant, err := activeFileIn(tx, targetID, file.FileName, file.UserID)
	if err != nil {
		return false, err
	}
	if occupant != nil {
		switch mode {
		case ConflictOverwrite:
			if err := trashFileAside(tx, occupant); err != nil {
				return false, err
			}
			return true, restoreFileRow(tx, file, targetID, file.FileName)
		case ConflictRename:
			name, err := UniqueName(tx, targetID, file.FileName, file.UserID, kindFile)
			if err != nil {
				return false, err
			}
			return true, restoreFileRow(tx, file, targetID, name)
		default:
			return false, nil
		}
	}
	return true, restoreFileRow(tx, file, targetID, file.FileName)
}

func (l *Lifecycle) restoreFolder(tx *gorm.DB, folder *models.Folder, targetID uint, mode ConflictMode) (bool, error) {
	occupant, err := activeFolderIn(tx, targetID, folder.Name, folder.UserID)
	if err != nil {
		return false, err
	}
	if occupant != nil {
		switch mode {
		case ConflictOverwrite:
			if err := l.restoreAndMerge(tx, folder, occupant); err != nil {
				return false, err
			}
			return true, deleteIfEmptyShell(tx, folder.ID, folder.UserID)
		case ConflictRename:
			name, err := UniqueName(tx, targetID, folder.Name, folder.UserID, kindFolder)
			if err != nil {
				return false, err
			}
			if err := restoreFolderRow(tx, folder, targetID, name); err != nil {
				return false, err
			}
			return true, cascadeRestore(tx, folder.ID, folder.UserID)
		default:
			return false, nil
		}
	}
	if err := restoreFolderRow(tx, folder, targetID, folder.Name); err != nil {
		return false, err
	}
	return true, cascadeRestore(tx, folder.ID, folder.UserID)
}

// restoreAndMerge folds a trashed source folder into an active namesake,
// clearing the deleted flag on everything it relocates. Conflicts inside the
// merge resolve as overwrite: the active occupant is trashed aside.
func (l *Lifecycle) restoreAndMerge(tx *gorm.DB, source, target *models.Folder) error {
	userID := source.UserID
	queue := []mergeJob{{source.ID, target.ID}}
	var emptied []uint

	for len(queue) > 0 {
		job := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		var files []models.File
		if err := tx.Where("folder_id = ? AND user_id = ?", job.sourceID, userID).Find(&files).Error; err != nil {
			return err
		}
		for i := range files {
			f := &files[i]
			occupant, err := activeFileIn(tx, job.targetID, f.FileName, userID)
			if err != nil {
				return err
			}
			if occupant != nil {
				if err := trashFileAside(tx, occupant); err != nil {
					return err
				}
			}
			if err := restoreFileRow(tx, f, job.targetID, f.FileName); err != nil {
				return err
			}
		}

		var subs []models.Folder
		err := tx.Where("parent_id = ? AND user_id = ?", job.sourceID, userID).
			Order("id").
			Find(&subs).Error
		if err != nil {
			return err
		}
		for i := range subs {
			sub := &subs[i]
			occupant, err := activeFolderIn(tx, job.targetID, sub.Name, userID)
			if err != nil {
				return err
			}
			if occupant == nil {
				if err := restoreFolderRow(tx, sub, job.targetID, sub.Name); err != nil {
					return err
				}
				if err := cascadeRestore(tx, sub.ID, userID); err != nil {
					return err
				}
				continue
			}
			queue = append(queue, mergeJob{sub.ID, occupant.ID})
			emptied = append(emptied, sub.ID)
		}
	}

	for i := len(emptied) - 1; i >= 0; i-- {
		if err := deleteIfEmptyShell(tx, emptied[i], userID); err != nil {
			return err
		}
	}
	return nil
}

// cascadeRestore clears the deleted flag on every descendant of a restored
// folder, whatever the individual deletion timestamps were.
func cascadeRestore(tx *gorm.DB, folderID, userID uint) error {
	scope, err := collectDeletionScope(tx, folderID, userID)
	if err != nil {
		return err
	}

	folderIDs := make([]uint, 0, len(scope.Folders))
	for i := range scope.Folders {
		folderIDs = append(folderIDs, scope.Folders[i].ID)
	}
	fileIDs := make([]string, 0, len(scope.Files))
	for i := range scope.Files {
		fileIDs = append(fileIDs, scope.Files[i].MessageID)
	}

	if len(folderIDs) > 0 {
		err := tx.Model(&models.Folder{}).
			Where("id IN ? AND user_id = ?", folderIDs, userID).
			Updates(map[string]interface{}{"is_deleted": false, "deleted_at": nil}).Error
		if err != nil {
			return err
		}
	}
	if len(fileIDs) > 0 {
		err := tx.Model(&models.File{}).
			Where("message_id IN ? AND user_id = ?", fileIDs, userID).
			Updates(map[string]interface{}{"is_deleted": false, "deleted_at": nil}).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// Row-level helpers. Every slot-changing write goes through the trash-retry
// wrapper so a race with a trashed occupant resolves itself.

func activeFileIn(tx *gorm.DB, folderID uint, name string, userID uint) (*models.File, error) {
	var file models.File
	err := tx.Where("folder_id = ? AND file_name = ? AND user_id = ? AND is_deleted = ?", folderID, name, userID, false).
		First(&file).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &file, nil
}

func activeFolderIn(tx *gorm.DB, parentID uint, name string, userID uint) (*models.Folder, error) {
	var folder models.Folder
	err := tx.Where("parent_id = ? AND name = ? AND user_id = ? AND is_deleted = ?", parentID, name, userID, false).
		First(&folder).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &folder, nil
}

// trashFileAside soft-deletes an occupant under a placeholder name so the
// contested slot frees up immediately.
func trashFileAside(tx *gorm.DB, file *models.File) error {
	return tx.Model(&models.File{}).Where("message_id = ?", file.MessageID).
		Updates(map[string]interface{}{
			"file_name":  trashPlaceholder(file.FileName),
			"is_deleted": true,
			"deleted_at": time.Now().UnixMilli(),
		}).Error
}

func moveFileRow(tx *gorm.DB, file *models.File, targetID uint, name string) error {
	return writeWithTrashRetry(tx,
		func(tx *gorm.DB) error {
			return tx.Model(&models.File{}).Where("message_id = ?", file.MessageID).
				Updates(map[string]interface{}{"folder_id": targetID, "file_name": name}).Error
		},
		func(tx *gorm.DB) (bool, error) {
			return resolveFileTrashConflict(tx, targetID, name, file.UserID)
		})
}

func restoreFileRow(tx *gorm.DB, file *models.File, targetID uint, name string) error {
	return writeWithTrashRetry(tx,
		func(tx *gorm.DB) error {
			return tx.Model(&models.File{}).Where("message_id = ?", file.MessageID).
				Updates(map[string]interface{}{
					"folder_id":  targetID,
					"file_name":  name,
					"is_deleted": false,
					"deleted_at": nil,
				}).Error
		},
		func(tx *gorm.DB) (bool, error) {
			return resolveFileTrashConflict(tx, targetID, name, file.UserID)
		})
}

func moveFolderRow(tx *gorm.DB, folder *models.Folder, parentID uint, name string) error {
	return writeWithTrashRetry(tx,
		func(tx *gorm.DB) error {
			return tx.Model(&models.Folder{}).Where("id = ?", folder.ID).
				Updates(map[string]interface{}{"parent_id": parentID, "name": name}).Error
		},
		func(tx *gorm.DB) (bool, error) {
			return resolveFolderTrashConflict(tx, parentID, name, folder.UserID)
		})
}

func restoreFolderRow(tx *gorm.DB, folder *models.Folder, parentID uint, name string) error {
	return writeWithTrashRetry(tx,
		func(tx *gorm.DB) error {
			return tx.Model(&models.Folder{}).Where("id = ?", folder.ID).
				Updates(map[string]interface{}{
					"parent_id":  parentID,
					"name":       name,
					"is_deleted": false,
					"deleted_at": nil,
				}).Error
		},
		func(tx *gorm.DB) (bool, error) {
			return resolveFolderTrashConflict(tx, parentID, name, folder.UserID)
		})
}

// deleteIfEmptyShell drops a folder row once a merge has moved out all of its
// active children. Anything left behind, including trashed leftovers, keeps
// the shell alive: a shell holding only trashed rows survives as their
// container, so nothing ever disappears from the trash view.
func deleteIfEmptyShell(tx *gorm.DB, folderID, userID uint) error {
	var fileCount int64
	err := tx.Model(&models.File{}).
		Where("folder_id = ? AND user_id = ?", folderID, userID).
		Count(&fileCount).Error
	if err != nil {
		return err
	}
	var folderCount int64
	err = tx.Model(&models.Folder{}).
		Where("parent_id = ? AND user_id = ?", folderID, userID).
		Count(&folderCount).Error
	if err != nil {
		return err
	}
	if fileCount+folderCount > 0 {
		return nil
	}
	return tx.Where("id = ? AND user_id = ?", folderID, userID).Delete(&models.Folder{}).Error
}
