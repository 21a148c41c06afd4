package services

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/Nexavor/yidongwagnpan/internal/models"
	"gorm.io/gorm"
)

// Catalog answers read-only questions about a user's tree: listing, search,
// breadcrumbs and the trash view.
type Catalog struct {
	DB *gorm.DB
}

func NewCatalog(db *gorm.DB) *Catalog {
	return &Catalog{DB: db}
}

// folderStatusCTE computes, per folder, whether any folder on its root path
// (itself included) is locked or trashed. Both supported databases handle the
// recursive CTE and the boolean expressions identically.
const folderStatusCTE = `
WITH RECURSIVE tree(id, locked, deleted) AS (
    SELECT id,
           (password IS NOT NULL AND password <> ''),
           is_deleted
    FROM folders
    WHERE parent_id IS NULL AND user_id = ?
  UNION ALL
    SELECT f.id,
           (t.locked OR (f.password IS NOT NULL AND f.password <> '')),
           (t.deleted OR f.is_deleted)
    FROM folders f
    JOIN tree t ON f.parent_id = t.id
    WHERE f.user_id = ?
)
`

// SearchResult is one page of name matches.
type SearchResult struct {
	Files   []models.File   `json:"files"`
	Folders []models.Folder `json:"folders"`
}

// SearchItems matches active items by name substring. Items inside a locked
// or trashed subtree are invisible, and root folders are never returned.
func (c *Catalog) SearchItems(ctx context.Context, query string, userID uint) (*SearchResult, error) {
	db := c.DB.WithContext(ctx)
	pattern := "%" + query + "%"
	result := &SearchResult{Files: []models.File{}, Folders: []models.Folder{}}

	err := db.Raw(folderStatusCTE+`
SELECT files.* FROM files
JOIN tree ON tree.id = files.folder_id
WHERE files.user_id = ?
  AND files.is_deleted = FALSE
  AND NOT tree.locked AND NOT tree.deleted
  AND files.file_name LIKE ?
ORDER BY files.file_name`, userID, userID, userID, pattern).
		Scan(&result.Files).Error
	if err != nil {
		return nil, err
	}

	err = db.Raw(folderStatusCTE+`
SELECT folders.* FROM folders
JOIN tree ON tree.id = folders.id
WHERE folders.user_id = ?
  AND folders.parent_id IS NOT NULL
  AND NOT tree.locked AND NOT tree.deleted
  AND folders.name LIKE ?
ORDER BY folders.name`, userID, userID, userID, pattern).
		Scan(&result.Folders).Error
	if err != nil {
		return nil, err
	}
	return result, nil
}

// TrashContents lists the top level of the trash view: deleted items whose
// immediate parent is not itself deleted. Descendants of a trashed folder
// stay collapsed under it.
func (c *Catalog) TrashContents(ctx context.Context, userID uint) (*SearchResult, error) {
	files, folders, err := trashTopLevel(c.DB.WithContext(ctx), userID)
	if err != nil {
		return nil, err
	}
	return &SearchResult{Files: files, Folders: folders}, nil
}

func trashTopLevel(db *gorm.DB, userID uint) ([]models.File, []models.Folder, error) {
	files := []models.File{}
	err := db.Joins("JOIN folders ON folders.id = files.folder_id").
		Where("files.user_id = ? AND files.is_deleted = ? AND folders.is_deleted = ?", userID, true, false).
		Find(&files).Error
	if err != nil {
		return nil, nil, err
	}

	folders := []models.Folder{}
	err = db.Joins("JOIN folders AS parents ON parents.id = folders.parent_id").
		Where("folders.user_id = ? AND folders.is_deleted = ? AND parents.is_deleted = ?", userID, true, false).
		Find(&folders).Error
	if err != nil {
		return nil, nil, err
	}
	return files, folders, nil
}

// FolderPath returns the breadcrumb from the root down to the folder.
func (c *Catalog) FolderPath(ctx context.Context, folderID, userID uint) ([]models.Folder, error) {
	db := c.DB.WithContext(ctx)

	var chain []models.Folder
	current := folderID
	for {
		var folder models.Folder
		err := db.First(&folder, "id = ? AND user_id = ?", current, userID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: folder", ErrNotFound)
		}
		if err != nil {
			return nil, err
		}
		chain = append(chain, folder)
		if folder.ParentID == nil {
			break
		}
		current = *folder.ParentID
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// FolderListing is one folder's active content.
type FolderListing struct {
	Folder  models.Folder   `json:"folder"`
	Folders []models.Folder `json:"folders"`
	Files   []models.File   `json:"files"`
}

func (c *Catalog) FolderContents(ctx context.Context, folderID, userID uint) (*FolderListing, error) {
	db := c.DB.WithContext(ctx)

	var folder models.Folder
	err := db.First(&folder, "id = ? AND user_id = ? AND is_deleted = ?", folderID, userID, false).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: folder", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	listing := &FolderListing{Folder: folder, Folders: []models.Folder{}, Files: []models.File{}}
	err = db.Where("parent_id = ? AND user_id = ? AND is_deleted = ?", folderID, userID, false).
		Order("name").
		Find(&listing.Folders).Error
	if err != nil {
		return nil, err
	}
	err = db.Where("folder_id = ? AND user_id = ? AND is_deleted = ?", folderID, userID, false).
		Order("file_name").
		Find(&listing.Files).Error
	if err != nil {
		return nil, err
	}
	return listing, nil
}

// AllFolders lists every active folder the user owns, for move-target pickers.
func (c *Catalog) AllFolders(ctx context.Context, userID uint) ([]models.Folder, error) {
	folders := []models.Folder{}
	err := c.DB.WithContext(ctx).
		Where("user_id = ? AND is_deleted = ?", userID, false).
		Order("parent_id, name").
		Find(&folders).Error
	return folders, err
}

// ArchiveEntry pairs a file with its path relative to a shared folder, for
// zip assembly.
type ArchiveEntry struct {
	File models.File
	Path string
}

// ShareFolderFiles walks a folder's active subtree and returns every file
// with its relative archive path.
func (c *Catalog) ShareFolderFiles(ctx context.Context, folder *models.Folder) ([]ArchiveEntry, error) {
	db := c.DB.WithContext(ctx)

	type frame struct {
		folderID uint
		prefix   string
	}
	entries := []ArchiveEntry{}
	stack := []frame{{folder.ID, ""}}
	for len(stack) > 0 {
		fr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		var files []models.File
		err := db.Where("folder_id = ? AND user_id = ? AND is_deleted = ?", fr.folderID, folder.UserID, false).
			Order("file_name").
			Find(&files).Error
		if err != nil {
			return nil, err
		}
		for i := range files {
			entries = append(entries, ArchiveEntry{
				File: files[i],
				Path: path.Join(fr.prefix, files[i].FileName),
			})
		}

		var subs []models.Folder
		err = db.Where("parent_id = ? AND user_id = ? AND is_deleted = ?", fr.folderID, folder.UserID, false).
			Order("name").
			Find(&subs).Error
		if err != nil {
			return nil, err
		}
		for i := len(subs) - 1; i >= 0; i-- {
			stack = append(stack, frame{subs[i].ID, path.Join(fr.prefix, subs[i].Name)})
		}
	}
	return entries, nil
}
