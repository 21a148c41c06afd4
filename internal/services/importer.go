package services

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/Nexavor/yidongwagnpan/internal/config"
	"github.com/Nexavor/yidongwagnpan/internal/models"
	"github.com/Nexavor/yidongwagnpan/pkg/logger"
	"gorm.io/gorm"
)

const importFolderName = "Imported"

// Importer reconciles the metadata store with what the backend actually
// holds: payloads with no matching file row are registered under an
// "Imported" folder so they become reachable again.
type Importer struct {
	DB       *gorm.DB
	Backends BackendProvider
	Config   *config.StorageManager
}

func NewImporter(db *gorm.DB, backends BackendProvider, cfg *config.StorageManager) *Importer {
	return &Importer{DB: db, Backends: backends, Config: cfg}
}

type ImportReport struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

func (im *Importer) ScanAndImport(ctx context.Context, userID uint) (*ImportReport, error) {
	db := im.DB.WithContext(ctx)

	cfg, err := im.Config.Load()
	if err != nil {
		return nil, err
	}
	backend, err := im.Backends.Current(ctx)
	if err != nil {
		return nil, err
	}

	remote, err := backend.List(ctx, fmt.Sprintf("%d/", userID))
	if err != nil {
		return nil, err
	}

	report := &ImportReport{}
	if len(remote) == 0 {
		return report, nil
	}

	root, err := rootFolder(db, userID)
	if err != nil {
		return nil, err
	}
	dest, err := im.importDestination(ctx, db, root, userID)
	if err != nil {
		return nil, err
	}

	lifecycle := &Lifecycle{DB: im.DB, Backends: im.Backends}
	for _, obj := range remote {
		var count int64
		err := db.Model(&models.File{}).
			Where("file_id = ? AND user_id = ?", obj.FileID, userID).
			Count(&count).Error
		if err != nil {
			return nil, err
		}
		if count > 0 {
			report.Skipped++
			continue
		}

		file := &models.File{
			FileName:    path.Base(obj.FileID),
			FolderID:    dest.ID,
			UserID:      userID,
			Size:        obj.Size,
			Date:        obj.UpdatedAt,
			FileID:      obj.FileID,
			StorageType: cfg.StorageMode,
		}
		if _, err := lifecycle.AddFile(ctx, file); err != nil {
			logger.Error("scan_import_row_failed", err, map[string]interface{}{
				"physical_id": obj.FileID,
				"user_id":     userID,
			})
			report.Skipped++
			continue
		}
		report.Imported++
	}

	logger.Info("scan_import_done", map[string]interface{}{
		"user_id":  userID,
		"imported": report.Imported,
		"skipped":  report.Skipped,
	})
	return report, nil
}

func (im *Importer) importDestination(ctx context.Context, db *gorm.DB, root *models.Folder, userID uint) (*models.Folder, error) {
	var dest models.Folder
	err := db.Where("parent_id = ? AND name = ? AND user_id = ? AND is_deleted = ?",
		root.ID, importFolderName, userID, false).
		First(&dest).Error
	if err == nil {
		return &dest, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	lifecycle := &Lifecycle{DB: im.DB, Backends: im.Backends}
	return lifecycle.CreateFolder(ctx, importFolderName, root.ID, userID)
}
