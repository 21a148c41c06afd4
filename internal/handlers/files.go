package handlers

import (
	"fmt"
	"strings"

	"github.com/Nexavor/yidongwagnpan/internal/config"
	"github.com/Nexavor/yidongwagnpan/internal/middleware"
	"github.com/Nexavor/yidongwagnpan/internal/models"
	"github.com/Nexavor/yidongwagnpan/internal/services"
	"github.com/Nexavor/yidongwagnpan/pkg/logger"
	"github.com/Nexavor/yidongwagnpan/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type FilesHandler struct {
	DB        *gorm.DB
	Lifecycle *services.Lifecycle
	Quota     *services.Quota
	Catalog   *services.Catalog
	Backends  services.BackendProvider
	Config    *config.StorageManager
}

func NewFilesHandler(db *gorm.DB, lifecycle *services.Lifecycle, quota *services.Quota, catalog *services.Catalog, backends services.BackendProvider, cfg *config.StorageManager) *FilesHandler {
	return &FilesHandler{
		DB:        db,
		Lifecycle: lifecycle,
		Quota:     quota,
		Catalog:   catalog,
		Backends:  backends,
		Config:    cfg,
	}
}

// Upload checks the quota before touching the backend: a rejected upload must
// never cost a payload write.
func (h *FilesHandler) Upload(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	folderID, err := parseFolderID(c.FormValue("folderId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid folder id")
	}
	header, err := c.FormFile("file")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "file is required")
	}

	// The target must be an active folder owned by the caller, same contract
	// as folder creation and moves.
	var target models.Folder
	err = h.DB.First(&target, "id = ? AND user_id = ? AND is_deleted = ?", folderID, user.ID, false).Error
	if err != nil {
		return utils.Error(c, fiber.StatusNotFound, "folder not found")
	}

	if err := h.Quota.Check(c.Context(), user.ID, header.Size); err != nil {
		return serviceError(c, err, "failed checking quota")
	}

	cfg, err := h.Config.Load()
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "storage configuration unavailable")
	}
	backend, err := h.Backends.Current(c.Context())
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, err.Error())
	}

	src, err := header.Open()
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "failed reading upload")
	}
	defer src.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	result, err := backend.Upload(c.Context(), src, header.Size, header.Filename, contentType, user.ID, folderID)
	if err != nil {
		logger.Error("upload_backend_failed", err, map[string]interface{}{
			"user_id":   user.ID,
			"file_name": header.Filename,
		})
		return utils.Error(c, fiber.StatusBadGateway, "storage backend rejected the upload")
	}

	file := &models.File{
		FileName:    header.Filename,
		MimeType:    contentType,
		FileID:      result.FileID,
		ThumbFileID: result.ThumbFileID,
		TgMessageID: result.TgMessageID,
		Size:        header.Size,
		FolderID:    folderID,
		UserID:      user.ID,
		StorageType: cfg.StorageMode,
	}
	created, err := h.Lifecycle.AddFile(c.Context(), file)
	if err != nil {
		return serviceError(c, err, "failed registering upload")
	}
	return utils.Success(c, fiber.StatusCreated, created)
}

func (h *FilesHandler) Download(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	var file models.File
	err := h.DB.First(&file, "message_id = ? AND user_id = ?", c.Params("id"), user.ID).Error
	if err != nil {
		return utils.Error(c, fiber.StatusNotFound, "file not found")
	}
	return h.streamFile(c, &file)
}

func (h *FilesHandler) streamFile(c *fiber.Ctx, file *models.File) error {
	backend, err := h.Backends.Current(c.Context())
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, err.Error())
	}

	obj, err := backend.Download(c.Context(), file.FileID, file.UserID)
	if err != nil {
		logger.Error("download_backend_failed", err, map[string]interface{}{
			"message_id": file.MessageID,
		})
		return utils.Error(c, fiber.StatusNotFound, "payload not found in storage")
	}

	c.Set(fiber.HeaderContentType, obj.ContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", file.FileName))
	if obj.ETag != "" {
		c.Set(fiber.HeaderETag, obj.ETag)
	}
	if obj.ContentLength > 0 {
		return c.SendStream(obj.Body, int(obj.ContentLength))
	}
	return c.SendStream(obj.Body)
}

func (h *FilesHandler) Rename(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	var req renameRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return utils.Error(c, fiber.StatusBadRequest, "file name is required")
	}

	file, err := h.Lifecycle.RenameFile(c.Context(), c.Params("id"), req.Name, user.ID)
	if err != nil {
		return serviceError(c, err, "failed renaming file")
	}
	return utils.Success(c, fiber.StatusOK, file)
}

type moveRequest struct {
	itemSelection
	TargetFolderID string `json:"targetFolderId"`
	ConflictMode   string `json:"conflictMode"`
}

func (h *FilesHandler) Move(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	var req moveRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	targetID, err := parseFolderID(req.TargetFolderID)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid target folder id")
	}
	folderIDs, err := req.folderIDs()
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid folder id")
	}
	mode, err := services.ParseConflictMode(req.ConflictMode)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	report, err := h.Lifecycle.MoveItems(c.Context(), req.FileIDs, folderIDs, targetID, user.ID, mode)
	if err != nil {
		return serviceError(c, err, "failed moving items")
	}
	return utils.Success(c, fiber.StatusOK, report)
}

func (h *FilesHandler) Search(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		return utils.Error(c, fiber.StatusBadRequest, "search query is required")
	}

	result, err := h.Catalog.SearchItems(c.Context(), query, user.ID)
	if err != nil {
		return serviceError(c, err, "failed searching")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"files":   result.Files,
		"folders": folderPayloads(result.Folders),
	})
}
