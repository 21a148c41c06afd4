package handlers

import (
	"bufio"
	"context"
	"fmt"
	"time"

	"github.com/Nexavor/yidongwagnpan/internal/middleware"
	"github.com/Nexavor/yidongwagnpan/internal/models"
	"github.com/Nexavor/yidongwagnpan/internal/services"
	"github.com/Nexavor/yidongwagnpan/internal/storage"
	"github.com/Nexavor/yidongwagnpan/pkg/logger"
	"github.com/Nexavor/yidongwagnpan/pkg/utils"
	"github.com/Nexavor/yidongwagnpan/pkg/zipstream"
	"github.com/gofiber/fiber/v2"
)

type SharesHandler struct {
	Shares   *services.Shares
	Catalog  *services.Catalog
	Backends services.BackendProvider
}

func NewSharesHandler(shares *services.Shares, catalog *services.Catalog, backends services.BackendProvider) *SharesHandler {
	return &SharesHandler{Shares: shares, Catalog: catalog, Backends: backends}
}

type createShareRequest struct {
	TTL      string `json:"ttl"`
	Password string `json:"password"`
}

func (h *SharesHandler) CreateFileShare(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	var req createShareRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if _, err := services.ParseShareExpiry(req.TTL); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	token, err := h.Shares.CreateFileShare(c.Context(), c.Params("id"), user.ID, req.TTL, req.Password)
	if err != nil {
		return serviceError(c, err, "failed creating share")
	}
	return utils.Success(c, fiber.StatusCreated, fiber.Map{"token": token})
}

func (h *SharesHandler) CreateFolderShare(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	folderID, err := parseFolderID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid folder id")
	}
	var req createShareRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if _, err := services.ParseShareExpiry(req.TTL); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	token, err := h.Shares.CreateFolderShare(c.Context(), folderID, user.ID, req.TTL, req.Password)
	if err != nil {
		return serviceError(c, err, "failed creating share")
	}
	return utils.Success(c, fiber.StatusCreated, fiber.Map{"token": token})
}

func (h *SharesHandler) CancelFileShare(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	if err := h.Shares.CancelFileShare(c.Context(), c.Params("id"), user.ID); err != nil {
		return serviceError(c, err, "failed cancelling share")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"cancelled": true})
}

func (h *SharesHandler) CancelFolderShare(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	folderID, err := parseFolderID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid folder id")
	}
	if err := h.Shares.CancelFolderShare(c.Context(), folderID, user.ID); err != nil {
		return serviceError(c, err, "failed cancelling share")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"cancelled": true})
}

func (h *SharesHandler) List(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	list, err := h.Shares.ActiveShares(c.Context(), user.ID)
	if err != nil {
		return serviceError(c, err, "failed listing shares")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"files":   list.Files,
		"folders": folderPayloads(list.Folders),
	})
}

// sharePassword reads the optional password from either the query string or
// the request body, so both GET links and POST forms can unlock a share.
func sharePassword(c *fiber.Ctx) string {
	if pw := c.Query("password"); pw != "" {
		return pw
	}
	var body struct {
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err == nil {
		return body.Password
	}
	return ""
}

func (h *SharesHandler) PublicFileMeta(c *fiber.Ctx) error {
	file, err := h.Shares.FileByShareToken(c.Context(), c.Params("token"))
	if err != nil {
		return serviceError(c, err, "share not found")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"fileName":  file.FileName,
		"size":      file.Size,
		"mimeType":  file.MimeType,
		"protected": file.SharePassword != nil && *file.SharePassword != "",
	})
}

func (h *SharesHandler) PublicFileDownload(c *fiber.Ctx) error {
	file, err := h.Shares.FileByShareToken(c.Context(), c.Params("token"))
	if err != nil {
		return serviceError(c, err, "share not found")
	}
	if err := services.CheckSharePassword(file.SharePassword, sharePassword(c)); err != nil {
		return utils.Error(c, fiber.StatusUnauthorized, "share password required")
	}

	backend, err := h.Backends.Current(c.Context())
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, err.Error())
	}
	obj, err := backend.Download(c.Context(), file.FileID, file.UserID)
	if err != nil {
		return utils.Error(c, fiber.StatusNotFound, "payload not found in storage")
	}

	c.Set(fiber.HeaderContentType, obj.ContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", file.FileName))
	if obj.ContentLength > 0 {
		return c.SendStream(obj.Body, int(obj.ContentLength))
	}
	return c.SendStream(obj.Body)
}

func (h *SharesHandler) PublicFolderListing(c *fiber.Ctx) error {
	folder, err := h.Shares.FolderByShareToken(c.Context(), c.Params("token"))
	if err != nil {
		return serviceError(c, err, "share not found")
	}
	if err := services.CheckSharePassword(folder.SharePassword, sharePassword(c)); err != nil {
		return utils.Error(c, fiber.StatusUnauthorized, "share password required")
	}

	entries, err := h.Catalog.ShareFolderFiles(c.Context(), folder)
	if err != nil {
		return serviceError(c, err, "failed listing shared folder")
	}
	files := make([]fiber.Map, 0, len(entries))
	for _, entry := range entries {
		files = append(files, fiber.Map{
			"path":     entry.Path,
			"size":     entry.File.Size,
			"mimeType": entry.File.MimeType,
		})
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"folderName": folder.Name,
		"files":      files,
	})
}

// PublicFolderArchive streams the shared subtree as an uncompressed zip.
// Payloads are fetched one at a time so memory stays flat regardless of
// folder size; a file that fails mid-archive is logged and skipped.
func (h *SharesHandler) PublicFolderArchive(c *fiber.Ctx) error {
	folder, err := h.Shares.FolderByShareToken(c.Context(), c.Params("token"))
	if err != nil {
		return serviceError(c, err, "share not found")
	}
	if err := services.CheckSharePassword(folder.SharePassword, sharePassword(c)); err != nil {
		return utils.Error(c, fiber.StatusUnauthorized, "share password required")
	}

	entries, err := h.Catalog.ShareFolderFiles(c.Context(), folder)
	if err != nil {
		return serviceError(c, err, "failed listing shared folder")
	}
	backend, err := h.Backends.Current(c.Context())
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, err.Error())
	}

	c.Set(fiber.HeaderContentType, "application/zip")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", folder.Name+".zip"))

	var ctx context.Context = c.Context()
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		zw := zipstream.NewWriter(w)
		defer zw.Close()

		for _, entry := range entries {
			if err := addArchiveEntry(ctx, zw, backend, entry); err != nil {
				logger.Warn("share_archive_entry_failed", map[string]interface{}{
					"message_id": entry.File.MessageID,
					"path":       entry.Path,
					"error":      err.Error(),
				})
			}
		}
	})
	return nil
}

func addArchiveEntry(ctx context.Context, zw *zipstream.Writer, backend storage.Backend, entry services.ArchiveEntry) error {
	obj, err := backend.Download(ctx, entry.File.FileID, entry.File.UserID)
	if err != nil {
		return err
	}
	defer obj.Body.Close()
	return zw.Add(entry.Path, archiveModTime(&entry.File), obj.Body)
}

func archiveModTime(file *models.File) time.Time {
	if file.Date > 0 {
		return time.UnixMilli(file.Date)
	}
	return time.Now()
}
