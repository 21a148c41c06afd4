package handlers

import (
	"strconv"

	"github.com/Nexavor/yidongwagnpan/internal/config"
	"github.com/Nexavor/yidongwagnpan/internal/middleware"
	"github.com/Nexavor/yidongwagnpan/internal/models"
	"github.com/Nexavor/yidongwagnpan/internal/services"
	"github.com/Nexavor/yidongwagnpan/pkg/logger"
	"github.com/Nexavor/yidongwagnpan/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type AdminHandler struct {
	DB       *gorm.DB
	Quota    *services.Quota
	Importer *services.Importer
	Config   *config.StorageManager
}

func NewAdminHandler(db *gorm.DB, quota *services.Quota, importer *services.Importer, cfg *config.StorageManager) *AdminHandler {
	return &AdminHandler{DB: db, Quota: quota, Importer: importer, Config: cfg}
}

func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	users, err := h.Quota.ListUsers(c.Context())
	if err != nil {
		return serviceError(c, err, "failed listing users")
	}
	return utils.Success(c, fiber.StatusOK, users)
}

type setQuotaRequest struct {
	MaxStorageBytes int64 `json:"maxStorageBytes"`
}

func (h *AdminHandler) SetQuota(c *fiber.Ctx) error {
	targetID, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}
	var req setQuotaRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.Quota.SetMaxStorage(c.Context(), uint(targetID), req.MaxStorageBytes); err != nil {
		return serviceError(c, err, "failed updating quota")
	}
	admin := middleware.GetCurrentUser(c)
	logger.InfoWithUser(strconv.FormatUint(uint64(admin.ID), 10), "quota_updated", map[string]interface{}{
		"target_user_id":    targetID,
		"max_storage_bytes": req.MaxStorageBytes,
	})
	return utils.Success(c, fiber.StatusOK, fiber.Map{"updated": true})
}

// DeleteUser removes an account and every row it owns. Payloads in the
// backend are left behind; a storage scan can re-import them if needed.
func (h *AdminHandler) DeleteUser(c *fiber.Ctx) error {
	targetID, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var target models.User
	if err := h.DB.First(&target, uint(targetID)).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "user not found")
	}
	if target.IsAdmin {
		return utils.Error(c, fiber.StatusForbidden, "admin accounts cannot be deleted")
	}

	err = h.DB.WithContext(c.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", target.ID).Delete(&models.File{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", target.ID).Delete(&models.Folder{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", target.ID).Delete(&models.AuthToken{}).Error; err != nil {
			return err
		}
		return tx.Delete(&target).Error
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting user")
	}

	admin := middleware.GetCurrentUser(c)
	logger.InfoWithUser(strconv.FormatUint(uint64(admin.ID), 10), "user_deleted", map[string]interface{}{
		"target_user_id": target.ID,
		"username":       target.Username,
	})
	return utils.Success(c, fiber.StatusOK, fiber.Map{"deleted": true})
}

func (h *AdminHandler) GetStorageConfig(c *fiber.Ctx) error {
	cfg, err := h.Config.Load()
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, err.Error())
	}
	return utils.Success(c, fiber.StatusOK, cfg.Redacted())
}

func (h *AdminHandler) UpdateStorageConfig(c *fiber.Ctx) error {
	var incoming config.StorageConfig
	if err := c.BodyParser(&incoming); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.Config.Save(&incoming); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}
	h.Config.Invalidate()

	admin := middleware.GetCurrentUser(c)
	logger.InfoWithUser(strconv.FormatUint(uint64(admin.ID), 10), "storage_config_updated", map[string]interface{}{
		"storage_mode": incoming.StorageMode,
	})
	return utils.Success(c, fiber.StatusOK, fiber.Map{"updated": true})
}

// ScanImport reconciles backend payloads into the caller's tree. It runs for
// the requesting admin's own account.
func (h *AdminHandler) ScanImport(c *fiber.Ctx) error {
	admin := middleware.GetCurrentUser(c)

	report, err := h.Importer.ScanAndImport(c.Context(), admin.ID)
	if err != nil {
		return serviceError(c, err, "storage scan failed")
	}
	return utils.Success(c, fiber.StatusOK, report)
}
