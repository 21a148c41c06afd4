package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/Nexavor/yidongwagnpan/internal/middleware"
	"github.com/Nexavor/yidongwagnpan/internal/models"
	"github.com/Nexavor/yidongwagnpan/internal/services"
	"github.com/Nexavor/yidongwagnpan/pkg/logger"
	"github.com/Nexavor/yidongwagnpan/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type AuthHandler struct {
	DB        *gorm.DB
	Lifecycle *services.Lifecycle
	Quota     *services.Quota
}

func NewAuthHandler(db *gorm.DB, lifecycle *services.Lifecycle, quota *services.Quota) *AuthHandler {
	return &AuthHandler{DB: db, Lifecycle: lifecycle, Quota: quota}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || len(req.Password) < 6 {
		return utils.Error(c, fiber.StatusBadRequest, "username and a password of at least 6 characters are required")
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed hashing password")
	}

	user := &models.User{Username: req.Username, PasswordHash: hash}
	if err := h.DB.Create(user).Error; err != nil {
		return utils.Error(c, fiber.StatusConflict, "username already taken")
	}

	logger.Info("user_registered", map[string]interface{}{
		"user_id":  user.ID,
		"username": user.Username,
	})
	return utils.Success(c, fiber.StatusCreated, fiber.Map{
		"id":       user.ID,
		"username": user.Username,
	})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	var user models.User
	err := h.DB.First(&user, "username = ?", strings.TrimSpace(req.Username)).Error
	if err != nil || !utils.CheckPassword(user.PasswordHash, req.Password) {
		logger.Warn("login_failed", map[string]interface{}{
			"username": req.Username,
			"ip":       c.IP(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid credentials")
	}

	// first login provisions the root folder
	root, err := h.Lifecycle.EnsureRootFolder(c.Context(), user.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed preparing root folder")
	}

	token, err := utils.GenerateToken(&user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed issuing token")
	}
	stored := &models.AuthToken{
		UserID:    user.ID,
		Token:     token,
		ExpiresAt: time.Now().Add(utils.TokenTTL()).UnixMilli(),
	}
	if err := h.DB.Create(stored).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed persisting session")
	}

	logger.InfoWithUser(strconv.FormatUint(uint64(user.ID), 10), "login_success", map[string]interface{}{
		"ip": c.IP(),
	})
	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"token":        token,
		"rootFolderId": utils.EncryptFolderID(root.ID),
		"user": fiber.Map{
			"id":       user.ID,
			"username": user.Username,
			"isAdmin":  user.IsAdmin,
		},
	})
}

// Logout revokes the presented token server-side.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	token := strings.TrimSpace(strings.TrimPrefix(c.Get("Authorization"), "Bearer"))
	if err := h.DB.Where("token = ? AND user_id = ?", token, user.ID).
		Delete(&models.AuthToken{}).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed revoking session")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"loggedOut": true})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	usage, err := h.Quota.Usage(c.Context(), user.ID)
	if err != nil {
		return serviceError(c, err, "failed computing quota")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"id":       user.ID,
		"username": user.Username,
		"isAdmin":  user.IsAdmin,
		"quota":    usage,
	})
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if !utils.CheckPassword(user.PasswordHash, req.OldPassword) {
		return utils.Error(c, fiber.StatusUnauthorized, "wrong password")
	}
	if len(req.NewPassword) < 6 {
		return utils.Error(c, fiber.StatusBadRequest, "password must be at least 6 characters")
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed hashing password")
	}
	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).Where("id = ?", user.ID).
			Update("password", hash).Error; err != nil {
			return err
		}
		// all sessions are revoked with the old credential
		return tx.Where("user_id = ?", user.ID).Delete(&models.AuthToken{}).Error
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating password")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"changed": true})
}
