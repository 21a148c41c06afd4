package handlers

import (
	"strings"

	"github.com/Nexavor/yidongwagnpan/internal/middleware"
	"github.com/Nexavor/yidongwagnpan/internal/services"
	"github.com/Nexavor/yidongwagnpan/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type FoldersHandler struct {
	DB        *gorm.DB
	Lifecycle *services.Lifecycle
	Catalog   *services.Catalog
	Shares    *services.Shares
}

func NewFoldersHandler(db *gorm.DB, lifecycle *services.Lifecycle, catalog *services.Catalog, shares *services.Shares) *FoldersHandler {
	return &FoldersHandler{DB: db, Lifecycle: lifecycle, Catalog: catalog, Shares: shares}
}

type createFolderRequest struct {
	Name     string `json:"name"`
	ParentID string `json:"parentId"`
}

func (h *FoldersHandler) Create(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	var req createFolderRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return utils.Error(c, fiber.StatusBadRequest, "folder name is required")
	}
	parentID, err := parseFolderID(req.ParentID)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid parent folder id")
	}

	folder, err := h.Lifecycle.CreateFolder(c.Context(), req.Name, parentID, user.ID)
	if err != nil {
		return serviceError(c, err, "failed creating folder")
	}
	return utils.Success(c, fiber.StatusCreated, folderPayload(folder))
}

func (h *FoldersHandler) Contents(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	folderID, err := parseFolderID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid folder id")
	}

	listing, err := h.Catalog.FolderContents(c.Context(), folderID, user.ID)
	if err != nil {
		return serviceError(c, err, "failed listing folder")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"folder":  folderPayload(&listing.Folder),
		"folders": folderPayloads(listing.Folders),
		"files":   listing.Files,
	})
}

func (h *FoldersHandler) Path(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	folderID, err := parseFolderID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid folder id")
	}

	chain, err := h.Catalog.FolderPath(c.Context(), folderID, user.ID)
	if err != nil {
		return serviceError(c, err, "failed resolving folder path")
	}

	crumbs := make([]fiber.Map, 0, len(chain))
	for i := range chain {
		crumbs = append(crumbs, fiber.Map{
			"id":   utils.EncryptFolderID(chain[i].ID),
			"name": chain[i].Name,
		})
	}
	return utils.Success(c, fiber.StatusOK, crumbs)
}

func (h *FoldersHandler) All(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	folders, err := h.Catalog.AllFolders(c.Context(), user.ID)
	if err != nil {
		return serviceError(c, err, "failed listing folders")
	}
	return utils.Success(c, fiber.StatusOK, folderPayloads(folders))
}

type renameRequest struct {
	Name string `json:"name"`
}

func (h *FoldersHandler) Rename(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	folderID, err := parseFolderID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid folder id")
	}

	var req renameRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return utils.Error(c, fiber.StatusBadRequest, "folder name is required")
	}

	folder, err := h.Lifecycle.RenameFolder(c.Context(), folderID, req.Name, user.ID)
	if err != nil {
		return serviceError(c, err, "failed renaming folder")
	}
	return utils.Success(c, fiber.StatusOK, folderPayload(folder))
}

type folderPasswordRequest struct {
	Password string `json:"password"`
}

// SetPassword locks the folder, or unlocks it when the password is empty.
func (h *FoldersHandler) SetPassword(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	folderID, err := parseFolderID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid folder id")
	}

	var req folderPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.Shares.SetFolderPassword(c.Context(), folderID, user.ID, req.Password); err != nil {
		return serviceError(c, err, "failed updating folder password")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"locked": req.Password != ""})
}

func (h *FoldersHandler) VerifyPassword(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	folderID, err := parseFolderID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid folder id")
	}

	var req folderPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.Shares.VerifyFolderPassword(c.Context(), folderID, user.ID, req.Password); err != nil {
		return serviceError(c, err, "failed verifying folder password")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"verified": true})
}
