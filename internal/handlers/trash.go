package handlers

import (
	"github.com/Nexavor/yidongwagnpan/internal/middleware"
	"github.com/Nexavor/yidongwagnpan/internal/services"
	"github.com/Nexavor/yidongwagnpan/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type TrashHandler struct {
	Lifecycle *services.Lifecycle
	Catalog   *services.Catalog
}

func NewTrashHandler(lifecycle *services.Lifecycle, catalog *services.Catalog) *TrashHandler {
	return &TrashHandler{Lifecycle: lifecycle, Catalog: catalog}
}

// List returns only top-level trashed items: descendants of a trashed folder
// travel with it and are not shown individually.
func (h *TrashHandler) List(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	contents, err := h.Catalog.TrashContents(c.Context(), user.ID)
	if err != nil {
		return serviceError(c, err, "failed listing trash")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"files":   contents.Files,
		"folders": folderPayloads(contents.Folders),
	})
}

func (h *TrashHandler) Delete(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	var req itemSelection
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	folderIDs, err := req.folderIDs()
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid folder id")
	}
	if len(req.FileIDs) == 0 && len(folderIDs) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "nothing selected")
	}

	if err := h.Lifecycle.SoftDeleteItems(c.Context(), req.FileIDs, folderIDs, user.ID); err != nil {
		return serviceError(c, err, "failed moving items to trash")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"deleted": true})
}

type restoreRequest struct {
	itemSelection
	ConflictMode string `json:"conflictMode"`
}

func (h *TrashHandler) Restore(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	var req restoreRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	folderIDs, err := req.folderIDs()
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid folder id")
	}
	mode, err := services.ParseConflictMode(req.ConflictMode)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	report, err := h.Lifecycle.RestoreItems(c.Context(), req.FileIDs, folderIDs, user.ID, mode)
	if err != nil {
		return serviceError(c, err, "failed restoring items")
	}
	return utils.Success(c, fiber.StatusOK, report)
}

func (h *TrashHandler) Purge(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	var req itemSelection
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	folderIDs, err := req.folderIDs()
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid folder id")
	}
	if len(req.FileIDs) == 0 && len(folderIDs) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "nothing selected")
	}

	if err := h.Lifecycle.Purge(c.Context(), req.FileIDs, folderIDs, user.ID); err != nil {
		return serviceError(c, err, "failed deleting items permanently")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"purged": true})
}

func (h *TrashHandler) Empty(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	if err := h.Lifecycle.EmptyTrash(c.Context(), user.ID); err != nil {
		return serviceError(c, err, "failed emptying trash")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"emptied": true})
}
