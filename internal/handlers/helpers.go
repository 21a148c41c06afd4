package handlers

import (
	"errors"
	"strings"

	"github.com/Nexavor/yidongwagnpan/internal/models"
	"github.com/Nexavor/yidongwagnpan/internal/services"
	"github.com/Nexavor/yidongwagnpan/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

// parseFolderID decodes the opaque folder id used in URLs and payloads back
// to the raw identifier the engine works with.
func parseFolderID(value string) (uint, error) {
	return utils.DecryptFolderID(strings.TrimSpace(value))
}

// folderPayload is the outward shape of a folder: the raw id never leaves the
// process, only its encrypted form does.
func folderPayload(f *models.Folder) fiber.Map {
	payload := fiber.Map{
		"id":        utils.EncryptFolderID(f.ID),
		"name":      f.Name,
		"locked":    f.IsLocked(),
		"isDeleted": f.IsDeleted,
		"shared":    f.ShareToken != nil,
	}
	if f.ParentID != nil {
		payload["parentId"] = utils.EncryptFolderID(*f.ParentID)
	}
	if f.DeletedAt != nil {
		payload["deletedAt"] = *f.DeletedAt
	}
	return payload
}

func folderPayloads(folders []models.Folder) []fiber.Map {
	out := make([]fiber.Map, 0, len(folders))
	for i := range folders {
		out = append(out, folderPayload(&folders[i]))
	}
	return out
}

// serviceError maps the engine's error taxonomy onto HTTP statuses.
func serviceError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return utils.Error(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrConflict):
		return utils.Error(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, services.ErrLockedFolder):
		return utils.Error(c, fiber.StatusLocked, err.Error())
	case errors.Is(err, services.ErrQuotaExceeded):
		return utils.Error(c, fiber.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, services.ErrSelfContainment):
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}
	return utils.Error(c, fiber.StatusInternalServerError, fallback)
}

// itemSelection is the common request body for batch lifecycle operations.
type itemSelection struct {
	FileIDs   []string `json:"fileIds"`
	FolderIDs []string `json:"folderIds"`
}

func (s *itemSelection) folderIDs() ([]uint, error) {
	ids := make([]uint, 0, len(s.FolderIDs))
	for _, raw := range s.FolderIDs {
		id, err := parseFolderID(raw)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
