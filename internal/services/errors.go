package services

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// Domain error taxonomy. Handlers map these onto HTTP statuses; everything
// else bubbles up as an internal error.
var (
	ErrNotFound        = errors.New("item not found")
	ErrConflict        = errors.New("name already exists")
	ErrLockedFolder    = errors.New("folder is password protected")
	ErrQuotaExceeded   = errors.New("storage quota exceeded")
	ErrSelfContainment = errors.New("cannot move a folder into itself or its descendant")
)

// isUniqueViolation reports whether err is a unique-constraint failure from
// either supported driver. gorm translates some of these to ErrDuplicatedKey,
// but not uniformly, so the driver messages are checked as well.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}
