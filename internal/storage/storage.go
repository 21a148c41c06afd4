package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Nexavor/yidongwagnpan/internal/config"
)

// ErrNotFound is returned by Download when the backend has no payload for the
// given physical id.
var ErrNotFound = errors.New("storage: object not found")

// UploadResult carries the backend-issued identifiers for a stored payload.
type UploadResult struct {
	FileID      string
	ThumbFileID *string
	TgMessageID *int64
}

// Object is a downloaded payload stream plus the metadata callers forward to
// HTTP responses.
type Object struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
	ETag          string
}

// RemovalFile is the subset of a file row a backend needs to delete a payload.
type RemovalFile struct {
	MessageID   string
	FileID      string
	ThumbFileID *string
	TgMessageID *int64
}

// RemoteObject is one entry of a backend listing, used for reconciliation
// imports.
type RemoteObject struct {
	FileID    string
	Size      int64
	UpdatedAt int64
}

// Backend abstracts a payload store. Remove is best-effort: implementations
// log partial failures and keep going, and callers never treat a removal error
// as fatal for metadata consistency. List may return an empty set when the
// backend cannot enumerate.
type Backend interface {
	Upload(ctx context.Context, r io.Reader, size int64, fileName, contentType string, userID, folderID uint) (*UploadResult, error)
	Download(ctx context.Context, fileID string, userID uint) (*Object, error)
	Remove(ctx context.Context, files []RemovalFile, userID uint) error
	List(ctx context.Context, prefix string) ([]RemoteObject, error)
}

// New builds the backend selected by the storage config document. A missing
// storageMode is a configuration error the administrator must resolve.
func New(cfg *config.StorageConfig) (Backend, error) {
	switch cfg.StorageMode {
	case config.StorageModeS3:
		return NewS3Backend(cfg.S3)
	case config.StorageModeWebDAV:
		return NewWebDAVBackend(cfg.WebDAV)
	case config.StorageModeTelegram:
		return NewTelegramBackend(cfg.Telegram)
	case "":
		return nil, fmt.Errorf("no storage mode configured: set storageMode to s3, webdav or telegram")
	default:
		return nil, fmt.Errorf("unsupported storage mode %q", cfg.StorageMode)
	}
}
