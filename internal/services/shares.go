package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Nexavor/yidongwagnpan/internal/models"
	"github.com/Nexavor/yidongwagnpan/pkg/utils"
	"gorm.io/gorm"
)

// shareTokenBytes yields 16 hex characters per token.
const shareTokenBytes = 8

// Shares issues and validates share tokens and folder lock passwords.
// Expiry is lazy: an expired token simply stops resolving, nothing sweeps it.
type Shares struct {
	DB *gorm.DB
}

func NewShares(db *gorm.DB) *Shares {
	return &Shares{DB: db}
}

// ParseShareExpiry maps the caller's TTL vocabulary onto an absolute epoch in
// milliseconds. "0" means the share never expires; the presets cover the
// common cases and anything else must be an explicit epoch.
func ParseShareExpiry(ttl string) (*int64, error) {
	switch ttl {
	case "", "0":
		return nil, nil
	case "1h":
		v := time.Now().Add(time.Hour).UnixMilli()
		return &v, nil
	case "24h":
		v := time.Now().Add(24 * time.Hour).UnixMilli()
		return &v, nil
	case "7d":
		v := time.Now().Add(7 * 24 * time.Hour).UnixMilli()
		return &v, nil
	}

	epoch, err := strconv.ParseInt(ttl, 10, 64)
	if err != nil || epoch <= time.Now().UnixMilli() {
		return nil, fmt.Errorf("invalid share expiry %q", ttl)
	}
	return &epoch, nil
}

func shareFields(expiresAt *int64, password string) (map[string]interface{}, string, error) {
	token, err := utils.RandomHex(shareTokenBytes)
	if err != nil {
		return nil, "", err
	}
	fields := map[string]interface{}{
		"share_token":      token,
		"share_expires_at": expiresAt,
		"share_password":   nil,
	}
	if password != "" {
		hash, err := utils.HashPassword(password)
		if err != nil {
			return nil, "", err
		}
		fields["share_password"] = hash
	}
	return fields, token, nil
}

// CreateFileShare issues a fresh token for an active file, replacing any
// previous grant.
func (s *Shares) CreateFileShare(ctx context.Context, messageID string, userID uint, ttl, password string) (string, error) {
	db := s.DB.WithContext(ctx)

	var file models.File
	err := db.First(&file, "message_id = ? AND user_id = ? AND is_deleted = ?", messageID, userID, false).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("%w: file", ErrNotFound)
	}
	if err != nil {
		return "", err
	}

	expiresAt, err := ParseShareExpiry(ttl)
	if err != nil {
		return "", err
	}
	fields, token, err := shareFields(expiresAt, password)
	if err != nil {
		return "", err
	}
	err = db.Model(&models.File{}).Where("message_id = ?", messageID).Updates(fields).Error
	if err != nil {
		return "", err
	}
	return token, nil
}

func (s *Shares) CreateFolderShare(ctx context.Context, folderID, userID uint, ttl, password string) (string, error) {
	db := s.DB.WithContext(ctx)

	var folder models.Folder
	err := db.First(&folder, "id = ? AND user_id = ? AND is_deleted = ?", folderID, userID, false).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("%w: folder", ErrNotFound)
	}
	if err != nil {
		return "", err
	}

	expiresAt, err := ParseShareExpiry(ttl)
	if err != nil {
		return "", err
	}
	fields, token, err := shareFields(expiresAt, password)
	if err != nil {
		return "", err
	}
	err = db.Model(&models.Folder{}).Where("id = ?", folderID).Updates(fields).Error
	if err != nil {
		return "", err
	}
	return token, nil
}

func shareExpired(expiresAt *int64) bool {
	return expiresAt != nil && *expiresAt <= time.Now().UnixMilli()
}

// FileByShareToken resolves a token to its file. Expired or revoked tokens
// behave exactly like tokens that never existed.
func (s *Shares) FileByShareToken(ctx context.Context, token string) (*models.File, error) {
	var file models.File
	err := s.DB.WithContext(ctx).
		Where("share_token = ? AND is_deleted = ?", token, false).
		First(&file).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: share", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if shareExpired(file.ShareExpiresAt) {
		return nil, fmt.Errorf("%w: share", ErrNotFound)
	}
	return &file, nil
}

func (s *Shares) FolderByShareToken(ctx context.Context, token string) (*models.Folder, error) {
	var folder models.Folder
	err := s.DB.WithContext(ctx).
		Where("share_token = ? AND is_deleted = ?", token, false).
		First(&folder).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: share", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if shareExpired(folder.ShareExpiresAt) {
		return nil, fmt.Errorf("%w: share", ErrNotFound)
	}
	return &folder, nil
}

// CheckSharePassword validates an optional share password against the stored
// hash. A share without a password accepts any input.
func CheckSharePassword(hash *string, supplied string) error {
	if hash == nil || *hash == "" {
		return nil
	}
	if !utils.CheckPassword(*hash, supplied) {
		return fmt.Errorf("invalid share password")
	}
	return nil
}

var clearedShare = map[string]interface{}{
	"share_token":      nil,
	"share_expires_at": nil,
	"share_password":   nil,
}

func (s *Shares) CancelFileShare(ctx context.Context, messageID string, userID uint) error {
	return s.DB.WithContext(ctx).Model(&models.File{}).
		Where("message_id = ? AND user_id = ?", messageID, userID).
		Updates(clearedShare).Error
}

func (s *Shares) CancelFolderShare(ctx context.Context, folderID, userID uint) error {
	return s.DB.WithContext(ctx).Model(&models.Folder{}).
		Where("id = ? AND user_id = ?", folderID, userID).
		Updates(clearedShare).Error
}

// ActiveShares lists the caller's unexpired grants across files and folders.
type ActiveShareList struct {
	Files   []models.File   `json:"files"`
	Folders []models.Folder `json:"folders"`
}

func (s *Shares) ActiveShares(ctx context.Context, userID uint) (*ActiveShareList, error) {
	db := s.DB.WithContext(ctx)
	now := time.Now().UnixMilli()

	list := &ActiveShareList{Files: []models.File{}, Folders: []models.Folder{}}
	err := db.Where("user_id = ? AND is_deleted = ? AND share_token IS NOT NULL", userID, false).
		Where("share_expires_at IS NULL OR share_expires_at > ?", now).
		Find(&list.Files).Error
	if err != nil {
		return nil, err
	}
	err = db.Where("user_id = ? AND is_deleted = ? AND share_token IS NOT NULL", userID, false).
		Where("share_expires_at IS NULL OR share_expires_at > ?", now).
		Find(&list.Folders).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

// SetFolderPassword locks a folder behind a password, or clears the lock when
// password is empty. The lock gates deletion and search visibility of the
// whole subtree.
func (s *Shares) SetFolderPassword(ctx context.Context, folderID, userID uint, password string) error {
	db := s.DB.WithContext(ctx)

	var folder models.Folder
	err := db.First(&folder, "id = ? AND user_id = ?", folderID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: folder", ErrNotFound)
	}
	if err != nil {
		return err
	}

	if password == "" {
		return db.Model(&models.Folder{}).Where("id = ?", folderID).
			Update("password", nil).Error
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		return err
	}
	return db.Model(&models.Folder{}).Where("id = ?", folderID).
		Update("password", hash).Error
}

// VerifyFolderPassword checks a supplied password against a locked folder.
// An unlocked folder accepts anything.
func (s *Shares) VerifyFolderPassword(ctx context.Context, folderID, userID uint, password string) error {
	db := s.DB.WithContext(ctx)

	var folder models.Folder
	err := db.First(&folder, "id = ? AND user_id = ?", folderID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: folder", ErrNotFound)
	}
	if err != nil {
		return err
	}
	if !folder.IsLocked() {
		return nil
	}
	if !utils.CheckPassword(*folder.Password, password) {
		return fmt.Errorf("%w", ErrLockedFolder)
	}
	return nil
}
