package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Nexavor/yidongwagnpan/internal/models"
	"gorm.io/gorm"
)

// Quota computes per-user storage usage. Usage is recomputed from the active
// file rows on every check; there is no running counter to drift.
type Quota struct {
	DB *gorm.DB
}

func NewQuota(db *gorm.DB) *Quota {
	return &Quota{DB: db}
}

// Usage is the used-vs-max pair for one user. MaxBytes 0 means unlimited.
type Usage struct {
	UsedBytes int64 `json:"usedBytes"`
	MaxBytes  int64 `json:"maxBytes"`
}

func (q *Quota) usedBytes(db *gorm.DB, userID uint) (int64, error) {
	var used int64
	err := db.Model(&models.File{}).
		Where("user_id = ? AND is_deleted = ?", userID, false).
		Select("COALESCE(SUM(size), 0)").
		Scan(&used).Error
	return used, err
}

func (q *Quota) Usage(ctx context.Context, userID uint) (*Usage, error) {
	db := q.DB.WithContext(ctx)

	var user models.User
	err := db.First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: user", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	used, err := q.usedBytes(db, userID)
	if err != nil {
		return nil, err
	}
	return &Usage{UsedBytes: used, MaxBytes: user.QuotaLimit()}, nil
}

// Check rejects an incoming upload that would push the user past the ceiling.
// The caller must run this before handing the payload to the backend.
func (q *Quota) Check(ctx context.Context, userID uint, incoming int64) error {
	usage, err := q.Usage(ctx, userID)
	if err != nil {
		return err
	}
	if usage.MaxBytes == 0 {
		return nil
	}
	if usage.UsedBytes+incoming > usage.MaxBytes {
		return fmt.Errorf("%w: %d of %d bytes used", ErrQuotaExceeded, usage.UsedBytes, usage.MaxBytes)
	}
	return nil
}

// UserUsage pairs an account with its current quota numbers, for the admin
// listing.
type UserUsage struct {
	User  models.User `json:"user"`
	Usage Usage       `json:"usage"`
}

func (q *Quota) ListUsers(ctx context.Context) ([]UserUsage, error) {
	db := q.DB.WithContext(ctx)

	var users []models.User
	if err := db.Order("id").Find(&users).Error; err != nil {
		return nil, err
	}

	out := make([]UserUsage, 0, len(users))
	for i := range users {
		used, err := q.usedBytes(db, users[i].ID)
		if err != nil {
			return nil, err
		}
		out = append(out, UserUsage{
			User:  users[i],
			Usage: Usage{UsedBytes: used, MaxBytes: users[i].QuotaLimit()},
		})
	}
	return out, nil
}

// SetMaxStorage changes a non-admin user's ceiling. Zero grants unlimited
// storage.
func (q *Quota) SetMaxStorage(ctx context.Context, targetUserID uint, maxBytes int64) error {
	db := q.DB.WithContext(ctx)

	var user models.User
	err := db.First(&user, "id = ?", targetUserID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: user", ErrNotFound)
	}
	if err != nil {
		return err
	}
	if user.IsAdmin {
		return fmt.Errorf("admin accounts have no storage ceiling")
	}
	if maxBytes < 0 {
		return fmt.Errorf("max storage must not be negative")
	}

	return db.Model(&models.User{}).
		Where("id = ?", targetUserID).
		Update("max_storage_bytes", maxBytes).Error
}
