package config

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Nexavor/yidongwagnpan/internal/models"
	"gorm.io/gorm"
)

const storageSettingKey = "storage_config"

const (
	StorageModeS3       = "s3"
	StorageModeWebDAV   = "webdav"
	StorageModeTelegram = "telegram"
)

// StorageConfig is the single JSON document selecting and configuring the
// payload backend. An empty StorageMode is a hard configuration error surfaced
// to the administrator, never silently defaulted.
type StorageConfig struct {
	StorageMode string         `json:"storageMode"`
	S3          S3Config       `json:"s3"`
	WebDAV      WebDAVConfig   `json:"webdav"`
	Telegram    TelegramConfig `json:"telegram"`
}

type S3Config struct {
	Endpoint        string `json:"endpoint"`
	Region          string `json:"region"`
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	Bucket          string `json:"bucketName"`
	UseSSL          bool   `json:"useSSL"`
}

type WebDAVConfig struct {
	Endpoint string `json:"endpoint"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type TelegramConfig struct {
	BotToken string `json:"botToken"`
	ChatID   int64  `json:"chatId"`
}

// Redacted returns a copy safe to hand to API clients: secrets are masked but
// their presence is still visible.
func (c *StorageConfig) Redacted() *StorageConfig {
	out := *c
	if out.S3.SecretAccessKey != "" {
		out.S3.SecretAccessKey = "********"
	}
	if out.WebDAV.Password != "" {
		out.WebDAV.Password = "********"
	}
	if out.Telegram.BotToken != "" {
		out.Telegram.BotToken = "********"
	}
	return &out
}

// StorageManager fronts the persisted storage-config document with a
// process-scoped cache. Reads hit the cache; Save writes through and updates
// it. Configuration changes are rare administrative actions, so a cached copy
// per process with explicit invalidation is sufficient.
type StorageManager struct {
	db *gorm.DB

	mu     sync.RWMutex
	cached *StorageConfig
}

func NewStorageManager(db *gorm.DB) *StorageManager {
	return &StorageManager{db: db}
}

func (m *StorageManager) Load() (*StorageConfig, error) {
	m.mu.RLock()
	if m.cached != nil {
		cfg := *m.cached
		m.mu.RUnlock()
		return &cfg, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cached != nil {
		cfg := *m.cached
		return &cfg, nil
	}

	var row models.Setting
	err := m.db.First(&row, "key = ?", storageSettingKey).Error
	if err == gorm.ErrRecordNotFound {
		m.cached = &StorageConfig{}
		cfg := *m.cached
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading storage config: %w", err)
	}

	var cfg StorageConfig
	if err := json.Unmarshal([]byte(row.Value), &cfg); err != nil {
		return nil, fmt.Errorf("parsing storage config: %w", err)
	}
	m.cached = &cfg
	out := cfg
	return &out, nil
}

// Save merges the incoming document over the persisted one. Nested backend
// sections are replaced wholesale only when the incoming section is non-zero,
// so updating one backend's credentials leaves the others intact.
func (m *StorageManager) Save(incoming *StorageConfig) error {
	current, err := m.Load()
	if err != nil {
		return err
	}

	merged := *current
	if incoming.StorageMode != "" {
		merged.StorageMode = incoming.StorageMode
	}
	if incoming.S3 != (S3Config{}) {
		merged.S3 = incoming.S3
	}
	if incoming.WebDAV != (WebDAVConfig{}) {
		merged.WebDAV = incoming.WebDAV
	}
	if incoming.Telegram != (TelegramConfig{}) {
		merged.Telegram = incoming.Telegram
	}

	raw, err := json.Marshal(&merged)
	if err != nil {
		return err
	}

	row := models.Setting{Key: storageSettingKey, Value: string(raw)}
	if err := m.db.Save(&row).Error; err != nil {
		return fmt.Errorf("persisting storage config: %w", err)
	}

	m.mu.Lock()
	m.cached = &merged
	m.mu.Unlock()
	return nil
}

// Invalidate drops the cached document so the next Load rereads the store.
func (m *StorageManager) Invalidate() {
	m.mu.Lock()
	m.cached = nil
	m.mu.Unlock()
}
