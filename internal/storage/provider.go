package storage

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/Nexavor/yidongwagnpan/internal/config"
)

// Provider hands out the backend selected by the persisted storage config.
// The built client is reused until the config document changes, so callers can
// ask for the current backend on every request without paying client setup.
type Provider struct {
	manager *config.StorageManager

	mu          sync.Mutex
	fingerprint string
	backend     Backend
}

func NewProvider(manager *config.StorageManager) *Provider {
	return &Provider{manager: manager}
}

func (p *Provider) Current(ctx context.Context) (Backend, error) {
	cfg, err := p.manager.Load()
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.backend != nil && p.fingerprint == string(raw) {
		return p.backend, nil
	}

	backend, err := New(cfg)
	if err != nil {
		return nil, err
	}
	p.backend = backend
	p.fingerprint = string(raw)
	return backend, nil
}
