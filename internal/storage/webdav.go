package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/Nexavor/yidongwagnpan/internal/config"
	"github.com/Nexavor/yidongwagnpan/pkg/logger"
	"github.com/studio-b12/gowebdav"
	"golang.org/x/sync/errgroup"
)

type WebDAVBackend struct {
	client *gowebdav.Client
}

func NewWebDAVBackend(cfg config.WebDAVConfig) (*WebDAVBackend, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("webdav endpoint not configured")
	}
	endpoint := strings.TrimSuffix(cfg.Endpoint, "/")
	return &WebDAVBackend{
		client: gowebdav.NewClient(endpoint, cfg.Username, cfg.Password),
	}, nil
}

func (w *WebDAVBackend) Upload(ctx context.Context, r io.Reader, size int64, fileName, contentType string, userID, folderID uint) (*UploadResult, error) {
	dir := fmt.Sprintf("%d/%d", userID, folderID)
	if err := w.client.MkdirAll(dir, 0755); err != nil {
		logger.Error("webdav_mkdir_failed", err, map[string]interface{}{"dir": dir})
		return nil, err
	}

	key := dir + "/" + fileName
	if err := w.client.WriteStream(key, r, 0644); err != nil {
		logger.Error("webdav_upload_failed", err, map[string]interface{}{
			"path": key,
			"size": size,
		})
		return nil, err
	}

	logger.Info("webdav_upload_success", map[string]interface{}{
		"path": key,
		"size": size,
	})
	return &UploadResult{FileID: key}, nil
}

func (w *WebDAVBackend) Download(ctx context.Context, fileID string, userID uint) (*Object, error) {
	info, err := w.client.Stat(fileID)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		logger.Error("webdav_stat_failed", err, map[string]interface{}{"path": fileID})
		return nil, err
	}

	stream, err := w.client.ReadStream(fileID)
	if err != nil {
		logger.Error("webdav_download_failed", err, map[string]interface{}{"path": fileID})
		return nil, err
	}

	return &Object{
		Body:          stream,
		ContentType:   "application/octet-stream",
		ContentLength: info.Size(),
		ETag:          fmt.Sprintf("dav-%d-%d", info.Size(), info.ModTime().Unix()),
	}, nil
}

func (w *WebDAVBackend) Remove(ctx context.Context, files []RemovalFile, userID uint) error {
	dirs := make(map[string]struct{})
	for _, f := range files {
		if idx := strings.LastIndex(f.FileID, "/"); idx != -1 {
			dirs[f.FileID[:idx]] = struct{}{}
		}
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(removeConcurrency)
	for _, f := range files {
		target := f.FileID
		g.Go(func() error {
			if err := w.client.Remove(target); err != nil {
				logger.Error("webdav_delete_failed", err, map[string]interface{}{"path": target})
			}
			return nil
		})
	}
	_ = g.Wait()

	// Directory cleanup stays sequential; failures here are cosmetic.
	for dir := range dirs {
		w.removeDirIfEmpty(dir)
	}
	return nil
}

func (w *WebDAVBackend) removeDirIfEmpty(dir string) {
	entries, err := w.client.ReadDir(dir)
	if err != nil || len(entries) > 0 {
		return
	}
	if err := w.client.Remove(dir); err != nil {
		logger.Warn("webdav_dir_cleanup_failed", map[string]interface{}{
			"dir":   dir,
			"error": err.Error(),
		})
	}
}

func (w *WebDAVBackend) List(ctx context.Context, prefix string) ([]RemoteObject, error) {
	var objects []RemoteObject
	var walk func(dir string) error
	walk = func(dir string) error {
		entries, err := w.client.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		for _, entry := range entries {
			full := path.Join(dir, entry.Name())
			if entry.IsDir() {
				if err := walk(full); err != nil {
					return err
				}
				continue
			}
			objects = append(objects, RemoteObject{
				FileID:    full,
				Size:      entry.Size(),
				UpdatedAt: entry.ModTime().UnixMilli(),
			})
		}
		return nil
	}

	if err := walk(strings.TrimSuffix(prefix, "/")); err != nil {
		return nil, err
	}
	return objects, nil
}
