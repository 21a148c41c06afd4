package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Nexavor/yidongwagnpan/internal/config"
	"github.com/Nexavor/yidongwagnpan/pkg/logger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/sync/errgroup"
)

// removeConcurrency bounds parallel delete calls so batch purges stay inside
// backend rate limits.
const removeConcurrency = 5

type S3Backend struct {
	client *minio.Client
	bucket string
}

func NewS3Backend(cfg config.S3Config) (*S3Backend, error) {
	var creds *credentials.Credentials
	if cfg.AccessKeyID == "" {
		creds = credentials.NewIAM("")
	} else {
		creds = credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  creds,
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}

	return &S3Backend{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

func (s *S3Backend) Upload(ctx context.Context, r io.Reader, size int64, fileName, contentType string, userID, folderID uint) (*UploadResult, error) {
	key := fmt.Sprintf("%d/%d/%s", userID, folderID, fileName)
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		logger.Error("s3_upload_failed", err, map[string]interface{}{
			"object_name":  key,
			"size":         size,
			"content_type": contentType,
			"bucket":       s.bucket,
		})
		return nil, err
	}
	logger.Info("s3_upload_success", map[string]interface{}{
		"object_name": key,
		"size":        size,
		"bucket":      s.bucket,
	})
	return &UploadResult{FileID: key}, nil
}

func (s *S3Backend) Download(ctx context.Context, fileID string, userID uint) (*Object, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, fileID, minio.GetObjectOptions{})
	if err != nil {
		logger.Error("s3_download_failed", err, map[string]interface{}{
			"object_name": fileID,
			"bucket":      s.bucket,
		})
		return nil, err
	}

	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrNotFound
		}
		logger.Error("s3_download_stat_failed", err, map[string]interface{}{
			"object_name": fileID,
			"bucket":      s.bucket,
		})
		return nil, err
	}

	return &Object{
		Body:          obj,
		ContentType:   stat.ContentType,
		ContentLength: stat.Size,
		ETag:          stat.ETag,
	}, nil
}

func (s *S3Backend) Remove(ctx context.Context, files []RemovalFile, userID uint) error {
	dirs := make(map[string]struct{})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(removeConcurrency)
	for _, f := range files {
		key := f.FileID
		if idx := strings.LastIndex(key, "/"); idx != -1 {
			dirs[key[:idx]] = struct{}{}
		}
		g.Go(func() error {
			if err := s.client.RemoveObject(gctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
				logger.Error("s3_delete_failed", err, map[string]interface{}{
					"object_name": key,
					"bucket":      s.bucket,
				})
			}
			return nil
		})
	}
	_ = g.Wait()

	// Some S3 tooling materializes directories as zero-byte "dir/" markers;
	// drop any marker whose prefix is now empty.
	for dir := range dirs {
		s.cleanupEmptyDir(ctx, dir)
	}
	return nil
}

func (s *S3Backend) cleanupEmptyDir(ctx context.Context, dir string) {
	contents, err := s.List(ctx, dir+"/")
	if err != nil || len(contents) > 0 {
		return
	}
	_ = s.client.RemoveObject(ctx, s.bucket, dir+"/", minio.RemoveObjectOptions{})
}

func (s *S3Backend) List(ctx context.Context, prefix string) ([]RemoteObject, error) {
	var objects []RemoteObject
	for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if info.Err != nil {
			return nil, info.Err
		}
		if strings.HasSuffix(info.Key, "/") {
			continue
		}
		objects = append(objects, RemoteObject{
			FileID:    info.Key,
			Size:      info.Size,
			UpdatedAt: info.LastModified.UnixMilli(),
		})
	}
	return objects, nil
}
