// Package blobstore stores uploaded audio under caller-chosen keys.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"manuscript-ingest/config"
	"manuscript-ingest/constant"
)

var ErrObjectNotFound = errors.New("object not found")

type Store interface {
	// Put writes size bytes from body under key and returns the stored key.
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

func New(ctx context.Context, cfg config.Storage) (Store, error) {
	switch cfg.Driver {
	case constant.StorageDriverMinIO:
		return NewMinIO(cfg)
	case constant.StorageDriverS3:
		return NewS3(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}
