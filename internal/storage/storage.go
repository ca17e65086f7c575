// Package storage provides temporary file handling for uploaded audio and
// publication of segmentation results. It defines the Storage port and its
// local disk and S3 implementations.
package storage

import (
	"context"
	"io"
)

// Storage defines temporary file handling and result publication.
type Storage interface {
	// SaveTemp saves data to a temporary file and returns the file path.
	// The name parameter is used as a hint for the filename.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// LoadTemp reads a temporary file and returns a reader.
	// The caller is responsible for closing the returned ReadCloser.
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)

	// CleanupTemp removes the specified temporary files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error

	// Publish stores a result document under key and returns its location.
	// Returns ErrStorageNotConfigured when no result destination is set.
	Publish(ctx context.Context, key string, data io.Reader) (location string, err error)
}
