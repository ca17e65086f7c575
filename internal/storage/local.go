package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrStorageNotConfigured is returned by Publish when no result
	// destination is configured.
	ErrStorageNotConfigured = errors.New("result storage is not configured")
	// ErrInvalidKey is returned when a publish key escapes the result root.
	ErrInvalidKey = errors.New("invalid result key")
)

// LocalStorage implements Storage on local disk. Temporary uploads live in
// tempDir; published results are written under resultsDir.
type LocalStorage struct {
	tempDir    string
	resultsDir string
}

// NewLocalStorage creates a new LocalStorage instance.
// If tempDir is empty, a directory under os.TempDir() is used. An empty
// resultsDir disables Publish. Both directories are created if needed.
func NewLocalStorage(tempDir, resultsDir string) (*LocalStorage, error) {
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "ipusegment")
	}
	if err := os.MkdirAll(tempDir, 0750); err != nil {
		return nil, fmt.Errorf("create temp directory: %w", err)
	}
	if resultsDir != "" {
		if err := os.MkdirAll(resultsDir, 0750); err != nil {
			return nil, fmt.Errorf("create results directory: %w", err)
		}
	}
	return &LocalStorage{tempDir: tempDir, resultsDir: resultsDir}, nil
}

// TempDir returns the temporary directory path.
func (s *LocalStorage) TempDir() string {
	return s.tempDir
}

// ResultsDir returns the results directory path, empty when disabled.
func (s *LocalStorage) ResultsDir() string {
	return s.resultsDir
}

// SaveTemp saves data to a temporary file and returns the file path.
// The name is used as a base for the filename with a unique suffix.
func (s *LocalStorage) SaveTemp(ctx context.Context, name string, data io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context cancelled: %w", err)
	}

	f, err := os.CreateTemp(s.tempDir, name+"_*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	return writeAndClose(f, data)
}

// LoadTemp opens a temporary file for reading.
func (s *LocalStorage) LoadTemp(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	f, err := os.Open(path) // #nosec G304 - path comes from SaveTemp
	if err != nil {
		return nil, fmt.Errorf("open temp file: %w", err)
	}
	return f, nil
}

// CleanupTemp removes the specified temporary files, returning the first
// error encountered.
func (s *LocalStorage) CleanupTemp(ctx context.Context, paths []string) error {
	var firstErr error
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled: %w", err)
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = fmt.Errorf("remove temp file %s: %w", p, err)
		}
	}
	return firstErr
}

// Publish writes data to resultsDir/key and returns the file path.
func (s *LocalStorage) Publish(ctx context.Context, key string, data io.Reader) (string, error) {
	if s.resultsDir == "" {
		return "", ErrStorageNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context cancelled: %w", err)
	}
	if err := validateKey(key); err != nil {
		return "", err
	}

	dst := filepath.Join(s.resultsDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return "", fmt.Errorf("create result directory: %w", err)
	}
	f, err := os.Create(dst) // #nosec G304 - key is validated above
	if err != nil {
		return "", fmt.Errorf("create result file: %w", err)
	}
	return writeAndClose(f, data)
}

func writeAndClose(f *os.File, data io.Reader) (string, error) {
	name := f.Name()
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("close file: %w", err)
	}
	return name, nil
}

// validateKey rejects empty, absolute and parent-relative keys.
func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}
