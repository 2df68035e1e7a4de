package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	sderrors "github.com/sitdown/sitdown/internal/errors"
)

// LocalStorage implements ObjectStorage on the local filesystem.
// Object paths are slash separated and resolved under basePath.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a local storage rooted at basePath.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, sderrors.NewStorageError(sderrors.CodeUploadFailed,
			fmt.Sprintf("create storage root %s", basePath), err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// BasePath returns the storage root.
func (l *LocalStorage) BasePath() string {
	return l.basePath
}

// Upload copies a local file into storage. The object is written to a
// temporary name first and renamed, so readers never see a partial file.
func (l *LocalStorage) Upload(ctx context.Context, localPath, objectPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	destPath := l.fullPath(objectPath)
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return uploadError(objectPath, err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return uploadError(objectPath, err)
	}
	defer src.Close()

	tmpPath := destPath + ".tmp"
	dst, err := os.Create(tmpPath)
	if err != nil {
		return uploadError(objectPath, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return uploadError(objectPath, err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return uploadError(objectPath, err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return uploadError(objectPath, err)
	}
	return nil
}

// Download copies an object to a local file.
func (l *LocalStorage) Download(ctx context.Context, objectPath, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	srcPath := l.fullPath(objectPath)
	if _, err := os.Stat(srcPath); os.IsNotExist(err) {
		return notFoundError(objectPath)
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return downloadError(objectPath, err)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return downloadError(objectPath, err)
	}
	defer src.Close()

	dst, err := os.Create(localPath)
	if err != nil {
		return downloadError(objectPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return downloadError(objectPath, err)
	}
	return nil
}

// Delete removes an object. Missing objects are ignored, matching S3.
func (l *LocalStorage) Delete(ctx context.Context, objectPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(l.fullPath(objectPath)); err != nil && !os.IsNotExist(err) {
		return deleteError(objectPath, err)
	}
	return nil
}

// Exists reports whether an object exists.
func (l *LocalStorage) Exists(ctx context.Context, objectPath string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := os.Stat(l.fullPath(objectPath))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (l *LocalStorage) fullPath(objectPath string) string {
	return filepath.Join(l.basePath, filepath.FromSlash(objectPath))
}
