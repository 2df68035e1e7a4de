// Package storage provides object storage for run artifacts: the exported
// results database and the user-id hash map snapshot.
package storage

import (
	"context"
	"path"

	sderrors "github.com/sitdown/sitdown/internal/errors"
)

// Sentinel errors for storage operations. Errors returned by the
// implementations wrap one of these, so errors.Is matches on category and code.
var (
	ErrObjectNotFound = sderrors.New(sderrors.ErrCategoryStorage, sderrors.CodeObjectNotFound, "object not found")
	ErrUploadFailed   = sderrors.New(sderrors.ErrCategoryStorage, sderrors.CodeUploadFailed, "upload failed")
	ErrDownloadFailed = sderrors.New(sderrors.ErrCategoryStorage, sderrors.CodeDownloadFailed, "download failed")
	ErrDeleteFailed   = sderrors.New(sderrors.ErrCategoryStorage, sderrors.CodeDeleteFailed, "delete failed")
)

// ObjectStorage abstracts object storage operations.
// Implementations are S3 and the local filesystem.
type ObjectStorage interface {
	// Upload copies the local file at localPath to objectPath.
	Upload(ctx context.Context, localPath, objectPath string) error

	// Download copies objectPath to localPath. Returns ErrObjectNotFound
	// when the object does not exist.
	Download(ctx context.Context, objectPath, localPath string) error

	// Delete removes an object. Deleting a missing object is not an error.
	// Used to drop the results of a run that failed after uploading.
	Delete(ctx context.Context, objectPath string) error

	// Exists reports whether an object exists.
	Exists(ctx context.Context, objectPath string) (bool, error)
}

// ResultsObjectPath is where a run's results database is stored.
func ResultsObjectPath(prefix, runID string) string {
	return path.Join(prefix, runID, "results.sqlite")
}

// HashMapObjectPath is where the user-id hash map snapshot is stored.
func HashMapObjectPath(prefix string) string {
	return path.Join(prefix, "idmap", "hashmap.snappy")
}

func uploadError(objectPath string, cause error) error {
	return sderrors.NewStorageError(sderrors.CodeUploadFailed, "upload "+objectPath, cause)
}

func downloadError(objectPath string, cause error) error {
	return sderrors.NewStorageError(sderrors.CodeDownloadFailed, "download "+objectPath, cause)
}

func deleteError(objectPath string, cause error) error {
	return sderrors.NewStorageError(sderrors.CodeDeleteFailed, "delete "+objectPath, cause)
}

func notFoundError(objectPath string) error {
	return sderrors.New(sderrors.ErrCategoryStorage, sderrors.CodeObjectNotFound, "object not found: "+objectPath).
		WithDetails(map[string]interface{}{"object": objectPath})
}
