package idhash

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang/snappy"

	sderrors "github.com/sitdown/sitdown/internal/errors"
	"github.com/sitdown/sitdown/internal/storage"
)

// snapshotVersion is written into every snapshot.
const snapshotVersion = 1

// Store persists the hash map between runs.
type Store interface {
	// Load returns the stored entries, or an empty map when nothing has
	// been saved yet.
	Load(ctx context.Context) (map[string]string, error)

	// Save replaces the stored entries.
	Save(ctx context.Context, entries map[string]string) error
}

type snapshot struct {
	Version int               `json:"version"`
	Entries map[string]string `json:"entries"`
}

// encodeSnapshot serializes entries as Snappy-compressed JSON.
func encodeSnapshot(entries map[string]string) ([]byte, error) {
	raw, err := json.Marshal(snapshot{Version: snapshotVersion, Entries: entries})
	if err != nil {
		return nil, sderrors.NewInternalError("encode hash map", err)
	}
	return snappy.Encode(nil, raw), nil
}

func decodeSnapshot(data []byte) (map[string]string, error) {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, sderrors.NewIDMapError(sderrors.CodeSnapshotCorrupt, "decompress hash map", err)
	}
	var s snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, sderrors.NewIDMapError(sderrors.CodeSnapshotCorrupt, "decode hash map", err)
	}
	if s.Version != snapshotVersion {
		return nil, sderrors.NewIDMapError(sderrors.CodeSnapshotCorrupt,
			fmt.Sprintf("unsupported hash map version %d", s.Version), nil)
	}
	if s.Entries == nil {
		s.Entries = make(map[string]string)
	}
	return s.Entries, nil
}

// FileStore keeps the snapshot in a local file.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by the file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the snapshot file path.
func (f *FileStore) Path() string {
	return f.path
}

// Load reads the snapshot file. A missing file yields an empty map.
func (f *FileStore) Load(ctx context.Context) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, sderrors.NewStorageError(sderrors.CodeReadFailed, "read hash map "+f.path, err)
	}
	return decodeSnapshot(data)
}

// Save writes the snapshot through a temporary file and rename.
func (f *FileStore) Save(ctx context.Context, entries map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeSnapshot(entries)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return sderrors.NewStorageError(sderrors.CodeWriteFailed, "create hash map directory", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return sderrors.NewStorageError(sderrors.CodeWriteFailed, "write hash map "+tmp, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return sderrors.NewStorageError(sderrors.CodeWriteFailed, "replace hash map "+f.path, err)
	}
	return nil
}

// ObjectStore keeps the snapshot in object storage, staging it through a
// local work directory.
type ObjectStore struct {
	store      storage.ObjectStorage
	objectPath string
	workDir    string
}

// NewObjectStore creates a store for objectPath. workDir holds the staged
// file; the system temp directory is used when empty.
func NewObjectStore(store storage.ObjectStorage, objectPath, workDir string) *ObjectStore {
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &ObjectStore{store: store, objectPath: objectPath, workDir: workDir}
}

// Load downloads and decodes the snapshot. A missing object yields an
// empty map without staging anything.
func (o *ObjectStore) Load(ctx context.Context) (map[string]string, error) {
	exists, err := o.store.Exists(ctx, o.objectPath)
	if err != nil {
		return nil, err
	}
	if !exists {
		return make(map[string]string), nil
	}

	tmp, err := os.CreateTemp(o.workDir, "hashmap-*.snappy")
	if err != nil {
		return nil, sderrors.NewStorageError(sderrors.CodeWriteFailed, "stage hash map", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := o.store.Download(ctx, o.objectPath, tmpPath); err != nil {
		// Deleted between Exists and Download.
		if sderrors.GetCode(err) == sderrors.CodeObjectNotFound {
			return make(map[string]string), nil
		}
		return nil, err
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, sderrors.NewStorageError(sderrors.CodeReadFailed, "read staged hash map", err)
	}
	return decodeSnapshot(data)
}

// Save encodes and uploads the snapshot.
func (o *ObjectStore) Save(ctx context.Context, entries map[string]string) error {
	data, err := encodeSnapshot(entries)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(o.workDir, "hashmap-*.snappy")
	if err != nil {
		return sderrors.NewStorageError(sderrors.CodeWriteFailed, "stage hash map", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return sderrors.NewStorageError(sderrors.CodeWriteFailed, "write staged hash map", err)
	}
	if err := tmp.Close(); err != nil {
		return sderrors.NewStorageError(sderrors.CodeWriteFailed, "close staged hash map", err)
	}
	return o.store.Upload(ctx, tmpPath, o.objectPath)
}
