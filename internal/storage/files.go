// Package storage keeps publication files on local disk, one file per
// publication keyed by id.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// FileStore reads and writes publication files under a base directory.
type FileStore struct {
	dir string
}

// NewFileStore ensures the base directory exists and returns the store.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create file storage dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(publicationID uint) string {
	return filepath.Join(s.dir, strconv.FormatUint(uint64(publicationID), 10))
}

// Save streams the content to disk, replacing any previous file, and returns
// the number of bytes written.
func (s *FileStore) Save(publicationID uint, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(s.dir, "upload-*")
	if err != nil {
		return 0, fmt.Errorf("stage upload: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("write upload: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path(publicationID)); err != nil {
		return 0, fmt.Errorf("store upload: %w", err)
	}
	return n, nil
}

// Open returns a reader over the stored file. The caller closes it.
func (s *FileStore) Open(publicationID uint) (io.ReadCloser, error) {
	f, err := os.Open(s.path(publicationID))
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Path returns the on-disk location for streaming via SendFile.
func (s *FileStore) Path(publicationID uint) string {
	return s.path(publicationID)
}

// Delete removes the stored file. Missing files are not an error.
func (s *FileStore) Delete(publicationID uint) error {
	err := os.Remove(s.path(publicationID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
