package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jaennil/guide_helper/backend/prefetch/internal/tile"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// FilesystemStore keeps tiles at <root>/<provider>/<zoom>/<x>/<y>.png. The
// presence of the file is the only existence signal, so files are written to a
// temporary name in the same directory and renamed into place.
type FilesystemStore struct {
	root string
}

var _ TileStore = (*FilesystemStore)(nil)

func NewFilesystemStore(root string) *FilesystemStore {
	return &FilesystemStore{root: root}
}

func (s *FilesystemStore) Root() string {
	return s.root
}

// Path returns the file path of c.
func (s *FilesystemStore) Path(c tile.Coordinate) (string, error) {
	if !validSegment(c.Provider) {
		return "", fmt.Errorf("%w: provider %q", ErrInvalidCoordinate, c.Provider)
	}
	return filepath.Join(
		s.root,
		c.Provider,
		strconv.FormatUint(uint64(c.Zoom), 10),
		strconv.FormatUint(uint64(c.X), 10),
		strconv.FormatUint(uint64(c.Y), 10)+".png",
	), nil
}

func (s *FilesystemStore) Exists(c tile.Coordinate) (bool, error) {
	path, err := s.Path(c)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

func (s *FilesystemStore) Get(c tile.Coordinate) ([]byte, bool, error) {
	path, err := s.Path(c)
	if err != nil {
		return nil, false, err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return content, true, nil
}

func (s *FilesystemStore) Set(c tile.Coordinate, v []byte) error {
	path, err := s.Path(c)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}

	// MkdirAll succeeds when a concurrent worker created the directory first.
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}

	if err := writeFileAtomic(path, v); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}
	return nil
}

func writeFileAtomic(dest string, data []byte) error {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, filePerm); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

func validSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, `/\`)
}
