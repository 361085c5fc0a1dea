package media

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInsecureFilename is returned when a filename fails security validation.
var ErrInsecureFilename = errors.New("insecure filename")

// ErrFileExists is returned when attempting to save a file that already exists.
var ErrFileExists = errors.New("file already exists")

// isSecureFilename rejects empty names, dot-prefixed names, path traversal
// sequences and path separators.
func isSecureFilename(filename string) bool {
	if filename == "" || strings.HasPrefix(filename, ".") {
		return false
	}
	if strings.Contains(filename, "..") || strings.ContainsAny(filename, "/\\") || filepath.IsAbs(filename) {
		return false
	}
	return true
}

// LocalStorage keeps uploaded files and their format variants in a single
// flat directory. Variant files carry their format name as a prefix, e.g.
// small_<uuid>.jpg.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage creates a LocalStorage rooted at baseDir, creating it if
// needed.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating media directory %s: %w", baseDir, err)
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

// Save writes data to {baseDir}/{filename}. It uses O_EXCL so an existing
// file is never overwritten.
func (s *LocalStorage) Save(filename string, data []byte) error {
	if !isSecureFilename(filename) {
		return fmt.Errorf("%w: %q", ErrInsecureFilename, filename)
	}

	path := filepath.Join(s.baseDir, filename)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: %s", ErrFileExists, path)
		}
		return fmt.Errorf("creating file %s: %w", path, err)
	}

	_, writeErr := f.Write(data)
	closeErr := f.Close()

	if writeErr != nil {
		_ = os.Remove(path)
		return fmt.Errorf("writing file %s: %w", path, writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("closing file %s: %w", path, closeErr)
	}
	return nil
}

// Delete removes {baseDir}/{filename}. A missing file is not an error.
func (s *LocalStorage) Delete(filename string) error {
	if !isSecureFilename(filename) {
		return fmt.Errorf("%w: %q", ErrInsecureFilename, filename)
	}

	path := filepath.Join(s.baseDir, filename)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting file %s: %w", path, err)
	}
	return nil
}

// Path returns the filesystem path for filename, or "" if the name fails
// validation.
func (s *LocalStorage) Path(filename string) string {
	if !isSecureFilename(filename) {
		return ""
	}
	return filepath.Join(s.baseDir, filename)
}
