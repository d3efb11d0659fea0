package core

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// SpoolCleaner removes spooled uploads once nothing will read them again.
// Files outside its directory are never touched, so CLI imports of a local
// file keep the file.
type SpoolCleaner struct {
	dir string
}

// NewSpoolCleaner returns a cleaner for uploads spooled under dir.
func NewSpoolCleaner(dir string) *SpoolCleaner {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = filepath.Clean(dir)
	}
	return &SpoolCleaner{dir: abs}
}

// Owns reports whether path lies inside the spool directory.
func (c *SpoolCleaner) Owns(path string) bool {
	if c == nil || path == "" {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(c.dir, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return true
}

// Remove deletes path when the cleaner owns it. A missing file is not an error.
func (c *SpoolCleaner) Remove(path string) error {
	if !c.Owns(path) {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
