package locset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// BackupPath returns the sibling backup path for an artifact:
// locators.json -> locators.backup.json.
func BackupPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".backup" + ext
}

// Load reads and decodes the artifact at path.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("locset: read %s: %w", path, err)
	}
	return Decode(data)
}

// Save writes s to path as the next revision and returns the written Set.
// The write goes to a temporary file in the same directory, then is renamed
// over path, so readers see either the old or the new artifact.
func Save(path string, s *Set, at time.Time) (*Set, error) {
	next := &Set{
		revision:  s.revision + 1,
		updatedAt: at.UTC(),
		current:   s.current.Clone(),
		fallback:  s.fallback.Clone(),
		raw:       s.raw,
	}
	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("locset: encode: %w", err)
	}
	data = append(data, '\n')
	if err := writeAtomic(path, data); err != nil {
		return nil, err
	}
	return next, nil
}

// Backup copies the artifact at path to backupPath byte for byte,
// overwriting any prior backup.
func Backup(path, backupPath string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("locset: backup read: %w", err)
	}
	if err := writeAtomic(backupPath, data); err != nil {
		return fmt.Errorf("locset: backup: %w", err)
	}
	return nil
}

// Restore copies backupPath back over path.
func Restore(backupPath, path string) error {
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("locset: restore read: %w", err)
	}
	if _, err := Decode(data); err != nil {
		return fmt.Errorf("locset: restore: backup is not a valid artifact: %w", err)
	}
	return writeAtomic(path, data)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("locset: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("locset: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("locset: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("locset: close temp: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("locset: chmod temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("locset: rename: %w", err)
	}
	return nil
}
