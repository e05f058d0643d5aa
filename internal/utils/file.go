package utils

import (
	"io"
	"os"
	"path/filepath"
)

// WriteFileAtomic writes data to a temp file next to path and renames it into
// place, so readers never observe a partially written file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if err := EnsureParent(path); err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".psync-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}

	if err := tmpFile.Chmod(perm); err != nil {
		_ = tmpFile.Close()
		return err
	}

	if err := tmpFile.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, path)
}

// CopyToTemp streams r into a new temp file matching pattern and returns its
// path. The file is removed if the copy fails.
func CopyToTemp(r io.Reader, pattern string) (string, int64, error) {
	tmpFile, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", 0, err
	}
	tmpPath := tmpFile.Name()

	n, err := io.Copy(tmpFile, r)
	if cerr := tmpFile.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return "", 0, err
	}

	return tmpPath, n, nil
}

// RemoveQuietly removes path and ignores a missing file. It returns any other error.
func RemoveQuietly(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
