// Package workspace describes the on-disk layout of a synchronized working
// directory: the user's files plus the engine's own .psync metadata directory.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/psync-dev/psync/internal/utils"
)

const (
	// MetadataDirName is the engine's per-directory metadata directory. It is
	// never archived and never counts against an empty clone target.
	MetadataDirName = ".psync"
	// IgnoreFileName holds user exclude patterns, one glob per line.
	IgnoreFileName = ".psyncignore"

	projectFile = "project.json"
	configFile  = "config.json"
	lockFile    = "project.lock"

	lockRetryDelay = 50 * time.Millisecond
)

var ErrWorkspaceLocked = errors.New("workspace locked by another process")

type Workspace struct {
	Root        string
	MetadataDir string
	ProjectFile string
	ConfigFile  string
	IgnoreFile  string
	LockFile    string

	flock *flock.Flock
}

// New resolves rootDir to an absolute path with symlinks evaluated, so a
// directory walk starts at a real directory. A root that does not exist yet
// is kept as given.
func New(rootDir string) (*Workspace, error) {
	root, err := utils.ResolvePath(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", rootDir, err)
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to resolve path %s: %w", rootDir, err)
	}

	metadataDir := filepath.Join(root, MetadataDirName)
	return &Workspace{
		Root:        root,
		MetadataDir: metadataDir,
		ProjectFile: filepath.Join(metadataDir, projectFile),
		ConfigFile:  filepath.Join(metadataDir, configFile),
		IgnoreFile:  filepath.Join(root, IgnoreFileName),
		LockFile:    filepath.Join(metadataDir, lockFile),
		flock:       flock.New(filepath.Join(metadataDir, lockFile)),
	}, nil
}

// Lock takes the exclusive metadata lock, waiting until ctx is done.
func (w *Workspace) Lock(ctx context.Context) error {
	if err := utils.EnsureDir(w.MetadataDir); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", w.MetadataDir, err)
	}

	locked, err := w.flock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		if ctx.Err() != nil {
			return ErrWorkspaceLocked
		}
		return fmt.Errorf("failed to lock workspace: %w", err)
	}
	if !locked {
		return ErrWorkspaceLocked
	}

	return nil
}

// Unlock releases the lock. The lock file is left in place so that every
// process locks the same inode.
func (w *Workspace) Unlock() error {
	if !w.flock.Locked() {
		return nil
	}

	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock workspace: %w", err)
	}
	return nil
}

// UserEntries lists the top-level entries of Root other than the metadata
// directory. A missing Root has no entries.
func (w *Workspace) UserEntries() ([]string, error) {
	entries, err := os.ReadDir(w.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Name() == MetadataDirName {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// AbsPath returns the absolute path of a slash-separated relative path.
func (w *Workspace) AbsPath(relPath string) string {
	return filepath.Join(w.Root, filepath.FromSlash(relPath))
}
