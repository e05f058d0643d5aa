// Package project persists the identity of a synchronized directory: the
// opaque project id that addresses its snapshot in the blob store, plus the
// timestamps of its creation and last sync.
package project

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/psync-dev/psync/internal/syncerr"
	"github.com/psync-dev/psync/internal/utils"
	"github.com/psync-dev/psync/internal/workspace"
)

const (
	// IDLength is the length of a project id in hex characters.
	IDLength = 32

	opGenerate = "init"
	opAdopt    = "clone"
	opLoad     = "load project"
	opRecord   = "record sync"
)

var (
	ErrAlreadyInitialized = errors.New("project already initialized")
	ErrNoProject          = errors.New("no project found, run 'psync init' or 'psync clone' first")
	ErrNotEmpty           = errors.New("directory is not empty")
	ErrInvalidID          = errors.New("invalid project id")

	idPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)
)

// Identity is the persisted record of a project. CreatedAt is set for
// projects started with init, ClonedAt for projects adopted by clone.
type Identity struct {
	ID         string     `json:"projectId"`
	CreatedAt  *time.Time `json:"createdAt,omitempty"`
	ClonedAt   *time.Time `json:"clonedAt,omitempty"`
	LastSyncAt *time.Time `json:"lastSync,omitempty"`
}

// BlobKey is the remote key of the project's single snapshot.
func (i *Identity) BlobKey() string {
	return BlobKey(i.ID)
}

// BlobKey returns "<id>/latest.zip".
func BlobKey(id string) string {
	return id + "/latest.zip"
}

// NewID returns a fresh project id: the 128 random bits of a v4 UUID in hex.
func NewID() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(u.String(), "-", ""), nil
}

// ValidateID checks that id has the shape produced by NewID.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return syncerr.Validation(opAdopt, fmt.Errorf("%w %q: expected %d lowercase hex characters", ErrInvalidID, id, IDLength))
	}
	return nil
}

// Store reads and writes the identity of one workspace. Writes happen under
// the workspace lock and replace the file atomically.
type Store struct {
	ws    *workspace.Workspace
	newID func() (string, error)
}

func NewStore(ws *workspace.Workspace) *Store {
	return &Store{ws: ws, newID: NewID}
}

// Current loads the identity. ok is false when none exists.
func (s *Store) Current() (*Identity, bool, error) {
	data, err := os.ReadFile(s.ws.ProjectFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, syncerr.IO(opLoad, err).WithPath(s.ws.ProjectFile)
	}

	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, false, syncerr.IO(opLoad, fmt.Errorf("corrupt project file: %w", err)).WithPath(s.ws.ProjectFile)
	}
	if !idPattern.MatchString(id.ID) {
		return nil, false, syncerr.IO(opLoad, fmt.Errorf("corrupt project file: %w %q", ErrInvalidID, id.ID)).WithPath(s.ws.ProjectFile)
	}
	return &id, true, nil
}

// Require loads the identity and fails with a state error when none exists.
func (s *Store) Require(op string) (*Identity, error) {
	id, ok, err := s.Current()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, syncerr.State(op, ErrNoProject).WithPath(s.ws.Root)
	}
	return id, nil
}

// Generate creates a new identity. It never overwrites an existing one.
func (s *Store) Generate(ctx context.Context, now time.Time) (*Identity, error) {
	var created *Identity
	err := s.withLock(ctx, opGenerate, func() error {
		if _, ok, err := s.Current(); err != nil {
			return err
		} else if ok {
			return syncerr.State(opGenerate, ErrAlreadyInitialized).WithPath(s.ws.Root)
		}

		id, err := s.newID()
		if err != nil {
			return syncerr.IO(opGenerate, fmt.Errorf("generate project id: %w", err))
		}

		ts := now.UTC()
		created = &Identity{ID: id, CreatedAt: &ts}
		return s.write(opGenerate, created)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CheckAdoptable fails unless the workspace holds nothing but metadata and
// has no identity. It performs no writes.
func (s *Store) CheckAdoptable() error {
	if _, ok, err := s.Current(); err != nil {
		return err
	} else if ok {
		return syncerr.State(opAdopt, ErrAlreadyInitialized).WithPath(s.ws.Root)
	}

	names, err := s.ws.UserEntries()
	if err != nil {
		return syncerr.IO(opAdopt, err).WithPath(s.ws.Root)
	}
	if len(names) > 0 {
		return syncerr.State(opAdopt, fmt.Errorf("%w: found %q", ErrNotEmpty, names[0])).WithPath(s.ws.Root)
	}
	return nil
}

// Adopt records a foreign id for this workspace. Emptiness is checked
// against the user entries present before the clone began, so callers must
// run CheckAdoptable before writing any files.
func (s *Store) Adopt(ctx context.Context, id string, now time.Time) (*Identity, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	var adopted *Identity
	err := s.withLock(ctx, opAdopt, func() error {
		if _, ok, err := s.Current(); err != nil {
			return err
		} else if ok {
			return syncerr.State(opAdopt, ErrAlreadyInitialized).WithPath(s.ws.Root)
		}

		ts := now.UTC()
		adopted = &Identity{ID: id, ClonedAt: &ts}
		return s.write(opAdopt, adopted)
	})
	if err != nil {
		return nil, err
	}
	return adopted, nil
}

// RecordSync stamps the identity with now. The stored value always moves
// forward: if now is not after the previous sync, one nanosecond past the
// previous sync is recorded instead.
func (s *Store) RecordSync(ctx context.Context, now time.Time) (*Identity, error) {
	var updated *Identity
	err := s.withLock(ctx, opRecord, func() error {
		id, err := s.Require(opRecord)
		if err != nil {
			return err
		}

		ts := now.UTC()
		if id.LastSyncAt != nil && !ts.After(*id.LastSyncAt) {
			ts = id.LastSyncAt.Add(time.Nanosecond)
		}
		id.LastSyncAt = &ts

		updated = id
		return s.write(opRecord, id)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Remove deletes the identity and lock files and, if nothing else remains in it, the
// metadata directory.
func (s *Store) Remove() error {
	for _, path := range []string{s.ws.ProjectFile, s.ws.LockFile} {
		if err := utils.RemoveQuietly(path); err != nil {
			return syncerr.IO(opAdopt, err).WithPath(path)
		}
	}
	// fails harmlessly when other metadata (e.g. config.json) is present
	_ = os.Remove(s.ws.MetadataDir)
	return nil
}

func (s *Store) write(op string, id *Identity) error {
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return syncerr.IO(op, err)
	}
	if err := utils.WriteFileAtomic(s.ws.ProjectFile, data, 0o644); err != nil {
		return syncerr.IO(op, err).WithPath(s.ws.ProjectFile)
	}
	return nil
}

func (s *Store) withLock(ctx context.Context, op string, fn func() error) error {
	if err := s.ws.Lock(ctx); err != nil {
		if errors.Is(err, workspace.ErrWorkspaceLocked) {
			return syncerr.State(op, err).WithPath(s.ws.Root)
		}
		return syncerr.IO(op, err).WithPath(s.ws.Root)
	}
	defer func() {
		_ = s.ws.Unlock()
	}()
	return fn()
}
