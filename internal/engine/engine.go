// Package engine coordinates a sync: it ties the working directory's project
// identity, the file selection, the archiver and the blob store together into
// the init, clone, push, pull and list operations.
//
// Every operation is a single pass with no retries. Temporary containers are
// removed on every exit path, and destructive operations check their
// preconditions before touching local files or the network.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/psync-dev/psync/internal/blob"
	"github.com/psync-dev/psync/internal/project"
	"github.com/psync-dev/psync/internal/syncerr"
	"github.com/psync-dev/psync/internal/utils"
	"github.com/psync-dev/psync/internal/workspace"
)

const (
	opInit   = "init"
	opClone  = "clone"
	opPush   = "push"
	opPull   = "pull"
	opList   = "list"
	opStatus = "status"
)

var (
	// ErrRemoteProjectMissing is returned when the project has no snapshot in
	// the blob store. It is always accompanied by blob.ErrObjectNotFound.
	ErrRemoteProjectMissing = errors.New("project not found in remote store")
	// ErrNoStore is returned by remote operations on an engine built without a store.
	ErrNoStore = errors.New("no blob store configured")
)

type SyncEngine struct {
	workspace *workspace.Workspace
	identity  *project.Store
	store     blob.Store
	now       func() time.Time
}

// New creates an engine for the working directory dir. store may be nil for
// engines that only run local operations (init, status).
func New(dir string, store blob.Store) (*SyncEngine, error) {
	ws, err := workspace.New(dir)
	if err != nil {
		return nil, syncerr.Validation("open", err)
	}

	return &SyncEngine{
		workspace: ws,
		identity:  project.NewStore(ws),
		store:     store,
		now:       time.Now,
	}, nil
}

// Root is the absolute path of the working directory.
func (se *SyncEngine) Root() string {
	return se.workspace.Root
}

// Init creates a new project identity. No remote call is made; the project
// appears in the store with its first push.
func (se *SyncEngine) Init(ctx context.Context) (*project.Identity, error) {
	id, err := se.identity.Generate(ctx, se.now())
	if err != nil {
		return nil, err
	}

	slog.Info("project initialized", "project", id.ID, "dir", se.workspace.Root)
	return id, nil
}

// Status returns the identity of the working directory without contacting
// the store.
func (se *SyncEngine) Status() (*StatusResult, error) {
	id, err := se.identity.Require(opStatus)
	if err != nil {
		return nil, err
	}

	return &StatusResult{
		Root:          se.workspace.Root,
		Identity:      id,
		HasIgnoreFile: utils.FileExists(se.workspace.IgnoreFile),
	}, nil
}

// List returns the ids of every project in the store, sorted.
func (se *SyncEngine) List(ctx context.Context) ([]string, error) {
	if err := se.requireStore(opList); err != nil {
		return nil, err
	}

	groups, err := se.store.ListTopLevelGroups(ctx)
	if err != nil {
		return nil, remoteErr(opList, "", err)
	}
	return groups, nil
}

func (se *SyncEngine) requireStore(op string) error {
	if se.store == nil {
		return syncerr.Validation(op, ErrNoStore)
	}
	return nil
}

// remoteErr classifies a blob store failure. A missing object is a state
// error; everything else is a transport error.
func remoteErr(op, key string, err error) error {
	if blob.IsNotFound(err) {
		return syncerr.State(op, fmt.Errorf("%w: %w", ErrRemoteProjectMissing, err)).WithPath(key)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return syncerr.Transport(op, err).WithPath(key)
}

func removeContainer(path string) {
	if err := utils.RemoveQuietly(path); err != nil {
		slog.Warn("failed to remove temp container", "path", path, "error", err)
		return
	}
	slog.Debug("removed temp container", "path", path)
}
