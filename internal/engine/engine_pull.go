package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/psync-dev/psync/internal/archive"
	"github.com/psync-dev/psync/internal/blob"
	"github.com/psync-dev/psync/internal/project"
	"github.com/psync-dev/psync/internal/syncerr"
	"github.com/psync-dev/psync/internal/utils"
)

// Pull overwrites the working directory with the project's remote snapshot.
// Local files that are not in the snapshot are left alone.
func (se *SyncEngine) Pull(ctx context.Context) (*PullResult, error) {
	id, err := se.identity.Require(opPull)
	if err != nil {
		return nil, err
	}
	if err := se.requireStore(opPull); err != nil {
		return nil, err
	}

	slog.Info("pull start", "project", id.ID)
	result, err := se.fetch(ctx, opPull, id.ID)
	if err != nil {
		return nil, err
	}

	synced, err := se.identity.RecordSync(ctx, se.now())
	if err != nil {
		return nil, err
	}
	result.SyncedAt = *synced.LastSyncAt

	slog.Info("pull complete", "project", id.ID, "files", result.Files)
	return result, nil
}

// Clone adopts the project id into an empty working directory and fetches
// its snapshot. The directory is checked before any remote call, and a clone
// that fails after that check leaves the directory as it found it.
func (se *SyncEngine) Clone(ctx context.Context, id string) (*PullResult, error) {
	if err := project.ValidateID(id); err != nil {
		return nil, err
	}
	if err := se.requireStore(opClone); err != nil {
		return nil, err
	}
	if err := se.identity.CheckAdoptable(); err != nil {
		return nil, err
	}

	key := project.BlobKey(id)
	exists, err := se.store.Exists(ctx, key)
	if err != nil {
		return nil, remoteErr(opClone, key, err)
	}
	if !exists {
		return nil, remoteErr(opClone, key, blob.ErrObjectNotFound)
	}

	slog.Info("clone start", "project", id, "dir", se.workspace.Root)
	rootExisted := utils.DirExists(se.workspace.Root)

	result, err := se.cloneInto(ctx, id)
	if err != nil {
		se.rollbackClone(rootExisted)
		return nil, err
	}

	slog.Info("clone complete", "project", id, "files", result.Files)
	return result, nil
}

func (se *SyncEngine) cloneInto(ctx context.Context, id string) (*PullResult, error) {
	result, err := se.fetch(ctx, opClone, id)
	if err != nil {
		return nil, err
	}
	if _, err := se.identity.Adopt(ctx, id, se.now()); err != nil {
		return nil, err
	}
	synced, err := se.identity.RecordSync(ctx, se.now())
	if err != nil {
		return nil, err
	}
	result.SyncedAt = *synced.LastSyncAt
	return result, nil
}

// rollbackClone removes everything a failed clone wrote. The directory held
// no user entries before the clone, so every user entry now present is ours.
func (se *SyncEngine) rollbackClone(rootExisted bool) {
	names, err := se.workspace.UserEntries()
	if err != nil {
		slog.Warn("clone rollback: failed to list directory", "dir", se.workspace.Root, "error", err)
	}
	for _, name := range names {
		if err := os.RemoveAll(se.workspace.AbsPath(name)); err != nil {
			slog.Warn("clone rollback: failed to remove entry", "path", name, "error", err)
		}
	}
	if err := se.identity.Remove(); err != nil {
		slog.Warn("clone rollback: failed to remove identity", "error", err)
	}
	if !rootExisted {
		// only succeeds if nothing is left
		_ = os.Remove(se.workspace.Root)
	}
	slog.Debug("clone rolled back", "dir", se.workspace.Root, "removed", len(names))
}

// fetch downloads the snapshot of id into a temp container and unpacks it
// into the working directory.
func (se *SyncEngine) fetch(ctx context.Context, op, id string) (*PullResult, error) {
	key := project.BlobKey(id)

	body, err := se.store.Get(ctx, key)
	if err != nil {
		return nil, remoteErr(op, key, err)
	}
	container, size, err := utils.CopyToTemp(body, archive.ContainerPattern)
	if cerr := body.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		removeContainer(container)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, syncerr.Transport(op, fmt.Errorf("download: %w", err)).WithPath(key)
	}
	defer removeContainer(container)

	slog.Debug("downloaded snapshot", "key", key, "size", humanize.Bytes(uint64(size)))

	stats, err := archive.Unpack(ctx, container, se.workspace.Root)
	if err != nil {
		return nil, err
	}

	return &PullResult{
		ProjectID:   id,
		Key:         key,
		Files:       stats.Files,
		Bytes:       stats.Bytes,
		ArchiveSize: size,
	}, nil
}
