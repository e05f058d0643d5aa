package engine

import (
	"context"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/psync-dev/psync/internal/archive"
	"github.com/psync-dev/psync/internal/fileset"
	"github.com/psync-dev/psync/internal/syncerr"
)

// Push replaces the project's remote snapshot with the selected files of the
// working directory.
func (se *SyncEngine) Push(ctx context.Context, opts PushOptions) (*PushResult, error) {
	// no store call happens before the identity is known
	id, err := se.identity.Require(opPush)
	if err != nil {
		return nil, err
	}
	if err := se.requireStore(opPush); err != nil {
		return nil, err
	}

	files, err := fileset.Resolve(ctx, se.workspace.Root, fileset.Options{
		Include:       opts.Include,
		Exclude:       opts.Exclude,
		UseIgnoreFile: !opts.IgnorePsyncignore,
	})
	if err != nil {
		return nil, err
	}
	if files.Len() == 0 {
		slog.Warn("no files selected, pushing an empty snapshot", "dir", se.workspace.Root)
	}
	slog.Info("push start", "project", id.ID, "files", files.Len())

	container, stats, err := archive.Pack(ctx, se.workspace.Root, files)
	if err != nil {
		return nil, err
	}
	defer removeContainer(container)

	size, err := se.upload(ctx, id.BlobKey(), container)
	if err != nil {
		return nil, err
	}

	synced, err := se.identity.RecordSync(ctx, se.now())
	if err != nil {
		return nil, err
	}

	slog.Info("push complete",
		"project", id.ID,
		"files", stats.Files,
		"size", humanize.Bytes(uint64(size)),
	)
	return &PushResult{
		ProjectID:   id.ID,
		Key:         id.BlobKey(),
		Files:       stats.Files,
		Skipped:     stats.Skipped,
		Bytes:       stats.Bytes,
		ArchiveSize: size,
		SyncedAt:    *synced.LastSyncAt,
	}, nil
}

func (se *SyncEngine) upload(ctx context.Context, key, container string) (int64, error) {
	file, err := os.Open(container)
	if err != nil {
		return 0, syncerr.IO(opPush, err).WithPath(container)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return 0, syncerr.IO(opPush, err).WithPath(container)
	}

	if err := se.store.Put(ctx, key, file, info.Size()); err != nil {
		return 0, remoteErr(opPush, key, err)
	}
	return info.Size(), nil
}
