package engine

import (
	"time"

	"github.com/psync-dev/psync/internal/project"
)

type PushOptions struct {
	// Include globs; empty selects every file.
	Include []string
	// Exclude patterns added to the default excludes.
	Exclude []string
	// IgnorePsyncignore skips the directory's .psyncignore file.
	IgnorePsyncignore bool
}

type PushResult struct {
	ProjectID string
	Key       string
	Files     int
	// Skipped counts files that vanished between selection and packing.
	Skipped int
	// Bytes is the uncompressed size of the pushed files.
	Bytes int64
	// ArchiveSize is the size of the uploaded container.
	ArchiveSize int64
	SyncedAt    time.Time
}

type PullResult struct {
	ProjectID   string
	Key         string
	Files       int
	Bytes       int64
	ArchiveSize int64
	SyncedAt    time.Time
}

type StatusResult struct {
	Root     string
	Identity *project.Identity
	// HasIgnoreFile is true when the directory has a .psyncignore file.
	HasIgnoreFile bool
}
