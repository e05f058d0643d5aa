// Package blob is the remote side of a sync: a flat key/value object store
// holding one snapshot per project under "<projectId>/latest.zip".
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrObjectNotFound is returned by Get when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

type Store interface {
	// Exists reports whether an object is stored under key.
	Exists(ctx context.Context, key string) (bool, error)
	// Put stores size bytes from body under key, replacing any previous object.
	Put(ctx context.Context, key string, body io.Reader, size int64) error
	// Get opens the object stored under key. The caller closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// ListTopLevelGroups returns the distinct first path segments of all keys.
	ListTopLevelGroups(ctx context.Context) ([]string, error)
}

// Error carries the store operation and object that failed.
type Error struct {
	Op     string
	Bucket string
	Key    string
	Err    error
}

func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("blob.%s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	}
	return fmt.Sprintf("blob.%s %s: %v", e.Op, e.Bucket, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err means the object does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound)
}
