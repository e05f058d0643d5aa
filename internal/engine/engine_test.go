package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/psync-dev/psync/internal/archive"
	"github.com/psync-dev/psync/internal/blob"
	"github.com/psync-dev/psync/internal/blob/blobtest"
	"github.com/psync-dev/psync/internal/project"
	"github.com/psync-dev/psync/internal/syncerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const foreignID = "0123456789abcdef0123456789abcdef"

// isolateTemp points the temp dir at a fresh directory and fails the test if
// any container is left in it.
func isolateTemp(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		return
	}
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)
	t.Cleanup(func() {
		entries, err := os.ReadDir(tmp)
		require.NoError(t, err)
		assert.Empty(t, entries, "temp containers must be removed")
	})
}

func newEngine(t *testing.T, dir string, store blob.Store) *SyncEngine {
	t.Helper()
	se, err := New(dir, store)
	require.NoError(t, err)
	return se
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

// readTree returns every regular file under root except the metadata dir.
func readTree(t *testing.T, root string) map[string]string {
	t.Helper()
	got := map[string]string{}
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		require.NoError(t, err)
		if d.IsDir() {
			if d.Name() == ".psync" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		require.NoError(t, err)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		got[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	require.NoError(t, err)
	return got
}

// remoteTree unpacks the object stored under key and returns its files.
func remoteTree(t *testing.T, store *blobtest.MemoryStore, key string) map[string]string {
	t.Helper()
	data, ok := store.Object(key)
	require.True(t, ok, "object %s missing", key)

	container := filepath.Join(t.TempDir(), "remote.zip")
	require.NoError(t, os.WriteFile(container, data, 0o644))
	dst := t.TempDir()
	_, err := archive.Unpack(context.Background(), container, dst)
	require.NoError(t, err)
	return readTree(t, dst)
}

// seedRemote stores a snapshot of files under key.
func seedRemote(t *testing.T, store *blobtest.MemoryStore, key string, files map[string]string) {
	t.Helper()
	src := t.TempDir()
	writeFiles(t, src, files)
	var rels []string
	for rel := range files {
		rels = append(rels, rel)
	}
	container, _, err := archive.Pack(context.Background(), src, rels)
	require.NoError(t, err)
	defer os.Remove(container)
	data, err := os.ReadFile(container)
	require.NoError(t, err)
	store.SetObject(key, data)
}

func initProject(t *testing.T, se *SyncEngine) *project.Identity {
	t.Helper()
	id, err := se.Init(context.Background())
	require.NoError(t, err)
	return id
}

func currentIdentity(t *testing.T, dir string) *project.Identity {
	t.Helper()
	se := newEngine(t, dir, nil)
	st, err := se.Status()
	require.NoError(t, err)
	return st.Identity
}

func TestInit(t *testing.T) {
	store := blobtest.NewMemoryStore()
	dir := t.TempDir()
	se := newEngine(t, dir, store)

	id := initProject(t, se)
	require.NoError(t, project.ValidateID(id.ID))
	assert.NotNil(t, id.CreatedAt)

	_, err := se.Init(context.Background())
	require.Error(t, err)
	assert.True(t, syncerr.IsState(err))
	assert.ErrorIs(t, err, project.ErrAlreadyInitialized)

	assert.Equal(t, id.ID, currentIdentity(t, dir).ID)
	assert.Zero(t, store.CallCount(""))
}

func TestPush_WithoutIdentity(t *testing.T) {
	isolateTemp(t)
	store := blobtest.NewMemoryStore()
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.txt": "a"})

	_, err := newEngine(t, dir, store).Push(context.Background(), PushOptions{})
	require.Error(t, err)
	assert.True(t, syncerr.IsState(err))
	assert.ErrorIs(t, err, project.ErrNoProject)
	assert.Zero(t, store.CallCount(""), "no blob store call before the identity check")
}

func TestPush_UploadsSnapshot(t *testing.T) {
	isolateTemp(t)
	store := blobtest.NewMemoryStore()
	dir := t.TempDir()
	se := newEngine(t, dir, store)
	id := initProject(t, se)

	writeFiles(t, dir, map[string]string{
		"a.txt":             "a",
		"b.log":             "b",
		"src/main.go":       "package main",
		".git/HEAD":         "ref: refs/heads/main",
		"node_modules/x.js": "x",
	})

	res, err := se.Push(context.Background(), PushOptions{})
	require.NoError(t, err)
	assert.Equal(t, id.ID, res.ProjectID)
	assert.Equal(t, id.ID+"/latest.zip", res.Key)
	assert.Equal(t, 3, res.Files)
	assert.Positive(t, res.ArchiveSize)
	assert.Equal(t, []string{blobtest.CallPut}, store.Calls())

	assert.Equal(t, map[string]string{
		"a.txt":       "a",
		"b.log":       "b",
		"src/main.go": "package main",
	}, remoteTree(t, store, res.Key))

	after := currentIdentity(t, dir)
	require.NotNil(t, after.LastSyncAt)
	assert.True(t, after.LastSyncAt.Equal(res.SyncedAt))
}

func TestPush_SymlinkedRoot(t *testing.T) {
	isolateTemp(t)
	store := blobtest.NewMemoryStore()
	base := t.TempDir()
	target := filepath.Join(base, "target")
	link := filepath.Join(base, "link")
	writeFiles(t, target, map[string]string{
		"a.txt":    "a",
		"src/b.go": "package src",
	})
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	se := newEngine(t, link, store)
	initProject(t, se)

	res, err := se.Push(context.Background(), PushOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Files)
	assert.Equal(t, map[string]string{
		"a.txt":    "a",
		"src/b.go": "package src",
	}, remoteTree(t, store, res.Key))

	// the identity lives in the target directory
	assert.FileExists(t, filepath.Join(target, ".psync", "project.json"))

	writeFiles(t, target, map[string]string{"a.txt": "changed"})
	pulled, err := se.Pull(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, pulled.Files)
	assert.Equal(t, map[string]string{
		"a.txt":    "a",
		"src/b.go": "package src",
	}, readTree(t, target))
}

func TestPush_IgnoreFile(t *testing.T) {
	isolateTemp(t)
	store := blobtest.NewMemoryStore()
	dir := t.TempDir()
	se := newEngine(t, dir, store)
	id := initProject(t, se)

	writeFiles(t, dir, map[string]string{
		"a.txt":        "a",
		"b.log":        "b",
		".psyncignore": "*.log\n",
	})

	_, err := se.Push(context.Background(), PushOptions{})
	require.NoError(t, err)
	remote := remoteTree(t, store, id.BlobKey())
	assert.Contains(t, remote, "a.txt")
	assert.NotContains(t, remote, "b.log")

	_, err = se.Push(context.Background(), PushOptions{IgnorePsyncignore: true})
	require.NoError(t, err)
	assert.Contains(t, remoteTree(t, store, id.BlobKey()), "b.log")
}

func TestPush_IncludeAndExclude(t *testing.T) {
	isolateTemp(t)
	store := blobtest.NewMemoryStore()
	dir := t.TempDir()
	se := newEngine(t, dir, store)
	id := initProject(t, se)

	writeFiles(t, dir, map[string]string{
		"src/a.go":      "a",
		"src/a_test.go": "t",
		"docs/x.md":     "x",
	})

	_, err := se.Push(context.Background(), PushOptions{
		Include: []string{"src/**"},
		Exclude: []string{"*_test.go"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"src/a.go": "a"}, remoteTree(t, store, id.BlobKey()))
}

func TestPush_SecondPushReplacesFirst(t *testing.T) {
	isolateTemp(t)
	store := blobtest.NewMemoryStore()
	dir := t.TempDir()
	se := newEngine(t, dir, store)
	id := initProject(t, se)

	writeFiles(t, dir, map[string]string{"keep.txt": "v1", "old.txt": "old"})
	_, err := se.Push(context.Background(), PushOptions{})
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, "old.txt")))
	writeFiles(t, dir, map[string]string{"keep.txt": "v2", "new.txt": "new"})
	_, err = se.Push(context.Background(), PushOptions{})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"keep.txt": "v2", "new.txt": "new"}, remoteTree(t, store, id.BlobKey()))
}

func TestPush_LastSyncStrictlyIncreases(t *testing.T) {
	isolateTemp(t)
	store := blobtest.NewMemoryStore()
	dir := t.TempDir()
	se := newEngine(t, dir, store)
	initProject(t, se)
	writeFiles(t, dir, map[string]string{"a.txt": "a"})

	frozen := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	se.now = func() time.Time { return frozen }

	first, err := se.Push(context.Background(), PushOptions{})
	require.NoError(t, err)
	second, err := se.Push(context.Background(), PushOptions{})
	require.NoError(t, err)

	assert.True(t, second.SyncedAt.After(first.SyncedAt))
}

func TestPush_TransportFailure(t *testing.T) {
	isolateTemp(t)
	store := blobtest.NewMemoryStore()
	store.Fail[blobtest.CallPut] = errors.New("connection reset by peer")
	dir := t.TempDir()
	se := newEngine(t, dir, store)
	initProject(t, se)
	writeFiles(t, dir, map[string]string{"a.txt": "a"})

	_, err := se.Push(context.Background(), PushOptions{})
	require.Error(t, err)
	assert.True(t, syncerr.IsTransport(err))
	assert.Nil(t, currentIdentity(t, dir).LastSyncAt, "failed push must not record a sync")
}

func TestPush_InvalidPattern(t *testing.T) {
	isolateTemp(t)
	store := blobtest.NewMemoryStore()
	dir := t.TempDir()
	se := newEngine(t, dir, store)
	initProject(t, se)

	_, err := se.Push(context.Background(), PushOptions{Include: []string{"[z-"}})
	require.Error(t, err)
	assert.True(t, syncerr.IsValidation(err))
	assert.Zero(t, store.CallCount(""))
}

func TestPull_OverwritesInPlace(t *testing.T) {
	isolateTemp(t)
	store := blobtest.NewMemoryStore()
	dir := t.TempDir()
	se := newEngine(t, dir, store)
	id := initProject(t, se)

	seedRemote(t, store, id.BlobKey(), map[string]string{
		"a.txt":       "remote a",
		"sub/b.txt":   "remote b",
		"sub/c/d.txt": "remote d",
	})
	writeFiles(t, dir, map[string]string{
		"a.txt":     "local a",
		"local.txt": "only here",
	})

	res, err := se.Pull(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Files)
	assert.Equal(t, []string{blobtest.CallGet}, store.Calls())

	assert.Equal(t, map[string]string{
		"a.txt":       "remote a",
		"sub/b.txt":   "remote b",
		"sub/c/d.txt": "remote d",
		"local.txt":   "only here",
	}, readTree(t, dir))

	after := currentIdentity(t, dir)
	require.NotNil(t, after.LastSyncAt)
	assert.True(t, after.LastSyncAt.Equal(res.SyncedAt))
}

func TestPull_WithoutIdentity(t *testing.T) {
	store := blobtest.NewMemoryStore()

	_, err := newEngine(t, t.TempDir(), store).Pull(context.Background())
	require.Error(t, err)
	assert.True(t, syncerr.IsState(err))
	assert.Zero(t, store.CallCount(""))
}

func TestPull_RemoteMissing(t *testing.T) {
	isolateTemp(t)
	store := blobtest.NewMemoryStore()
	dir := t.TempDir()
	se := newEngine(t, dir, store)
	initProject(t, se)

	seeded := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err := se.identity.RecordSync(context.Background(), seeded)
	require.NoError(t, err)

	_, err = se.Pull(context.Background())
	require.Error(t, err)
	assert.True(t, syncerr.IsState(err))
	assert.ErrorIs(t, err, blob.ErrObjectNotFound)
	assert.ErrorIs(t, err, ErrRemoteProjectMissing)

	assert.True(t, currentIdentity(t, dir).LastSyncAt.Equal(seeded), "lastSync unchanged")
}

func TestPull_StructuralConflict(t *testing.T) {
	isolateTemp(t)
	store := blobtest.NewMemoryStore()
	dir := t.TempDir()
	se := newEngine(t, dir, store)
	id := initProject(t, se)

	seedRemote(t, store, id.BlobKey(), map[string]string{"docs/a.md": "a"})
	writeFiles(t, dir, map[string]string{"docs": "a file, not a directory"})

	_, err := se.Pull(context.Background())
	require.Error(t, err)
	assert.True(t, syncerr.IsIO(err))
	assert.ErrorIs(t, err, archive.ErrEntryTypeConflict)
	assert.Nil(t, currentIdentity(t, dir).LastSyncAt)
}

func TestClone(t *testing.T) {
	isolateTemp(t)
	store := blobtest.NewMemoryStore()
	seedRemote(t, store, project.BlobKey(foreignID), map[string]string{
		"README.md":   "hello",
		"src/main.go": "package main",
	})
	dir := filepath.Join(t.TempDir(), "checkout")
	se := newEngine(t, dir, store)

	res, err := se.Clone(context.Background(), foreignID)
	require.NoError(t, err)
	assert.Equal(t, foreignID, res.ProjectID)
	assert.Equal(t, 2, res.Files)
	assert.Equal(t, []string{blobtest.CallExists, blobtest.CallGet}, store.Calls())

	assert.Equal(t, map[string]string{
		"README.md":   "hello",
		"src/main.go": "package main",
	}, readTree(t, dir))

	id := currentIdentity(t, dir)
	assert.Equal(t, foreignID, id.ID)
	assert.NotNil(t, id.ClonedAt)
	require.NotNil(t, id.LastSyncAt)
}

func TestClone_NonEmptyTarget(t *testing.T) {
	store := blobtest.NewMemoryStore()
	seedRemote(t, store, project.BlobKey(foreignID), map[string]string{"a.txt": "a"})
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"mine.txt": "do not touch"})

	_, err := newEngine(t, dir, store).Clone(context.Background(), foreignID)
	require.Error(t, err)
	assert.True(t, syncerr.IsState(err))
	assert.ErrorIs(t, err, project.ErrNotEmpty)
	assert.Zero(t, store.CallCount(""), "a doomed clone makes no remote call")
	assert.Equal(t, map[string]string{"mine.txt": "do not touch"}, readTree(t, dir))
}

func TestClone_MetadataOnlyTarget(t *testing.T) {
	isolateTemp(t)
	store := blobtest.NewMemoryStore()
	seedRemote(t, store, project.BlobKey(foreignID), map[string]string{"a.txt": "a"})
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{".psync/config.json": "{}"})

	_, err := newEngine(t, dir, store).Clone(context.Background(), foreignID)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, ".psync", "config.json"))
}

func TestClone_InvalidID(t *testing.T) {
	store := blobtest.NewMemoryStore()

	_, err := newEngine(t, t.TempDir(), store).Clone(context.Background(), "my-project")
	require.Error(t, err)
	assert.True(t, syncerr.IsValidation(err))
	assert.Zero(t, store.CallCount(""))
}

func TestClone_RemoteMissing(t *testing.T) {
	isolateTemp(t)
	store := blobtest.NewMemoryStore()
	dir := t.TempDir()

	_, err := newEngine(t, dir, store).Clone(context.Background(), foreignID)
	require.Error(t, err)
	assert.True(t, syncerr.IsState(err))
	assert.ErrorIs(t, err, blob.ErrObjectNotFound)
	assert.Equal(t, []string{blobtest.CallExists}, store.Calls())

	assert.NoFileExists(t, filepath.Join(dir, ".psync", "project.json"))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestClone_DownloadFailureRollsBack(t *testing.T) {
	isolateTemp(t)
	store := blobtest.NewMemoryStore()
	seedRemote(t, store, project.BlobKey(foreignID), map[string]string{"a.txt": "a"})
	store.Fail[blobtest.CallGet] = errors.New("tls handshake timeout")
	dir := t.TempDir()

	_, err := newEngine(t, dir, store).Clone(context.Background(), foreignID)
	require.Error(t, err)
	assert.True(t, syncerr.IsTransport(err))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestClone_CorruptSnapshotRollsBack(t *testing.T) {
	isolateTemp(t)
	store := blobtest.NewMemoryStore()
	store.SetObject(project.BlobKey(foreignID), []byte("definitely not a zip"))
	dir := filepath.Join(t.TempDir(), "new-dir")

	_, err := newEngine(t, dir, store).Clone(context.Background(), foreignID)
	require.Error(t, err)
	assert.True(t, syncerr.IsIO(err))
	assert.NoDirExists(t, dir, "a directory created by the clone is removed again")
}

func TestClone_ExistingProject(t *testing.T) {
	store := blobtest.NewMemoryStore()
	dir := t.TempDir()
	se := newEngine(t, dir, store)
	id := initProject(t, se)

	_, err := se.Clone(context.Background(), foreignID)
	require.Error(t, err)
	assert.ErrorIs(t, err, project.ErrAlreadyInitialized)
	assert.Zero(t, store.CallCount(""))
	assert.Equal(t, id.ID, currentIdentity(t, dir).ID)
}

func TestPushCloneRoundTrip(t *testing.T) {
	isolateTemp(t)
	store := blobtest.NewMemoryStore()

	src := t.TempDir()
	files := map[string]string{
		"README.md":        "# project",
		"cmd/app/main.go":  "package main",
		"internal/x/x.go":  "package x",
		"assets/empty.txt": "",
		".env.example":     "KEY=value",
	}
	writeFiles(t, src, files)

	pusher := newEngine(t, src, store)
	id := initProject(t, pusher)
	_, err := pusher.Push(context.Background(), PushOptions{})
	require.NoError(t, err)

	dst := t.TempDir()
	_, err = newEngine(t, dst, store).Clone(context.Background(), id.ID)
	require.NoError(t, err)
	assert.Equal(t, files, readTree(t, dst))
}

func TestList(t *testing.T) {
	store := blobtest.NewMemoryStore()
	store.SetObject("ffffffffffffffffffffffffffffffff/latest.zip", []byte("z"))
	store.SetObject(foreignID+"/latest.zip", []byte("z"))

	ids, err := newEngine(t, t.TempDir(), store).List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{foreignID, "ffffffffffffffffffffffffffffffff"}, ids)

	store.Fail[blobtest.CallList] = errors.New("AccessDenied")
	_, err = newEngine(t, t.TempDir(), store).List(context.Background())
	require.Error(t, err)
	assert.True(t, syncerr.IsTransport(err))
}

func TestRemoteOperationsWithoutStore(t *testing.T) {
	dir := t.TempDir()
	se := newEngine(t, dir, nil)
	initProject(t, se)

	_, err := se.Push(context.Background(), PushOptions{})
	assert.True(t, syncerr.IsValidation(err))
	assert.ErrorIs(t, err, ErrNoStore)

	_, err = se.Pull(context.Background())
	assert.ErrorIs(t, err, ErrNoStore)

	_, err = newEngine(t, t.TempDir(), nil).Clone(context.Background(), foreignID)
	assert.ErrorIs(t, err, ErrNoStore)

	_, err = se.List(context.Background())
	assert.ErrorIs(t, err, ErrNoStore)
}

func TestStatus(t *testing.T) {
	dir := t.TempDir()
	se := newEngine(t, dir, nil)

	_, err := se.Status()
	require.Error(t, err)
	assert.True(t, syncerr.IsState(err))

	id := initProject(t, se)
	writeFiles(t, dir, map[string]string{".psyncignore": "*.log"})

	st, err := se.Status()
	require.NoError(t, err)
	assert.Equal(t, id.ID, st.Identity.ID)
	assert.Equal(t, se.Root(), st.Root)
	assert.True(t, st.HasIgnoreFile)
}
