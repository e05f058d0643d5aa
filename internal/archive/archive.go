// Package archive packs a file set into a single zip container and unpacks a
// container back onto disk.
//
// Only regular files and their parent directories are stored, so empty
// directories do not survive a round trip. Files that disappear between
// selection and packing are skipped.
package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/flate"
	"github.com/psync-dev/psync/internal/syncerr"
	"github.com/psync-dev/psync/internal/utils"
	"github.com/psync-dev/psync/internal/workspace"
)

const (
	opPack   = "pack"
	opUnpack = "unpack"

	// ContainerPattern names temp containers; the * makes each one unique.
	ContainerPattern = "psync-*.zip"
)

var (
	// ErrEntryTypeConflict is returned when an archive entry would replace a
	// file with a directory or a directory with a file.
	ErrEntryTypeConflict = errors.New("destination entry has a different type")
	// ErrUnsafePath is returned for entries that would land outside the destination.
	ErrUnsafePath = errors.New("archive entry escapes destination")
)

type Stats struct {
	Files int
	Dirs  int
	// Bytes is the uncompressed size of all file entries.
	Bytes int64
	// Skipped counts files that vanished before they could be packed.
	Skipped int
}

func newZipWriter(w io.Writer) *zip.Writer {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})
	return zw
}

// Pack writes files (relative to baseDir) into a new temp container and
// returns its path. The caller owns the container and must remove it. On
// error no container is left behind.
func Pack(ctx context.Context, baseDir string, files []string) (string, *Stats, error) {
	out, err := os.CreateTemp("", ContainerPattern)
	if err != nil {
		return "", nil, syncerr.IO(opPack, fmt.Errorf("create container: %w", err))
	}
	containerPath := out.Name()

	stats, err := writeArchive(ctx, out, baseDir, files)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = syncerr.IO(opPack, cerr).WithPath(containerPath)
	}
	if err != nil {
		if rerr := utils.RemoveQuietly(containerPath); rerr != nil {
			slog.Warn("failed to remove partial container", "path", containerPath, "error", rerr)
		}
		return "", nil, err
	}

	slog.Debug("packed container",
		"path", containerPath,
		"files", stats.Files,
		"dirs", stats.Dirs,
		"size", humanize.Bytes(uint64(stats.Bytes)),
		"skipped", stats.Skipped,
	)
	return containerPath, stats, nil
}

func writeArchive(ctx context.Context, w io.Writer, baseDir string, files []string) (*Stats, error) {
	zw := newZipWriter(w)
	stats := &Stats{}

	for _, dir := range parentDirs(files) {
		if _, err := zw.CreateHeader(&zip.FileHeader{Name: dir + "/", Method: zip.Store}); err != nil {
			return nil, syncerr.IO(opPack, err).WithPath(dir)
		}
		stats.Dirs++
	}

	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := addFile(zw, baseDir, rel)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				slog.Debug("file vanished before packing", "path", rel)
				stats.Skipped++
				continue
			}
			return nil, syncerr.IO(opPack, err).WithPath(rel)
		}
		if n < 0 {
			stats.Skipped++
			continue
		}
		stats.Files++
		stats.Bytes += n
	}

	if err := zw.Close(); err != nil {
		return nil, syncerr.IO(opPack, err)
	}
	return stats, nil
}

// addFile streams one file into zw. It returns -1 when the path is no longer
// a regular file.
func addFile(zw *zip.Writer, baseDir, rel string) (int64, error) {
	file, err := os.Open(filepath.Join(baseDir, filepath.FromSlash(rel)))
	if err != nil {
		return 0, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return -1, nil
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return 0, err
	}
	header.Name = rel
	header.Method = zip.Deflate

	dst, err := zw.CreateHeader(header)
	if err != nil {
		return 0, err
	}
	return io.Copy(dst, file)
}

// parentDirs returns every distinct ancestor directory of files, sorted so
// parents precede children.
func parentDirs(files []string) []string {
	dirs := mapset.NewThreadUnsafeSet[string]()
	for _, f := range files {
		for dir := path.Dir(f); dir != "." && dir != "/"; dir = path.Dir(dir) {
			if !dirs.Add(dir) {
				break
			}
		}
	}
	sorted := dirs.ToSlice()
	sort.Strings(sorted)
	return sorted
}

// Unpack extracts containerPath into destDir, overwriting existing files and
// creating missing directories. Entries under the metadata directory are
// ignored.
func Unpack(ctx context.Context, containerPath, destDir string) (*Stats, error) {
	r, err := zip.OpenReader(containerPath)
	if err != nil {
		return nil, syncerr.IO(opUnpack, fmt.Errorf("open container: %w", err)).WithPath(containerPath)
	}
	defer r.Close()

	dest, err := filepath.Abs(destDir)
	if err != nil {
		return nil, syncerr.IO(opUnpack, err).WithPath(destDir)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, syncerr.IO(opUnpack, err).WithPath(dest)
	}

	stats := &Stats{}
	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rel, err := entryPath(f.Name)
		if err != nil {
			return nil, syncerr.Validation(opUnpack, err).WithPath(f.Name)
		}
		if rel == "" {
			continue
		}
		if rel == workspace.MetadataDirName || strings.HasPrefix(rel, workspace.MetadataDirName+"/") {
			slog.Warn("skipping metadata entry in archive", "path", rel)
			continue
		}

		if f.FileInfo().IsDir() {
			if err := mkdirStrict(dest, rel); err != nil {
				return nil, err
			}
			stats.Dirs++
			continue
		}

		if !f.Mode().IsRegular() {
			slog.Debug("skipping non-regular archive entry", "path", rel, "mode", f.Mode())
			continue
		}

		n, err := extractFile(dest, rel, f)
		if err != nil {
			return nil, err
		}
		stats.Files++
		stats.Bytes += n
	}

	slog.Debug("unpacked container",
		"path", containerPath,
		"dest", dest,
		"files", stats.Files,
		"size", humanize.Bytes(uint64(stats.Bytes)),
	)
	return stats, nil
}

// entryPath validates an entry name and returns it as a clean relative path.
func entryPath(name string) (string, error) {
	if strings.Contains(name, `\`) || path.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", ErrUnsafePath
	}
	clean := path.Clean(name)
	if clean == "." {
		return "", nil
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", ErrUnsafePath
	}
	return clean, nil
}

// mkdirStrict creates dest/rel one component at a time, failing if any
// component already exists as something other than a directory.
func mkdirStrict(dest, rel string) error {
	current := dest
	for _, part := range strings.Split(rel, "/") {
		current = filepath.Join(current, part)
		info, err := os.Lstat(current)
		switch {
		case err == nil && info.IsDir():
			continue
		case err == nil:
			return syncerr.IO(opUnpack, fmt.Errorf("%w: %s is not a directory", ErrEntryTypeConflict, current))
		case os.IsNotExist(err):
			if err := os.Mkdir(current, 0o755); err != nil && !os.IsExist(err) {
				return syncerr.IO(opUnpack, err).WithPath(current)
			}
		default:
			return syncerr.IO(opUnpack, err).WithPath(current)
		}
	}
	return nil
}

func extractFile(dest, rel string, f *zip.File) (int64, error) {
	if dir := path.Dir(rel); dir != "." {
		if err := mkdirStrict(dest, dir); err != nil {
			return 0, err
		}
	}

	target := filepath.Join(dest, filepath.FromSlash(rel))
	if !utils.IsWithin(dest, target) {
		return 0, syncerr.Validation(opUnpack, ErrUnsafePath).WithPath(rel)
	}

	info, err := os.Lstat(target)
	switch {
	case err == nil && info.IsDir():
		return 0, syncerr.IO(opUnpack, fmt.Errorf("%w: %s is a directory", ErrEntryTypeConflict, target))
	case err == nil && !info.Mode().IsRegular():
		// never write through a symlink
		if err := os.Remove(target); err != nil {
			return 0, syncerr.IO(opUnpack, err).WithPath(target)
		}
	case err != nil && !os.IsNotExist(err):
		return 0, syncerr.IO(opUnpack, err).WithPath(target)
	}

	perm := f.Mode().Perm()
	if perm == 0 {
		perm = 0o644
	}

	rc, err := f.Open()
	if err != nil {
		return 0, syncerr.IO(opUnpack, err).WithPath(rel)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return 0, syncerr.IO(opUnpack, err).WithPath(target)
	}

	n, err := io.Copy(out, rc)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		// O_TRUNC keeps the old mode of an existing file
		err = os.Chmod(target, perm)
	}
	if err != nil {
		return 0, syncerr.IO(opUnpack, err).WithPath(target)
	}
	return n, nil
}
