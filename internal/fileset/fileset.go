// Package fileset computes the set of files a push archives: include globs
// select candidates, and the default exclude list, caller excludes and the
// .psyncignore file remove them.
package fileset

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/psync-dev/psync/internal/syncerr"
	"github.com/psync-dev/psync/internal/utils"
	"github.com/psync-dev/psync/internal/workspace"
	gitignore "github.com/sabhiram/go-gitignore"
)

const opResolve = "resolve"

// DefaultInclude selects every file.
var DefaultInclude = []string{"**/*"}

// DefaultExcludes are applied on every resolve, ahead of user patterns.
var DefaultExcludes = []string{
	// version control
	".git/",
	".hg/",
	".svn/",
	// dependencies
	"node_modules/",
	".venv/",
	"venv/",
	// python
	"__pycache__/",
	"*.pyc",
	// IDE/Editor-specific
	".idea/",
	".vscode/",
	// build output
	"dist/",
	"build/",
	".next/",
	// OS-specific
	".DS_Store",
	"Thumbs.db",
}

// metadataExclude keeps the engine's own directory out of every archive.
const metadataExclude = "/" + workspace.MetadataDirName + "/"

type Options struct {
	// Include globs (doublestar syntax). Empty means DefaultInclude.
	Include []string
	// Exclude patterns (gitignore syntax) added to the defaults.
	Exclude []string
	// UseIgnoreFile reads <baseDir>/.psyncignore when true.
	UseIgnoreFile bool
}

// FileSet is a sorted list of distinct slash-separated paths relative to the
// directory it was resolved from.
type FileSet []string

func (s FileSet) Len() int { return len(s) }

// Matcher decides whether a relative path takes part in a push.
type Matcher struct {
	include []string
	ignore  *gitignore.GitIgnore
}

// NewMatcher validates the include globs and compiles the exclude rules.
func NewMatcher(baseDir string, opts Options) (*Matcher, error) {
	include := opts.Include
	if len(include) == 0 {
		include = DefaultInclude
	}
	for _, pattern := range include {
		if !doublestar.ValidatePattern(pattern) {
			return nil, syncerr.Validationf(opResolve, "invalid include pattern %q", pattern)
		}
	}

	lines := make([]string, 0, len(DefaultExcludes)+len(opts.Exclude)+1)
	lines = append(lines, DefaultExcludes...)
	for _, pattern := range opts.Exclude {
		lines = append(lines, anchorPattern(pattern))
	}
	if opts.UseIgnoreFile {
		fileLines, err := ReadIgnoreFile(filepath.Join(baseDir, workspace.IgnoreFileName))
		if err != nil {
			return nil, syncerr.IO(opResolve, err)
		}
		for _, pattern := range fileLines {
			lines = append(lines, anchorPattern(pattern))
		}
	}
	// last, so a negation in user patterns cannot re-include it
	lines = append(lines, metadataExclude)

	return &Matcher{
		include: include,
		ignore:  gitignore.CompileIgnoreLines(lines...),
	}, nil
}

// anchorPattern roots a pattern that contains a non-trailing slash at
// the base directory, as gitignore does. go-gitignore only anchors patterns
// with a leading slash, so "a/**" would otherwise also match "b/a/x".
func anchorPattern(pattern string) string {
	negate := strings.HasPrefix(pattern, "!")
	body := strings.TrimPrefix(pattern, "!")

	if strings.HasPrefix(body, "/") || strings.HasPrefix(body, "**/") ||
		!strings.Contains(strings.TrimSuffix(body, "/"), "/") {
		return pattern
	}
	if negate {
		return "!/" + body
	}
	return "/" + body
}

// ExcludesDir reports whether the directory at relPath is pruned entirely.
func (m *Matcher) ExcludesDir(relPath string) bool {
	return m.ignore.MatchesPath(relPath) || m.ignore.MatchesPath(relPath+"/")
}

// Selects reports whether the file at relPath is included and not excluded.
func (m *Matcher) Selects(relPath string) bool {
	if m.ignore.MatchesPath(relPath) {
		return false
	}
	for _, pattern := range m.include {
		if ok, _ := doublestar.Match(pattern, relPath); ok {
			return true
		}
	}
	return false
}

// Resolve walks baseDir and returns the selected regular files. Symlinks and
// special files are skipped; entries that vanish during the walk are skipped.
func Resolve(ctx context.Context, baseDir string, opts Options) (FileSet, error) {
	matcher, err := NewMatcher(baseDir, opts)
	if err != nil {
		return nil, err
	}

	selected := mapset.NewThreadUnsafeSet[string]()
	walkErr := filepath.WalkDir(baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path != baseDir {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		rel, err := filepath.Rel(baseDir, path)
		if err != nil {
			return fmt.Errorf("walk rel path: %w", err)
		}
		rel = utils.NormPath(rel)
		if rel == "" {
			return nil
		}

		if d.IsDir() {
			if matcher.ExcludesDir(rel) {
				slog.Debug("fileset prune", "path", rel)
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		if matcher.Selects(rel) {
			selected.Add(rel)
		}
		return nil
	})
	if walkErr != nil {
		if errors.Is(walkErr, context.Canceled) || errors.Is(walkErr, context.DeadlineExceeded) {
			return nil, walkErr
		}
		return nil, syncerr.IO(opResolve, walkErr).WithPath(baseDir)
	}

	files := FileSet(selected.ToSlice())
	sort.Strings(files)
	return files, nil
}

// ReadIgnoreFile returns the patterns in an ignore file. Blank lines and
// lines starting with # are skipped. A missing file yields no patterns.
func ReadIgnoreFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	slog.Debug("loaded ignore file", "path", path, "rules", len(lines))
	return lines, nil
}
