// Package catalog enumerates the files eligible for indexing under a
// root into deterministic (path, size, mtime) records.
package catalog

import (
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"ragrep/internal/store"
)

// maxFileSize is the largest file we'll consider (1 MB).
const maxFileSize = 1 << 20

// DefaultExtensions lists the file types indexed when no allow-list is
// configured.
var DefaultExtensions = []string{".txt", ".md", ".py", ".js", ".html", ".css", ".go"}

// Scanner walks a directory tree and produces the catalog snapshot the
// planner diffs against the store. Exclusion policy is injected: the
// scanner only owns the extension allow-list, size/symlink limits, and
// the self-exclusion of the store and model cache paths.
type Scanner struct {
	exts     map[string]bool
	ignore   func(relPath string) bool
	excluded []string // absolute paths never indexed (store file, model cache)
	logger   *slog.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithExtensions replaces the default extension allow-list.
func WithExtensions(exts []string) Option {
	return func(s *Scanner) {
		s.exts = make(map[string]bool, len(exts))
		for _, e := range exts {
			s.exts[strings.ToLower(e)] = true
		}
	}
}

// WithIgnore installs the path-exclusion predicate. The predicate sees
// root-relative, slash-separated paths.
func WithIgnore(pred func(relPath string) bool) Option {
	return func(s *Scanner) { s.ignore = pred }
}

// WithExcludedPaths marks absolute paths (the store's own file, an
// embedding-model cache directory) that must never be indexed, so the
// index cannot index itself.
func WithExcludedPaths(paths ...string) Option {
	return func(s *Scanner) {
		for _, p := range paths {
			if p == "" {
				continue
			}
			if abs, err := filepath.Abs(p); err == nil {
				s.excluded = append(s.excluded, abs)
			}
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) { s.logger = logger }
}

// New creates a Scanner with the default allow-list and no exclusions.
func New(opts ...Option) *Scanner {
	s := &Scanner{logger: slog.Default()}
	WithExtensions(DefaultExtensions)(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enumerate walks root and returns eligible files sorted by path, plus
// the number of entries skipped because they could not be read. Per-file
// stat failures are logged and never abort the walk; a missing or
// unreadable root is an error.
func (s *Scanner) Enumerate(root string) ([]store.FileRecord, int, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, 0, err
	}

	var records []store.FileRecord
	skipped := 0

	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// A failure on the root itself means the whole tree is gone
			// or unreadable; an empty catalog here would look like every
			// file was removed, so abort instead.
			if path == absRoot || d == nil {
				return err
			}
			skipped++
			s.logger.Warn("skipping unreadable entry", "path", path, "error", err)
			return nil // keep walking
		}

		rel, relErr := filepath.Rel(absRoot, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if path == absRoot {
				return nil
			}
			if s.isExcluded(path) || (s.ignore != nil && s.ignore(rel+"/")) {
				return filepath.SkipDir
			}
			return nil
		}

		// Skip symlinks.
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if s.isExcluded(path) {
			return nil
		}
		if !s.exts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		if s.ignore != nil && s.ignore(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			skipped++
			s.logger.Warn("skipping unstatable file", "path", path, "error", err)
			return nil
		}
		if info.Size() > maxFileSize || info.Size() == 0 {
			return nil
		}

		records = append(records, store.FileRecord{
			Path:    rel,
			Size:    info.Size(),
			MTimeNS: info.ModTime().UnixNano(),
		})
		return nil
	})
	if err != nil {
		return nil, skipped, err
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })
	return records, skipped, nil
}

// isExcluded reports whether abs path sits at or under an excluded path.
func (s *Scanner) isExcluded(path string) bool {
	for _, ex := range s.excluded {
		if path == ex || strings.HasPrefix(path, ex+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
