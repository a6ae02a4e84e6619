// Package fswalk discovers indexable files under a source root, respecting
// .gitignore rules and a built-in exclusion list, for the Indexing
// Orchestrator's reconcile pass.
package fswalk

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/knowdisk/knowdisk/internal/gitignore"
)

// defaultExcludeDirs are directory names skipped outright, regardless of
// .gitignore content.
var defaultExcludeDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	"vendor":       true,
	"__pycache__":  true,
	"dist":         true,
	"build":        true,
	".knowdisk":    true,
}

// sensitiveNamePatterns are never indexed even if a supported extension
// would otherwise match, since they typically hold secrets.
var sensitiveNamePatterns = []string{
	".env", ".pem", ".key", ".p12", ".pfx", ".netrc", ".npmrc", ".pypirc",
}

// MaxFileSize bounds how large a file can be before it's skipped outright.
const MaxFileSize = 10 * 1024 * 1024

// Indexable reports whether path should be considered for indexing, given
// its extension is recognised by ext (a callback into the parser resolver).
type Indexable func(path string) bool

// Walk discovers every indexable, non-ignored file under root and calls fn
// with its path and os.FileInfo-equivalent size/mtime via d.Info(). fn may
// return an error to abort the walk.
func Walk(root string, indexable Indexable, fn func(path string, size int64, mtimeMs int64) error) error {
	matcher := gitignore.New()
	_ = matcher.AddFromFile(filepath.Join(root, ".gitignore"), "")

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil || rel == "." {
			return nil
		}

		if d.IsDir() {
			if defaultExcludeDirs[d.Name()] || matcher.Match(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if matcher.Match(rel, false) || isSensitive(d.Name()) {
			return nil
		}
		if !indexable(path) {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		if info.Size() > MaxFileSize {
			return nil
		}

		return fn(path, info.Size(), info.ModTime().UnixMilli())
	})
}

func isSensitive(name string) bool {
	lower := strings.ToLower(name)
	for _, pattern := range sensitiveNamePatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
