package fswalk

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func mdOnly(path string) bool { return filepath.Ext(path) == ".md" }

func TestWalkSkipsDefaultExcludedDirs(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "a.md"), "hello")
	mustWrite(t, filepath.Join(root, "node_modules", "x.md"), "nope")
	mustWrite(t, filepath.Join(root, ".git", "x.md"), "nope")

	var seen []string
	err := Walk(root, mdOnly, func(path string, size, mtimeMs int64) error {
		seen = append(seen, path)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "a.md")}, seen)
}

func TestWalkRespectsGitignore(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, ".gitignore"), "ignored.md\n")
	mustWrite(t, filepath.Join(root, "ignored.md"), "skip me")
	mustWrite(t, filepath.Join(root, "kept.md"), "keep me")

	var seen []string
	err := Walk(root, mdOnly, func(path string, size, mtimeMs int64) error {
		seen = append(seen, path)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "kept.md")}, seen)
}

func TestWalkSkipsSensitiveFiles(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, ".env"), "SECRET=1")
	mustWrite(t, filepath.Join(root, "a.md"), "hello")

	anyFile := func(path string) bool { return true }
	var seen []string
	err := Walk(root, anyFile, func(path string, size, mtimeMs int64) error {
		seen = append(seen, path)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "a.md")}, seen)
}

func TestWalkFiltersByIndexable(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "a.md"), "hello")
	mustWrite(t, filepath.Join(root, "a.bin"), "binary")

	var seen []string
	err := Walk(root, mdOnly, func(path string, size, mtimeMs int64) error {
		seen = append(seen, path)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "a.md")}, seen)
}
