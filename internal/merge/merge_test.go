package merge

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestMergeDeterministicOrder(t *testing.T) {
	dir := t.TempDir()
	// Written in reverse order; the merge must still order a before b.
	writeFiles(t, dir, map[string]string{
		"b.md": "content of b",
		"a.md": "content of a",
	})

	out := filepath.Join(t.TempDir(), "merged.md")
	report, err := Merge(Config{
		InputFolder:  dir,
		OutputFile:   out,
		AddHeaders:   true,
		AddSeparator: true,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, report.FileCount)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	content := string(data)

	// Table of contents ordering.
	tocA := strings.Index(content, "1. [a](#a)")
	tocB := strings.Index(content, "2. [b](#b)")
	require.GreaterOrEqual(t, tocA, 0)
	require.Greater(t, tocB, tocA)

	// Body ordering.
	bodyA := strings.Index(content, "content of a")
	bodyB := strings.Index(content, "content of b")
	require.GreaterOrEqual(t, bodyA, 0)
	assert.Greater(t, bodyB, bodyA)

	assert.Contains(t, content, "## a")
	assert.Contains(t, content, "\n\n---\n\n")
}

func TestMergeNaturalSort(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"ch10.md": "chapter ten",
		"ch2.md":  "chapter two",
	})

	out := filepath.Join(t.TempDir(), "merged.md")
	_, err := Merge(Config{InputFolder: dir, OutputFile: out}, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	content := string(data)
	assert.Less(t, strings.Index(content, "chapter two"), strings.Index(content, "chapter ten"))
}

func TestMergeSkipsRecoveryFolder(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.md":                          "real artifact",
		".recovery/processed_files.txt": "/pdfs/a.pdf",
	})

	out := filepath.Join(t.TempDir(), "merged.md")
	report, err := Merge(Config{InputFolder: dir, OutputFile: out, Pattern: "*"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.FileCount)
}

func TestMergeToggles(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.md": "alpha",
		"b.md": "beta",
	})

	out := filepath.Join(t.TempDir(), "merged.md")
	_, err := Merge(Config{
		InputFolder:  dir,
		OutputFile:   out,
		Title:        "My Book",
		AddHeaders:   false,
		AddSeparator: false,
	}, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "# My Book")
	assert.NotContains(t, content, "## a")
	// Only the header rule remains when separators are disabled.
	assert.Equal(t, 1, strings.Count(content, "---"))
}

func TestMergeNoMatches(t *testing.T) {
	out := filepath.Join(t.TempDir(), "merged.md")
	_, err := Merge(Config{InputFolder: t.TempDir(), OutputFile: out}, nil)
	assert.Error(t, err)
}

func TestMergeMissingInputFolder(t *testing.T) {
	out := filepath.Join(t.TempDir(), "merged.md")
	_, err := Merge(Config{
		InputFolder: filepath.Join(t.TempDir(), "nope"),
		OutputFile:  out,
	}, nil)
	assert.Error(t, err)
}

func TestAnchor(t *testing.T) {
	assert.Equal(t, "chapter-1-intro", anchor("Chapter 1 (Intro)"))
}
