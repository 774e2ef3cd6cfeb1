package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	}
}

func TestExpandGlobsRecursiveAndDeduplicated(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.html", "week/b.html", "week/deep/c.txt", "week/notes.pdf")

	files, err := expandGlobs([]string{
		filepath.Join(dir, "**", "*.html"),
		filepath.Join(dir, "a.html"),
		filepath.Join(dir, "**", "*.{txt,html}"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(dir, "a.html"),
		filepath.Join(dir, "week", "b.html"),
		filepath.Join(dir, "week", "deep", "c.txt"),
	}, files)
}

func TestExpandGlobsSkipsDirectories(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "logs.html/inner.txt")

	files, err := expandGlobs([]string{filepath.Join(dir, "*.html")})
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestExpandGlobsRejectsBadPattern(t *testing.T) {
	_, err := expandGlobs([]string{"[unclosed"})
	require.Error(t, err)
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"normalize", "outbound", "inbound", "watch", "history"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}
