package sentinel

import (
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bin")
	content := []byte("infinitask binary v1")
	require.NoError(t, os.WriteFile(path, content, 0o755))

	got, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, sha256.Sum256(content), got)

	require.NoError(t, os.WriteFile(path, []byte("infinitask binary v2"), 0o755))
	changed, err := HashFile(path)
	require.NoError(t, err)
	assert.NotEqual(t, got, changed)
}

func TestHashFile_Missing(t *testing.T) {
	_, err := HashFile(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestBackoff_GrowsAndCaps(t *testing.T) {
	b := Backoff{Initial: time.Second, Max: 5 * time.Second}
	var got []time.Duration
	for range 5 {
		got = append(got, b.Next())
	}
	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second,
	}, got)

	b.Reset()
	assert.Equal(t, time.Second, b.Next())
}

func TestBackoff_Defaults(t *testing.T) {
	var b Backoff
	assert.Equal(t, DefaultInitialBackoff, b.Next())
	assert.Equal(t, 2*DefaultInitialBackoff, b.Next())
}

func TestNew_ResolvesBinary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "infinitask")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
	link := filepath.Join(dir, "current")
	require.NoError(t, os.Symlink(path, link))

	s, err := New(Config{BinaryPath: link, Args: []string{"run"}})
	require.NoError(t, err)
	resolved, err := filepath.EvalSymlinks(path)
	require.NoError(t, err)
	assert.Equal(t, resolved, s.binaryPath)
	assert.Equal(t, []string{"run"}, s.args)
}

func TestNew_MissingBinary(t *testing.T) {
	_, err := New(Config{BinaryPath: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)
}
