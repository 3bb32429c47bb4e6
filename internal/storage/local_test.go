package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalArchiver_Archive(t *testing.T) {
	dir := t.TempDir()
	archiver, err := NewLocalArchiver(dir)
	require.NoError(t, err)

	url, err := archiver.Archive(context.Background(), "operations/op-1.mp4", "video/mp4", strings.NewReader("MP4DATA"))
	require.NoError(t, err)
	assert.Empty(t, url, "local archives have no client-reachable URL")

	data, err := os.ReadFile(filepath.Join(dir, "operations", "op-1.mp4"))
	require.NoError(t, err)
	assert.Equal(t, "MP4DATA", string(data))
}

func TestLocalArchiver_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "archive")
	archiver, err := NewLocalArchiver(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, archiver.Dir())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLocalArchiver_CancelledContext(t *testing.T) {
	archiver, err := NewLocalArchiver(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = archiver.Archive(ctx, "operations/op-1.mp4", "video/mp4", strings.NewReader("x"))
	require.Error(t, err)
}
