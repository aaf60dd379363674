package runner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurgeRemovesEverything(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg-a", "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg-a", "src", "lib.rs"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.lock"), []byte("y"), 0o644))

	require.NoError(t, Purge(root))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "workspace must be empty after purge")

	// Idempotent: purging an already-empty workspace is a no-op.
	require.NoError(t, Purge(root))
}

func TestPurgeCreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "does", "not", "exist")
	require.NoError(t, Purge(root))
	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSourceDir(t *testing.T) {
	root := t.TempDir()
	assert.Equal(t, root, sourceDir(root), "empty workspace falls back to root")

	crate := filepath.Join(root, "serde-1.0.219")
	require.NoError(t, os.MkdirAll(crate, 0o755))
	assert.Equal(t, crate, sourceDir(root))

	require.NoError(t, os.MkdirAll(filepath.Join(root, "second"), 0o755))
	assert.Equal(t, root, sourceDir(root), "ambiguous layout falls back to root")
}
