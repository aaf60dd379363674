package overrides

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thomcc/miri-tools/types"
)

func TestResolverFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overrides.yaml")
	content := `
overrides:
  - name: openssl-sys
    skip: true
  - name: tokio
    extra_args: ["--features", "rt"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	r, err := NewResolverFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())

	o := r.Resolve("openssl-sys")
	assert.True(t, o.Skip)

	o = r.Resolve("tokio")
	assert.False(t, o.Skip)
	assert.Equal(t, []string{"--features", "rt"}, o.ExtraArgs)
}

func TestResolveUnknownIsNotAnError(t *testing.T) {
	r := NewResolver(nil)
	o := r.Resolve("anything")
	assert.Equal(t, "anything", o.Name)
	assert.False(t, o.Skip)
	assert.Empty(t, o.ExtraArgs)
}

func TestResolverMissingFileIsEmpty(t *testing.T) {
	r, err := NewResolverFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 0, r.Len())
}

func TestResolverRejectsBadTable(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "noname.yaml")
	require.NoError(t, os.WriteFile(path, []byte("overrides:\n  - skip: true\n"), 0o644))
	_, err := NewResolverFromFile(path)
	require.Error(t, err)

	path = filepath.Join(dir, "garbage.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{not yaml"), 0o644))
	_, err = NewResolverFromFile(path)
	require.Error(t, err)
}

func TestResolverSyntheticTable(t *testing.T) {
	r := NewResolver([]types.PackageOverride{{Name: "x", Skip: true}})
	assert.True(t, r.Resolve("x").Skip)
	assert.False(t, r.Resolve("y").Skip)
}
