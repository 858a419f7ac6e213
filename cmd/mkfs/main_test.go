package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"

	"ember/emberos/apps"
	emberfs "ember/emberos/fs"
)

func TestRunImportsFilesAndApps(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "motd"), []byte("welcome\n"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(src, "sub"), 0o755))

	ctx := context.Background()
	store := afs.New()
	out := "mem://localhost/mkfs/" + t.Name()
	names, err := run(ctx, store, src, out, true)
	require.NoError(t, err)

	assert.Contains(t, names, "motd")
	assert.NotContains(t, names, "sub")
	for _, n := range apps.Names() {
		assert.Contains(t, names, n)
	}

	fsys, err := emberfs.Mount(ctx, store, out)
	require.NoError(t, err)
	data, err := fsys.ReadFile(ctx, "motd")
	require.NoError(t, err)
	assert.Equal(t, "welcome\n", string(data))
}

func TestRunRejectsMissingSource(t *testing.T) {
	_, err := run(context.Background(), afs.New(), filepath.Join(t.TempDir(), "nope"), "mem://localhost/mkfs/"+t.Name(), false)
	assert.Error(t, err)
}
