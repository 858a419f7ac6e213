package config

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
	_ "github.com/viant/afs/mem"
)

func TestParseKeepsDefaults(t *testing.T) {
	c, err := Parse([]byte("kernel:\n  nproc: 4\ninit: forktest 3\n"))
	require.NoError(t, err)

	assert.Equal(t, 4, c.Kernel.NProc)
	assert.Equal(t, 16, c.Kernel.MemoryMiB)
	assert.Equal(t, "forktest 3", c.Init)
	assert.Equal(t, "mem://localhost/ember", c.FS.URL)
	assert.Equal(t, "info", c.Log.Level)
}

func TestParseRejects(t *testing.T) {
	for _, doc := range []string{
		"kernel: [1, 2]",
		"kernel:\n  nproc: -1\n",
		"kernel:\n  memoryMiB: 4096\n",
		"log:\n  level: loud\n",
		"display:\n  width: -5\n",
	} {
		_, err := Parse([]byte(doc))
		assert.Error(t, err, doc)
	}
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	fs := afs.New()
	URL := "mem://localhost/config/" + t.Name() + ".yaml"
	require.NoError(t, fs.Upload(ctx, URL, 0644, strings.NewReader("log:\n  level: debug\n")))

	c, err := Load(ctx, fs, URL)
	require.NoError(t, err)
	assert.Equal(t, "debug", c.Log.Level)

	_, err = Load(ctx, fs, "mem://localhost/config/missing.yaml")
	assert.Error(t, err)
}
