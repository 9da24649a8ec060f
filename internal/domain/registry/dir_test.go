package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestDirSourceFindsManifestsInEveryFormat(t *testing.T) {
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "a", "manifest.json"), []byte(`{
		"id": "lab.a", "name": "A", "version": "1.0.0", "author": "x",
		"kind": "worker", "permissions": [], "entry": "index.js"
	}`))
	writeFile(t, filepath.Join(root, "a", "index.js"), []byte(workerJS))

	writeFile(t, filepath.Join(root, "nested", "b", "manifest.yaml"), []byte(
		"id: lab.b\nname: B\nversion: 0.3.0\nauthor: x\nkind: worker\nentry: main.js\n"))

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	writeFile(t, filepath.Join(root, "nested", "b", "main.js.zst"), enc.EncodeAll([]byte(workerJS), nil))
	enc.Close()

	writeFile(t, filepath.Join(root, "c", "manifest.toml"), []byte(
		"id = \"lab.c\"\nname = \"C\"\nversion = \"2.0.0\"\nauthor = \"x\"\nkind = \"worker\"\nentry = \"c.js\"\n"))

	writeFile(t, filepath.Join(root, "broken", "manifest.json"), []byte(`{"id": "Broken"}`))

	src := NewDirSource(root)
	ctx := context.Background()

	list, err := src.Catalog(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"lab.a", "lab.b", "lab.c"}, []string{list[0].ID, list[1].ID, list[2].ID})

	problems, err := src.Problems(ctx)
	require.NoError(t, err)
	assert.Len(t, problems, 1)

	p, err := src.Payload(ctx, list[1])
	require.NoError(t, err)
	assert.Equal(t, workerJS, string(p.Body))

	_, err = src.Payload(ctx, list[2])
	assert.Error(t, err)
}

func TestDirSourceThroughLoader(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "manifest.json"), []byte(`{
		"id": "lab.a", "name": "A", "version": "1.0.0", "author": "x",
		"kind": "worker", "permissions": ["ui.notifications"], "entry": "index.js"
	}`))
	writeFile(t, filepath.Join(root, "a", "index.js"), []byte(workerJS))

	b, err := NewLoader(NewDirSource(root), LoaderOptions{}).Load(context.Background(), "lab.a")
	require.NoError(t, err)
	assert.Equal(t, workerJS, string(b.Payload.Body))
}
