package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		validateHostVersion = ""
		catalogHostVersion = ""
		catalogVerify = false
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestValidateReportsFields(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good", "manifest.yaml")
	write(t, good, "id: lab.ok\nname: OK\nversion: 1.2.0\nauthor: lab\nkind: worker\nentry: index.js\npermissions: [data.query]\n")
	bad := filepath.Join(dir, "bad", "manifest.json")
	write(t, bad, `{"id": "Lab Bad", "name": "Bad", "version": "one", "author": "lab", "kind": "applet", "entry": "x.js"}`)

	out, err := run(t, "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "ok (lab.ok 1.2.0, worker, 1 permissions)")

	out, err = run(t, "validate", bad)
	require.Error(t, err)
	assert.Contains(t, out, "invalid")
	assert.Contains(t, out, "must be a semantic version")
}

func TestCatalogListsAndVerifies(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "a", "manifest.json"), `{"id": "lab.a", "name": "A", "version": "1.0.0", "author": "lab", "kind": "worker", "entry": "index.js", "permissions": ["ui.commands"]}`)
	write(t, filepath.Join(dir, "a", "index.js"), "module.exports.activate = function () {};\n")

	out, err := run(t, "catalog", dir, "--verify")
	require.NoError(t, err)
	assert.Contains(t, out, "lab.a")
	assert.Contains(t, out, "ui.commands")
	assert.Contains(t, out, "text/plain")

	write(t, filepath.Join(dir, "b", "manifest.json"), `{"id": "lab.b", "name": "B", "version": "1.0.0", "author": "lab", "kind": "worker", "entry": "missing.js"}`)
	out, err = run(t, "catalog", dir, "--verify")
	require.Error(t, err)
	assert.Contains(t, out, "1 problem(s)")
}
