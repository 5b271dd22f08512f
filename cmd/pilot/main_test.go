package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNewRootCmd_HasSubcommands(t *testing.T) {
	root := newRootCmd("test", &app{})
	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "headless", "serve", "replay", "workspace", "memory", "checkpoint"} {
		assert.True(t, names[want], "expected subcommand %q", want)
	}
	assert.Equal(t, "test", root.Version)
}

func TestNewRootCmd_PersistentFlags(t *testing.T) {
	root := newRootCmd("", &app{})
	for _, name := range []string{"config", "data-dir", "user", "inference", "model", "api-key"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(name), "expected --%s", name)
	}
}

// pilot runs the command line against a temporary home.
func pilot(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	base := []string{"--config", filepath.Join(dir, "config.yaml"), "--data-dir", filepath.Join(dir, "data")}
	err := execute(context.Background(), "test", append(base, args...), &out)
	return out.String(), err
}

func TestWorkspaceCommands(t *testing.T) {
	dir := t.TempDir()

	out, err := pilot(t, dir, "workspace", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No workspaces.")

	out, err = pilot(t, dir, "workspace", "create", "travel", "--name", "Travel", "--autonomy", "2")
	require.NoError(t, err)
	assert.Contains(t, out, `Created workspace "Travel" (travel, autonomy 2)`)

	_, err = pilot(t, dir, "workspace", "create", "travel")
	assert.Error(t, err, "duplicate id")

	out, err = pilot(t, dir, "ws", "autonomy", "travel", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "autonomy is now 4")

	_, err = pilot(t, dir, "ws", "autonomy", "travel", "9")
	assert.Error(t, err)

	out, err = pilot(t, dir, "ws", "approve", "travel", "Navigate")
	require.NoError(t, err)
	assert.Contains(t, out, "navigate standing approval = true")

	out, err = pilot(t, dir, "workspace", "list")
	require.NoError(t, err)
	assert.Contains(t, out, `- travel "Travel" (autonomy=4 trust=0.50)`)

	out, err = pilot(t, dir, "workspace", "remove", "travel", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed workspace travel")
}

func TestMemoryCommands(t *testing.T) {
	dir := t.TempDir()
	_, err := pilot(t, dir, "workspace", "create", "default")
	require.NoError(t, err)

	out, err := pilot(t, dir, "memory", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "- facts: 0 items, 0 tokens")

	out, err = pilot(t, dir, "memory", "facts", "flight budget")
	require.NoError(t, err)
	assert.Contains(t, out, "No facts.")

	playbooks := filepath.Join(dir, "playbooks")
	out, err = pilot(t, dir, "memory", "export", playbooks)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 0 playbooks")
}

func TestCheckpointCommands(t *testing.T) {
	dir := t.TempDir()

	out, err := pilot(t, dir, "checkpoint", "list", "s1")
	require.NoError(t, err)
	assert.Contains(t, out, "No checkpoints.")

	_, err = pilot(t, dir, "cp", "restore", "missing")
	assert.Error(t, err)
}

func TestResolveDataDir(t *testing.T) {
	t.Setenv("PILOT_DATA_DIR", "/from/env")

	got, err := resolveDataDir("/from/flag")
	require.NoError(t, err)
	assert.Equal(t, "/from/flag", got)

	got, err = resolveDataDir("")
	require.NoError(t, err)
	assert.Equal(t, "/from/env", got)

	require.NoError(t, os.Unsetenv("PILOT_DATA_DIR"))
	got, err = resolveDataDir("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(".pilot", "data"), filepath.Join(filepath.Base(filepath.Dir(got)), filepath.Base(got)))
}
