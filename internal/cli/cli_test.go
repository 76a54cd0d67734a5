package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveStateDirFlagWins(t *testing.T) {
	dir := t.TempDir()
	globalFlags.StateDir = dir
	t.Cleanup(func() { globalFlags.StateDir = "" })

	got, err := resolveStateDir()
	require.NoError(t, err)
	require.Equal(t, dir, got)
}

func TestResolveStateDirDefaultsToHome(t *testing.T) {
	globalFlags.StateDir = ""
	got, err := resolveStateDir()
	require.NoError(t, err)
	require.Equal(t, ".folder-mcp", filepath.Base(got))
}

func TestResolveConfigPath(t *testing.T) {
	globalFlags.ConfigPath = ""
	require.Equal(t, filepath.Join("/state", "config.yaml"), resolveConfigPath("/state"))

	globalFlags.ConfigPath = "/etc/folder-mcp.yaml"
	t.Cleanup(func() { globalFlags.ConfigPath = "" })
	require.Equal(t, "/etc/folder-mcp.yaml", resolveConfigPath("/state"))
}
