package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolvePathExplicitWins(t *testing.T) {
	got, err := ResolvePath("/tmp/custom.yaml")
	require.NoError(t, err)
	require.Equal(t, "/tmp/custom.yaml", got)
}

func TestResolvePathSearchesPaths(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "setops.yaml")
	require.NoError(t, os.WriteFile(file, []byte("server:\n  port: 9090\n"), 0o600))

	orig := SearchPaths
	SearchPaths = []string{dir}
	t.Cleanup(func() { SearchPaths = orig })

	got, err := ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, file, got)

	SearchPaths = []string{t.TempDir()}
	got, err = ResolvePath("")
	require.NoError(t, err)
	require.Empty(t, got)
}
