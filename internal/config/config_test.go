package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenNoFilesExist(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()

	cfg, sources, err := Load(dir, Config{})
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
	require.Empty(t, sources.Global)
	require.Empty(t, sources.Project)
}

func TestLoadProjectConfigOverridesDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()
	writeJSON(t, filepath.Join(dir, FileName), `{
		// project override
		"nbuckets": 1021,
	}`)

	cfg, sources, err := Load(dir, Config{})
	require.NoError(t, err)
	require.Equal(t, 1021, cfg.NBuckets)
	require.Equal(t, Default().MemoryPageLen, cfg.MemoryPageLen)
	require.NotEmpty(t, sources.Project)
}

func TestLoadCLIOverrideWinsOverProjectConfig(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()
	writeJSON(t, filepath.Join(dir, FileName), `{"nbuckets": 1021}`)

	cfg, _, err := Load(dir, Config{NBuckets: 2053})
	require.NoError(t, err)
	require.Equal(t, 2053, cfg.NBuckets)
}

func TestLoadGlobalConfigLayersUnderProjectConfig(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	require.NoError(t, os.MkdirAll(filepath.Join(xdg, "numstore"), 0o750))
	writeJSON(t, filepath.Join(xdg, "numstore", "config.json"), `{"nbuckets": 773, "memory_page_len": 128}`)

	dir := t.TempDir()
	writeJSON(t, filepath.Join(dir, FileName), `{"nbuckets": 1021}`)

	cfg, sources, err := Load(dir, Config{})
	require.NoError(t, err)
	require.Equal(t, 1021, cfg.NBuckets, "project config wins over global for nbuckets")
	require.Equal(t, 128, cfg.MemoryPageLen, "global config supplies memory_page_len the project file omits")
	require.NotEmpty(t, sources.Global)
	require.NotEmpty(t, sources.Project)
}

func TestLoadRejectsMalformedJSONC(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()
	writeJSON(t, filepath.Join(dir, FileName), `{not valid json`)

	_, _, err := Load(dir, Config{})
	require.Error(t, err)
}

func TestLoadRejectsNegativeNBuckets(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()

	_, _, err := Load(dir, Config{NBuckets: -1})
	require.Error(t, err)
}

func TestLayoutReportsCompileTimeHeaderFields(t *testing.T) {
	cfg := Default()
	layout := cfg.Layout()
	require.Positive(t, layout.PageSize)
	require.Positive(t, layout.DLCapacity)
	require.Positive(t, layout.InMaxKeys)
	require.Positive(t, layout.HLData)
	require.Equal(t, cfg.NBuckets, layout.NBuckets)
	require.Equal(t, cfg.MemoryPageLen, layout.MemoryPageLen)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()

	want := Config{NBuckets: 17, MemoryPageLen: 64}
	require.NoError(t, Save(dir, want))

	got, sources, err := Load(dir, Config{})
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.Equal(t, filepath.Join(dir, FileName), sources.Project)
}

func writeJSON(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}
