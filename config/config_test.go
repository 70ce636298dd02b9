package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithNoFile(t *testing.T) {
	dir := t.TempDir()

	opts, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, ".", opts.UserPath)
	require.Equal(t, 30*time.Second, opts.PollInterval)
	require.False(t, opts.SaveConfiguration)
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	contents := "user_path: /var/lib/zwave\nsave_configuration: true\ndriver_max_attempts: 5\npoll_interval: 1m\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "zwdriver.yaml"), []byte(contents), 0o644))

	opts, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/zwave", opts.UserPath)
	require.True(t, opts.SaveConfiguration)
	require.Equal(t, 5, opts.DriverMaxAttempts)
	require.Equal(t, time.Minute, opts.PollInterval)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	contents := "save_configuration: false\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "zwdriver.yaml"), []byte(contents), 0o644))

	t.Setenv("ZWDRIVER_SAVE_CONFIGURATION", "true")

	opts, err := Load(dir)
	require.NoError(t, err)
	require.True(t, opts.SaveConfiguration)
}
