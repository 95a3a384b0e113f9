package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadIniMissingFileKeepsDefaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, LoadIni(cfg, filepath.Join(t.TempDir(), "absent.ini")))

	assert.Equal(t, 45, cfg.FetcherConf.TimeoutS)
	assert.Equal(t, 8, cfg.ValidatorConf.TCPTimeoutS)
	assert.Equal(t, "strict", cfg.ValidatorConf.Mode)
	assert.Equal(t, 100, cfg.OutputConf.MaxNodes)
}

func TestLoadIniOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subpool.ini")
	content := "[validator]\nbatch_size = 50\nmode = lenient\n\n[output]\ndir = /tmp/out\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg := Default()
	require.NoError(t, LoadIni(cfg, path))

	assert.Equal(t, 50, cfg.ValidatorConf.BatchSize)
	assert.Equal(t, "lenient", cfg.ValidatorConf.Mode)
	assert.Equal(t, "/tmp/out", cfg.OutputConf.Dir)
	// Untouched sections keep their defaults.
	assert.Equal(t, 45, cfg.FetcherConf.TimeoutS)
}

func TestEnvironmentWinsOverIni(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subpool.ini")
	content := "[validator]\ntcp_timeout_s = 4\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("tcp_probe_timeout_s", "12")
	t.Setenv("batch_delay_s", "1.5")
	t.Setenv("validation_mode", "lenient")
	t.Setenv("max_output_nodes", "33")

	cfg := Default()
	require.NoError(t, LoadIni(cfg, path))

	assert.Equal(t, 12, cfg.ValidatorConf.TCPTimeoutS)
	assert.Equal(t, 1.5, cfg.ValidatorConf.BatchDelayS)
	assert.Equal(t, "lenient", cfg.ValidatorConf.Mode)
	assert.Equal(t, 33, cfg.OutputConf.MaxNodes)
}

func TestMalformedEnvValueIgnored(t *testing.T) {
	t.Setenv("batch_size", "lots")

	cfg := Default()
	require.NoError(t, LoadIni(cfg, filepath.Join(t.TempDir(), "absent.ini")))
	assert.Equal(t, 20, cfg.ValidatorConf.BatchSize)
}
