package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 48000.0, cfg.SampleRate)
	require.Equal(t, 512, cfg.BlockSize)
}

func TestLoadHonorsEnvOverride(t *testing.T) {
	t.Setenv("RTCORE_BLOCK_SIZE", "256")
	t.Setenv("RTCORE_PIN_WORKERS", "false")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 256, cfg.BlockSize)
	require.False(t, cfg.PinWorkers)
}
