package config

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorityDefaultsApplyWithoutFlags(t *testing.T) {
	v := New("GRIDCLASH")
	cmd := &cobra.Command{Use: "authority"}
	BindAuthorityFlags(cmd, v)

	cfg, err := LoadAuthorityConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 12000, cfg.Port)
	assert.Equal(t, 5, cfg.Rows)
	assert.Equal(t, 21.0, cfg.TickRateHz)
	assert.Equal(t, 10, cfg.HeartbeatThreshold)
}

func TestAuthorityFlagOverridesDefault(t *testing.T) {
	v := New("GRIDCLASH")
	cmd := &cobra.Command{Use: "authority"}
	BindAuthorityFlags(cmd, v)
	require.NoError(t, cmd.Flags().Set("rows", "8"))

	cfg, err := LoadAuthorityConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Rows)
}

func TestAuthorityEnvOverridesDefaultButNotFlag(t *testing.T) {
	t.Setenv("GRIDCLASH_COLS", "12")
	v := New("GRIDCLASH")
	cmd := &cobra.Command{Use: "authority"}
	BindAuthorityFlags(cmd, v)

	cfg, err := LoadAuthorityConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Cols)

	require.NoError(t, cmd.Flags().Set("cols", "3"))
	cfg, err = LoadAuthorityConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Cols, "an explicit flag must win over env")
}

func TestObserverFlagsMatchSpecNames(t *testing.T) {
	v := New("GRIDCLASH")
	cmd := &cobra.Command{Use: "observer"}
	BindObserverFlags(cmd, v)

	for _, name := range []string{"client-id", "server", "port", "duration", "output", "no-auto-play"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "missing flag %s", name)
	}

	cfg, err := LoadObserverConfig(v)
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.Server)
	assert.False(t, cfg.NoAutoPlay)
}
