package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FailsFastWhenPrimaryBookmakerUnset(t *testing.T) {
	t.Setenv("CYCLE_PRIMARY_BOOKMAKER", "")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CYCLE_PRIMARY_BOOKMAKER")
}

func TestLoad_ReadsEnvOverridesAndAppliesDefaults(t *testing.T) {
	t.Setenv("CYCLE_PRIMARY_BOOKMAKER", "reference")
	t.Setenv("CYCLE_INTERVAL_SECONDS", "45")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "reference", cfg.Cycle.PrimaryBookmaker)
	assert.Equal(t, 45, cfg.Cycle.IntervalSeconds)
	assert.Equal(t, "./artifacts", cfg.Publish.BucketPath, "unset vars fall back to their envDefault")
	assert.Equal(t, 1.0, cfg.Alerts.ArbitrageThreshold)
	assert.Equal(t, 10.0, cfg.Alerts.ValueBetThreshold)
}

func TestLoad_MissingConfigFileIsNotAnError(t *testing.T) {
	t.Setenv("CYCLE_PRIMARY_BOOKMAKER", "reference")

	_, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
}

func TestCycleConfig_IntervalConvertsSecondsToDuration(t *testing.T) {
	c := CycleConfig{IntervalSeconds: 30}
	assert.Equal(t, 30_000_000_000, int(c.Interval()))
}
