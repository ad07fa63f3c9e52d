package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, "strategy:\n  leverage: 3.0\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3.0, cfg.Strategy.Leverage)
	assert.Equal(t, 1e-4, cfg.Strategy.MinSpread)
	assert.Equal(t, 10.0, cfg.Strategy.MinPositionUsd)
	assert.Equal(t, 0.9, cfg.Strategy.BalanceUsagePct)
	assert.Equal(t, 50_000_000.0, cfg.Strategy.MaxPortfolioUsd)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "fundingarb.db", cfg.Storage.DSN)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestFeeRate(t *testing.T) {
	cfg := &Config{Venues: map[string]VenueFees{
		"BINANCE": {MakerFeeRate: 0.0002, TakerFeeRate: 0.0004},
	}}

	assert.Equal(t, 0.0002, cfg.FeeRate("binance", false))
	assert.Equal(t, 0.0004, cfg.FeeRate("BINANCE", true))
	assert.Equal(t, 0.0, cfg.FeeRate("unknown", false))
}

func TestEightHourlyFunding(t *testing.T) {
	cfg := &Config{Venues: map[string]VenueFees{
		"DYDX":    {EightHourlyFunding: true},
		"BINANCE": {EightHourlyFunding: false},
	}}

	assert.True(t, cfg.EightHourlyFunding("dydx"))
	assert.False(t, cfg.EightHourlyFunding("BINANCE"))
	assert.False(t, cfg.EightHourlyFunding("unknown"))
}
