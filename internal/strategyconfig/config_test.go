package strategyconfig

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `meta:
  name: aggressive
  version: "2"
pipeline:
  top_n: 50
  min_turnover_rate: 0.002
  exclude_st: false
strategies:
  macd-golden:
    params:
      fast: 10
      slow: 20
  rsi-oversold:
    enabled: false
  high-dividend: {}
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strategy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadParsesFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "aggressive", cfg.Meta.Name)
	assert.Equal(t, 50, cfg.Pipeline.TopN)
	assert.Equal(t, 0.002, cfg.Pipeline.MinTurnoverRate)
	require.NotNil(t, cfg.Pipeline.ExcludeST)
	assert.False(t, *cfg.Pipeline.ExcludeST)
}

func TestEnabledNamesSkipsDisabled(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"high-dividend", "macd-golden"}, cfg.EnabledNames())
}

func TestParamOverridesOnlyEnabledWithParams(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	overrides := cfg.ParamOverrides()
	require.Len(t, overrides, 1)
	assert.Equal(t, map[string]float64{"fast": 10, "slow": 20}, overrides["macd-golden"])
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	yaml := `meta:
  name: typo
pipelnie:
  top_n: 10
`
	_, err := Load(writeConfig(t, yaml))
	require.Error(t, err)
}

func TestValidateRejectsBadStrategyName(t *testing.T) {
	cfg := &Config{
		Meta:       Meta{Name: "x"},
		Strategies: map[string]StrategyOpts{"MACD_Golden": {}},
	}
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kebab-case")
}

func TestValidateRejectsNonFiniteParam(t *testing.T) {
	cfg := &Config{
		Meta: Meta{Name: "x"},
		Strategies: map[string]StrategyOpts{
			"rsi-oversold": {Params: map[string]float64{"threshold": math.NaN()}},
		},
	}
	require.Error(t, Validate(cfg))
}

func TestValidateRejectsMissingName(t *testing.T) {
	require.Error(t, Validate(&Config{}))
}

func TestHashIsReproducible(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	h1, err := Hash(cfg)
	require.NoError(t, err)
	h2, err := Hash(cfg)
	require.NoError(t, err)

	assert.Len(t, h1, 64)
	assert.Equal(t, h1, h2)
}
