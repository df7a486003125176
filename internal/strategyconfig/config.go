// Package strategyconfig loads per-run selection settings from a YAML
// file: funnel options plus per-strategy parameter overrides.
// ⭐ SSOT: 选股参数文件只在这里解析与校验
package strategyconfig

import "sort"

// Config is one selection-run configuration.
type Config struct {
	Meta       Meta                    `yaml:"meta" json:"meta"`
	Pipeline   PipelineOpts            `yaml:"pipeline" json:"pipeline"`
	Strategies map[string]StrategyOpts `yaml:"strategies" json:"strategies"`
}

// Meta identifies the configuration for logs and audit.
type Meta struct {
	Name    string `yaml:"name" json:"name"`
	Version string `yaml:"version" json:"version"`
}

// PipelineOpts override the funnel defaults. Zero values fall back to
// the built-in defaults; ExcludeST is a pointer so "false" is
// distinguishable from "unset".
type PipelineOpts struct {
	TopN            int     `yaml:"top_n" json:"top_n"`
	MinTurnoverRate float64 `yaml:"min_turnover_rate" json:"min_turnover_rate"`
	ExcludeST       *bool   `yaml:"exclude_st" json:"exclude_st"`
}

// StrategyOpts tune one strategy. Enabled nil means enabled.
type StrategyOpts struct {
	Enabled *bool              `yaml:"enabled" json:"enabled"`
	Params  map[string]float64 `yaml:"params" json:"params"`
}

// EnabledNames returns the configured strategy names that are not
// explicitly disabled, sorted for deterministic runs.
func (c *Config) EnabledNames() []string {
	names := make([]string, 0, len(c.Strategies))
	for name, opts := range c.Strategies {
		if opts.Enabled != nil && !*opts.Enabled {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParamOverrides collects the per-strategy parameter maps for enabled
// strategies, keyed by strategy name.
func (c *Config) ParamOverrides() map[string]map[string]float64 {
	out := make(map[string]map[string]float64)
	for name, opts := range c.Strategies {
		if opts.Enabled != nil && !*opts.Enabled {
			continue
		}
		if len(opts.Params) == 0 {
			continue
		}
		params := make(map[string]float64, len(opts.Params))
		for k, v := range opts.Params {
			params[k] = v
		}
		out[name] = params
	}
	return out
}
