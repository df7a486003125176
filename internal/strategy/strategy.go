// Package strategy defines the pluggable stock-selection strategies
// and the market snapshot they filter over.
package strategy

import (
	"math"
	"time"
)

// Strategy categories.
const (
	CategoryTechnical   = "technical"
	CategoryFundamental = "fundamental"
)

// Meta describes a strategy for registration and display.
type Meta struct {
	Name          string
	Category      string
	DisplayName   string
	Description   string
	DefaultParams map[string]float64
}

// Strategy filters the market snapshot for one target date. FilterBatch
// returns a mask aligned with the snapshot rows, true meaning the
// entity passes.
type Strategy interface {
	Meta() Meta
	FilterBatch(snap *Snapshot, target time.Time) []bool
}

// base carries the merged parameter set shared by all strategies.
// Custom params override defaults key by key.
type base struct {
	meta   Meta
	params map[string]float64
}

func newBase(meta Meta, params map[string]float64) base {
	merged := make(map[string]float64, len(meta.DefaultParams))
	for k, v := range meta.DefaultParams {
		merged[k] = v
	}
	for k, v := range params {
		merged[k] = v
	}
	return base{meta: meta, params: merged}
}

func (b *base) Meta() Meta { return b.meta }

func (b *base) param(key string, def float64) float64 {
	if v, ok := b.params[key]; ok {
		return v
	}
	return def
}

// val reads one cell with a default for missing columns and NULLs,
// mirroring how the snapshot marks unknown values with NaN.
func val(col []float64, i int, def float64) float64 {
	if i >= len(col) {
		return def
	}
	if v := col[i]; !math.IsNaN(v) {
		return v
	}
	return def
}
