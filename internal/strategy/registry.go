package strategy

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the strategies discovered at startup.
// ⭐ SSOT: 策略注册只在这里管理
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// Register adds one strategy. Duplicate names are rejected.
func (r *Registry) Register(s Strategy) error {
	meta := s.Meta()
	if meta.Name == "" {
		return fmt.Errorf("strategy has empty name")
	}
	if meta.Category != CategoryTechnical && meta.Category != CategoryFundamental {
		return fmt.Errorf("strategy %s: unknown category %q", meta.Name, meta.Category)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.strategies[meta.Name]; exists {
		return fmt.Errorf("strategy %s already registered", meta.Name)
	}
	r.strategies[meta.Name] = s
	return nil
}

// Get looks a strategy up by name.
func (r *Registry) Get(name string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy: %s", name)
	}
	return s, nil
}

// ByCategory returns the strategies of one category, name-ordered so
// runs are deterministic.
func (r *Registry) ByCategory(category string) []Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Strategy
	for _, s := range r.strategies {
		if s.Meta().Category == category {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Meta().Name < out[j].Meta().Name
	})
	return out
}

// Names lists all registered strategy names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewDefaultRegistry registers the built-in strategy set with default
// parameters.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, s := range []Strategy{
		NewMACross(nil),
		NewMACDGolden(nil),
		NewKDJGolden(nil),
		NewRSIOversold(nil),
		NewBollBreakthrough(nil),
		NewVolumeBreakout(nil),
		NewMALongArrange(nil),
		NewWilliamsR(nil),
		NewLowPEHighROE(nil),
		NewHighDividend(nil),
		NewGrowthStock(nil),
		NewFinancialSafety(nil),
	} {
		// 内置策略名互不重复，此处不会失败
		if err := r.Register(s); err != nil {
			panic(err)
		}
	}
	return r
}
