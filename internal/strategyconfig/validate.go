package strategyconfig

import (
	"fmt"
	"math"
	"regexp"
)

// ValidationError 校验失败 (拒绝加载)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// 策略名: 小写字母数字加连字符, 如 macd-golden
var strategyNamePattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Validate checks all hard constraints. A config that fails here is
// rejected before any selection run uses it.
func Validate(cfg *Config) error {
	if cfg.Meta.Name == "" {
		return ValidationError{"meta.name", "required"}
	}

	if cfg.Pipeline.TopN < 0 {
		return ValidationError{"pipeline.top_n", "must be >= 0"}
	}
	if cfg.Pipeline.MinTurnoverRate < 0 {
		return ValidationError{"pipeline.min_turnover_rate", "must be >= 0"}
	}

	for name, opts := range cfg.Strategies {
		if !strategyNamePattern.MatchString(name) {
			return ValidationError{
				Field:   fmt.Sprintf("strategies.%s", name),
				Message: "name must be lowercase kebab-case",
			}
		}
		for key, val := range opts.Params {
			if key == "" {
				return ValidationError{
					Field:   fmt.Sprintf("strategies.%s.params", name),
					Message: "empty parameter key",
				}
			}
			if math.IsNaN(val) || math.IsInf(val, 0) {
				return ValidationError{
					Field:   fmt.Sprintf("strategies.%s.params.%s", name, key),
					Message: "must be a finite number",
				}
			}
		}
	}
	return nil
}
