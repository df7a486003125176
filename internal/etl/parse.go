package etl

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Null markers the vendor uses inside string cells.
var nullMarkers = map[string]bool{
	"":     true,
	"N/A":  true,
	"--":   true,
	"None": true,
	"none": true,
	"null": true,
	"NULL": true,
}

// ParseDecimal converts a loosely typed vendor cell into a float.
// Returns ok=false for nil, null markers, NaN/Inf and unparsable
// strings.
func ParseDecimal(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return t, true
	case float32:
		return ParseDecimal(float64(t))
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		s := strings.TrimSpace(t)
		if nullMarkers[s] {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// ParseDate accepts YYYY-MM-DD and YYYYMMDD cells.
func ParseDate(v interface{}) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	if nullMarkers[s] {
		return time.Time{}, false
	}

	for _, layout := range []string{"2006-01-02", "20060102"} {
		if d, err := time.Parse(layout, s); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

// NormalizeCode maps vendor-specific code spellings onto the canonical
// NNNNNN.XX form. Unknown shapes are returned upper-cased as-is.
func NormalizeCode(raw, source string) string {
	code := strings.TrimSpace(raw)
	if code == "" {
		return ""
	}

	switch source {
	case "tushare":
		return strings.ToUpper(code)
	case "sina":
		// sh600519 / sz000001 / bj830799
		lower := strings.ToLower(code)
		if len(lower) == 8 {
			switch lower[:2] {
			case "sh":
				return lower[2:] + ".SH"
			case "sz":
				return lower[2:] + ".SZ"
			case "bj":
				return lower[2:] + ".BJ"
			}
		}
		return strings.ToUpper(code)
	case "plain":
		// Bare six digits: infer exchange from the leading digit.
		if len(code) == 6 {
			switch code[0] {
			case '6', '9':
				return code + ".SH"
			case '0', '3':
				return code + ".SZ"
			case '4', '8':
				return code + ".BJ"
			}
		}
		return strings.ToUpper(code)
	default:
		return strings.ToUpper(code)
	}
}

// decimalPtr is ParseDecimal with a pointer result for nullable columns.
func decimalPtr(v interface{}) *float64 {
	f, ok := ParseDecimal(v)
	if !ok {
		return nil
	}
	return &f
}

func cellString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}
