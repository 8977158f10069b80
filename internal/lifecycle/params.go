package lifecycle

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	dErrors "villageops/pkg/domain-errors"
)

// Params carries the caller-supplied parameters of one action as a flat
// key-value map, matching the remote-procedure payload shape.
type Params map[string]any

// dateLayout is the wire format for calendar dates (expiry, start, due).
const dateLayout = "2006-01-02"

func stringValue(m map[string]any, key string) (string, bool) {
	if m == nil {
		return "", false
	}
	s, ok := m[key].(string)
	return strings.TrimSpace(s), ok
}

// intValue coerces the numeric representations JSON and CSV parsing produce
// into an int64. Floats must be integral.
func intValue(m map[string]any, key string) (int64, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func floatValue(m map[string]any, key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m[key].(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// requireString validates a required non-empty string param.
func requireString(p Params, key string) (string, error) {
	s, ok := stringValue(p, key)
	if !ok || s == "" {
		return "", dErrors.New(dErrors.CodeValidation, key+" is required")
	}
	return s, nil
}

// requireReason validates a required free-text reason of a minimum length.
func requireReason(p Params, key string, minLen int) (string, error) {
	s, err := requireString(p, key)
	if err != nil {
		return "", err
	}
	if len(s) < minLen {
		return "", dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("%s must be at least %d characters", key, minLen))
	}
	return s, nil
}

// requireDate validates a required calendar date in YYYY-MM-DD form.
func requireDate(p Params, key string) (string, error) {
	s, err := requireString(p, key)
	if err != nil {
		return "", err
	}
	if _, err := time.Parse(dateLayout, s); err != nil {
		return "", dErrors.New(dErrors.CodeValidation, key+" must be a date in YYYY-MM-DD form")
	}
	return s, nil
}

// optionalDate validates a date param when present; absence is not an error.
func optionalDate(p Params, key string) (string, error) {
	s, ok := stringValue(p, key)
	if !ok || s == "" {
		return "", nil
	}
	if _, err := time.Parse(dateLayout, s); err != nil {
		return "", dErrors.New(dErrors.CodeValidation, key+" must be a date in YYYY-MM-DD form")
	}
	return s, nil
}

// requireAmount validates a required non-negative amount in minor units.
func requireAmount(p Params, key string) (int64, error) {
	n, ok := intValue(p, key)
	if !ok {
		return 0, dErrors.New(dErrors.CodeValidation, key+" must be a whole amount in minor units")
	}
	if n < 0 {
		return 0, dErrors.New(dErrors.CodeValidation, key+" must not be negative")
	}
	return n, nil
}
