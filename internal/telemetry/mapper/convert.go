package mapper

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var decimal = regexp.MustCompile(`^[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?$`)

// toString accepts JSON strings only.
func toString(field string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", mismatch(field, "string", v)
	}
	return s, nil
}

// toNumeric accepts a JSON number or a string holding a decimal number and
// returns it as a string. An empty string is returned as is.
func toNumeric(field string, v any) (string, error) {
	switch n := v.(type) {
	case json.Number:
		if !decimal.MatchString(n.String()) {
			return "", mismatch(field, "number", v)
		}
		return n.String(), nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return "", mismatch(field, "finite number", v)
		}
		return strconv.FormatFloat(n, 'f', -1, 64), nil
	case string:
		s := strings.TrimSpace(n)
		if s == "" || decimal.MatchString(s) {
			return s, nil
		}
		return "", &MappingError{Kind: TypeMismatch, Field: field, Detail: "want numeric string, got " + strconv.Quote(n)}
	default:
		return "", mismatch(field, "numeric string", v)
	}
}

// toInt accepts integral JSON numbers and integral numeric strings.
func toInt(field string, v any) (int64, error) {
	var f float64
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		parsed, err := n.Float64()
		if err != nil {
			return 0, mismatch(field, "integer", v)
		}
		f = parsed
	case float64:
		f = n
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		if !decimal.MatchString(s) {
			return 0, &MappingError{Kind: TypeMismatch, Field: field, Detail: "want integer, got " + strconv.Quote(n)}
		}
		f, _ = strconv.ParseFloat(s, 64)
	default:
		return 0, mismatch(field, "integer", v)
	}

	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, mismatch(field, "integer", v)
	}
	// float64(math.MaxInt64) rounds up to 2^63.
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, &MappingError{Kind: OutOfRange, Field: field, Detail: fmt.Sprintf("%v overflows int64", v)}
	}
	return int64(f), nil
}

// toBool accepts JSON booleans, 0/1 numbers and strconv.ParseBool strings.
func toBool(field string, v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case json.Number:
		switch b.String() {
		case "0":
			return false, nil
		case "1":
			return true, nil
		}
	case float64:
		switch b {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
	case string:
		if parsed, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
			return parsed, nil
		}
	}
	return false, mismatch(field, "bool", v)
}

// toFloat accepts JSON numbers and numeric strings.
func toFloat(field string, v any) (float64, error) {
	s, err := toNumeric(field, v)
	if err != nil {
		return 0, err
	}
	if s == "" {
		return 0, missing(field)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, mismatch(field, "number", v)
	}
	return f, nil
}

// toScalar renders strings, numbers and booleans as a string.
func toScalar(field string, v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case json.Number:
		return s.String(), nil
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(s), nil
	default:
		return "", mismatch(field, "scalar", v)
	}
}
