package content

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FlexValue holds a field the origin publishes as either a number or a string.
// It is decoded once and exposes both a numeric and a raw string form.
type FlexValue struct {
	num     float64
	raw     string
	numeric bool
	set     bool
}

// Number returns a FlexValue holding a numeric source value.
func Number(f float64) FlexValue {
	return FlexValue{num: f, numeric: true, set: true}
}

// Text returns a FlexValue holding a string source value.
func Text(s string) FlexValue {
	return FlexValue{raw: s, set: true}
}

// IsNumeric reports whether the source value was a number.
func (v FlexValue) IsNumeric() bool { return v.numeric }

// IsZero reports whether no value was present.
func (v FlexValue) IsZero() bool { return !v.set }

// Float returns the numeric form, or 0 when the source is not parseable.
func (v FlexValue) Float() float64 {
	f, _ := v.number()
	return f
}

// number returns the numeric form and whether the source holds a finite number.
func (v FlexValue) number() (float64, bool) {
	if v.numeric {
		return v.num, true
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v.raw), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// String returns the raw form. Whole numbers render without a fraction;
// an absent or blank value renders as "0".
func (v FlexValue) String() string {
	if v.numeric {
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	}
	s := strings.TrimSpace(v.raw)
	if s == "" {
		return "0"
	}
	return s
}

// UnmarshalJSON accepts numbers, strings and null.
func (v *FlexValue) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == "" {
		*v = FlexValue{}
		return nil
	}
	if s[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return fmt.Errorf("flex value: %w", err)
		}
		*v = Text(str)
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// booleans and other scalars keep their literal form
		*v = Text(s)
		return nil
	}
	*v = Number(f)
	return nil
}

// MarshalJSON writes numbers as numbers and everything else as strings.
func (v FlexValue) MarshalJSON() ([]byte, error) {
	if !v.set {
		return []byte("null"), nil
	}
	if v.numeric {
		return []byte(v.String()), nil
	}
	return json.Marshal(v.raw)
}

// Scan implements sql.Scanner for INTEGER, REAL, TEXT and NULL columns.
func (v *FlexValue) Scan(src any) error {
	switch x := src.(type) {
	case nil:
		*v = FlexValue{}
	case int64:
		*v = Number(float64(x))
	case float64:
		*v = Number(x)
	case []byte:
		*v = Text(string(x))
	case string:
		*v = Text(x)
	default:
		return fmt.Errorf("flex value: unsupported column type %T", src)
	}
	return nil
}

// Value implements driver.Valuer. Whole numbers are stored as integers.
func (v FlexValue) Value() (driver.Value, error) {
	switch {
	case !v.set:
		return nil, nil
	case v.numeric && v.num == math.Trunc(v.num) && math.Abs(v.num) < 1<<53:
		return int64(v.num), nil
	case v.numeric:
		return v.num, nil
	default:
		return v.raw, nil
	}
}
