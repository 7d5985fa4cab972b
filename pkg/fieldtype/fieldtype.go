// Package fieldtype describes the semantic type of an entity field and
// provides the value coercion and comparison rules shared by the translator,
// the query compiler and the in-process Dao.
package fieldtype

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Kind is the semantic type of a field.
type Kind string

// Kind constants
const (
	String Kind = "string"
	Int    Kind = "int"
	Float  Kind = "float"
	Bool   Kind = "bool"
	Time   Kind = "time"
	// Any is used for fields that are never filtered on (structs, slices, maps).
	Any Kind = "any"
)

// TimeLayouts are the accepted textual forms of a Time literal, tried in order.
var TimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Parse converts a raw literal into the canonical Go value for the kind:
// string, int64, float64, bool or time.Time.
func (k Kind) Parse(raw string) (any, error) {
	switch k {
	case String, Any:
		return raw, nil
	case Int:
		v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", raw)
		}
		return v, nil
	case Float:
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", raw)
		}
		return v, nil
	case Bool:
		v, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%q is not a boolean", raw)
		}
		return v, nil
	case Time:
		for _, layout := range TimeLayouts {
			if v, err := time.Parse(layout, strings.TrimSpace(raw)); err == nil {
				return v, nil
			}
		}
		return nil, fmt.Errorf("%q is not a timestamp", raw)
	default:
		return nil, fmt.Errorf("unknown field kind %q", k)
	}
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case String, Int, Float, Bool, Time, Any:
		return true
	}
	return false
}

// Normalize dereferences pointers and widens numeric values so that values of
// different Go types can be compared: integers become int64, unsigned and
// floating point values float64, string-like values string.
// A nil pointer normalizes to nil.
func Normalize(v any) any {
	if v == nil {
		return nil
	}
	switch t := v.(type) {
	case time.Time:
		return t
	case *time.Time:
		if t == nil {
			return nil
		}
		return *t
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	}
	if t, ok := rv.Interface().(time.Time); ok {
		return t
	}
	return rv.Interface()
}

// Compare orders two values after normalization. nil sorts before any
// non-nil value. ok is false when the values are not mutually comparable.
func Compare(a, b any) (result int, ok bool) {
	a, b = Normalize(a), Normalize(b)
	switch {
	case a == nil && b == nil:
		return 0, true
	case a == nil:
		return -1, true
	case b == nil:
		return 1, true
	}

	switch av := a.(type) {
	case int64:
		switch bv := b.(type) {
		case int64:
			return cmpOrdered(av, bv), true
		case float64:
			return cmpOrdered(float64(av), bv), true
		}
	case float64:
		switch bv := b.(type) {
		case float64:
			return cmpOrdered(av, bv), true
		case int64:
			return cmpOrdered(av, float64(bv)), true
		}
	case string:
		if bv, isString := b.(string); isString {
			return strings.Compare(av, bv), true
		}
	case bool:
		if bv, isBool := b.(bool); isBool {
			switch {
			case av == bv:
				return 0, true
			case !av:
				return -1, true
			default:
				return 1, true
			}
		}
	case time.Time:
		if bv, isTime := b.(time.Time); isTime {
			return av.Compare(bv), true
		}
	}
	return 0, false
}

// Equal reports whether two values are equal. Comparable scalars are
// compared after normalization, everything else with reflect.DeepEqual.
func Equal(a, b any) bool {
	if c, ok := Compare(a, b); ok {
		return c == 0
	}
	return reflect.DeepEqual(Normalize(a), Normalize(b))
}

func cmpOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
