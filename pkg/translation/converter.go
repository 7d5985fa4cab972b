package translation

import (
	"fmt"
	"strings"
	"time"

	"github.com/nimburion/entitykit/pkg/fieldtype"
	"github.com/nimburion/entitykit/pkg/persistence"
)

// ValueConverter converts one field value between representations.
type ValueConverter interface {
	ToClient(value any, pc *persistence.Context) (any, error)
	ToPersistent(value any, pc *persistence.Context) (any, error)
}

// IdentityConverter passes values through unchanged.
type IdentityConverter struct{}

func (IdentityConverter) ToClient(value any, _ *persistence.Context) (any, error)     { return value, nil }
func (IdentityConverter) ToPersistent(value any, _ *persistence.Context) (any, error) { return value, nil }

// ConverterFuncs builds a ValueConverter from two functions. A nil function
// passes values through.
type ConverterFuncs struct {
	Client     func(value any, pc *persistence.Context) (any, error)
	Persistent func(value any, pc *persistence.Context) (any, error)
}

func (c ConverterFuncs) ToClient(value any, pc *persistence.Context) (any, error) {
	if c.Client == nil {
		return value, nil
	}
	return c.Client(value, pc)
}

func (c ConverterFuncs) ToPersistent(value any, pc *persistence.Context) (any, error) {
	if c.Persistent == nil {
		return value, nil
	}
	return c.Persistent(value, pc)
}

// DelimitedListConverter stores a client []string as one delimited string.
type DelimitedListConverter struct {
	Separator string
}

func (c DelimitedListConverter) sep() string {
	if c.Separator == "" {
		return ","
	}
	return c.Separator
}

func (c DelimitedListConverter) ToClient(value any, _ *persistence.Context) (any, error) {
	s, ok := fieldtype.Normalize(value).(string)
	if !ok || s == "" {
		return []string(nil), nil
	}
	return strings.Split(s, c.sep()), nil
}

func (c DelimitedListConverter) ToPersistent(value any, _ *persistence.Context) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []string:
		if v == nil {
			return nil, nil
		}
		return strings.Join(v, c.sep()), nil
	default:
		return nil, fmt.Errorf("expected []string, got %T", value)
	}
}

// PropertyChangeEvaluator decides whether writing a new value changes the
// stored one.
type PropertyChangeEvaluator interface {
	HasChanged(old, new any) bool
}

// DefaultChangeEvaluator compares normalized values.
type DefaultChangeEvaluator struct{}

func (DefaultChangeEvaluator) HasChanged(old, new any) bool {
	return !fieldtype.Equal(old, new)
}

// TimeChangeEvaluator compares instants at millisecond precision, ignoring
// location and monotonic clock readings.
type TimeChangeEvaluator struct{}

func (TimeChangeEvaluator) HasChanged(old, new any) bool {
	a, aok := fieldtype.Normalize(old).(time.Time)
	b, bok := fieldtype.Normalize(new).(time.Time)
	if !aok || !bok {
		return !fieldtype.Equal(old, new)
	}
	return !a.Truncate(time.Millisecond).Equal(b.Truncate(time.Millisecond))
}
