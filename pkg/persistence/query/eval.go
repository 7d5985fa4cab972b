package query

import (
	"fmt"
	"strings"

	"github.com/nimburion/entitykit/pkg/fieldtype"
)

// ValueGetter resolves a storage column on one candidate object.
type ValueGetter func(column string) (any, bool)

// Evaluate tests a predicate against one object. A nil predicate matches
// everything. Comparisons against a nil field value never match, as in SQL.
func Evaluate(p Predicate, get ValueGetter) (bool, error) {
	switch node := p.(type) {
	case nil:
		return true, nil
	case Conjunction:
		for _, child := range node.Children {
			ok, err := Evaluate(child, get)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case Disjunction:
		for _, child := range node.Children {
			ok, err := Evaluate(child, get)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case Comparison:
		return evaluateComparison(node, get)
	default:
		return false, fmt.Errorf("unsupported predicate %T", p)
	}
}

func evaluateComparison(c Comparison, get ValueGetter) (bool, error) {
	value, ok := get(c.Column)
	if !ok {
		return false, fmt.Errorf("unknown column %q", c.Column)
	}
	if fieldtype.Normalize(value) == nil || len(c.Values) == 0 {
		return false, nil
	}

	switch c.Operator {
	case OpEq:
		return fieldtype.Equal(value, c.Values[0]), nil
	case OpNe:
		return !fieldtype.Equal(value, c.Values[0]), nil
	case OpIn, OpOut:
		found := false
		for _, candidate := range c.Values {
			if fieldtype.Equal(value, candidate) {
				found = true
				break
			}
		}
		return found == (c.Operator == OpIn), nil
	case OpLike, OpNotLike:
		s, isString := fieldtype.Normalize(value).(string)
		if !isString {
			return false, nil
		}
		pattern, _ := c.Values[0].(string)
		return MatchWildcard(pattern, s) == (c.Operator == OpLike), nil
	case OpLt, OpLe, OpGt, OpGe:
		cmp, comparable := fieldtype.Compare(value, c.Values[0])
		if !comparable {
			return false, nil
		}
		switch c.Operator {
		case OpLt:
			return cmp < 0, nil
		case OpLe:
			return cmp <= 0, nil
		case OpGt:
			return cmp > 0, nil
		default:
			return cmp >= 0, nil
		}
	}
	return false, fmt.Errorf("unsupported operator %q", c.Operator)
}

// MatchWildcard matches s against a pattern where "*" matches any run of characters.
func MatchWildcard(pattern, s string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == s
	}
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]
	last := parts[len(parts)-1]
	for _, part := range parts[1 : len(parts)-1] {
		i := strings.Index(s, part)
		if i < 0 {
			return false
		}
		s = s[i+len(part):]
	}
	return strings.HasSuffix(s, last)
}

// CompareByOrder orders two objects by the given sort keys.
// Incomparable values are treated as equal.
func CompareByOrder(orders []Order, a, b ValueGetter) int {
	for _, o := range orders {
		av, _ := a(o.Column)
		bv, _ := b(o.Column)
		cmp, ok := fieldtype.Compare(av, bv)
		if !ok || cmp == 0 {
			continue
		}
		if o.Descending {
			return -cmp
		}
		return cmp
	}
	return 0
}
