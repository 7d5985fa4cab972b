package query

import (
	"github.com/nimburion/entitykit/pkg/apperror"
)

// PredicateBuilderFactory compiles a filter expression for one entity.
type PredicateBuilderFactory interface {
	BuildPredicate(expression string, schema *Schema) (Predicate, error)
}

// OrderBuilderFactory compiles a sort expression for one entity.
type OrderBuilderFactory interface {
	BuildOrder(expression string, schema *Schema) ([]Order, error)
}

// RSQLPredicateBuilderFactory compiles the filter grammar documented on the package.
type RSQLPredicateBuilderFactory struct{}

// BuildPredicate parses expression and reports grammar errors as bad requests.
func (RSQLPredicateBuilderFactory) BuildPredicate(expression string, schema *Schema) (Predicate, error) {
	pred, err := Parse(expression, schema)
	if err != nil {
		return nil, apperror.BadRequest(err.Error(), err)
	}
	return pred, nil
}

// DefaultOrderBuilderFactory compiles sort expressions and falls back to
// Default when the expression is empty.
type DefaultOrderBuilderFactory struct {
	Default []Order
}

// BuildOrder parses expression and reports grammar errors as bad requests.
func (f DefaultOrderBuilderFactory) BuildOrder(expression string, schema *Schema) ([]Order, error) {
	orders, err := ParseOrder(expression, schema)
	if err != nil {
		return nil, apperror.BadRequest(err.Error(), err)
	}
	if len(orders) == 0 && len(f.Default) > 0 {
		return append([]Order(nil), f.Default...), nil
	}
	return orders, nil
}
