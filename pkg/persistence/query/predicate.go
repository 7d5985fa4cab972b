// Package query compiles caller-supplied filter and sort expressions into a
// backend-agnostic predicate tree and ordering list for one entity type.
//
// Filter grammar (RSQL style):
//
//	or         = and { ("," | " or ") and }
//	and        = group { (";" | " and ") group }
//	group      = "(" or ")" | comparison
//	comparison = field operator argument
//	operator   = "==" | "!=" | "=lt=" | "<" | "=le=" | "<=" | "=gt=" | ">" | "=ge=" | ">=" | "=in=" | "=out=" | "=like=" | "=notlike="
//	argument   = value | "(" value { "," value } ")"
//	value      = unquoted | '"' ... '"' | "'" ... "'"
//
// A string equality whose value contains "*" becomes a LIKE comparison and a
// string inequality containing "*" becomes a NOT LIKE comparison.
//
// Sort grammar: a comma separated list of "field", "field:asc", "field:desc",
// "+field" or "-field". A key may carry a prefix or a suffix, not both.
package query

import "strings"

// Operator is a comparison operator.
type Operator string

// Operator constants
const (
	OpEq      Operator = "=="
	OpNe      Operator = "!="
	OpLt      Operator = "<"
	OpLe      Operator = "<="
	OpGt      Operator = ">"
	OpGe      Operator = ">="
	OpIn      Operator = "=in="
	OpOut     Operator = "=out="
	OpLike    Operator = "=like="
	// OpNotLike is the negated wildcard match; a missing value never matches.
	OpNotLike Operator = "=notlike="
)

// Predicate is a node of the compiled filter tree.
type Predicate interface {
	String() string
	predicate()
}

// Comparison compares one field against one or more values.
// Values are already coerced to the field kind.
type Comparison struct {
	// Field is the client field name as written by the caller.
	Field string
	// Column is the storage field name the Dao resolves.
	Column   string
	Operator Operator
	Values   []any
}

// Conjunction is true when all children are true.
type Conjunction struct {
	Children []Predicate
}

// Disjunction is true when any child is true.
type Disjunction struct {
	Children []Predicate
}

func (Comparison) predicate()  {}
func (Conjunction) predicate() {}
func (Disjunction) predicate() {}

func (c Comparison) String() string {
	values := make([]string, len(c.Values))
	for i, v := range c.Values {
		values[i] = formatValue(v)
	}
	if c.Operator == OpIn || c.Operator == OpOut {
		return c.Column + string(c.Operator) + "(" + strings.Join(values, ",") + ")"
	}
	return c.Column + string(c.Operator) + strings.Join(values, ",")
}

func (c Conjunction) String() string { return joinChildren(c.Children, ";") }
func (d Disjunction) String() string { return joinChildren(d.Children, ",") }

// And combines predicates conjunctively, dropping nil entries.
// It returns nil when nothing is left and the single predicate when one is left.
func And(predicates ...Predicate) Predicate {
	children := make([]Predicate, 0, len(predicates))
	for _, p := range predicates {
		if p != nil {
			children = append(children, p)
		}
	}
	switch len(children) {
	case 0:
		return nil
	case 1:
		return children[0]
	}
	return Conjunction{Children: children}
}

// Or combines predicates disjunctively, dropping nil entries.
func Or(predicates ...Predicate) Predicate {
	children := make([]Predicate, 0, len(predicates))
	for _, p := range predicates {
		if p != nil {
			children = append(children, p)
		}
	}
	switch len(children) {
	case 0:
		return nil
	case 1:
		return children[0]
	}
	return Disjunction{Children: children}
}

// Eq builds an equality comparison on a storage column.
func Eq(column string, value any) Predicate {
	return Comparison{Field: column, Column: column, Operator: OpEq, Values: []any{value}}
}

// In builds a membership comparison on a storage column.
func In(column string, values ...any) Predicate {
	return Comparison{Field: column, Column: column, Operator: OpIn, Values: values}
}

func joinChildren(children []Predicate, sep string) string {
	parts := make([]string, len(children))
	for i, child := range children {
		parts[i] = child.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}
