package sqldao

import (
	"fmt"
	"strings"

	"github.com/nimburion/entitykit/pkg/persistence/query"
)

var comparisonOperators = map[query.Operator]string{
	query.OpEq: "=",
	query.OpNe: "<>",
	query.OpLt: "<",
	query.OpLe: "<=",
	query.OpGt: ">",
	query.OpGe: ">=",
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// statement accumulates SQL text and its bind arguments.
type statement struct {
	dialect Dialect
	sql     strings.Builder
	args    []any
}

func newStatement(d Dialect) *statement {
	return &statement{dialect: d}
}

func (s *statement) write(parts ...string) *statement {
	for _, p := range parts {
		s.sql.WriteString(p)
	}
	return s
}

func (s *statement) bind(v any) string {
	s.args = append(s.args, v)
	return s.dialect.Placeholder(len(s.args))
}

func (s *statement) String() string {
	return s.sql.String()
}

// Compile renders a predicate tree as a SQL boolean expression with bind
// parameters numbered from 1. A nil predicate yields an empty expression.
func Compile(d Dialect, p query.Predicate) (string, []any, error) {
	s := newStatement(d)
	if err := s.where(p); err != nil {
		return "", nil, err
	}
	return s.String(), s.args, nil
}

// OrderBy renders sort keys as an ORDER BY clause without the keyword.
func OrderBy(d Dialect, orders []query.Order) string {
	keys := make([]string, len(orders))
	for i, o := range orders {
		keys[i] = d.Quote(o.Column) + " ASC"
		if o.Descending {
			keys[i] = d.Quote(o.Column) + " DESC"
		}
	}
	return strings.Join(keys, ", ")
}

func (s *statement) where(p query.Predicate) error {
	switch node := p.(type) {
	case nil:
		return nil
	case query.Conjunction:
		return s.group(node.Children, " AND ")
	case query.Disjunction:
		return s.group(node.Children, " OR ")
	case query.Comparison:
		return s.comparison(node)
	default:
		return fmt.Errorf("unsupported predicate %T", p)
	}
}

func (s *statement) group(children []query.Predicate, sep string) error {
	s.write("(")
	for i, child := range children {
		if i > 0 {
			s.write(sep)
		}
		if err := s.where(child); err != nil {
			return err
		}
	}
	s.write(")")
	return nil
}

func (s *statement) comparison(c query.Comparison) error {
	column := s.dialect.Quote(c.Column)
	if len(c.Values) == 0 {
		// an empty argument list never matches
		s.write("1 = 0")
		return nil
	}

	switch c.Operator {
	case query.OpIn, query.OpOut:
		keyword := " IN ("
		if c.Operator == query.OpOut {
			keyword = " NOT IN ("
		}
		s.write(column, keyword)
		for i, v := range c.Values {
			if i > 0 {
				s.write(", ")
			}
			s.write(s.bind(v))
		}
		s.write(")")
	case query.OpLike, query.OpNotLike:
		pattern, ok := c.Values[0].(string)
		if !ok {
			return fmt.Errorf("like pattern on %q must be a string", c.Column)
		}
		keyword := " LIKE "
		if c.Operator == query.OpNotLike {
			keyword = " NOT LIKE "
		}
		pattern = strings.ReplaceAll(likeEscaper.Replace(pattern), "*", "%")
		s.write(column, keyword, s.bind(pattern))
	default:
		op, ok := comparisonOperators[c.Operator]
		if !ok {
			return fmt.Errorf("unsupported operator %q", c.Operator)
		}
		s.write(column, " ", op, " ", s.bind(c.Values[0]))
	}
	return nil
}

// paginate appends LIMIT and OFFSET clauses. Non-positive values are omitted.
func (s *statement) paginate(limit, offset int) {
	switch {
	case limit > 0:
		s.write(" LIMIT ", s.bind(limit))
	case offset > 0 && s.dialect.OffsetWithoutLimit != "":
		s.write(" LIMIT ", s.dialect.OffsetWithoutLimit)
	}
	if offset > 0 {
		s.write(" OFFSET ", s.bind(offset))
	}
}
