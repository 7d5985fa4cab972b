package query

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// SyntaxError reports a malformed or invalid filter or sort expression.
type SyntaxError struct {
	Expression string
	Pos        int
	Msg        string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid expression %q at position %d: %s", e.Expression, e.Pos, e.Msg)
}

// operators in match order; longer tokens sharing a prefix come first.
var operators = []struct {
	token string
	op    Operator
}{
	{"=in=", OpIn},
	{"=out=", OpOut},
	{"=like=", OpLike},
	{"=notlike=", OpNotLike},
	{"=lt=", OpLt},
	{"=le=", OpLe},
	{"=gt=", OpGt},
	{"=ge=", OpGe},
	{"==", OpEq},
	{"!=", OpNe},
	{"<=", OpLe},
	{">=", OpGe},
	{"<", OpLt},
	{">", OpGt},
}

// Parse compiles a filter expression against schema. An empty expression
// yields a nil predicate.
func Parse(expression string, schema *Schema) (Predicate, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, nil
	}
	p := &parser{src: expression, schema: schema}
	pred, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return nil, p.errorf("unexpected %q", p.src[p.pos:])
	}
	return pred, nil
}

type parser struct {
	src    string
	pos    int
	schema *Schema
}

func (p *parser) parseOr() (Predicate, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	children := []Predicate{first}
	for {
		p.skipSpace()
		if !p.consume(",") && !p.consumeKeyword("or") {
			break
		}
		next, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		children = append(children, next)
	}
	return Or(children...), nil
}

func (p *parser) parseAnd() (Predicate, error) {
	first, err := p.parseGroup()
	if err != nil {
		return nil, err
	}
	children := []Predicate{first}
	for {
		p.skipSpace()
		if !p.consume(";") && !p.consumeKeyword("and") {
			break
		}
		next, err := p.parseGroup()
		if err != nil {
			return nil, err
		}
		children = append(children, next)
	}
	return And(children...), nil
}

func (p *parser) parseGroup() (Predicate, error) {
	p.skipSpace()
	if p.consume("(") {
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if !p.consume(")") {
			return nil, p.errorf("expected ')'")
		}
		return inner, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Predicate, error) {
	start := p.pos
	for p.pos < len(p.src) && isSelectorChar(rune(p.src[p.pos])) {
		p.pos++
	}
	name := p.src[start:p.pos]
	if name == "" {
		return nil, p.errorf("expected field name")
	}

	p.skipSpace()
	op, ok := p.readOperator()
	if !ok {
		return nil, p.errorf("expected comparison operator after %q", name)
	}

	p.skipSpace()
	args, list, err := p.parseArguments()
	if err != nil {
		return nil, err
	}
	return p.compile(start, name, op, args, list)
}

func (p *parser) readOperator() (Operator, bool) {
	rest := p.src[p.pos:]
	for _, candidate := range operators {
		if strings.HasPrefix(rest, candidate.token) {
			p.pos += len(candidate.token)
			return candidate.op, true
		}
	}
	return "", false
}

func (p *parser) parseArguments() (args []string, list bool, err error) {
	if !p.consume("(") {
		value, err := p.parseValue()
		if err != nil {
			return nil, false, err
		}
		return []string{value}, false, nil
	}
	for {
		p.skipSpace()
		value, err := p.parseValue()
		if err != nil {
			return nil, true, err
		}
		args = append(args, value)
		p.skipSpace()
		if p.consume(")") {
			return args, true, nil
		}
		if !p.consume(",") {
			return nil, true, p.errorf("expected ',' or ')' in argument list")
		}
	}
}

func (p *parser) parseValue() (string, error) {
	if p.pos >= len(p.src) {
		return "", p.errorf("expected value")
	}
	quote := p.src[p.pos]
	if quote == '"' || quote == '\'' {
		p.pos++
		var b strings.Builder
		for p.pos < len(p.src) {
			c := p.src[p.pos]
			switch {
			case c == '\\' && p.pos+1 < len(p.src):
				b.WriteByte(p.src[p.pos+1])
				p.pos += 2
			case c == quote:
				p.pos++
				return b.String(), nil
			default:
				b.WriteByte(c)
				p.pos++
			}
		}
		return "", p.errorf("unterminated quoted value")
	}

	start := p.pos
	for p.pos < len(p.src) && !isReserved(p.src[p.pos]) {
		p.pos++
	}
	if start == p.pos {
		return "", p.errorf("expected value")
	}
	return p.src[start:p.pos], nil
}

func (p *parser) compile(pos int, name string, op Operator, args []string, list bool) (Predicate, error) {
	field, ok := p.schema.Field(name)
	if !ok || field.NotFilterable {
		return nil, &SyntaxError{Expression: p.src, Pos: pos, Msg: fmt.Sprintf("unknown field %q", name)}
	}
	if field.Filter != nil {
		pred, err := field.Filter(op, args)
		if err != nil {
			return nil, &SyntaxError{Expression: p.src, Pos: pos, Msg: err.Error()}
		}
		return pred, nil
	}

	multi := op == OpIn || op == OpOut
	if !multi && (list || len(args) != 1) {
		return nil, &SyntaxError{Expression: p.src, Pos: pos, Msg: fmt.Sprintf("operator %s takes a single value", op)}
	}

	values := make([]any, len(args))
	for i, raw := range args {
		v, err := field.Kind.Parse(raw)
		if err != nil {
			return nil, &SyntaxError{Expression: p.src, Pos: pos, Msg: fmt.Sprintf("field %q: %v", name, err)}
		}
		values[i] = v
	}

	if s, isString := values[0].(string); isString && strings.Contains(s, "*") {
		switch op {
		case OpEq:
			op = OpLike
		case OpNe:
			op = OpNotLike
		}
	}
	if op == OpLike || op == OpNotLike {
		if _, isString := values[0].(string); !isString {
			return nil, &SyntaxError{Expression: p.src, Pos: pos, Msg: fmt.Sprintf("field %q does not support wildcards", name)}
		}
	}

	return Comparison{Field: name, Column: field.Column, Operator: op, Values: values}, nil
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *parser) consume(token string) bool {
	if strings.HasPrefix(p.src[p.pos:], token) {
		p.pos += len(token)
		return true
	}
	return false
}

// consumeKeyword matches a word operator that must be followed by whitespace or '('.
func (p *parser) consumeKeyword(word string) bool {
	rest := p.src[p.pos:]
	if len(rest) <= len(word) || !strings.EqualFold(rest[:len(word)], word) {
		return false
	}
	next := rest[len(word)]
	if next != '(' && !unicode.IsSpace(rune(next)) {
		return false
	}
	p.pos += len(word)
	return true
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Expression: p.src, Pos: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func isSelectorChar(r rune) bool {
	return r == '_' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isReserved(c byte) bool {
	switch c {
	case ';', ',', '(', ')', '"', '\'', ' ', '\t', '\n', '\r':
		return true
	}
	return false
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		if strings.IndexFunc(t, func(r rune) bool { return r < 128 && isReserved(byte(r)) }) >= 0 {
			return `"` + strings.ReplaceAll(t, `"`, `\"`) + `"`
		}
		return t
	case time.Time:
		return t.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}
