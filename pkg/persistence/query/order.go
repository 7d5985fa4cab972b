package query

import (
	"fmt"
	"strings"
)

// Order is one sort key.
type Order struct {
	Field      string
	Column     string
	Descending bool
}

func (o Order) String() string {
	if o.Descending {
		return o.Column + ":desc"
	}
	return o.Column + ":asc"
}

// ParseOrder compiles a sort expression against schema. An empty expression
// yields no ordering; the Dao then applies its own stable default.
func ParseOrder(expression string, schema *Schema) ([]Order, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, nil
	}

	var orders []Order
	offset := 0
	for _, token := range strings.Split(expression, ",") {
		pos := offset
		offset += len(token) + 1
		token = strings.TrimSpace(token)
		if token == "" {
			return nil, &SyntaxError{Expression: expression, Pos: pos, Msg: "empty sort key"}
		}

		name, descending := token, false
		prefixed := false
		switch {
		case strings.HasPrefix(name, "-"):
			name, descending, prefixed = name[1:], true, true
		case strings.HasPrefix(name, "+"):
			name, prefixed = name[1:], true
		}
		if i := strings.IndexByte(name, ':'); i >= 0 {
			if prefixed {
				return nil, &SyntaxError{Expression: expression, Pos: pos, Msg: fmt.Sprintf("sort key %q has both a direction prefix and suffix", token)}
			}
			direction := strings.ToLower(strings.TrimSpace(name[i+1:]))
			name = strings.TrimSpace(name[:i])
			switch direction {
			case "asc":
			case "desc":
				descending = true
			default:
				return nil, &SyntaxError{Expression: expression, Pos: pos, Msg: fmt.Sprintf("unknown sort direction %q", direction)}
			}
		}

		field, ok := schema.Field(name)
		if !ok || field.NotSortable {
			return nil, &SyntaxError{Expression: expression, Pos: pos, Msg: fmt.Sprintf("unknown sort field %q", name)}
		}
		columns := field.SortColumns
		if len(columns) == 0 {
			columns = []string{field.Column}
		}
		for _, column := range columns {
			orders = append(orders, Order{Field: name, Column: column, Descending: descending})
		}
	}
	return orders, nil
}
