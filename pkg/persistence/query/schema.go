package query

import (
	"fmt"
	"sort"

	"github.com/nimburion/entitykit/pkg/fieldtype"
)

// CustomFilter builds the predicate for a virtual filter field from the raw
// operator and arguments. It is used for filters that do not map onto a single
// storage column.
type CustomFilter func(op Operator, args []string) (Predicate, error)

// Field describes one client field the query grammar may reference.
type Field struct {
	Name   string
	Column string
	Kind   fieldtype.Kind
	// Filter overrides the default comparison compilation.
	Filter CustomFilter
	// SortColumns overrides the storage columns used when sorting by this field.
	SortColumns []string
	// NotFilterable and NotSortable exclude the field from the grammar.
	NotFilterable bool
	NotSortable   bool
}

// Schema is the set of fields a filter or sort expression may reference for
// one entity. It is built once and read concurrently afterwards.
type Schema struct {
	fields map[string]Field
}

// NewSchema creates a schema from field descriptions. Column defaults to Name.
func NewSchema(fields ...Field) (*Schema, error) {
	s := &Schema{fields: make(map[string]Field, len(fields))}
	for _, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("schema field name is required")
		}
		if _, exists := s.fields[f.Name]; exists {
			return nil, fmt.Errorf("schema field %q declared twice", f.Name)
		}
		if f.Column == "" {
			f.Column = f.Name
		}
		if f.Kind == "" {
			f.Kind = fieldtype.String
		}
		if !f.Kind.Valid() {
			return nil, fmt.Errorf("schema field %q has unknown kind %q", f.Name, f.Kind)
		}
		s.fields[f.Name] = f
	}
	return s, nil
}

// Field returns the named field.
func (s *Schema) Field(name string) (Field, bool) {
	if s == nil {
		return Field{}, false
	}
	f, ok := s.fields[name]
	return f, ok
}

// Names returns the field names in lexical order.
func (s *Schema) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.fields))
	for name := range s.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
