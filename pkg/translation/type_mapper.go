// Package translation converts entities between their client and storage
// representations field by field, under field-level authorization and with
// dirty tracking on update.
//
// Field access is declared rather than discovered: each representation
// registers its fields once in a TypeMapper, and a Translator builds its
// FieldMapper registry from the two mappers plus any custom mappers.
package translation

import (
	"fmt"
	"reflect"

	"github.com/nimburion/entitykit/pkg/fieldtype"
)

// Field is one declared field of T.
type Field[T any] struct {
	Name string
	Kind fieldtype.Kind
	get  func(T) any
	set  func(T, any) error
}

// NewField declares a field of T with a typed getter and setter. A nil setter
// declares a read-only field.
func NewField[T any, V any](name string, kind fieldtype.Kind, get func(T) V, set func(T, V)) Field[T] {
	f := Field[T]{
		Name: name,
		Kind: kind,
		get:  func(obj T) any { return get(obj) },
	}
	if set != nil {
		f.set = func(obj T, value any) error {
			v, err := assign[V](value)
			if err != nil {
				return fmt.Errorf("field %s: %w", name, err)
			}
			set(obj, v)
			return nil
		}
	}
	return f
}

// Writable reports whether the field has a setter.
func (f Field[T]) Writable() bool {
	return f.set != nil
}

// assign converts value to V. nil becomes the zero value, pointers are
// dereferenced or allocated as needed, and numeric values are converted
// between widths.
func assign[V any](value any) (V, error) {
	var zero V
	if value == nil {
		return zero, nil
	}
	if v, ok := value.(V); ok {
		return v, nil
	}

	target := reflect.TypeOf((*V)(nil)).Elem()
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer && rv.Type() != target {
		if rv.IsNil() {
			return zero, nil
		}
		rv = rv.Elem()
	}
	if rv.Type() == target {
		return rv.Interface().(V), nil
	}
	if target.Kind() == reflect.Pointer {
		if converted, ok := convertValue(rv, target.Elem()); ok {
			ptr := reflect.New(target.Elem())
			ptr.Elem().Set(converted)
			return ptr.Interface().(V), nil
		}
	} else if converted, ok := convertValue(rv, target); ok {
		return converted.Interface().(V), nil
	}
	return zero, fmt.Errorf("cannot assign %T to %s", value, target)
}

func convertValue(rv reflect.Value, target reflect.Type) (reflect.Value, bool) {
	if rv.Type() == target {
		return rv, true
	}
	if !rv.Type().ConvertibleTo(target) {
		return reflect.Value{}, false
	}
	// integer to string conversion yields a rune, not a decimal
	if target.Kind() == reflect.String && isInteger(rv.Kind()) {
		return reflect.Value{}, false
	}
	return rv.Convert(target), true
}

// TypeMapper is the field table of one representation type. It is built
// once and read concurrently afterwards.
type TypeMapper[T any] struct {
	newFn  func() T
	fields []Field[T]
	index  map[string]int
}

// NewTypeMapper builds a field table. newFn creates empty instances.
func NewTypeMapper[T any](newFn func() T, fields ...Field[T]) (*TypeMapper[T], error) {
	if newFn == nil {
		return nil, fmt.Errorf("constructor is required")
	}
	m := &TypeMapper[T]{newFn: newFn, index: make(map[string]int, len(fields))}
	for _, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("field name is required")
		}
		if _, exists := m.index[f.Name]; exists {
			return nil, fmt.Errorf("duplicate field %q", f.Name)
		}
		if !f.Kind.Valid() {
			return nil, fmt.Errorf("field %q: unknown kind %q", f.Name, f.Kind)
		}
		m.index[f.Name] = len(m.fields)
		m.fields = append(m.fields, f)
	}
	return m, nil
}

// MustTypeMapper is NewTypeMapper that panics on error, for package-level
// declarations.
func MustTypeMapper[T any](newFn func() T, fields ...Field[T]) *TypeMapper[T] {
	m, err := NewTypeMapper(newFn, fields...)
	if err != nil {
		panic(err)
	}
	return m
}

// New creates an empty instance.
func (m *TypeMapper[T]) New() T {
	return m.newFn()
}

// Field looks up a field by name.
func (m *TypeMapper[T]) Field(name string) (Field[T], bool) {
	i, ok := m.index[name]
	if !ok {
		return Field[T]{}, false
	}
	return m.fields[i], true
}

// Fields returns the fields in declaration order.
func (m *TypeMapper[T]) Fields() []Field[T] {
	return append([]Field[T](nil), m.fields...)
}

// Wrap binds obj to the field table.
func (m *TypeMapper[T]) Wrap(obj T) *ObjectWrapper[T] {
	return &ObjectWrapper[T]{mapper: m, obj: obj}
}

// ObjectWrapper gives name-based access to the fields of one object.
type ObjectWrapper[T any] struct {
	mapper *TypeMapper[T]
	obj    T
}

// Object returns the wrapped object.
func (w *ObjectWrapper[T]) Object() T {
	return w.obj
}

// Has reports whether the field exists.
func (w *ObjectWrapper[T]) Has(name string) bool {
	_, ok := w.mapper.index[name]
	return ok
}

// Get returns the current value of a field.
func (w *ObjectWrapper[T]) Get(name string) (any, error) {
	f, ok := w.mapper.Field(name)
	if !ok {
		return nil, fmt.Errorf("unknown field %q", name)
	}
	return f.get(w.obj), nil
}

// Set assigns a field.
func (w *ObjectWrapper[T]) Set(name string, value any) error {
	f, ok := w.mapper.Field(name)
	if !ok {
		return fmt.Errorf("unknown field %q", name)
	}
	if f.set == nil {
		return fmt.Errorf("field %q is read-only", name)
	}
	return f.set(w.obj, value)
}

// Value returns a field value for query evaluation; ok is false for unknown fields.
func (w *ObjectWrapper[T]) Value(name string) (any, bool) {
	f, ok := w.mapper.Field(name)
	if !ok {
		return nil, false
	}
	return f.get(w.obj), true
}

func isInteger(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return false
}
