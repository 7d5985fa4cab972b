package translation

import (
	"fmt"
	"reflect"

	"github.com/nimburion/entitykit/pkg/persistence"
)

// FieldMapper converts one client field in both directions.
type FieldMapper[C any, P any] interface {
	ClientFieldName() string
	// ConvertToPersistent writes the client value into the storage object and
	// reports whether the stored value actually changed.
	ConvertToPersistent(client *ObjectWrapper[C], persistent *ObjectWrapper[P], pc *persistence.Context) (bool, error)
	ConvertToClient(persistent *ObjectWrapper[P], client *ObjectWrapper[C], pc *persistence.Context) error
}

// IDFieldMapper is the field mapper registered under "id".
type IDFieldMapper[C any, P any, ID comparable] interface {
	FieldMapper[C, P]
	ConvertID(client *ObjectWrapper[C], pc *persistence.Context) (ID, error)
}

// persistentField is implemented by mappers backed by one storage field; the
// translator uses it to describe query fields.
type persistentField interface {
	PersistentFieldName() string
}

// DefaultFieldMapper copies a value between a client field and a storage
// field through a ValueConverter. Nil client values are not written.
type DefaultFieldMapper[C any, P any] struct {
	ClientField     string
	PersistentField string
	Converter       ValueConverter
	Evaluator       PropertyChangeEvaluator
}

// MapField declares a (clientField, storageField, converter) mapping. A nil
// converter is the identity.
func MapField[C any, P any](clientField, persistentField string, converter ValueConverter) *DefaultFieldMapper[C, P] {
	if converter == nil {
		converter = IdentityConverter{}
	}
	return &DefaultFieldMapper[C, P]{
		ClientField:     clientField,
		PersistentField: persistentField,
		Converter:       converter,
		Evaluator:       DefaultChangeEvaluator{},
	}
}

// WithEvaluator replaces the change evaluator.
func (m *DefaultFieldMapper[C, P]) WithEvaluator(e PropertyChangeEvaluator) *DefaultFieldMapper[C, P] {
	m.Evaluator = e
	return m
}

func (m *DefaultFieldMapper[C, P]) ClientFieldName() string     { return m.ClientField }
func (m *DefaultFieldMapper[C, P]) PersistentFieldName() string { return m.PersistentField }

func (m *DefaultFieldMapper[C, P]) ConvertToPersistent(client *ObjectWrapper[C], persistent *ObjectWrapper[P], pc *persistence.Context) (bool, error) {
	value, err := client.Get(m.ClientField)
	if err != nil {
		return false, err
	}
	if isNil(value) {
		return false, nil
	}
	converted, err := m.converter().ToPersistent(value, pc)
	if err != nil {
		return false, fmt.Errorf("field %s: %w", m.ClientField, err)
	}
	current, err := persistent.Get(m.PersistentField)
	if err != nil {
		return false, err
	}
	if !m.evaluator().HasChanged(current, converted) {
		return false, nil
	}
	if err := persistent.Set(m.PersistentField, converted); err != nil {
		return false, err
	}
	return true, nil
}

func (m *DefaultFieldMapper[C, P]) ConvertToClient(persistent *ObjectWrapper[P], client *ObjectWrapper[C], pc *persistence.Context) error {
	value, err := persistent.Get(m.PersistentField)
	if err != nil {
		return err
	}
	converted, err := m.converter().ToClient(value, pc)
	if err != nil {
		return fmt.Errorf("field %s: %w", m.ClientField, err)
	}
	return client.Set(m.ClientField, converted)
}

func (m *DefaultFieldMapper[C, P]) converter() ValueConverter {
	if m.Converter == nil {
		return IdentityConverter{}
	}
	return m.Converter
}

func (m *DefaultFieldMapper[C, P]) evaluator() PropertyChangeEvaluator {
	if m.Evaluator == nil {
		return DefaultChangeEvaluator{}
	}
	return m.Evaluator
}

// ReadOnlyFieldMapper is readable by clients but never written from them.
type ReadOnlyFieldMapper[C any, P any] struct {
	*DefaultFieldMapper[C, P]
}

// ReadOnly declares a read-only (clientField, storageField, converter) mapping.
func ReadOnly[C any, P any](clientField, persistentField string, converter ValueConverter) ReadOnlyFieldMapper[C, P] {
	return ReadOnlyFieldMapper[C, P]{DefaultFieldMapper: MapField[C, P](clientField, persistentField, converter)}
}

// ConvertToPersistent is a no-op.
func (ReadOnlyFieldMapper[C, P]) ConvertToPersistent(*ObjectWrapper[C], *ObjectWrapper[P], *persistence.Context) (bool, error) {
	return false, nil
}

// DefaultIDFieldMapper maps the "id" field. A zero client id is never
// written, so payloads without an id leave the stored id alone.
type DefaultIDFieldMapper[C any, P any, ID comparable] struct{}

func (DefaultIDFieldMapper[C, P, ID]) ClientFieldName() string     { return "id" }
func (DefaultIDFieldMapper[C, P, ID]) PersistentFieldName() string { return "id" }

func (m DefaultIDFieldMapper[C, P, ID]) ConvertID(client *ObjectWrapper[C], _ *persistence.Context) (ID, error) {
	value, err := client.Get("id")
	if err != nil {
		var zero ID
		return zero, err
	}
	return assign[ID](value)
}

func (m DefaultIDFieldMapper[C, P, ID]) ConvertToPersistent(client *ObjectWrapper[C], persistent *ObjectWrapper[P], pc *persistence.Context) (bool, error) {
	id, err := m.ConvertID(client, pc)
	if err != nil {
		return false, err
	}
	var zero ID
	if id == zero {
		return false, nil
	}
	current, err := persistent.Get("id")
	if err != nil {
		return false, err
	}
	if !(DefaultChangeEvaluator{}).HasChanged(current, id) {
		return false, nil
	}
	if err := persistent.Set("id", id); err != nil {
		return false, err
	}
	return true, nil
}

func (DefaultIDFieldMapper[C, P, ID]) ConvertToClient(persistent *ObjectWrapper[P], client *ObjectWrapper[C], _ *persistence.Context) error {
	value, err := persistent.Get("id")
	if err != nil {
		return err
	}
	return client.Set("id", value)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
