package translation

import (
	"fmt"

	"github.com/nimburion/entitykit/pkg/apperror"
	"github.com/nimburion/entitykit/pkg/fieldtype"
	"github.com/nimburion/entitykit/pkg/persistence"
	"github.com/nimburion/entitykit/pkg/persistence/query"
)

// Config describes a Translator.
type Config[C any, P any, ID comparable] struct {
	Client     *TypeMapper[C]
	Persistent *TypeMapper[P]
	// Mappers replace the generated default mapper of the same client field,
	// or add a mapper for a field without a default.
	Mappers []FieldMapper[C, P]
	Hooks   []Hooks[C, P]
}

// Translator implements persistence.Translator over declared field tables.
// Its registry is built once by New and never modified.
type Translator[C any, P persistence.Identifiable[ID], ID comparable] struct {
	client     *TypeMapper[C]
	persistent *TypeMapper[P]
	order      []string
	mappers    map[string]FieldMapper[C, P]
	idMapper   IDFieldMapper[C, P, ID]
	hooks      []Hooks[C, P]
}

// New builds the field mapper registry: a default mapper for every client
// field declared with the same name and kind on the storage type (in client
// declaration order), then the custom mappers. A missing or wrongly typed
// "id" mapper is a configuration error.
func New[C any, P persistence.Identifiable[ID], ID comparable](cfg Config[C, P, ID]) (*Translator[C, P, ID], error) {
	if cfg.Client == nil || cfg.Persistent == nil {
		return nil, apperror.Configuration("translator requires client and persistent type mappers")
	}
	t := &Translator[C, P, ID]{
		client:     cfg.Client,
		persistent: cfg.Persistent,
		mappers:    make(map[string]FieldMapper[C, P]),
		hooks:      cfg.Hooks,
	}

	for _, cf := range cfg.Client.Fields() {
		pf, ok := cfg.Persistent.Field(cf.Name)
		if !ok || pf.Kind != cf.Kind {
			continue
		}
		switch {
		case cf.Name == "id":
			t.register(DefaultIDFieldMapper[C, P, ID]{})
		case cf.Kind == fieldtype.Time:
			t.register(MapField[C, P](cf.Name, pf.Name, nil).WithEvaluator(TimeChangeEvaluator{}))
		default:
			t.register(MapField[C, P](cf.Name, pf.Name, nil))
		}
	}
	for _, m := range cfg.Mappers {
		if m == nil || m.ClientFieldName() == "" {
			return nil, apperror.Configuration("custom field mapper without a client field name")
		}
		t.register(m)
	}

	idMapper, ok := t.mappers["id"]
	if !ok {
		return nil, apperror.Configuration("no mapper defined for the id field")
	}
	t.idMapper, ok = idMapper.(IDFieldMapper[C, P, ID])
	if !ok {
		return nil, apperror.Configuration("mapper for the id field must be an id field mapper, got %T", idMapper)
	}
	return t, nil
}

func (t *Translator[C, P, ID]) register(m FieldMapper[C, P]) {
	name := m.ClientFieldName()
	if _, exists := t.mappers[name]; !exists {
		t.order = append(t.order, name)
	}
	t.mappers[name] = m
}

// FieldNames returns the registered client field names.
func (t *Translator[C, P, ID]) FieldNames() []string {
	return append([]string(nil), t.order...)
}

// ConvertClient creates a storage object from the create-writable fields of client.
func (t *Translator[C, P, ID]) ConvertClient(client C, pc *persistence.Context) (P, error) {
	var zero P
	cw := t.client.Wrap(client)
	pw := t.persistent.Wrap(t.persistent.New())

	for _, h := range t.hooks {
		if h.BeforeConvert != nil {
			if err := h.BeforeConvert(cw, pw, pc); err != nil {
				return zero, err
			}
		}
	}

	auth := pc.AuthorizationContext()
	for _, name := range t.order {
		if !auth.IsWritableOnCreate(client, name) {
			continue
		}
		if _, err := t.mappers[name].ConvertToPersistent(cw, pw, pc); err != nil {
			return zero, fmt.Errorf("convert %s.%s: %w", pc.Entity, name, err)
		}
	}

	for _, h := range t.hooks {
		if h.AfterConvert != nil {
			if err := h.AfterConvert(cw, pw, pc); err != nil {
				return zero, err
			}
		}
	}
	return pw.Object(), nil
}

// CopyClient applies the update-writable fields of client onto persistent.
// Every field whose stored value changed is recorded on the context.
func (t *Translator[C, P, ID]) CopyClient(client C, persistent P, pc *persistence.Context) (bool, error) {
	cw := t.client.Wrap(client)
	pw := t.persistent.Wrap(persistent)
	id := persistent.GetID()
	dirty := false

	for _, h := range t.hooks {
		if h.BeforeCopy != nil {
			forced, err := h.BeforeCopy(cw, pw, pc)
			if err != nil {
				return false, err
			}
			dirty = dirty || forced
		}
	}

	auth := pc.AuthorizationContext()
	for _, name := range t.order {
		if !auth.IsWritableOnUpdate(client, persistent, name) {
			continue
		}
		changed, err := t.mappers[name].ConvertToPersistent(cw, pw, pc)
		if err != nil {
			return false, fmt.Errorf("copy %s.%s: %w", pc.Entity, name, err)
		}
		if changed {
			dirty = true
			pc.AddChangedField(pc.Entity, id, name)
		}
	}

	for _, h := range t.hooks {
		if h.AfterCopy != nil {
			forced, err := h.AfterCopy(cw, pw, pc, dirty)
			if err != nil {
				return false, err
			}
			dirty = dirty || forced
		}
	}
	return dirty, nil
}

// ConvertPersistent creates a client object from the requested, readable
// fields of persistent.
func (t *Translator[C, P, ID]) ConvertPersistent(persistent P, pc *persistence.Context) (C, error) {
	var zero C
	cw := t.client.Wrap(t.client.New())
	pw := t.persistent.Wrap(persistent)

	auth := pc.AuthorizationContext()
	for _, name := range t.order {
		if !pc.RequestedFields.Includes(name) || !auth.IsReadable(persistent, name) {
			continue
		}
		if err := t.mappers[name].ConvertToClient(pw, cw, pc); err != nil {
			return zero, fmt.Errorf("read %s.%s: %w", pc.Entity, name, err)
		}
	}

	for _, h := range t.hooks {
		if h.AfterRead != nil {
			if err := h.AfterRead(pw, cw, pc); err != nil {
				return zero, err
			}
		}
	}
	return cw.Object(), nil
}

// ConvertPersistentList converts items preserving order.
func (t *Translator[C, P, ID]) ConvertPersistentList(items []P, pc *persistence.Context) ([]C, error) {
	out := make([]C, 0, len(items))
	for _, item := range items {
		c, err := t.ConvertPersistent(item, pc)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// ConvertID extracts the identifier of a client object.
func (t *Translator[C, P, ID]) ConvertID(client C, pc *persistence.Context) (ID, error) {
	return t.idMapper.ConvertID(t.client.Wrap(client), pc)
}

// QueryFields describes every mapper backed by a single storage field.
// Fields of kind Any can be neither filtered nor sorted.
func (t *Translator[C, P, ID]) QueryFields() []query.Field {
	fields := make([]query.Field, 0, len(t.order))
	for _, name := range t.order {
		backed, ok := t.mappers[name].(persistentField)
		if !ok {
			continue
		}
		pf, ok := t.persistent.Field(backed.PersistentFieldName())
		if !ok {
			continue
		}
		f := query.Field{Name: name, Column: pf.Name, Kind: pf.Kind}
		if pf.Kind == fieldtype.Any {
			f.NotFilterable = true
			f.NotSortable = true
		}
		fields = append(fields, f)
	}
	return fields
}
