package persistence

import (
	"github.com/nimburion/entitykit/pkg/apperror"
	"github.com/nimburion/entitykit/pkg/persistence/query"
)

// DefaultQueryLimit is applied when a query request leaves the limit unset.
const DefaultQueryLimit = 500

// EntityPlugin is the immutable configuration of one served entity.
type EntityPlugin[C any, P Identifiable[ID], ID comparable] struct {
	Name             string
	Translator       Translator[C, P, ID]
	Dao              Dao[P, ID]
	Filter           PersistenceFilter[P]
	Validator        Validator[C, P]
	CreateKey        CreateKeyProcessor[C, ID]
	PredicateBuilder query.PredicateBuilderFactory
	OrderBuilder     query.OrderBuilderFactory
	Schema           *query.Schema
	HistoryEnabled   bool
	HistoryFactory   HistoryEntryFactory[P, ID]
	DefaultLimit     int
}

// PluginDefaults carries registry-wide defaults applied by the builder.
type PluginDefaults struct {
	DefaultLimit   int
	HistoryEnabled bool
}

// EntityPluginBuilder assembles and validates an EntityPlugin.
type EntityPluginBuilder[C any, P Identifiable[ID], ID comparable] struct {
	plugin      EntityPlugin[C, P, ID]
	queryFields []query.Field
	historySet  bool
	defaults    PluginDefaults
}

// NewEntityPlugin starts a builder for the named entity.
func NewEntityPlugin[C any, P Identifiable[ID], ID comparable](name string) *EntityPluginBuilder[C, P, ID] {
	return &EntityPluginBuilder[C, P, ID]{
		plugin:   EntityPlugin[C, P, ID]{Name: name},
		defaults: PluginDefaults{DefaultLimit: DefaultQueryLimit},
	}
}

func (b *EntityPluginBuilder[C, P, ID]) WithDefaults(d PluginDefaults) *EntityPluginBuilder[C, P, ID] {
	b.defaults = d
	return b
}

func (b *EntityPluginBuilder[C, P, ID]) WithTranslator(t Translator[C, P, ID]) *EntityPluginBuilder[C, P, ID] {
	b.plugin.Translator = t
	return b
}

func (b *EntityPluginBuilder[C, P, ID]) WithDao(d Dao[P, ID]) *EntityPluginBuilder[C, P, ID] {
	b.plugin.Dao = d
	return b
}

func (b *EntityPluginBuilder[C, P, ID]) WithFilter(f PersistenceFilter[P]) *EntityPluginBuilder[C, P, ID] {
	b.plugin.Filter = f
	return b
}

func (b *EntityPluginBuilder[C, P, ID]) WithValidator(v Validator[C, P]) *EntityPluginBuilder[C, P, ID] {
	b.plugin.Validator = v
	return b
}

func (b *EntityPluginBuilder[C, P, ID]) WithCreateKey(k CreateKeyProcessor[C, ID]) *EntityPluginBuilder[C, P, ID] {
	b.plugin.CreateKey = k
	return b
}

func (b *EntityPluginBuilder[C, P, ID]) WithPredicateBuilder(f query.PredicateBuilderFactory) *EntityPluginBuilder[C, P, ID] {
	b.plugin.PredicateBuilder = f
	return b
}

func (b *EntityPluginBuilder[C, P, ID]) WithOrderBuilder(f query.OrderBuilderFactory) *EntityPluginBuilder[C, P, ID] {
	b.plugin.OrderBuilder = f
	return b
}

// WithQueryFields adds virtual fields or replaces the translator's query
// description of a field by name (custom filters, multi-column sorts).
func (b *EntityPluginBuilder[C, P, ID]) WithQueryFields(fields ...query.Field) *EntityPluginBuilder[C, P, ID] {
	b.queryFields = append(b.queryFields, fields...)
	return b
}

// WithHistory enables or disables history recording.
func (b *EntityPluginBuilder[C, P, ID]) WithHistory(enabled bool, factory HistoryEntryFactory[P, ID]) *EntityPluginBuilder[C, P, ID] {
	b.plugin.HistoryEnabled = enabled
	b.plugin.HistoryFactory = factory
	b.historySet = true
	return b
}

// WithJSONHistory enables history with JSON payload snapshots.
func (b *EntityPluginBuilder[C, P, ID]) WithJSONHistory() *EntityPluginBuilder[C, P, ID] {
	return b.WithHistory(true, JSONHistoryFactory[P, ID]{})
}

func (b *EntityPluginBuilder[C, P, ID]) WithDefaultLimit(limit int) *EntityPluginBuilder[C, P, ID] {
	b.plugin.DefaultLimit = limit
	return b
}

// Build validates the configuration. Every failure is a configuration error.
func (b *EntityPluginBuilder[C, P, ID]) Build() (*EntityPlugin[C, P, ID], error) {
	p := b.plugin
	if p.Name == "" {
		return nil, apperror.Configuration("entity name is required")
	}
	if p.Translator == nil {
		return nil, apperror.Configuration("entity %s: translator is required", p.Name)
	}
	if p.Dao == nil {
		return nil, apperror.Configuration("entity %s: dao is required", p.Name)
	}
	if !b.historySet {
		p.HistoryEnabled = b.defaults.HistoryEnabled
		if p.HistoryEnabled {
			p.HistoryFactory = JSONHistoryFactory[P, ID]{}
		}
	}
	if p.HistoryEnabled && p.HistoryFactory == nil {
		return nil, apperror.Configuration("entity %s: history is enabled but no history entry factory is set", p.Name)
	}
	if p.DefaultLimit <= 0 {
		p.DefaultLimit = b.defaults.DefaultLimit
	}
	if p.DefaultLimit <= 0 {
		p.DefaultLimit = DefaultQueryLimit
	}
	if p.Filter == nil {
		p.Filter = AllowAll[P]{}
	}
	if p.Validator == nil {
		p.Validator = NoopValidator[C, P]{}
	}
	if p.PredicateBuilder == nil {
		p.PredicateBuilder = query.RSQLPredicateBuilderFactory{}
	}

	fields := mergeQueryFields(p.Translator.QueryFields(), b.queryFields)
	schema, err := query.NewSchema(fields...)
	if err != nil {
		return nil, apperror.Configuration("entity %s: %v", p.Name, err)
	}
	p.Schema = schema

	if p.OrderBuilder == nil {
		idField, ok := schema.Field("id")
		if !ok {
			return nil, apperror.Configuration("entity %s: no id field is registered", p.Name)
		}
		p.OrderBuilder = query.DefaultOrderBuilderFactory{
			Default: []query.Order{{Field: idField.Name, Column: idField.Column}},
		}
	}
	return &p, nil
}

func mergeQueryFields(base, overrides []query.Field) []query.Field {
	out := append([]query.Field(nil), base...)
	for _, override := range overrides {
		replaced := false
		for i := range out {
			if out[i].Name == override.Name {
				out[i] = override
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, override)
		}
	}
	return out
}
