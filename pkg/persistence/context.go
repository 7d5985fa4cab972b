package persistence

import (
	"time"
)

// WriteContext records which write path an operation took.
type WriteContext string

// WriteContext values
const (
	WriteNone   WriteContext = ""
	WriteCreate WriteContext = "create"
	WriteUpdate WriteContext = "update"
)

// ChangedField identifies one field changed by an update.
type ChangedField struct {
	Entity string
	ID     any
	Field  string
}

// FieldSet is an ordered set of requested client field names.
// A nil *FieldSet means "all fields".
type FieldSet struct {
	order []string
	index map[string]struct{}
}

// NewFieldSet creates a field set preserving first-seen order.
func NewFieldSet(names ...string) *FieldSet {
	fs := &FieldSet{index: make(map[string]struct{}, len(names))}
	for _, name := range names {
		fs.Add(name)
	}
	return fs
}

// Add inserts name if absent.
func (f *FieldSet) Add(name string) {
	if f == nil {
		return
	}
	if _, exists := f.index[name]; exists {
		return
	}
	f.index[name] = struct{}{}
	f.order = append(f.order, name)
}

// Includes reports whether name is requested. Every field is requested from a nil set.
func (f *FieldSet) Includes(name string) bool {
	if f == nil {
		return true
	}
	_, ok := f.index[name]
	return ok
}

// Names returns the requested names in insertion order, or nil for "all".
func (f *FieldSet) Names() []string {
	if f == nil {
		return nil
	}
	return append([]string(nil), f.order...)
}

// Context is the per-operation persistence state. It is owned by the single
// operation that created it and must not be shared between goroutines.
type Context struct {
	// Entity is the entity (endpoint) name.
	Entity string
	// RequestedFields limits read conversion; nil means all fields.
	RequestedFields *FieldSet
	Authorization   AuthorizationContext
	WriteContext    WriteContext
	Locale          string
	// User is the actor recorded on audit fields and history entries.
	User string

	now     func() time.Time
	changes []ChangedField
	events  []EntityChangeEvent
}

// ContextOption configures a Context.
type ContextOption func(*Context)

// WithRequestedFields limits read conversion to the given field set.
func WithRequestedFields(fields *FieldSet) ContextOption {
	return func(c *Context) {
		c.RequestedFields = fields
	}
}

// WithAuthorization sets the field-level authorization context.
func WithAuthorization(auth AuthorizationContext) ContextOption {
	return func(c *Context) {
		c.Authorization = auth
	}
}

// WithUser sets the acting user.
func WithUser(user string) ContextOption {
	return func(c *Context) {
		c.User = user
	}
}

// WithLocale sets the request locale.
func WithLocale(locale string) ContextOption {
	return func(c *Context) {
		c.Locale = locale
	}
}

// WithClock overrides the time source used for audit stamps and history.
func WithClock(now func() time.Time) ContextOption {
	return func(c *Context) {
		c.now = now
	}
}

// NewContext creates a Context for one operation against entity.
// Authorization defaults to AllowAll.
func NewContext(entity string, opts ...ContextOption) *Context {
	c := &Context{
		Entity:        entity,
		Authorization: AllowAllAuthorization{},
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Now returns the current time from the context clock.
func (c *Context) Now() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}

// AuthorizationContext returns the authorization context, never nil.
func (c *Context) AuthorizationContext() AuthorizationContext {
	if c.Authorization == nil {
		return AllowAllAuthorization{}
	}
	return c.Authorization
}

// AddChangedField records a changed field.
func (c *Context) AddChangedField(entity string, id any, field string) {
	c.changes = append(c.changes, ChangedField{Entity: entity, ID: id, Field: field})
}

// ChangedFields returns the recorded changes.
func (c *Context) ChangedFields() []ChangedField {
	return append([]ChangedField(nil), c.changes...)
}

// changedFieldNames returns the changed field names recorded for one entity id.
func (c *Context) changedFieldNames(entity string, id any) []string {
	var names []string
	for _, change := range c.changes {
		if change.Entity == entity && change.ID == id {
			names = append(names, change.Field)
		}
	}
	return names
}

// AddEvent records an entity change event.
func (c *Context) AddEvent(event EntityChangeEvent) {
	c.events = append(c.events, event)
}

// Events returns the recorded entity change events.
func (c *Context) Events() []EntityChangeEvent {
	return append([]EntityChangeEvent(nil), c.events...)
}
