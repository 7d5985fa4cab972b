package persistence

// AuthorizationContext decides field-level access for one caller.
type AuthorizationContext interface {
	IsReadable(persistent any, field string) bool
	IsWritableOnCreate(client any, field string) bool
	IsWritableOnUpdate(client any, persistent any, field string) bool
}

// AllowAllAuthorization grants every field capability.
type AllowAllAuthorization struct{}

func (AllowAllAuthorization) IsReadable(any, string) bool              { return true }
func (AllowAllAuthorization) IsWritableOnCreate(any, string) bool      { return true }
func (AllowAllAuthorization) IsWritableOnUpdate(any, any, string) bool { return true }

// FieldAccess is the capability set of one field.
type FieldAccess struct {
	Read   bool
	Create bool
	Update bool
}

// Access values for common field policies.
var (
	FullAccess     = FieldAccess{Read: true, Create: true, Update: true}
	ReadOnlyAccess = FieldAccess{Read: true}
	WriteOnce      = FieldAccess{Read: true, Create: true}
	NoAccess       = FieldAccess{}
)

// FieldPolicy is a static AuthorizationContext: per-field access with a
// default for fields not listed.
type FieldPolicy struct {
	Default FieldAccess
	Fields  map[string]FieldAccess
}

func (p FieldPolicy) access(field string) FieldAccess {
	if a, ok := p.Fields[field]; ok {
		return a
	}
	return p.Default
}

func (p FieldPolicy) IsReadable(_ any, field string) bool {
	return p.access(field).Read
}

func (p FieldPolicy) IsWritableOnCreate(_ any, field string) bool {
	return p.access(field).Create
}

func (p FieldPolicy) IsWritableOnUpdate(_ any, _ any, field string) bool {
	return p.access(field).Update
}
