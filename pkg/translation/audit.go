package translation

import (
	"github.com/nimburion/entitykit/pkg/persistence"
)

// AuditFields names the audit fields of one representation. Empty names and
// names the representation does not declare are skipped.
type AuditFields struct {
	Created    string
	CreatedBy  string
	Modified   string
	ModifiedBy string
}

// DefaultAuditFields returns the conventional audit field names.
func DefaultAuditFields() AuditFields {
	return AuditFields{
		Created:    "created",
		CreatedBy:  "createdBy",
		Modified:   "modified",
		ModifiedBy: "modifiedBy",
	}
}

// AuditHooks stamps audit fields on the storage object: all four on create,
// the modified pair after a dirty copy. Client-supplied audit values are
// cleared before a copy so callers cannot overwrite them.
func AuditHooks[C any, P any](client, persistent AuditFields) Hooks[C, P] {
	return Hooks[C, P]{
		AfterConvert: func(_ *ObjectWrapper[C], p *ObjectWrapper[P], pc *persistence.Context) error {
			now := pc.Now()
			if err := setIfPresent(p, persistent.Created, now); err != nil {
				return err
			}
			if err := setIfPresent(p, persistent.CreatedBy, pc.User); err != nil {
				return err
			}
			return stampModified(p, persistent, pc)
		},
		BeforeCopy: func(c *ObjectWrapper[C], _ *ObjectWrapper[P], _ *persistence.Context) (bool, error) {
			for _, name := range []string{client.Created, client.CreatedBy, client.Modified, client.ModifiedBy} {
				if err := setIfPresent(c, name, nil); err != nil {
					return false, err
				}
			}
			return false, nil
		},
		AfterCopy: func(_ *ObjectWrapper[C], p *ObjectWrapper[P], pc *persistence.Context, dirty bool) (bool, error) {
			if !dirty {
				return false, nil
			}
			return false, stampModified(p, persistent, pc)
		},
	}
}

func stampModified[P any](p *ObjectWrapper[P], fields AuditFields, pc *persistence.Context) error {
	if err := setIfPresent(p, fields.Modified, pc.Now()); err != nil {
		return err
	}
	return setIfPresent(p, fields.ModifiedBy, pc.User)
}

func setIfPresent[T any](w *ObjectWrapper[T], name string, value any) error {
	if name == "" || !w.Has(name) {
		return nil
	}
	return w.Set(name, value)
}
