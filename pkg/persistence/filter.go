package persistence

import (
	"github.com/nimburion/entitykit/pkg/persistence/query"
)

// PersistenceFilter is the row-level authorization policy for one entity.
type PersistenceFilter[P any] interface {
	// FilterPredicate contributes an extra query restriction; nil for none.
	FilterPredicate(pc *Context) query.Predicate
	IsVisible(persistent P, pc *Context) bool
	CanCreate(persistent P, pc *Context) bool
	CanUpdate(persistent P, pc *Context) bool
	CanDelete(persistent P, pc *Context) bool
}

// AllowAll is the permissive default PersistenceFilter.
type AllowAll[P any] struct{}

func (AllowAll[P]) FilterPredicate(*Context) query.Predicate { return nil }
func (AllowAll[P]) IsVisible(P, *Context) bool              { return true }
func (AllowAll[P]) CanCreate(P, *Context) bool              { return true }
func (AllowAll[P]) CanUpdate(P, *Context) bool              { return true }
func (AllowAll[P]) CanDelete(P, *Context) bool              { return true }

// OwnerFilter restricts rows to those owned by the acting user. Rows are
// visible and writable only when Owner returns pc.User; queries are limited
// with an equality predicate on Column.
type OwnerFilter[P any] struct {
	Column string
	Owner  func(P) string
}

func (f OwnerFilter[P]) FilterPredicate(pc *Context) query.Predicate {
	return query.Eq(f.Column, pc.User)
}

func (f OwnerFilter[P]) IsVisible(p P, pc *Context) bool { return f.Owner(p) == pc.User }

// CanCreate allows creating rows for the acting user only.
func (f OwnerFilter[P]) CanCreate(p P, pc *Context) bool { return f.Owner(p) == pc.User }
func (f OwnerFilter[P]) CanUpdate(p P, pc *Context) bool { return f.Owner(p) == pc.User }
func (f OwnerFilter[P]) CanDelete(p P, pc *Context) bool { return f.Owner(p) == pc.User }
