package persistence

import (
	"context"

	"github.com/nimburion/entitykit/pkg/persistence/query"
)

// Identifiable is implemented by storage representations.
type Identifiable[ID comparable] interface {
	GetID() ID
}

// Query is a compiled, paginated query handed to a Dao.
type Query struct {
	Offset int
	Limit  int
	Order  []query.Order
	// Predicate is the combined restriction; nil matches every row.
	Predicate query.Predicate
}

// QueryPage is one page of storage objects plus the total match count
// ignoring pagination.
type QueryPage[P any] struct {
	Items      []P
	TotalCount int64
}

// Dao is the storage backend for one entity type.
type Dao[P any, ID comparable] interface {
	// Find returns the object with id; ok is false when absent.
	Find(ctx context.Context, id ID) (P, bool, error)
	// FindAll returns the objects matching ids in storage order. Absent ids are skipped.
	FindAll(ctx context.Context, ids []ID) ([]P, error)
	Create(ctx context.Context, persistent P) (P, error)
	Update(ctx context.Context, persistent P) (P, error)
	Delete(ctx context.Context, persistent P) error
	Query(ctx context.Context, q Query) (QueryPage[P], error)
	SaveHistory(ctx context.Context, entry HistoryEntry[ID]) error
	// GetHistory returns history entries for one entity id, oldest first.
	// start is a 0-based offset and limit <= 0 means no limit.
	GetHistory(ctx context.Context, entity string, id ID, start, limit int) ([]HistoryEntry[ID], error)
}
