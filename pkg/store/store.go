// Package store opens the configured storage backend and exposes the pieces
// shared by every entity served from it.
package store

import (
	"context"
	"fmt"

	"github.com/nimburion/entitykit/pkg/persistence"
	"github.com/nimburion/entitykit/pkg/persistence/dao/mongodao"
	"github.com/nimburion/entitykit/pkg/persistence/dao/sqldao"
	"github.com/nimburion/entitykit/pkg/store/mongodb"
	"github.com/nimburion/entitykit/pkg/store/sqlstore"
)

// Adapter is the minimal lifecycle and health contract for storage adapters.
type Adapter interface {
	HealthCheck(ctx context.Context) error
	Close() error
}

var (
	_ sqldao.SQLExecutor = (*sqlstore.Adapter)(nil)
	_ mongodao.Executor  = (*mongodb.Adapter)(nil)
)

// HistoryStore is the history half of persistence.Dao, shared by every
// entity of one backend.
type HistoryStore[ID comparable] interface {
	SaveHistory(ctx context.Context, entry persistence.HistoryEntry[ID]) error
	GetHistory(ctx context.Context, entity string, id ID, start, limit int) ([]persistence.HistoryEntry[ID], error)
}

// NewHistoryStore returns the history store of adapter, kept in the table or
// collection named name.
func NewHistoryStore[ID comparable](adapter Adapter, name string) (HistoryStore[ID], error) {
	switch a := adapter.(type) {
	case *sqlstore.Adapter:
		dialect, ok := sqldao.DialectFor(a.Driver())
		if !ok {
			return nil, fmt.Errorf("no SQL dialect for driver %q", a.Driver())
		}
		return sqldao.NewHistoryStore[ID](a, dialect, name), nil
	case *mongodb.Adapter:
		return mongodao.NewHistoryStore[ID](a, name), nil
	default:
		return nil, fmt.Errorf("history is not supported by storage adapter %T", adapter)
	}
}
