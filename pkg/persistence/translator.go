package persistence

import (
	"github.com/nimburion/entitykit/pkg/persistence/query"
)

// Translator converts between the client (C) and storage (P) representation
// of one entity under field-level authorization. Implementations are built
// once at registration and are safe for concurrent use; all mutable state
// lives in the Context.
type Translator[C any, P any, ID comparable] interface {
	// ConvertClient creates a new storage object from client.
	ConvertClient(client C, pc *Context) (P, error)
	// CopyClient applies client onto an existing storage object and reports
	// whether any stored value changed.
	CopyClient(client C, persistent P, pc *Context) (bool, error)
	// ConvertPersistent creates a new client object from persistent.
	ConvertPersistent(persistent P, pc *Context) (C, error)
	ConvertPersistentList(items []P, pc *Context) ([]C, error)
	ConvertID(client C, pc *Context) (ID, error)
	// QueryFields describes the client fields addressable by filter and sort
	// expressions together with their storage columns.
	QueryFields() []query.Field
}
