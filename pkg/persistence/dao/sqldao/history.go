package sqldao

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nimburion/entitykit/pkg/persistence"
)

// ErrHistoryDisabled is returned by the history methods of a Dao built
// without WithHistoryTable.
var ErrHistoryDisabled = errors.New("history table not configured")

var historyColumns = []string{"id", "entity", "entity_id", "action", "actor", "occurred_at", "payload"}

// HistoryStore reads and writes history entries in one table shared by
// every entity.
type HistoryStore[ID comparable] struct {
	executor SQLExecutor
	dialect  Dialect
	table    string
}

// NewHistoryStore creates a store over table.
func NewHistoryStore[ID comparable](executor SQLExecutor, dialect Dialect, table string) *HistoryStore[ID] {
	return &HistoryStore[ID]{executor: executor, dialect: dialect, table: table}
}

func (h *HistoryStore[ID]) columnList() string {
	quoted := make([]string, len(historyColumns))
	for i, c := range historyColumns {
		quoted[i] = h.dialect.Quote(c)
	}
	return strings.Join(quoted, ", ")
}

// SaveHistory appends one entry.
func (h *HistoryStore[ID]) SaveHistory(ctx context.Context, entry persistence.HistoryEntry[ID]) error {
	stmt := newStatement(h.dialect)
	values := []any{entry.ID, entry.Entity, entry.EntityID, string(entry.Action), entry.Actor, entry.Timestamp, []byte(entry.Payload)}
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = stmt.bind(v)
	}
	stmt.write("INSERT INTO ", h.dialect.Quote(h.table),
		" (", h.columnList(), ") VALUES (", strings.Join(placeholders, ", "), ")")
	if _, err := h.executor.ExecContext(ctx, stmt.String(), stmt.args...); err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}
	return nil
}

// GetHistory reads entries for one entity id, oldest first.
func (h *HistoryStore[ID]) GetHistory(ctx context.Context, entity string, id ID, start, limit int) ([]persistence.HistoryEntry[ID], error) {
	stmt := newStatement(h.dialect).write("SELECT ", h.columnList(), " FROM ", h.dialect.Quote(h.table))
	stmt.write(" WHERE ", h.dialect.Quote("entity"), " = ", stmt.bind(entity))
	stmt.write(" AND ", h.dialect.Quote("entity_id"), " = ", stmt.bind(id))
	stmt.write(" ORDER BY ", h.dialect.Quote("occurred_at"), " ASC, ", h.dialect.Quote("id"), " ASC")
	stmt.paginate(limit, start)

	rows, err := h.executor.QueryContext(ctx, stmt.String(), stmt.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []persistence.HistoryEntry[ID]
	for rows.Next() {
		var (
			e       persistence.HistoryEntry[ID]
			action  string
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.Entity, &e.EntityID, &action, &e.Actor, &e.Timestamp, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		e.Action = persistence.HistoryAction(action)
		if len(payload) > 0 {
			e.Payload = json.RawMessage(payload)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history rows: %w", err)
	}
	return out, nil
}

// SaveHistory appends one entry to the history table.
func (d *Dao[P, ID]) SaveHistory(ctx context.Context, entry persistence.HistoryEntry[ID]) error {
	if d.history == nil {
		return ErrHistoryDisabled
	}
	return d.history.SaveHistory(ctx, entry)
}

// GetHistory reads entries for one entity id, oldest first.
func (d *Dao[P, ID]) GetHistory(ctx context.Context, entity string, id ID, start, limit int) ([]persistence.HistoryEntry[ID], error) {
	if d.history == nil {
		return nil, ErrHistoryDisabled
	}
	return d.history.GetHistory(ctx, entity, id, start, limit)
}
