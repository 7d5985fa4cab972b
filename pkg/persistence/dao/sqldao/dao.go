// Package sqldao implements persistence.Dao on top of database/sql for
// PostgreSQL and MySQL. Rows are mapped through a translation.TypeMapper whose
// field names are the table's column names.
package sqldao

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nimburion/entitykit/pkg/fieldtype"
	"github.com/nimburion/entitykit/pkg/persistence"
	"github.com/nimburion/entitykit/pkg/persistence/query"
	"github.com/nimburion/entitykit/pkg/translation"
)

// SQLExecutor defines the interface for executing SQL queries.
// This can be a *sql.DB, *sql.Tx, or a store adapter that joins the
// transaction carried by the context.
type SQLExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

const idColumn = "id"

type settings struct {
	generatedID  bool
	uuidIDs      bool
	historyTable string
}

// Option configures a Dao.
type Option func(*settings)

// WithGeneratedID lets the database assign ids on insert. The id column is
// omitted from INSERT statements when the object carries a zero id.
func WithGeneratedID() Option {
	return func(s *settings) { s.generatedID = true }
}

// WithUUIDs assigns a random UUID to objects created with an empty string id.
func WithUUIDs() Option {
	return func(s *settings) { s.uuidIDs = true }
}

// WithHistoryTable enables SaveHistory and GetHistory against table.
func WithHistoryTable(table string) Option {
	return func(s *settings) { s.historyTable = table }
}

// Dao is a table-backed persistence.Dao.
type Dao[P persistence.Identifiable[ID], ID comparable] struct {
	executor SQLExecutor
	dialect  Dialect
	table    string
	fields   *translation.TypeMapper[P]
	columns  []translation.Field[P]
	settings settings
	history  *HistoryStore[ID]
}

// New creates a Dao over table. Every writable field of fields is a column;
// an "id" column is required.
func New[P persistence.Identifiable[ID], ID comparable](
	executor SQLExecutor,
	dialect Dialect,
	table string,
	fields *translation.TypeMapper[P],
	opts ...Option,
) (*Dao[P, ID], error) {
	if executor == nil {
		return nil, errors.New("executor is required")
	}
	if strings.TrimSpace(table) == "" {
		return nil, errors.New("table name is required")
	}
	if f, ok := fields.Field(idColumn); !ok || !f.Writable() {
		return nil, fmt.Errorf("table %s: storage type must declare a writable id column", table)
	}
	d := &Dao[P, ID]{executor: executor, dialect: dialect, table: table, fields: fields}
	for _, f := range fields.Fields() {
		if f.Writable() {
			d.columns = append(d.columns, f)
		}
	}
	for _, opt := range opts {
		opt(&d.settings)
	}
	if d.settings.historyTable != "" {
		d.history = NewHistoryStore[ID](executor, dialect, d.settings.historyTable)
	}
	return d, nil
}

func (d *Dao[P, ID]) selectList() string {
	names := make([]string, len(d.columns))
	for i, f := range d.columns {
		names[i] = d.dialect.Quote(f.Name)
	}
	return strings.Join(names, ", ")
}

func (d *Dao[P, ID]) selectFrom() *statement {
	return newStatement(d.dialect).write("SELECT ", d.selectList(), " FROM ", d.dialect.Quote(d.table))
}

func (d *Dao[P, ID]) scan(rows *sql.Rows) (P, error) {
	obj := d.fields.New()
	raw := make([]any, len(d.columns))
	dest := make([]any, len(d.columns))
	for i := range raw {
		dest[i] = &raw[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return obj, fmt.Errorf("failed to scan %s row: %w", d.table, err)
	}
	w := d.fields.Wrap(obj)
	for i, f := range d.columns {
		v, err := fromColumn(f.Kind, raw[i])
		if err != nil {
			return obj, fmt.Errorf("column %s: %w", f.Name, err)
		}
		if err := w.Set(f.Name, v); err != nil {
			return obj, err
		}
	}
	return obj, nil
}

func (d *Dao[P, ID]) queryRows(ctx context.Context, stmt *statement) ([]P, error) {
	rows, err := d.executor.QueryContext(ctx, stmt.String(), stmt.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", d.table, err)
	}
	defer rows.Close()

	var out []P
	for rows.Next() {
		obj, err := d.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", d.table, err)
	}
	return out, nil
}

// Find retrieves the row with id.
func (d *Dao[P, ID]) Find(ctx context.Context, id ID) (P, bool, error) {
	stmt := d.selectFrom()
	stmt.write(" WHERE ", d.dialect.Quote(idColumn), " = ", stmt.bind(id))
	rows, err := d.queryRows(ctx, stmt)
	if err != nil || len(rows) == 0 {
		var zero P
		return zero, false, err
	}
	return rows[0], true, nil
}

// FindAll retrieves the rows matching ids ordered by id.
func (d *Dao[P, ID]) FindAll(ctx context.Context, ids []ID) ([]P, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	stmt := d.selectFrom().write(" WHERE ")
	if err := stmt.where(query.In(idColumn, values...)); err != nil {
		return nil, err
	}
	stmt.write(" ORDER BY ", d.dialect.Quote(idColumn))
	return d.queryRows(ctx, stmt)
}

// Create inserts a row. Generated ids are written back to persistent.
func (d *Dao[P, ID]) Create(ctx context.Context, persistent P) (P, error) {
	w := d.fields.Wrap(persistent)
	var zero ID
	generate := persistent.GetID() == zero
	if generate && d.settings.uuidIDs {
		if err := w.Set(idColumn, uuid.NewString()); err != nil {
			return persistent, err
		}
		generate = false
	}
	generate = generate && d.settings.generatedID

	stmt := newStatement(d.dialect)
	var columns, placeholders []string
	for _, f := range d.columns {
		if generate && f.Name == idColumn {
			continue
		}
		v, err := w.Get(f.Name)
		if err != nil {
			return persistent, err
		}
		columns = append(columns, d.dialect.Quote(f.Name))
		placeholders = append(placeholders, stmt.bind(v))
	}
	stmt.write("INSERT INTO ", d.dialect.Quote(d.table),
		" (", strings.Join(columns, ", "), ") VALUES (", strings.Join(placeholders, ", "), ")")

	if !generate {
		if _, err := d.executor.ExecContext(ctx, stmt.String(), stmt.args...); err != nil {
			return persistent, fmt.Errorf("failed to insert into %s: %w", d.table, err)
		}
		return persistent, nil
	}

	var id any
	if d.dialect.Returning {
		stmt.write(" RETURNING ", d.dialect.Quote(idColumn))
		if err := d.executor.QueryRowContext(ctx, stmt.String(), stmt.args...).Scan(&id); err != nil {
			return persistent, fmt.Errorf("failed to insert into %s: %w", d.table, err)
		}
	} else {
		result, err := d.executor.ExecContext(ctx, stmt.String(), stmt.args...)
		if err != nil {
			return persistent, fmt.Errorf("failed to insert into %s: %w", d.table, err)
		}
		if id, err = result.LastInsertId(); err != nil {
			return persistent, fmt.Errorf("failed to read generated id: %w", err)
		}
	}
	f, _ := d.fields.Field(idColumn)
	id, err := fromColumn(f.Kind, id)
	if err != nil {
		return persistent, err
	}
	return persistent, w.Set(idColumn, id)
}

// Update rewrites every column of the row identified by persistent's id.
func (d *Dao[P, ID]) Update(ctx context.Context, persistent P) (P, error) {
	w := d.fields.Wrap(persistent)
	stmt := newStatement(d.dialect).write("UPDATE ", d.dialect.Quote(d.table), " SET ")
	first := true
	for _, f := range d.columns {
		if f.Name == idColumn {
			continue
		}
		v, err := w.Get(f.Name)
		if err != nil {
			return persistent, err
		}
		if !first {
			stmt.write(", ")
		}
		first = false
		stmt.write(d.dialect.Quote(f.Name), " = ", stmt.bind(v))
	}
	stmt.write(" WHERE ", d.dialect.Quote(idColumn), " = ", stmt.bind(persistent.GetID()))

	result, err := d.executor.ExecContext(ctx, stmt.String(), stmt.args...)
	if err != nil {
		return persistent, fmt.Errorf("failed to update %s: %w", d.table, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return persistent, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		// MySQL counts changed rows by default, so an update writing the
		// stored values back also reports zero.
		exists, err := d.exists(ctx, persistent.GetID())
		if err != nil {
			return persistent, err
		}
		if !exists {
			return persistent, sql.ErrNoRows
		}
	}
	return persistent, nil
}

func (d *Dao[P, ID]) exists(ctx context.Context, id ID) (bool, error) {
	stmt := newStatement(d.dialect).write("SELECT 1 FROM ", d.dialect.Quote(d.table), " WHERE ", d.dialect.Quote(idColumn), " = ")
	stmt.write(stmt.bind(id))
	var one int
	err := d.executor.QueryRowContext(ctx, stmt.String(), stmt.args...).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("failed to look up %s row: %w", d.table, err)
	}
	return true, nil
}

// Delete removes the row identified by persistent's id. Deleting an absent
// row is not an error.
func (d *Dao[P, ID]) Delete(ctx context.Context, persistent P) error {
	stmt := newStatement(d.dialect).write("DELETE FROM ", d.dialect.Quote(d.table), " WHERE ", d.dialect.Quote(idColumn), " = ")
	stmt.write(stmt.bind(persistent.GetID()))
	if _, err := d.executor.ExecContext(ctx, stmt.String(), stmt.args...); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", d.table, err)
	}
	return nil
}

// Query counts the matching rows and, when there are any, loads one page.
func (d *Dao[P, ID]) Query(ctx context.Context, q persistence.Query) (persistence.QueryPage[P], error) {
	where, args, err := Compile(d.dialect, q.Predicate)
	if err != nil {
		return persistence.QueryPage[P]{}, err
	}

	count := newStatement(d.dialect).write("SELECT COUNT(*) FROM ", d.dialect.Quote(d.table))
	if where != "" {
		count.write(" WHERE ", where)
	}
	var page persistence.QueryPage[P]
	if err := d.executor.QueryRowContext(ctx, count.String(), args...).Scan(&page.TotalCount); err != nil {
		return page, fmt.Errorf("failed to count %s: %w", d.table, err)
	}
	if page.TotalCount == 0 || int64(q.Offset) >= page.TotalCount {
		return page, nil
	}

	stmt := d.selectFrom()
	if where != "" {
		stmt.args = append(stmt.args, args...)
		stmt.write(" WHERE ", where)
	}
	if len(q.Order) > 0 {
		stmt.write(" ORDER BY ", OrderBy(d.dialect, q.Order))
	}
	stmt.paginate(q.Limit, q.Offset)
	page.Items, err = d.queryRows(ctx, stmt)
	return page, err
}

// fromColumn normalizes a scanned driver value to the field kind. Drivers
// return text columns, and sometimes numbers and timestamps, as []byte.
func fromColumn(kind fieldtype.Kind, v any) (any, error) {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	switch t := v.(type) {
	case string:
		if kind != fieldtype.String && kind != fieldtype.Any {
			return kind.Parse(t)
		}
	case int64:
		if kind == fieldtype.Bool {
			return t != 0, nil
		}
	}
	return v, nil
}
