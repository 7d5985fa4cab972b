package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"

	"github.com/nimburion/entitykit/pkg/persistence/dao/sqldao"
)

// MetadataTable records applied migration versions.
const MetadataTable = "entitykit_schema_migrations"

// appliedAtType is the timestamp column type of the metadata table per dialect.
var appliedAtType = map[string]string{
	sqldao.Postgres.Name: "TIMESTAMPTZ NOT NULL DEFAULT NOW()",
	sqldao.MySQL.Name:    "TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6)",
}

// SQLManager applies and reverts migrations, one transaction per migration.
type SQLManager struct {
	db         *sql.DB
	dialect    sqldao.Dialect
	migrations []Migration
}

// NewHistoryManager returns the manager of the built-in history table
// migrations for dialect, creating the table named table.
func NewHistoryManager(db *sql.DB, dialect sqldao.Dialect, table string) (*SQLManager, error) {
	if strings.TrimSpace(table) == "" {
		return nil, fmt.Errorf("history table name is required")
	}
	vars := map[string]string{
		"history_table": dialect.Quote(table),
		"history_index": dialect.Quote(strings.ReplaceAll(table, ".", "_") + "_entity_idx"),
	}
	return NewSQLManager(db, dialect, embedded, "migrations/"+dialect.Name, vars)
}

// NewSQLManager loads the migrations in dir of files, expanding {{name}}
// placeholders with vars.
func NewSQLManager(db *sql.DB, dialect sqldao.Dialect, files fs.FS, dir string, vars map[string]string) (*SQLManager, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle is required")
	}
	if _, ok := appliedAtType[dialect.Name]; !ok {
		return nil, fmt.Errorf("unsupported dialect %q", dialect.Name)
	}
	if files == nil {
		return nil, fmt.Errorf("migration files filesystem is required")
	}
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("migration directory is required")
	}
	migrations, err := loadMigrations(files, dir, vars)
	if err != nil {
		return nil, err
	}
	return &SQLManager{db: db, dialect: dialect, migrations: migrations}, nil
}

// Migrations returns the loaded migrations in version order.
func (m *SQLManager) Migrations() []Migration {
	return m.migrations
}

func (m *SQLManager) metadataTable() string {
	return m.dialect.Quote(MetadataTable)
}

// Up applies all pending migrations in order and returns how many ran.
func (m *SQLManager) Up(ctx context.Context) (int, error) {
	if err := m.ensureMetadataTable(ctx); err != nil {
		return 0, err
	}
	applied, err := m.appliedVersions(ctx, "ASC")
	if err != nil {
		return 0, err
	}
	done := make(map[int64]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	record := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		m.metadataTable(), m.dialect.Quote("version"), m.dialect.Placeholder(1))
	count := 0
	for _, migration := range m.migrations {
		if done[migration.Version] {
			continue
		}
		if err := m.inTx(ctx, migration.UpSQL, record, migration.Version); err != nil {
			return count, fmt.Errorf("apply migration %d_%s: %w", migration.Version, migration.Name, err)
		}
		count++
	}
	return count, nil
}

// Down reverts the latest steps applied migrations (at least one).
func (m *SQLManager) Down(ctx context.Context, steps int) (int, error) {
	if steps <= 0 {
		steps = 1
	}
	if err := m.ensureMetadataTable(ctx); err != nil {
		return 0, err
	}
	applied, err := m.appliedVersions(ctx, "DESC")
	if err != nil {
		return 0, err
	}
	if steps > len(applied) {
		steps = len(applied)
	}

	forget := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		m.metadataTable(), m.dialect.Quote("version"), m.dialect.Placeholder(1))
	count := 0
	for _, version := range applied[:steps] {
		migration, ok := m.migrationByVersion(version)
		if !ok {
			return count, fmt.Errorf("migration definition not found for applied version %d", version)
		}
		if strings.TrimSpace(migration.DownSQL) == "" {
			return count, fmt.Errorf("down migration missing for version %d", version)
		}
		if err := m.inTx(ctx, migration.DownSQL, forget, version); err != nil {
			return count, fmt.Errorf("rollback migration %d_%s: %w", migration.Version, migration.Name, err)
		}
		count++
	}
	return count, nil
}

// Status reports applied versions and pending migrations.
func (m *SQLManager) Status(ctx context.Context) (*Status, error) {
	if err := m.ensureMetadataTable(ctx); err != nil {
		return nil, err
	}
	applied, err := m.appliedVersions(ctx, "ASC")
	if err != nil {
		return nil, err
	}
	done := make(map[int64]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}
	status := &Status{AppliedVersions: applied, Pending: []PendingMigration{}}
	for _, migration := range m.migrations {
		if !done[migration.Version] {
			status.Pending = append(status.Pending, PendingMigration{Version: migration.Version, Name: migration.Name})
		}
	}
	return status, nil
}

// inTx runs script and the bookkeeping statement in one transaction.
func (m *SQLManager) inTx(ctx context.Context, script, bookkeeping string, version int64) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, script); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, version); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (m *SQLManager) ensureMetadataTable(ctx context.Context) error {
	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s BIGINT PRIMARY KEY, %s %s)",
		m.metadataTable(), m.dialect.Quote("version"), m.dialect.Quote("applied_at"), appliedAtType[m.dialect.Name])
	if _, err := m.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure %s table: %w", MetadataTable, err)
	}
	return nil
}

func (m *SQLManager) appliedVersions(ctx context.Context, direction string) ([]int64, error) {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s %s",
		m.dialect.Quote("version"), m.metadataTable(), m.dialect.Quote("version"), direction)
	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load applied migrations: %w", err)
	}
	defer rows.Close()

	versions := []int64{}
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan applied migration version: %w", err)
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return versions, nil
}

func (m *SQLManager) migrationByVersion(version int64) (Migration, bool) {
	for _, migration := range m.migrations {
		if migration.Version == version {
			return migration, true
		}
	}
	return Migration{}, false
}
