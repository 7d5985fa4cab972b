package migrate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/nimburion/entitykit/pkg/persistence/dao/sqldao"
)

const (
	pgEnsure  = `CREATE TABLE IF NOT EXISTS "entitykit_schema_migrations" ("version" BIGINT PRIMARY KEY, "applied_at" TIMESTAMPTZ NOT NULL DEFAULT NOW())`
	pgAsc     = `SELECT "version" FROM "entitykit_schema_migrations" ORDER BY "version" ASC`
	pgDesc    = `SELECT "version" FROM "entitykit_schema_migrations" ORDER BY "version" DESC`
	pgRecord  = `INSERT INTO "entitykit_schema_migrations" ("version") VALUES ($1)`
	pgForget  = `DELETE FROM "entitykit_schema_migrations" WHERE "version" = $1`
	createSQL = "CREATE TABLE {{t}} (id INT)"
	dropSQL   = "DROP TABLE {{t}}"
)

var testFiles = fstest.MapFS{
	"m/001_init.up.sql":     {Data: []byte(createSQL)},
	"m/001_init.down.sql":   {Data: []byte(dropSQL)},
	"m/002_extra.up.sql":    {Data: []byte("ALTER TABLE {{t}} ADD COLUMN name TEXT")},
	"m/README.md":           {Data: []byte("ignored")},
	"m/nested/003_x.up.sql": {Data: []byte("ignored")},
}

func newMockManager(t *testing.T, dialect sqldao.Dialect) (*SQLManager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	m, err := NewSQLManager(db, dialect, testFiles, "m", map[string]string{"t": "parts"})
	if err != nil {
		t.Fatal(err)
	}
	return m, mock
}

func TestNewSQLManager_Validation(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"nil db", func() error { _, err := NewSQLManager(nil, sqldao.Postgres, testFiles, "m", nil); return err }},
		{"unknown dialect", func() error {
			_, err := NewSQLManager(db, sqldao.Dialect{Name: "oracle"}, testFiles, "m", nil)
			return err
		}},
		{"nil fs", func() error { _, err := NewSQLManager(db, sqldao.Postgres, nil, "m", nil); return err }},
		{"empty dir", func() error { _, err := NewSQLManager(db, sqldao.Postgres, testFiles, " ", nil); return err }},
		{"missing dir", func() error { _, err := NewSQLManager(db, sqldao.Postgres, testFiles, "nope", nil); return err }},
		{"blank history table", func() error { _, err := NewHistoryManager(db, sqldao.Postgres, ""); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.fn() == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadMigrations(t *testing.T) {
	migrations, err := loadMigrations(testFiles, "m", map[string]string{"t": `"parts"`})
	if err != nil {
		t.Fatal(err)
	}
	if len(migrations) != 2 || migrations[0].Version != 1 || migrations[1].Name != "extra" {
		t.Fatalf("migrations = %+v", migrations)
	}
	if migrations[0].UpSQL != `CREATE TABLE "parts" (id INT)` {
		t.Errorf("UpSQL = %q", migrations[0].UpSQL)
	}

	_, err = loadMigrations(fstest.MapFS{"m/001_init.down.sql": {Data: []byte("DROP")}}, "m", nil)
	if err == nil {
		t.Error("expected error for missing up migration")
	}
}

func TestNewHistoryManager_Embedded(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	for _, dialect := range []sqldao.Dialect{sqldao.Postgres, sqldao.MySQL} {
		t.Run(dialect.Name, func(t *testing.T) {
			m, err := NewHistoryManager(db, dialect, "audit.entity_history")
			if err != nil {
				t.Fatal(err)
			}
			if len(m.Migrations()) == 0 {
				t.Fatal("no embedded migrations")
			}
			up := m.Migrations()[0].UpSQL
			if strings.Contains(up, "{{") {
				t.Errorf("unexpanded placeholder in %s", up)
			}
			if !strings.Contains(up, dialect.Quote("audit.entity_history")) || !strings.Contains(up, dialect.Quote("audit_entity_history_entity_idx")) {
				t.Errorf("table not substituted:\n%s", up)
			}
			for _, col := range []string{"entity_id", "occurred_at", "payload"} {
				if !strings.Contains(up, dialect.Quote(col)) {
					t.Errorf("column %s missing:\n%s", col, up)
				}
			}
		})
	}
}

func TestSQLManager_Up(t *testing.T) {
	m, mock := newMockManager(t, sqldao.Postgres)
	mock.ExpectExec(pgEnsure).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(pgAsc).WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(1)))
	mock.ExpectBegin()
	mock.ExpectExec("ALTER TABLE parts ADD COLUMN name TEXT").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(pgRecord).WithArgs(int64(2)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := m.Up(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("Up() = %d, %v", n, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSQLManager_UpRollsBackOnFailure(t *testing.T) {
	m, mock := newMockManager(t, sqldao.Postgres)
	boom := errors.New("syntax error")
	mock.ExpectExec(pgEnsure).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(pgAsc).WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE parts (id INT)").WillReturnError(boom)
	mock.ExpectRollback()

	n, err := m.Up(context.Background())
	if n != 0 || !errors.Is(err, boom) || !strings.Contains(err.Error(), "001_init") {
		t.Fatalf("Up() = %d, %v", n, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSQLManager_Down(t *testing.T) {
	m, mock := newMockManager(t, sqldao.Postgres)
	mock.ExpectExec(pgEnsure).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(pgDesc).WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(1)))
	mock.ExpectBegin()
	mock.ExpectExec("DROP TABLE parts").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(pgForget).WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := m.Down(context.Background(), 5)
	if err != nil || n != 1 {
		t.Fatalf("Down() = %d, %v", n, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSQLManager_DownWithoutScript(t *testing.T) {
	m, mock := newMockManager(t, sqldao.Postgres)
	mock.ExpectExec(pgEnsure).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(pgDesc).WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(2)).AddRow(int64(1)))

	if _, err := m.Down(context.Background(), 0); err == nil || !strings.Contains(err.Error(), "down migration missing") {
		t.Fatalf("Down() error = %v", err)
	}
}

func TestSQLManager_StatusMySQL(t *testing.T) {
	m, mock := newMockManager(t, sqldao.MySQL)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS `entitykit_schema_migrations` (`version` BIGINT PRIMARY KEY, `applied_at` TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6))").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT `version` FROM `entitykit_schema_migrations` ORDER BY `version` ASC").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(1)))

	status, err := m.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(status.AppliedVersions) != 1 || len(status.Pending) != 1 || status.Pending[0] != (PendingMigration{Version: 2, Name: "extra"}) {
		t.Errorf("status = %+v", status)
	}
}
