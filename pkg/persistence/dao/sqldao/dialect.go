package sqldao

import (
	"strconv"
	"strings"
)

// Dialect captures the SQL differences between the supported databases.
type Dialect struct {
	Name string
	// Placeholder renders the n-th bind parameter, starting at 1.
	Placeholder func(n int) string
	// QuoteChar delimits identifiers.
	QuoteChar byte
	// Returning reports whether INSERT ... RETURNING is available for
	// reading back generated ids.
	Returning bool
	// OffsetWithoutLimit is the LIMIT value to emit when only an offset is
	// requested, for databases that reject a bare OFFSET.
	OffsetWithoutLimit string
}

// Postgres is the PostgreSQL dialect.
var Postgres = Dialect{
	Name:        "postgres",
	Placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	QuoteChar:   '"',
	Returning:   true,
}

// MySQL is the MySQL dialect.
var MySQL = Dialect{
	Name:               "mysql",
	Placeholder:        func(int) string { return "?" },
	QuoteChar:          '`',
	OffsetWithoutLimit: "18446744073709551615",
}

// DialectFor returns the dialect registered under name.
func DialectFor(name string) (Dialect, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql":
		return Postgres, true
	case "mysql":
		return MySQL, true
	}
	return Dialect{}, false
}

// Quote delimits an identifier. Dotted names are quoted part by part so that
// schema-qualified tables work.
func (d Dialect) Quote(ident string) string {
	q := string(d.QuoteChar)
	parts := strings.Split(ident, ".")
	for i, part := range parts {
		parts[i] = q + strings.ReplaceAll(part, q, q+q) + q
	}
	return strings.Join(parts, ".")
}
