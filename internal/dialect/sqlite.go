package dialect

import (
	"fmt"
	"strings"
)

// SQLiteDialect targets modernc.org/sqlite
type SQLiteDialect struct{}

func (SQLiteDialect) Name() string       { return string(SQLite) }
func (SQLiteDialect) DriverName() string { return "sqlite" }

func (SQLiteDialect) Quote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

func (SQLiteDialect) DefineColumn(col ColumnSpec) string {
	var def string
	switch col.Type {
	case TypeInteger:
		def = "INTEGER"
	case TypeNumber:
		def = "NUMERIC"
	case TypeBoolean:
		def = "BOOLEAN"
	case TypeDate:
		def = "TIMESTAMP"
	default:
		def = "TEXT"
	}
	if col.PrimaryKey {
		def = "INTEGER PRIMARY KEY"
		if col.AutoIncrement {
			def += " AUTOINCREMENT"
		}
	}
	return def
}

func (d SQLiteDialect) CreateTable(table TableSpec) []string {
	return createTable(d, table)
}

// BuildURL renders a modernc DSN: the database file path with optional
// query parameters such as _pragma=busy_timeout(5000).
func (SQLiteDialect) BuildURL(spec ConnectionSpec) (string, error) {
	if spec.Database == "" {
		return "", fmt.Errorf("sqlite: database path is required")
	}
	dsn := spec.Database
	if q := encodeOptions(spec.Options); q != "" {
		dsn += "?" + q
	}
	return dsn, nil
}

func (SQLiteDialect) ParseURL(url string) (ConnectionSpec, error) {
	path, query, _ := strings.Cut(strings.TrimPrefix(url, "file:"), "?")
	if path == "" {
		return ConnectionSpec{}, fmt.Errorf("sqlite: empty database path in %q", url)
	}
	spec := ConnectionSpec{Type: string(SQLite), Database: path}
	if query != "" {
		spec.Options = decodeOptions(query)
	}
	return spec, nil
}
