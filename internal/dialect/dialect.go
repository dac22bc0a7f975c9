// Package dialect turns abstract table and column definitions into vendor
// DDL and builds or parses connection URLs.
package dialect

import (
	"fmt"
	"sort"
	"strings"
)

// ValueType is the logical type of a column
type ValueType int

const (
	TypeString ValueType = iota
	TypeInteger
	TypeNumber
	TypeBoolean
	TypeDate
)

// ColumnSpec describes one column independent of the vendor
type ColumnSpec struct {
	Name      string
	Type      ValueType
	Length    int
	Precision int
	// PrimaryKey marks the technical key of the table
	PrimaryKey    bool
	AutoIncrement bool
}

// IndexSpec describes a secondary index
type IndexSpec struct {
	Name    string
	Columns []string
	Unique  bool
}

// TableSpec describes a table and its indexes
type TableSpec struct {
	Name    string
	Columns []ColumnSpec
	Indexes []IndexSpec
}

// ConnectionSpec is the parsed form of a connection URL
type ConnectionSpec struct {
	Type     string
	Host     string
	Port     string
	Database string
	Username string
	Password string
	Options  map[string]string
}

// Dialect is the vendor-specific SQL text generator
type Dialect interface {
	Name() string
	DriverName() string
	Quote(identifier string) string
	DefineColumn(col ColumnSpec) string
	CreateTable(table TableSpec) []string
	BuildURL(spec ConnectionSpec) (string, error)
	ParseURL(url string) (ConnectionSpec, error)
}

// DialectType names a supported vendor
type DialectType string

const (
	SQLite   DialectType = "sqlite"
	Postgres DialectType = "postgres"
	MySQL    DialectType = "mysql"
)

// NewDialect returns the dialect for a vendor name
func NewDialect(dbType string) (Dialect, error) {
	switch DialectType(strings.ToLower(strings.TrimSpace(dbType))) {
	case SQLite, "sqlite3", "":
		return SQLiteDialect{}, nil
	case Postgres, "postgresql":
		return PostgresDialect{}, nil
	case MySQL, "mariadb":
		return MySQLDialect{}, nil
	default:
		return nil, fmt.Errorf("unknown dialect: %s", dbType)
	}
}

// createTable renders CREATE TABLE plus CREATE INDEX statements with the
// column definitions of d.
func createTable(d Dialect, table TableSpec) []string {
	cols := make([]string, 0, len(table.Columns))
	for _, c := range table.Columns {
		cols = append(cols, d.Quote(c.Name)+" "+d.DefineColumn(c))
	}
	stmts := []string{fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", d.Quote(table.Name), strings.Join(cols, ",\n\t"))}

	for _, idx := range table.Indexes {
		quoted := make([]string, len(idx.Columns))
		for i, c := range idx.Columns {
			quoted[i] = d.Quote(c)
		}
		unique := ""
		if idx.Unique {
			unique = "UNIQUE "
		}
		stmts = append(stmts, fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
			unique, d.Quote(idx.Name), d.Quote(table.Name), strings.Join(quoted, ", ")))
	}
	return stmts
}

func encodeOptions(opts map[string]string) string {
	if len(opts) == 0 {
		return ""
	}
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+opts[k])
	}
	return strings.Join(parts, "&")
}

func decodeOptions(query string) map[string]string {
	opts := make(map[string]string)
	for _, part := range strings.Split(query, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		opts[k] = v
	}
	return opts
}
