package dialect

import (
	"fmt"
	"strings"
)

// MySQLDialect targets MySQL and MariaDB with go-sql-driver style DSNs
type MySQLDialect struct{}

func (MySQLDialect) Name() string       { return string(MySQL) }
func (MySQLDialect) DriverName() string { return "mysql" }

func (MySQLDialect) Quote(identifier string) string {
	return "`" + strings.ReplaceAll(identifier, "`", "``") + "`"
}

func (MySQLDialect) DefineColumn(col ColumnSpec) string {
	if col.PrimaryKey {
		if col.AutoIncrement {
			return "BIGINT AUTO_INCREMENT PRIMARY KEY"
		}
		return "BIGINT PRIMARY KEY"
	}
	switch col.Type {
	case TypeInteger:
		return "BIGINT"
	case TypeNumber:
		if col.Length > 0 {
			return fmt.Sprintf("DECIMAL(%d, %d)", col.Length, col.Precision)
		}
		return "DOUBLE"
	case TypeBoolean:
		return "TINYINT(1)"
	case TypeDate:
		return "DATETIME"
	}
	if col.Length > 0 && col.Length <= 16383 {
		return fmt.Sprintf("VARCHAR(%d)", col.Length)
	}
	return "LONGTEXT"
}

func (d MySQLDialect) CreateTable(table TableSpec) []string {
	return createTable(d, table)
}

// BuildURL renders user:password@tcp(host:port)/database?options
func (MySQLDialect) BuildURL(spec ConnectionSpec) (string, error) {
	if spec.Database == "" {
		return "", fmt.Errorf("mysql: database is required")
	}
	var b strings.Builder
	if spec.Username != "" {
		b.WriteString(spec.Username)
		if spec.Password != "" {
			b.WriteString(":" + spec.Password)
		}
		b.WriteString("@")
	}
	host := spec.Host
	if host == "" {
		host = "localhost"
	}
	if spec.Port != "" {
		host += ":" + spec.Port
	}
	fmt.Fprintf(&b, "tcp(%s)/%s", host, spec.Database)
	if q := encodeOptions(spec.Options); q != "" {
		b.WriteString("?" + q)
	}
	return b.String(), nil
}

func (MySQLDialect) ParseURL(dsn string) (ConnectionSpec, error) {
	spec := ConnectionSpec{Type: string(MySQL)}
	rest := dsn
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		user, pass, _ := strings.Cut(rest[:at], ":")
		spec.Username, spec.Password = user, pass
		rest = rest[at+1:]
	}
	if !strings.HasPrefix(rest, "tcp(") {
		return ConnectionSpec{}, fmt.Errorf("mysql: expected tcp(host:port) in %q", dsn)
	}
	end := strings.Index(rest, ")")
	if end < 0 {
		return ConnectionSpec{}, fmt.Errorf("mysql: unterminated address in %q", dsn)
	}
	addr := rest[len("tcp("):end]
	spec.Host, spec.Port, _ = strings.Cut(addr, ":")
	rest = strings.TrimPrefix(rest[end+1:], "/")
	db, query, _ := strings.Cut(rest, "?")
	if db == "" {
		return ConnectionSpec{}, fmt.Errorf("mysql: missing database in %q", dsn)
	}
	spec.Database = db
	if query != "" {
		spec.Options = decodeOptions(query)
	}
	return spec, nil
}
