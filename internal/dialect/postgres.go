package dialect

import (
	"fmt"
	"net/url"
	"strings"
)

// PostgresDialect targets PostgreSQL
type PostgresDialect struct{}

func (PostgresDialect) Name() string       { return string(Postgres) }
func (PostgresDialect) DriverName() string { return "postgres" }

func (PostgresDialect) Quote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

func (PostgresDialect) DefineColumn(col ColumnSpec) string {
	if col.PrimaryKey {
		if col.AutoIncrement {
			return "BIGSERIAL PRIMARY KEY"
		}
		return "BIGINT PRIMARY KEY"
	}
	switch col.Type {
	case TypeInteger:
		return "BIGINT"
	case TypeNumber:
		if col.Length > 0 {
			return fmt.Sprintf("NUMERIC(%d, %d)", col.Length, col.Precision)
		}
		return "DOUBLE PRECISION"
	case TypeBoolean:
		return "BOOLEAN"
	case TypeDate:
		return "TIMESTAMP"
	}
	if col.Length > 0 && col.Length < 10485760 {
		return fmt.Sprintf("VARCHAR(%d)", col.Length)
	}
	return "TEXT"
}

func (d PostgresDialect) CreateTable(table TableSpec) []string {
	return createTable(d, table)
}

func (PostgresDialect) BuildURL(spec ConnectionSpec) (string, error) {
	if spec.Host == "" || spec.Database == "" {
		return "", fmt.Errorf("postgres: host and database are required")
	}
	host := spec.Host
	if spec.Port != "" {
		host += ":" + spec.Port
	}
	u := url.URL{Scheme: "postgres", Host: host, Path: "/" + spec.Database}
	if spec.Username != "" {
		if spec.Password != "" {
			u.User = url.UserPassword(spec.Username, spec.Password)
		} else {
			u.User = url.User(spec.Username)
		}
	}
	u.RawQuery = encodeOptions(spec.Options)
	return u.String(), nil
}

func (PostgresDialect) ParseURL(raw string) (ConnectionSpec, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return ConnectionSpec{}, fmt.Errorf("postgres: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return ConnectionSpec{}, fmt.Errorf("postgres: unexpected scheme %q", u.Scheme)
	}
	spec := ConnectionSpec{
		Type:     string(Postgres),
		Host:     u.Hostname(),
		Port:     u.Port(),
		Database: strings.TrimPrefix(u.Path, "/"),
	}
	if u.User != nil {
		spec.Username = u.User.Username()
		spec.Password, _ = u.User.Password()
	}
	if u.RawQuery != "" {
		spec.Options = decodeOptions(u.RawQuery)
	}
	return spec, nil
}
