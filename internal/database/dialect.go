package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/iliyamo/county-health/internal/model"
)

// Supported backends.
const (
	SQLite   = "sqlite"
	MySQL    = "mysql"
	Postgres = "postgres"
)

// StagingSuffix marks the table a load writes into before it replaces the
// target.  Such tables are never part of the public schema.
const StagingSuffix = "__staging"

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Dialect holds the few places where the three backends disagree: identifier
// quoting, bind placeholders, column type names, table renames, index DDL
// and catalog introspection.
type Dialect struct {
	name string
}

// NewDialect returns the dialect for a driver name.  Common aliases are
// accepted.
func NewDialect(name string) (*Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sqlite", "sqlite3":
		return &Dialect{name: SQLite}, nil
	case "mysql", "mariadb":
		return &Dialect{name: MySQL}, nil
	case "postgres", "postgresql", "pgx", "pg":
		return &Dialect{name: Postgres}, nil
	}
	return nil, errors.Errorf("unsupported store driver %q", name)
}

// Name returns the canonical backend name.
func (d *Dialect) Name() string { return d.name }

// DriverName is the database/sql driver registered for the backend.
func (d *Dialect) DriverName() string {
	switch d.name {
	case Postgres:
		return "pgx"
	case MySQL:
		return "mysql"
	default:
		return "sqlite"
	}
}

// Quote quotes an identifier, doubling any embedded quote character.
func (d *Dialect) Quote(ident string) string {
	if d.name == MySQL {
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// Placeholder returns the bind marker for the n-th (1-based) argument.
func (d *Dialect) Placeholder(n int) string {
	if d.name == Postgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Placeholders returns "(p1, p2, ...)" for count arguments starting at the
// 1-based position start.
func (d *Dialect) Placeholders(start, count int) string {
	var b strings.Builder
	b.WriteByte('(')
	for i := 0; i < count; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.Placeholder(start + i))
	}
	b.WriteByte(')')
	return b.String()
}

// MaxParams is the number of bind parameters a single statement may carry.
func (d *Dialect) MaxParams() int {
	if d.name == SQLite {
		return 32766
	}
	return 65535
}

// SQLType returns the column type used in CREATE TABLE.
func (d *Dialect) SQLType(t model.ColumnType) string {
	switch d.name {
	case MySQL:
		switch t {
		case model.ColumnInteger:
			return "BIGINT"
		case model.ColumnReal:
			return "DOUBLE"
		}
		return "TEXT"
	case Postgres:
		switch t {
		case model.ColumnInteger:
			return "BIGINT"
		case model.ColumnReal:
			return "DOUBLE PRECISION"
		}
		return "TEXT"
	}
	return t.String()
}

// CreateTable renders the CREATE TABLE statement for a schema.
func (d *Dialect) CreateTable(s model.TableSchema) string {
	defs := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		defs[i] = d.Quote(c.Name) + " " + d.SQLType(c.Type)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", d.Quote(s.Name), strings.Join(defs, ", "))
}

// DropTable renders DROP TABLE IF EXISTS.
func (d *Dialect) DropTable(table string) string {
	return "DROP TABLE IF EXISTS " + d.Quote(table)
}

// RenameTable renders a table rename.
func (d *Dialect) RenameTable(from, to string) string {
	if d.name == MySQL {
		return fmt.Sprintf("RENAME TABLE %s TO %s", d.Quote(from), d.Quote(to))
	}
	return fmt.Sprintf("ALTER TABLE %s RENAME TO %s", d.Quote(from), d.Quote(to))
}

// IndexName is the name given to the single-column index on table.column.
func IndexName(table, column string) string {
	return "idx_" + table + "_" + column
}

// CreateIndex renders the index DDL for one column.  MySQL cannot index a
// TEXT column without a key prefix length.
func (d *Dialect) CreateIndex(table string, c model.Column) string {
	col := d.Quote(c.Name)
	if d.name == MySQL && c.Type == model.ColumnText {
		col += "(191)"
	}
	return fmt.Sprintf("CREATE INDEX %s ON %s (%s)", d.Quote(IndexName(table, c.Name)), d.Quote(table), col)
}

// ListTables returns user table names ordered by name.
func (d *Dialect) ListTables(ctx context.Context, q Querier) ([]string, error) {
	var stmt string
	switch d.name {
	case MySQL:
		stmt = `SELECT table_name FROM information_schema.tables
		        WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'
		        ORDER BY table_name`
	case Postgres:
		stmt = `SELECT table_name FROM information_schema.tables
		        WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
		        ORDER BY table_name`
	default:
		stmt = `SELECT name FROM sqlite_master
		        WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		        ORDER BY name`
	}
	rows, err := q.QueryContext(ctx, stmt)
	if err != nil {
		return nil, errors.Wrap(err, "list tables")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "scan table name")
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "list tables")
	}
	return out, nil
}

// Columns returns the columns of table in declaration order with their
// declared types folded to the three column classes.
func (d *Dialect) Columns(ctx context.Context, q Querier, table string) ([]model.Column, error) {
	var stmt string
	switch d.name {
	case MySQL:
		stmt = `SELECT column_name, data_type FROM information_schema.columns
		        WHERE table_schema = DATABASE() AND table_name = ?
		        ORDER BY ordinal_position`
	case Postgres:
		stmt = `SELECT column_name, data_type FROM information_schema.columns
		        WHERE table_schema = current_schema() AND table_name = $1
		        ORDER BY ordinal_position`
	default:
		stmt = `SELECT name, type FROM pragma_table_info(?) ORDER BY cid`
	}
	rows, err := q.QueryContext(ctx, stmt, table)
	if err != nil {
		return nil, errors.Wrapf(err, "describe %s", table)
	}
	defer rows.Close()

	var out []model.Column
	for rows.Next() {
		var name, declared string
		if err := rows.Scan(&name, &declared); err != nil {
			return nil, errors.Wrapf(err, "scan column of %s", table)
		}
		out = append(out, model.Column{Name: name, Type: model.ParseColumnType(declared)})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "describe %s", table)
	}
	return out, nil
}
