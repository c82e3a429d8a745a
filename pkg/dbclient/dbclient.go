// Package dbclient runs read-only exploration queries against PostgreSQL,
// MySQL and SQLite databases.
package dbclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/jingkaihe/skillkit/pkg/db"
	"github.com/jingkaihe/skillkit/pkg/logger"
	"github.com/jingkaihe/skillkit/pkg/skillerr"
)

// RowWriter receives a result set. export.TableWriter satisfies it.
type RowWriter interface {
	WriteHeader(columns []string) error
	WriteRow(values []any) error
}

// TableRef names a table within its schema.
type TableRef struct {
	Schema string `db:"schema_name" json:"schema"`
	Name   string `db:"table_name" json:"table"`
}

// Column describes one column of a table.
type Column struct {
	Name      string  `db:"column_name" json:"column_name"`
	Type      string  `db:"data_type" json:"data_type"`
	MaxLength *int64  `db:"character_maximum_length" json:"character_maximum_length"`
	Nullable  string  `db:"is_nullable" json:"is_nullable"`
	Default   *string `db:"column_default" json:"column_default"`
}

// Client is an open database connection.
type Client struct {
	db      *sqlx.DB
	dialect Dialect
	target  *Target
}

// Open resolves params, connects and verifies the connection.
func Open(ctx context.Context, params Params) (*Client, error) {
	target, err := params.Resolve()
	if err != nil {
		return nil, err
	}

	log := logger.G(ctx).WithField("driver", target.Driver).WithField("target", target.Display)
	log.Debug("connecting to database")

	var conn *sqlx.DB
	if target.Dialect == DialectSQLite {
		conn, err = db.OpenSQLite(ctx, target.SQLitePath, db.Options{ReadOnly: true})
	} else {
		conn, err = sqlx.Open(target.Driver, target.DSN)
		if err == nil {
			err = conn.PingContext(ctx)
		}
	}
	if err != nil {
		if conn != nil {
			conn.Close()
		}
		return nil, skillerr.Collaborator(err, "failed to connect to %s", target.Display)
	}

	log.Debug("connected")
	return &Client{db: conn, dialect: target.Dialect, target: target}, nil
}

// Dialect reports the SQL flavour of the connection.
func (c *Client) Dialect() Dialect {
	return c.dialect
}

// Close releases the connection.
func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// Query executes sqlText and streams every row to w. It returns the number
// of rows written.
func (c *Client) Query(ctx context.Context, sqlText string, w RowWriter) (int, error) {
	if strings.TrimSpace(sqlText) == "" {
		return 0, skillerr.Configuration("query must not be empty")
	}

	start := time.Now()
	rows, err := c.db.QueryxContext(ctx, sqlText)
	if err != nil {
		return 0, skillerr.Collaborator(err, "query failed")
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return 0, skillerr.Collaborator(err, "failed to read result columns")
	}
	if err := w.WriteHeader(columns); err != nil {
		return 0, errors.Wrap(err, "failed to write header")
	}

	count := 0
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return count, skillerr.Collaborator(err, "failed to scan row %d", count+1)
		}
		for i, v := range values {
			values[i] = formatValue(v)
		}
		if err := w.WriteRow(values); err != nil {
			return count, errors.Wrap(err, "failed to write row")
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return count, skillerr.Collaborator(err, "query failed")
	}

	logger.G(ctx).WithField("rows", count).WithField("elapsed", time.Since(start)).Debug("query complete")
	return count, nil
}

// ListTables returns user tables ordered by schema and name.
func (c *Client) ListTables(ctx context.Context) ([]TableRef, error) {
	var query string
	switch c.dialect {
	case DialectPostgres:
		query = `SELECT schemaname AS schema_name, tablename AS table_name
			FROM pg_tables
			WHERE schemaname NOT IN ('pg_catalog', 'information_schema')
			ORDER BY schemaname, tablename`
	case DialectMySQL:
		query = `SELECT table_schema AS schema_name, table_name AS table_name
			FROM information_schema.tables
			WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'
			ORDER BY table_schema, table_name`
	case DialectSQLite:
		query = `SELECT 'main' AS schema_name, name AS table_name
			FROM sqlite_master
			WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
			ORDER BY name`
	}

	var tables []TableRef
	if err := c.db.SelectContext(ctx, &tables, query); err != nil {
		return nil, skillerr.Collaborator(err, "failed to list tables")
	}
	return tables, nil
}

// SplitTableName splits "schema.table" into its parts. The schema is empty
// when name is unqualified.
func SplitTableName(name string) (schema, table string) {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

// DescribeTable returns the columns of name, which may be schema-qualified.
// The default schema is public for PostgreSQL, the current database for
// MySQL and main for SQLite.
func (c *Client) DescribeTable(ctx context.Context, name string) ([]Column, error) {
	schema, table := SplitTableName(strings.TrimSpace(name))
	if table == "" {
		return nil, skillerr.Configuration("table name must not be empty")
	}

	var (
		columns []Column
		err     error
	)
	switch c.dialect {
	case DialectSQLite:
		columns, err = c.describeSQLite(ctx, schema, table)
	default:
		columns, err = c.describeInformationSchema(ctx, schema, table)
	}
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		display := table
		if schema != "" {
			display = schema + "." + table
		}
		return nil, skillerr.NotFound("Table not found: %s", display)
	}
	return columns, nil
}

func (c *Client) describeInformationSchema(ctx context.Context, schema, table string) ([]Column, error) {
	schemaExpr := "?"
	args := []any{table}
	switch {
	case schema != "":
		args = append(args, schema)
	case c.dialect == DialectMySQL:
		schemaExpr = "DATABASE()"
	default:
		args = append(args, "public")
	}

	query := c.db.Rebind(fmt.Sprintf(`SELECT column_name AS column_name, data_type AS data_type,
			character_maximum_length AS character_maximum_length,
			is_nullable AS is_nullable, column_default AS column_default
		FROM information_schema.columns
		WHERE table_name = ? AND table_schema = %s
		ORDER BY ordinal_position`, schemaExpr))

	var columns []Column
	if err := c.db.SelectContext(ctx, &columns, query, args...); err != nil {
		return nil, skillerr.Collaborator(err, "failed to describe table %s", table)
	}
	return columns, nil
}

type sqliteColumn struct {
	CID        int64   `db:"cid"`
	Name       string  `db:"name"`
	Type       string  `db:"type"`
	NotNull    int64   `db:"notnull"`
	Default    *string `db:"dflt_value"`
	PrimaryKey int64   `db:"pk"`
}

func (c *Client) describeSQLite(ctx context.Context, schema, table string) ([]Column, error) {
	if schema == "" {
		schema = "main"
	}
	query := fmt.Sprintf("PRAGMA %s.table_info(%s)", quoteIdent(schema), quoteIdent(table))

	var raw []sqliteColumn
	if err := c.db.SelectContext(ctx, &raw, query); err != nil {
		return nil, skillerr.Collaborator(err, "failed to describe table %s", table)
	}

	columns := make([]Column, len(raw))
	for i, r := range raw {
		nullable := "YES"
		if r.NotNull != 0 || r.PrimaryKey > 0 {
			nullable = "NO"
		}
		columns[i] = Column{Name: r.Name, Type: r.Type, Nullable: nullable, Default: r.Default}
	}
	return columns, nil
}

// ListSchemas returns the schema names visible to the connection.
func (c *Client) ListSchemas(ctx context.Context) ([]string, error) {
	var query string
	switch c.dialect {
	case DialectPostgres:
		query = `SELECT schema_name FROM information_schema.schemata
			WHERE schema_name NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
			ORDER BY schema_name`
	case DialectMySQL:
		query = `SELECT schema_name FROM information_schema.schemata
			WHERE schema_name NOT IN ('mysql', 'information_schema', 'performance_schema', 'sys')
			ORDER BY schema_name`
	case DialectSQLite:
		query = `SELECT name FROM pragma_database_list ORDER BY seq`
	}

	var schemas []string
	if err := c.db.SelectContext(ctx, &schemas, query); err != nil {
		return nil, skillerr.Collaborator(err, "failed to list schemas")
	}
	return schemas, nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// formatValue converts driver values into something every output format
// renders sensibly.
func formatValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return val
	}
}
