package main

import (
	"github.com/spf13/cobra"

	"github.com/jingkaihe/skillkit/pkg/cli"
	"github.com/jingkaihe/skillkit/pkg/dbclient"
	"github.com/jingkaihe/skillkit/pkg/export"
	"github.com/jingkaihe/skillkit/pkg/logger"
)

// QueryConfig holds configuration for the query command
type QueryConfig struct {
	SQL    string
	Output string
	Format string
}

// NewQueryConfig creates a new QueryConfig with default values
func NewQueryConfig() *QueryConfig {
	return &QueryConfig{
		SQL:    "",
		Output: "",
		Format: string(export.FormatCSV),
	}
}

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Execute a SQL query and export the results",
		Long: `Execute a SQL query and write the result set as CSV (default), JSON,
Markdown or an aligned text table.

Examples:
  postgres query --sql "SELECT * FROM users LIMIT 10"
  postgres query --sql "SELECT * FROM orders" --output orders.csv
  postgres query --sql "SELECT id, total FROM orders" --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runQuery(cmd, getQueryConfigFromFlags(cmd))
		},
	}

	defaults := NewQueryConfig()
	cmd.Flags().String("sql", defaults.SQL, "SQL query to execute")
	cmd.Flags().String("output", defaults.Output, "Output file path (prints to stdout if not specified)")
	cmd.Flags().String("format", defaults.Format, "Output format: csv, json, markdown or text")
	_ = cmd.MarkFlagRequired("sql")
	return cmd
}

func getQueryConfigFromFlags(cmd *cobra.Command) *QueryConfig {
	config := NewQueryConfig()
	if sql, err := cmd.Flags().GetString("sql"); err == nil {
		config.SQL = sql
	}
	if output, err := cmd.Flags().GetString("output"); err == nil {
		config.Output = output
	}
	if format, err := cmd.Flags().GetString("format"); err == nil {
		config.Format = format
	}
	return config
}

func runQuery(cmd *cobra.Command, config *QueryConfig) error {
	ctx := cmd.Context()

	format, err := export.ParseFormat(config.Format)
	if err != nil {
		return err
	}

	client, err := openClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	var rows int
	err = writeTable(cmd, format, config.Output, func(tw export.TableWriter) error {
		n, err := client.Query(ctx, config.SQL, tw)
		rows = n
		return err
	})
	if err != nil {
		return err
	}

	if config.Output != "" {
		logger.G(ctx).WithField("output", config.Output).WithField("rows", rows).Debug("exported query result")
		cli.Linef(cmd, "Exported %d rows to %s", rows, config.Output)
	}
	return nil
}

// ListingConfig holds configuration for the listing commands
type ListingConfig struct {
	Format string
}

// NewListingConfig creates a new ListingConfig with default values
func NewListingConfig() *ListingConfig {
	return &ListingConfig{
		Format: string(export.FormatText),
	}
}

func addListingFlags(cmd *cobra.Command) {
	defaults := NewListingConfig()
	cmd.Flags().String("format", defaults.Format, "Output format: text, csv, json or markdown")
}

func getListingConfigFromFlags(cmd *cobra.Command) *ListingConfig {
	config := NewListingConfig()
	if format, err := cmd.Flags().GetString("format"); err == nil {
		config.Format = format
	}
	return config
}

func newListTablesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list-tables",
		Short: "List all tables in the database (excluding system tables)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := export.ParseFormat(getListingConfigFromFlags(cmd).Format)
			if err != nil {
				return err
			}
			return listTables(cmd, format)
		},
	}
	addListingFlags(cmd)
	return cmd
}

func listTables(cmd *cobra.Command, format export.Format) error {
	client, err := openClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	tables, err := client.ListTables(cmd.Context())
	if err != nil {
		return err
	}
	if len(tables) == 0 && format == export.FormatText {
		cli.Linef(cmd, "No tables found")
		return nil
	}

	return writeTable(cmd, format, "", func(tw export.TableWriter) error {
		if err := tw.WriteHeader([]string{"schema", "table"}); err != nil {
			return err
		}
		for _, t := range tables {
			if err := tw.WriteRow([]any{t.Schema, t.Name}); err != nil {
				return err
			}
		}
		return nil
	})
}

// DescribeTableConfig holds configuration for the describe-table command
type DescribeTableConfig struct {
	Table string
}

// NewDescribeTableConfig creates a new DescribeTableConfig with default values
func NewDescribeTableConfig() *DescribeTableConfig {
	return &DescribeTableConfig{
		Table: "",
	}
}

func newDescribeTableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "describe-table",
		Short: "Describe table structure (columns, types, nullable, defaults)",
		Long: `Describe table structure. The table may be schema qualified; the default
schema is public for PostgreSQL, the current database for MySQL and main for
SQLite.

Examples:
  postgres describe-table --table users
  postgres describe-table --table analytics.events --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := export.ParseFormat(getListingConfigFromFlags(cmd).Format)
			if err != nil {
				return err
			}
			return describeTable(cmd, getDescribeTableConfigFromFlags(cmd), format)
		},
	}

	defaults := NewDescribeTableConfig()
	cmd.Flags().String("table", defaults.Table, "Table name (schema.table)")
	_ = cmd.MarkFlagRequired("table")
	addListingFlags(cmd)
	return cmd
}

func getDescribeTableConfigFromFlags(cmd *cobra.Command) *DescribeTableConfig {
	config := NewDescribeTableConfig()
	if table, err := cmd.Flags().GetString("table"); err == nil {
		config.Table = table
	}
	return config
}

func describeTable(cmd *cobra.Command, config *DescribeTableConfig, format export.Format) error {
	client, err := openClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	columns, err := client.DescribeTable(cmd.Context(), config.Table)
	if err != nil {
		return err
	}

	return writeTable(cmd, format, "", func(tw export.TableWriter) error {
		if err := tw.WriteHeader([]string{"column", "type", "nullable", "default"}); err != nil {
			return err
		}
		for _, c := range columns {
			if err := tw.WriteRow([]any{c.Name, columnType(c), c.Nullable, columnDefault(c)}); err != nil {
				return err
			}
		}
		return nil
	})
}

func columnType(c dbclient.Column) string {
	if c.MaxLength != nil && *c.MaxLength > 0 {
		return c.Type + "(" + export.Cell(*c.MaxLength) + ")"
	}
	return c.Type
}

func columnDefault(c dbclient.Column) any {
	if c.Default == nil {
		return nil
	}
	return *c.Default
}

func newListSchemasCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list-schemas",
		Short: "List all schemas in the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := export.ParseFormat(getListingConfigFromFlags(cmd).Format)
			if err != nil {
				return err
			}
			return listSchemas(cmd, format)
		},
	}
	addListingFlags(cmd)
	return cmd
}

func listSchemas(cmd *cobra.Command, format export.Format) error {
	client, err := openClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	schemas, err := client.ListSchemas(cmd.Context())
	if err != nil {
		return err
	}
	if len(schemas) == 0 && format == export.FormatText {
		cli.Linef(cmd, "No schemas found")
		return nil
	}

	return writeTable(cmd, format, "", func(tw export.TableWriter) error {
		if err := tw.WriteHeader([]string{"schema"}); err != nil {
			return err
		}
		for _, s := range schemas {
			if err := tw.WriteRow([]any{s}); err != nil {
				return err
			}
		}
		return nil
	})
}
