// Command postgres queries a relational database and explores its schema.
package main

import (
	_ "embed"
	"io"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/skillkit/pkg/cli"
	"github.com/jingkaihe/skillkit/pkg/config"
	"github.com/jingkaihe/skillkit/pkg/dbclient"
	"github.com/jingkaihe/skillkit/pkg/export"
)

//go:embed SKILL.md
var skillDoc []byte

func newRootCmd() *cobra.Command {
	root := cli.NewRootCommand("postgres", "Query a database and explore its schema")
	root.Long = `PostgreSQL skill: run queries, export results and inspect tables.

The connection comes from --url, POSTGRES_URL, or POSTGRES_DB, POSTGRES_USER
and POSTGRES_PASSWORD with optional POSTGRES_HOST, POSTGRES_PORT and
POSTGRES_SSLMODE. mysql:// and sqlite:// URLs are accepted too.`
	root.PersistentFlags().String("url", "", "Connection URL (overrides POSTGRES_URL)")

	root.AddCommand(
		newQueryCmd(),
		newListTablesCmd(),
		newDescribeTableCmd(),
		newListSchemasCmd(),
		cli.NewSkillCommand(skillDoc),
		cli.NewVersionCommand("postgres"),
	)
	return root
}

// connectionParams maps the loaded configuration onto client parameters.
func connectionParams(cfg config.PostgresConfig) dbclient.Params {
	return dbclient.Params{
		URL:      cfg.URL,
		Host:     cfg.Host,
		Port:     cfg.Port,
		Database: cfg.Database,
		User:     cfg.User,
		Password: cfg.Password,
		SSLMode:  cfg.SSLMode,
	}
}

// openClient connects using --url or the configured parameters. The caller
// must Close the client.
func openClient(cmd *cobra.Command) (*dbclient.Client, error) {
	ctx := cmd.Context()
	params := connectionParams(cli.ConfigFrom(ctx).Postgres)
	if u, _ := cmd.Flags().GetString("url"); u != "" {
		params.URL = u
	}
	return dbclient.Open(ctx, params)
}

// writeTable renders rows through a table writer for format, into output
// when set and to stdout otherwise.
func writeTable(cmd *cobra.Command, format export.Format, output string, fill func(export.TableWriter) error) error {
	render := func(w io.Writer) error {
		tw, err := export.NewTableWriter(w, format)
		if err != nil {
			return err
		}
		if err := fill(tw); err != nil {
			return err
		}
		return tw.Close()
	}
	if output != "" {
		return export.WriteToFile(output, render)
	}
	return render(cmd.OutOrStdout())
}

func main() {
	cli.Main(newRootCmd())
}
