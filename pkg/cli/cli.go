// Package cli holds the cobra plumbing shared by the skill binaries: the
// root command with its persistent flags, config loading, and the skill and
// version subcommands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/skillkit/pkg/config"
	"github.com/jingkaihe/skillkit/pkg/logger"
	"github.com/jingkaihe/skillkit/pkg/presenter"
	"github.com/jingkaihe/skillkit/pkg/skillerr"
)

type configKey struct{}

// WithConfig attaches cfg to ctx.
func WithConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// ConfigFrom returns the configuration loaded by the root command, or the
// environment defaults when none was loaded.
func ConfigFrom(ctx context.Context) *config.Config {
	if ctx != nil {
		if cfg, ok := ctx.Value(configKey{}).(*config.Config); ok && cfg != nil {
			return cfg
		}
	}
	return config.Default()
}

// NewRootCommand builds the root command of a skill binary.
func NewRootCommand(name, short string) *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:           name,
		Short:         short,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			configFile, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(v, configFile)
			if err != nil {
				return err
			}
			if err := logger.Configure(cfg.LogLevel, cfg.LogFormat); err != nil {
				return skillerr.Configuration("%s", err.Error())
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx = logger.WithLogger(ctx, logger.L.WithField("skill", name))
			cmd.SetContext(WithConfig(ctx, cfg))

			logger.G(ctx).WithField("command", cmd.CommandPath()).Debug("running command")
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "Config file (default $HOME/.skillkit/config.yaml or ./config.yaml)")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("log-format", "", "Log format: fmt or json")
	_ = v.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = v.BindPFlag("log_format", flags.Lookup("log-format"))

	return root
}

// Execute runs root and returns the process exit code. Errors are printed
// as a single line on errOut.
func Execute(ctx context.Context, root *cobra.Command, args []string, out, errOut io.Writer) int {
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)

	if err := root.ExecuteContext(ctx); err != nil {
		presenter.NewForStreams(out, errOut).Error(err, "")
		return 1
	}
	return 0
}

// Main runs root against the process arguments and exits.
func Main(root *cobra.Command) {
	os.Exit(Execute(context.Background(), root, os.Args[1:], os.Stdout, os.Stderr))
}

// Printer returns a presenter bound to the command's output streams.
func Printer(cmd *cobra.Command) *presenter.TerminalPresenter {
	return presenter.NewForStreams(cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// Linef writes one formatted line of command output to stdout.
func Linef(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format+"\n", args...)
}
