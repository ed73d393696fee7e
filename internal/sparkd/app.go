// Package sparkd boots the advisory daemon: a cobra root command parses
// flags into Options, completes and validates them into a Config, then
// hands off to the bootstrapped apiServer's Run loop. Grounded on golem's
// own NewApp/run split (internal/golem/app.go in the retrieved pack), with
// cobra wired directly rather than through echoryn's bespoke pkg/app
// framework, which the retrieval pack does not include.
package sparkd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiosk404/spark/internal/sparkd/config"
	"github.com/kiosk404/spark/internal/sparkd/options"
	"github.com/kiosk404/spark/pkg/logger"
)

const AppName = "sparkd"

// NewCommand builds the sparkd root command: flags registered once, then
// Complete/Validate/Run on execution. The flags are also bound to a viper
// instance with the SPARK env prefix, but runApp reads Options from the
// parsed flags only, so SPARK_* environment variables do not reach them.
func NewCommand() *cobra.Command {
	opts := options.NewOptions()

	cmd := &cobra.Command{
		Use:          AppName,
		Short:        "sparkd observes a coding agent's tool-use stream and emits advisory context",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(opts)
		},
	}

	fs := cmd.Flags()
	opts.AddFlags(fs)
	v := viper.New()
	v.SetEnvPrefix("SPARK")
	v.AutomaticEnv()
	_ = v.BindPFlags(fs)

	return cmd
}

func runApp(opts *options.Options) error {
	cfg, err := config.CreateConfigFromOptions(opts)
	if err != nil {
		return err
	}
	if err := logger.Configure(cfg.LogLevel, nil); err != nil {
		return err
	}

	srv, err := createAPIServer(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("[sparkd] starting, state-dir=%s", cfg.StateDir)
	return srv.Run(ctx)
}
