// Package cmd defines and implements the CLI commands for the wayback-mirror
// executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/wayback-mirror/internal/app"
	"github.com/JakeFAU/wayback-mirror/internal/config"
	"github.com/JakeFAU/wayback-mirror/internal/crawler"
	"github.com/JakeFAU/wayback-mirror/internal/logging"
)

// Mirror defines what commands need from the application container.
// Tests inject a fake through deps.
type Mirror interface {
	Run(ctx context.Context, targetURL string) (crawler.Report, error)
	Close(ctx context.Context) error
}

// deps holds the factories commands build their services with.
type deps struct {
	newApp    func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Mirror, error)
	newLogger func(development bool) (*zap.Logger, error)
}

func defaultDeps() deps {
	return deps{
		newApp: func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Mirror, error) {
			return app.New(ctx, cfg, logger)
		},
		newLogger: logging.Init,
	}
}

// rootOptions is shared by every subcommand of one root command.
type rootOptions struct {
	cfgFile string
	v       *viper.Viper
	deps    deps
}

// newRootCmd creates and configures the root command. Each call gets its own
// viper instance so flags never leak between invocations.
func newRootCmd(d deps) *cobra.Command {
	opts := &rootOptions{v: config.New(), deps: d}
	cmd := &cobra.Command{
		Use:   config.AppName,
		Short: "Mirror an archived website from the Wayback Machine.",
		Long: `wayback-mirror finds the snapshot of a site closest to a given date in the
Internet Archive and downloads the page, its images, stylesheets, scripts and
every internal page reachable from it into a local backup directory.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "",
		"config file (default is ./config.yaml or $XDG_CONFIG_HOME/wayback-mirror/config.yaml)")
	cmd.PersistentFlags().Bool("dev", false, "use the development logger")
	_ = opts.v.BindPFlag("logging.development", cmd.PersistentFlags().Lookup("dev"))

	cmd.AddCommand(newMirrorCmd(opts))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute is the main entry point. It cancels the running command on SIGINT
// or SIGTERM and exits non-zero when the command fails.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(defaultDeps()).ExecuteContext(ctx)
	stop()
	if err != nil {
		if syncErr := logging.L.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
		os.Exit(1)
	}
}
