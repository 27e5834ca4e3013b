package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/wayback-mirror/internal/config"
	"github.com/JakeFAU/wayback-mirror/internal/crawler"
)

const shutdownTimeout = 10 * time.Second

// errRootNotMirrored reports a run that finished without the snapshot page.
var errRootNotMirrored = errors.New("snapshot page was not mirrored")

// newMirrorCmd creates the 'mirror' subcommand.
func newMirrorCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mirror <target-url>",
		Short: "Download the archived snapshot of a site",
		Long: `Resolves the snapshot of <target-url> closest to --timestamp and mirrors
it: the snapshot page becomes index.html, assets go to images/, css/ and js/,
and internal pages keep their remote paths.`,
		Example: "  wayback-mirror mirror http://example.com --timestamp 201501 --out backup",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMirror(cmd, opts, args[0])
		},
	}

	flags := cmd.Flags()
	flags.String("timestamp", "", "snapshot date, YYYY to YYYYMMDDhhmmss (default: most recent)")
	flags.String("out", "", "backup directory for the local store (default website_backup)")
	flags.String("store", "", "blob store: local, gcs or memory")
	flags.String("manifest", "", "store path of a JSON run manifest")
	flags.String("metrics-file", "", "write Prometheus metrics to this textfile after the run")
	flags.Int("max-items", 0, "stop enqueueing after this many URLs (0 = unlimited)")
	flags.Int("max-depth", 0, "maximum link hops from the snapshot page (0 = unlimited)")

	for flag, key := range map[string]string{
		"timestamp":    "mirror.timestamp",
		"out":          "mirror.output_dir",
		"store":        "storage.provider",
		"manifest":     "mirror.manifest",
		"metrics-file": "metrics.textfile",
		"max-items":    "mirror.max_items",
		"max-depth":    "mirror.max_depth",
	} {
		_ = opts.v.BindPFlag(key, flags.Lookup(flag))
	}
	return cmd
}

func runMirror(cmd *cobra.Command, opts *rootOptions, target string) (err error) {
	cfg, err := config.LoadFrom(opts.v, opts.cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := opts.deps.newLogger(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	mirror, err := opts.deps.newApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if closeErr := mirror.Close(closeCtx); closeErr != nil {
			logger.Warn("Error shutting down application services", zap.Error(closeErr))
			err = errors.Join(err, closeErr)
		}
	}()

	out := cmd.OutOrStdout()
	report, err := mirror.Run(ctx, target)
	if errors.Is(err, crawler.ErrSnapshotNotFound) {
		fmt.Fprintln(out, "No snapshot found for the specified date")
		return err
	}
	if report.RunID != "" {
		printSummary(out, report, destination(cfg))
	}
	if err != nil {
		return err
	}
	if !report.RootStored() {
		return errRootNotMirrored
	}
	return nil
}

func printSummary(w io.Writer, report crawler.Report, dest string) {
	fmt.Fprintf(w, "Snapshot: %s\n", report.Snapshot)
	fmt.Fprintf(w, "Backup:   %s\n", dest)
	fmt.Fprintf(w, "Stored %d, failed %d, skipped %d in %s\n",
		report.Stored, report.Failed, report.Skipped,
		report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond),
	)
}

func destination(cfg config.Config) string {
	switch cfg.Storage.Provider {
	case config.ProviderGCS:
		if cfg.Storage.Prefix != "" {
			return fmt.Sprintf("gs://%s/%s", cfg.Storage.GCSBucket, cfg.Storage.Prefix)
		}
		return "gs://" + cfg.Storage.GCSBucket
	case config.ProviderMemory:
		return "memory (discarded)"
	default:
		return cfg.Mirror.OutputDir
	}
}
