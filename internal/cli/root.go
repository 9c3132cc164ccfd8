package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/emiliopalmerini/mtune/internal/buildinfo"
	"github.com/emiliopalmerini/mtune/internal/infrastructure/logging"
)

var rootCmd = &cobra.Command{
	Use:   "mtune",
	Short: "Hyperparameter optimization study manager",
	Long: `mtune keeps hyperparameter optimization studies and their trials in a
storage, hands out parameter suggestions through ask and tell, and can drive a
whole optimization run against an external objective command.

The storage is selected with --storage or MTUNE_STORAGE:
  sqlite:///path/to/mtune.db   local database file
  libsql://db.turso.io         Turso (MTUNE_AUTH_TOKEN)
  redis://localhost:6379/0     redis`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogger,
}

// Global flags
var (
	storageURL string
	logOpts    logging.Options
	logger     = zap.NewNop()
)

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() { _ = logger.Sync() }()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = buildinfo.Resolve()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&storageURL, "storage", "", "Storage URL (default $MTUNE_STORAGE)")
	flags.BoolVarP(&logOpts.Verbose, "verbose", "v", false, "Increase output verbosity")
	flags.BoolVarP(&logOpts.Quiet, "quiet", "q", false, "Suppress output except warnings and errors")
	flags.StringVar(&logOpts.LogFile, "log-file", "", "Also write log entries to this file")
	flags.BoolVar(&logOpts.Debug, "debug", false, "Show caller information in log entries")
	rootCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")
}

func setupLogger(cmd *cobra.Command, args []string) error {
	l, err := logging.New(logOpts)
	if err != nil {
		return err
	}
	logger = l
	return nil
}
