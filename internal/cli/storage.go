package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "Manage the storage schema",
}

var storageUpgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Upgrade the storage schema",
	Long: `Upgrade the storage schema to the latest version.

With --revision the schema is migrated to that version instead, up or down.

Examples:
  mtune storage upgrade --storage sqlite:///mtune.db
  mtune storage upgrade --storage sqlite:///mtune.db --revision 1`,
	Args: cobra.NoArgs,
	RunE: runStorageUpgrade,
}

var storageVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the current and latest schema versions",
	Args:  cobra.NoArgs,
	RunE:  runStorageVersion,
}

var storageRevision int

func init() {
	rootCmd.AddCommand(storageCmd)
	storageCmd.AddCommand(storageUpgradeCmd, storageVersionCmd)

	storageUpgradeCmd.Flags().IntVar(&storageRevision, "revision", -1, "Target schema version (default latest)")
}

func runStorageUpgrade(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withApp(ctx, true, func(app *AppContext) error {
		schema := app.Storage.Schema()
		current, err := schema.CurrentVersion(ctx)
		if err != nil {
			return err
		}

		if storageRevision >= 0 {
			if storageRevision == current {
				fmt.Fprintln(cmd.OutOrStdout(), "This storage is up-to-date.")
				return nil
			}
			if err := schema.MigrateTo(ctx, storageRevision); err != nil {
				return fmt.Errorf("failed to migrate storage: %w", err)
			}
			app.Logger.Info("Migrated storage", zap.Int("from", current), zap.Int("to", storageRevision))
			fmt.Fprintln(cmd.OutOrStdout(), "Completed to upgrade the storage.")
			return nil
		}

		if current > schema.HeadVersion() {
			return fmt.Errorf("this storage is at version %d, newer than the latest version %d known to mtune: please try updating mtune", current, schema.HeadVersion())
		}
		if current == schema.HeadVersion() {
			fmt.Fprintln(cmd.OutOrStdout(), "This storage is up-to-date.")
			return nil
		}

		applied, err := schema.Upgrade(ctx)
		if err != nil {
			return fmt.Errorf("failed to upgrade storage: %w", err)
		}
		app.Logger.Info("Upgraded storage", zap.Int("migrations", applied), zap.Int("version", schema.HeadVersion()))
		fmt.Fprintln(cmd.OutOrStdout(), "Completed to upgrade the storage.")
		return nil
	})
}

func runStorageVersion(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withApp(ctx, true, func(app *AppContext) error {
		current, err := app.Storage.Schema().CurrentVersion(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "current: %d\nhead: %d\n", current, app.Storage.Schema().HeadVersion())
		return nil
	})
}
