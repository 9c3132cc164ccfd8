package cli

import (
	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/mtune/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web view of studies and trials",
	Long: `Start a read-only web view of the storage with a JSON API.

Examples:
  mtune serve --storage sqlite:///mtune.db              # Default port from MTUNE_SERVE_PORT or 8080
  mtune serve --storage sqlite:///mtune.db --port 3000  # Start on port 3000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var servePort int

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (default $MTUNE_SERVE_PORT or 8080)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withApp(ctx, false, func(app *AppContext) error {
		port := servePort
		if port == 0 {
			port = app.Config.ServePort
		}
		return web.NewServer(app.Service, port, app.Logger).Start(ctx)
	})
}
