package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/flipboard/internal/config"
	"github.com/BioHazard786/flipboard/internal/logging"
	"github.com/BioHazard786/flipboard/internal/server"
)

var flagAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay broker and peer introducer",
	Long: `Serve the relay broker on /ws-relay and the direct-mode introducer on
/introduce, with /health and /metrics alongside.

Examples:
  flipboard serve
  flipboard serve --addr :9000
  LOG_LEVEL=debug flipboard serve`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(slog.LevelInfo)

		cfg, err := loadConfig(config.Options{Addr: flagAddr})
		if err != nil {
			return err
		}

		srv := server.New(server.Options{Addr: cfg.Addr, Logger: slog.Default()})
		return srv.Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&flagAddr, "addr", "a", "", "Listen address (default :8080)")
}
