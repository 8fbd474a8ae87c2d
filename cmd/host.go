package cmd

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/BioHazard786/flipboard/internal/app"
	"github.com/BioHazard786/flipboard/internal/config"
	"github.com/BioHazard786/flipboard/internal/transport"
	"github.com/BioHazard786/flipboard/internal/ui"
)

var hostCmd = &cobra.Command{
	Use:     "host",
	Aliases: []string{"h"},
	Short:   "Show the board and wait for remotes",
	Long: `Open a room and show the split-flap board. Share the printed link or
room id with a remote to control the board.

Examples:
  flipboard host
  flipboard host --mode direct
  flipboard host --domain flipboard.example.com`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(config.Options{})
		if err != nil {
			return err
		}
		manager, err := newManager(cfg)
		if err != nil {
			return err
		}

		host := app.NewHost(manager, app.HostOptions{})
		defer host.Stop()

		stopSpinner := ui.RunConnectionSpinner(fmt.Sprintf("Opening room (%s)...", manager.Mode()))
		roomID, err := host.Start(cmd.Context())
		stopSpinner()
		if err != nil {
			return transport.NewError("open room", err)
		}

		view := ui.NewHostView(host, ui.HostViewOptions{
			RoomID:   roomID,
			RoomLink: cfg.RoomLink(roomID, manager.Mode()),
			Mode:     string(manager.Mode()),
		})
		host.OnChange(view.SetDisplay)
		host.OnStatus(view.SetStatus)
		view.SetStatus(manager.Status())

		program := tea.NewProgram(view, tea.WithContext(cmd.Context()))
		if _, err := program.Run(); err != nil && cmd.Context().Err() == nil {
			return fmt.Errorf("display: %w", err)
		}
		if s := manager.Status(); s.Failed() {
			ui.PrintWarning("room closed with connection " + s.String())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hostCmd)
}
