package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/flipboard/internal/config"
	"github.com/BioHazard786/flipboard/internal/server"
	"github.com/BioHazard786/flipboard/internal/transport"
	"github.com/BioHazard786/flipboard/internal/ui"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show broker room and command counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(config.Options{})
		if err != nil {
			return err
		}

		health, err := fetchHealth(cmd.Context(), cfg.HealthURL())
		if err != nil {
			return transport.NewError("fetch stats", err)
		}
		fmt.Println(ui.StatsView(cfg.Domain, health.Broker))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func fetchHealth(ctx context.Context, url string) (server.Health, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return server.Health{}, err
	}
	client := &http.Client{Transport: &http.Transport{
		Proxy:       http.ProxyFromEnvironment,
		DialContext: newDialer().NetDialContext,
	}}
	resp, err := client.Do(req)
	if err != nil {
		return server.Health{}, err
	}
	defer resp.Body.Close()

	var health server.Health
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return server.Health{}, fmt.Errorf("invalid health response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return health, fmt.Errorf("broker is %s (%s)", health.Status, resp.Status)
	}
	return health, nil
}
