package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/flipboard/internal/config"
	"github.com/BioHazard786/flipboard/internal/transport"
	"github.com/BioHazard786/flipboard/internal/ui"
	"github.com/BioHazard786/flipboard/internal/version"
)

var (
	flagConfig     string
	flagDomain     string
	flagInsecure   bool
	flagMode       string
	flagProduction bool
	flagSTUN       []string
	flagTURN       string
	flagTURNUser   string
	flagTURNPass   string
	flagRelay      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "flipboard",
	Short: "Remote-controlled split-flap display",
	Long: `Flipboard turns a terminal into a split-flap display that another device
can drive. One side hosts the board and hands out a room link, the other
side joins as a remote and sends messages, boards, themes and clocks.

Commands travel either through the relay broker or over a direct WebRTC
data channel introduced by the same server.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "Config file (yaml, json or toml)")
	pf.StringVarP(&flagDomain, "domain", "d", "", "Server domain, host[:port]")
	pf.BoolVar(&flagInsecure, "insecure", false, "Use ws:// and http:// even for public domains")
	pf.StringVarP(&flagMode, "mode", "m", "", "Transport: relay or direct")
	pf.BoolVar(&flagProduction, "production", false, "Production defaults (direct transport)")
	pf.StringSliceVarP(&flagSTUN, "stun", "s", nil, "STUN server URLs")
	pf.StringVarP(&flagTURN, "turn", "t", "", "TURN server")
	pf.StringVarP(&flagTURNUser, "turn-user", "u", "", "TURN username")
	pf.StringVarP(&flagTURNPass, "turn-pass", "p", "", "TURN password")
	pf.BoolVarP(&flagRelay, "relay", "r", false, "Force TURN relay for direct connections")
}

// loadConfig merges the persistent flags with the environment and the
// config file.
func loadConfig(opts config.Options) (*config.Config, error) {
	opts.ConfigFile = flagConfig
	opts.Domain = flagDomain
	opts.Insecure = flagInsecure
	opts.Mode = flagMode
	opts.Production = flagProduction
	opts.STUNServers = flagSTUN
	opts.TURNServer = flagTURN
	opts.TURNUser = flagTURNUser
	opts.TURNPass = flagTURNPass
	opts.ForceRelay = flagRelay

	cfg, err := config.Load(opts)
	if err != nil {
		return nil, transport.NewError("load config", err)
	}
	return cfg, nil
}
