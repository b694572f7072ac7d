package main

import (
	"github.com/spf13/cobra"

	"github.com/vovakirdan/bomberboy/internal/relay"
)

var flagListen string

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Start the WebSocket relay",
	Long: `Start the relay that pairs online players. Clients connect to
ws://<host>/<room>; once both players of a room have arrived, the relay
forwards their messages until one of them leaves.

Examples:
  bomberboy relay
  bomberboy relay --listen 0.0.0.0:8080`,
	Args: cobra.NoArgs,
	RunE: runRelay,
}

func init() {
	relayCmd.Flags().StringVar(&flagListen, "listen", "", "Address to listen on (overrides config)")
}

func runRelay(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	addr := cfg.Relay.Listen
	if flagListen != "" {
		addr = flagListen
	}

	ctx, stop := signalContext()
	defer stop()

	srv := relay.New(relay.WithLogger(newLogger(cfg, "relay")))
	return srv.ListenAndServe(ctx, addr)
}
