package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/bomberboy/internal/platform/tui"
)

var (
	flagHost string
	flagPort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start SSH server for remote play",
	Long: `Start an SSH server that lets players connect remotely.
Each connection gets the full menu: local rounds, online lobbies paired by
join code, and the session history.

Examples:
  bomberboy serve
  bomberboy serve --port 2222
  bomberboy serve --host 0.0.0.0 --port 22`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagHost, "host", "", "Host to bind to (overrides config)")
	serveCmd.Flags().IntVar(&flagPort, "port", 0, "Port to listen on (overrides config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("host") {
		cfg.SSH.Host = flagHost
	}
	if cmd.Flags().Changed("port") {
		cfg.SSH.Port = flagPort
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg, "ssh")
	store := openStore(cfg)
	if store != nil {
		defer store.Close()
	}

	srv, err := tui.NewSSHServer(cfg, store, logger)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	fmt.Printf("Starting SSH server on %s\n", srv.Addr())
	fmt.Printf("Connect with: ssh localhost -p %d\n", cfg.SSH.Port)
	return srv.ListenAndServe(ctx)
}
