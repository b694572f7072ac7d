// bomberboy is a deterministic rollback arena for the terminal.
//
// Usage:
//
//	bomberboy selftest            - Run a headless sync-test session
//	bomberboy play                - Local hot-seat round
//	bomberboy menu                - Interactive menu (hot seat, solo, history)
//	bomberboy join <room>         - Online round through the relay
//	bomberboy relay               - Start the WebSocket relay
//	bomberboy serve               - Start SSH server for remote play
//	bomberboy history             - List recorded sessions
//	bomberboy replay <id>         - Re-simulate a recorded session
//	bomberboy config show|schema  - Print the effective config or its schema
//
// Global flags:
//
//	--config <path>     - Config file (default: search ~/.bomberboy, ./configs)
//	--db <path>         - Session database path
//	--log-level <lvl>   - debug, info, warn or error
//	--fps <rate>        - Simulation tick rate
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vovakirdan/bomberboy/internal/config"
	"github.com/vovakirdan/bomberboy/internal/storage"
)

var (
	// Global flags
	flagConfig   string
	flagDBPath   string
	flagLogLevel string
	flagFPS      int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bomberboy",
	Short: "Bomberboy - rollback netcode arena in your terminal",
	Long: `Bomberboy is a two-player arena with GGRS-style rollback netcode.
Players walk an open field and drop bombs that detonate four seconds later.

Available commands:
  selftest - Headless sync-test session with scripted input
  play     - Local hot-seat round
  menu     - Interactive menu
  join     - Online round through a relay room
  relay    - Start the WebSocket relay
  serve    - Start SSH server for remote play
  history  - List recorded sessions
  replay   - Re-simulate a recorded session
  config   - Show the effective config or its JSON schema

Examples:
  bomberboy selftest --ticks 1200
  bomberboy play
  bomberboy relay --listen :3536
  bomberboy join lobby42
  bomberboy serve`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to config YAML")
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "Path to session database (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagFPS, "fps", 0, "Tick rate in frames per second (overrides config)")

	rootCmd.AddCommand(selftestCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(menuCmd)
	rootCmd.AddCommand(joinCmd)
	rootCmd.AddCommand(relayCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig loads the config file and applies the global flags.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.Storage.Path = flagDBPath
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = flagLogLevel
	}
	if flags.Changed("fps") {
		cfg.Session.FPS = flagFPS
	}
	return cfg, cfg.Validate()
}

// newLogger builds the stderr logger for headless commands.
func newLogger(cfg config.Config, prefix string) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          prefix,
	})
	if level, err := log.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	}
	return logger
}

// quietLogger is used while a TUI owns the terminal.
func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

// openStore opens the session database. Failure is reported as a warning
// and yields a nil store; the game still works without recording.
func openStore(cfg config.Config) *storage.Store {
	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not open session database: %v\n", err)
		return nil
	}
	return store
}

// terminalSize returns the size of stdout, falling back to 80x24.
func terminalSize() (int, int) {
	width, height := 80, 24
	if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		width, height = w, h
	}
	return width, height
}

// signalContext is cancelled on interrupt or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
