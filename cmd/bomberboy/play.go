package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/bomberboy/internal/config"
	"github.com/vovakirdan/bomberboy/internal/multiplayer"
	"github.com/vovakirdan/bomberboy/internal/platform/tui"
	"github.com/vovakirdan/bomberboy/internal/session"
	"github.com/vovakirdan/bomberboy/internal/sim"
	"github.com/vovakirdan/bomberboy/internal/transport"
)

const joinTimeout = 2 * time.Minute

var (
	flagSolo     bool
	flagRelayURL string
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play a local round",
	Long: `Play a local round in the terminal. By default two players share the
keyboard (WASD + space, arrows + enter). With --solo a single player uses
either set of keys.

Terminals do not report key releases, so a direction stays held for a
moment after the last key repeat. Press x to stop.`,
	Args: cobra.NoArgs,
	RunE: runPlay,
}

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Open the interactive menu",
	Args:  cobra.NoArgs,
	RunE:  runMenu,
}

var joinCmd = &cobra.Command{
	Use:   "join <room>",
	Short: "Play an online round through a relay room",
	Long: `Join a room on the WebSocket relay and play once the other player
arrives. Both players run 'bomberboy join' with the same room name.

Examples:
  bomberboy join friday
  bomberboy join friday --relay ws://relay.example.com:3536`,
	Args: cobra.ExactArgs(1),
	RunE: runJoin,
}

func init() {
	playCmd.Flags().BoolVar(&flagSolo, "solo", false, "Single player")
	joinCmd.Flags().StringVar(&flagRelayURL, "relay", "", "Relay base URL (overrides config)")
}

// localManager builds a manager that records to the store, if any. The
// logger is silenced since the TUI owns the terminal.
func localManager(cfg config.Config) (*session.Manager, func()) {
	opts := []session.Option{session.WithLogger(quietLogger())}
	store := openStore(cfg)
	if store == nil {
		return session.NewManager(opts...), func() {}
	}
	opts = append(opts, session.WithRecorder(store))
	return session.NewManager(opts...), func() { store.Close() }
}

func runPlay(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	local := cfg.Local()
	keys := tui.HotSeatKeyMap()
	if flagSolo {
		local.NumParticipants = 1
		keys = tui.SoloKeyMap()
	}

	manager, closeStore := localManager(cfg)
	defer closeStore()

	s, err := manager.StartLocal(local)
	if err != nil {
		return err
	}
	width, height := terminalSize()
	return tui.RunRound(manager, s, keys, local.FPS, width, height)
}

func runMenu(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []session.Option{session.WithLogger(quietLogger())}
	deps := tui.SessionDeps{
		ID:     multiplayer.SessionID("local"),
		Config: cfg,
	}
	if store := openStore(cfg); store != nil {
		defer store.Close()
		opts = append(opts, session.WithRecorder(store))
		deps.History = store
	}
	deps.Manager = session.NewManager(opts...)

	width, height := terminalSize()
	return tui.RunSession(deps, width, height)
}

// roomURL appends the room to the relay base URL.
func roomURL(base, room string) (string, error) {
	if room == "" || strings.ContainsAny(room, "/?#") {
		return "", fmt.Errorf("invalid room name %q", room)
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid relay URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid relay URL %q", base)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + url.PathEscape(room)
	return u.String(), nil
}

func runJoin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	base := cfg.Relay.URL
	if flagRelayURL != "" {
		base = flagRelayURL
	}
	address, err := roomURL(base, args[0])
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, joinTimeout)
	defer cancel()

	logger := newLogger(cfg, "join")
	logger.Info("waiting for the other player", "room", args[0], "relay", base)

	tr, err := transport.Dial(ctx, address, quietLogger())
	if err != nil {
		return err
	}
	member, ok := tr.(transport.RoomMember)
	if !ok {
		tr.Close()
		return errors.New("transport did not join a room")
	}
	welcome := member.Welcome()
	roster := session.PeerRoster(sim.Handle(welcome.Handle), welcome.Peers)

	manager, closeStore := localManager(cfg)
	defer closeStore()

	logger.Info("room full, synchronizing", "handle", welcome.Handle)
	s, err := manager.StartOnline(ctx, cfg.Online(roster), tr)
	if err != nil {
		return err
	}

	width, height := terminalSize()
	return tui.RunRound(manager, s, tui.SoloKeyMap(), cfg.Session.FPS, width, height)
}
