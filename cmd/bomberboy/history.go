package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/bomberboy/internal/checksum"
	"github.com/vovakirdan/bomberboy/internal/platform/tui"
	"github.com/vovakirdan/bomberboy/internal/session"
	"github.com/vovakirdan/bomberboy/internal/storage"
)

var (
	flagLimit int
	flagTUI   bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded sessions and online matches",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var replayCmd = &cobra.Command{
	Use:   "replay <id>",
	Short: "Re-simulate a recorded session",
	Long: `Re-simulate a recorded session from its confirmed inputs and compare
every tick's checksum with the recording. The session id may be given in
full or as the short prefix shown by 'bomberboy history'.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	historyCmd.Flags().IntVar(&flagLimit, "limit", 10, "Number of entries to show")
	historyCmd.Flags().BoolVar(&flagTUI, "tui", false, "Browse the history interactively")
}

func mustOpenStore(cmd *cobra.Command) (*storage.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

func runHistory(cmd *cobra.Command, _ []string) error {
	store, err := mustOpenStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	if flagTUI {
		width, height := terminalSize()
		return tui.RunHistory(store, width, height)
	}

	sessions, err := store.RecentSessions(context.Background(), flagLimit)
	if err != nil {
		return err
	}
	fmt.Println("Sessions")
	fmt.Println()
	if len(sessions) == 0 {
		fmt.Println("  No sessions recorded yet. Run 'bomberboy selftest' or 'bomberboy play'.")
	}
	for _, s := range sessions {
		fmt.Printf("  %-8s  %-6s  %6d ticks  %016x  desyncs %d  %s\n",
			shortID(s.ID), s.Kind, s.Ticks, s.FinalDigest, s.Desyncs,
			s.CreatedAt.Local().Format("2006-01-02 15:04"))
	}

	matches, err := store.RecentOnlineMatches(flagLimit)
	if err != nil {
		return err
	}
	fmt.Println()
	fmt.Println("Online matches")
	fmt.Println()
	if len(matches) == 0 {
		fmt.Println("  No online matches yet.")
	}
	for _, m := range matches {
		fmt.Printf("  %-6s  %6d ticks  %8s  %-12s  %s\n",
			m.Code, m.Ticks, time.Duration(m.Duration)*time.Second, m.EndReason,
			m.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// resolveSessionID expands a short id prefix against the recent sessions.
func resolveSessionID(ctx context.Context, store *storage.Store, id string) (string, error) {
	if s, err := store.SessionByID(ctx, id); err == nil && s != nil {
		return id, nil
	}
	recent, err := store.RecentSessions(ctx, 1000)
	if err != nil {
		return "", err
	}
	var found []string
	for _, s := range recent {
		if len(id) <= len(s.ID) && s.ID[:len(id)] == id {
			found = append(found, s.ID)
		}
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("no session %q", id)
	case 1:
		return found[0], nil
	}
	return "", fmt.Errorf("session prefix %q is ambiguous (%d matches)", id, len(found))
}

func runReplay(cmd *cobra.Command, args []string) error {
	store, err := mustOpenStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	id, err := resolveSessionID(ctx, store, args[0])
	if err != nil {
		return err
	}
	rec, err := store.LoadRecord(ctx, id)
	if err != nil {
		return err
	}

	last, err := session.Replay(*rec)
	var mismatch *checksum.Mismatch
	switch {
	case errors.As(err, &mismatch):
		fmt.Printf("Session %s diverged at tick %d\n", rec.ID, mismatch.Tick)
		fmt.Printf("  recorded  %016x\n", mismatch.Remote)
		fmt.Printf("  replayed  %016x\n", mismatch.Local)
		return errors.New("replay diverged")
	case err != nil:
		return err
	}

	fmt.Printf("Session %s (%s, %d players)\n", rec.ID, rec.Kind, rec.Participants)
	if last.Tick < 0 {
		fmt.Println("  nothing recorded")
		return nil
	}
	fmt.Printf("  %d ticks reproduced, final digest %016x\n", last.Tick+1, last.Digest)
	if len(rec.Desyncs) > 0 {
		fmt.Printf("  %d desyncs were reported while it was played\n", len(rec.Desyncs))
	}
	return nil
}
