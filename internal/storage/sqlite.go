// Package storage persists finished sessions and online matches in SQLite.
// Uses the pure-Go modernc.org/sqlite driver to avoid CGO dependencies.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/vovakirdan/bomberboy/internal/multiplayer"
	"github.com/vovakirdan/bomberboy/internal/session"
)

// Store manages the SQLite database connection.
type Store struct {
	db *sql.DB
}

// SessionSummary is a stored session without its frames.
type SessionSummary struct {
	ID           string
	Kind         session.Kind
	Participants int
	FPS          int
	Ticks        int64
	FinalTick    int64
	FinalDigest  uint64
	EndReason    string
	Desyncs      int
	StartedAt    time.Time
	EndedAt      time.Time
	CreatedAt    time.Time
}

// MatchResult is the outcome of a lobby-paired online match.
type MatchResult struct {
	ID           int64
	MatchID      string
	Code         string
	HostSession  string
	GuestSession string
	EndReason    string
	Ticks        int64
	Duration     int // Duration in seconds
	CreatedAt    time.Time
}

// Open creates or opens a SQLite database at the given path.
// It creates the parent directories if needed and runs migrations.
func Open(dbPath string) (*Store, error) {
	if dbPath != "" && dbPath[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("storage: cannot expand home directory: %w", err)
		}
		dbPath = filepath.Join(home, dbPath[1:])
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: cannot create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: cannot connect to database: %w", err)
	}

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: migration failed: %w", err)
	}

	return store, nil
}

// migrate creates the database schema if it doesn't exist.
// Digests are stored as hex text since SQLite integers are signed.
func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			participants INTEGER NOT NULL,
			fps INTEGER NOT NULL,
			ticks INTEGER NOT NULL DEFAULT 0,
			final_tick INTEGER NOT NULL DEFAULT -1,
			final_digest TEXT NOT NULL DEFAULT '',
			end_reason TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			ended_at INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at DESC);

		CREATE TABLE IF NOT EXISTS session_frames (
			session_id TEXT PRIMARY KEY REFERENCES sessions(id) ON DELETE CASCADE,
			frames BLOB NOT NULL
		);

		CREATE TABLE IF NOT EXISTS desyncs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			tick INTEGER NOT NULL,
			local_digest TEXT NOT NULL,
			remote_digest TEXT NOT NULL,
			peer TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_desyncs_session ON desyncs(session_id, tick);

		CREATE TABLE IF NOT EXISTS online_matches (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			match_id TEXT NOT NULL UNIQUE,
			code TEXT NOT NULL,
			host_session TEXT NOT NULL,
			guest_session TEXT NOT NULL,
			end_reason TEXT NOT NULL,
			ticks INTEGER NOT NULL DEFAULT 0,
			duration_secs INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_online_matches_host ON online_matches(host_session);
		CREATE INDEX IF NOT EXISTS idx_online_matches_guest ON online_matches(guest_session);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func hexDigest(d uint64) string {
	return fmt.Sprintf("%016x", d)
}

func parseDigest(s string) uint64 {
	d, _ := strconv.ParseUint(s, 16, 64)
	return d
}

// parseTime handles both time.Time and string datetimes from the driver.
func parseTime(v any) time.Time {
	switch v := v.(type) {
	case time.Time:
		return v
	case string:
		if parsed, err := time.Parse("2006-01-02 15:04:05", v); err == nil {
			return parsed
		}
	}
	return time.Time{}
}

// SaveSession stores a finished session with its confirmed frames and
// desync reports. It implements session.Recorder.
func (s *Store) SaveSession(ctx context.Context, rec session.Record) error {
	frames, err := msgpack.Marshal(rec.Frames)
	if err != nil {
		return fmt.Errorf("storage: cannot encode frames: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: cannot begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions
		 (id, kind, participants, fps, ticks, final_tick, final_digest, end_reason, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Kind.String(),
		rec.Participants,
		rec.FPS,
		rec.Ticks,
		rec.FinalTick,
		hexDigest(rec.FinalDigest),
		rec.EndReason,
		rec.StartedAt.UnixMilli(),
		rec.EndedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("storage: cannot save session: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO session_frames (session_id, frames) VALUES (?, ?)",
		rec.ID, frames,
	); err != nil {
		return fmt.Errorf("storage: cannot save frames: %w", err)
	}

	for _, d := range rec.Desyncs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO desyncs (session_id, tick, local_digest, remote_digest, peer)
			 VALUES (?, ?, ?, ?, ?)`,
			rec.ID, d.Tick, hexDigest(d.Local), hexDigest(d.Remote), d.Peer,
		); err != nil {
			return fmt.Errorf("storage: cannot save desync: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: cannot commit session: %w", err)
	}
	return nil
}

var _ session.Recorder = (*Store)(nil)

const summaryColumns = `
	s.id, s.kind, s.participants, s.fps, s.ticks, s.final_tick, s.final_digest,
	s.end_reason, s.started_at, s.ended_at, s.created_at,
	(SELECT COUNT(*) FROM desyncs d WHERE d.session_id = s.id)`

type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(row scanner) (SessionSummary, error) {
	var (
		sum            SessionSummary
		kind, digest   string
		started, ended int64
		createdAt      any
	)
	if err := row.Scan(
		&sum.ID,
		&kind,
		&sum.Participants,
		&sum.FPS,
		&sum.Ticks,
		&sum.FinalTick,
		&digest,
		&sum.EndReason,
		&started,
		&ended,
		&createdAt,
		&sum.Desyncs,
	); err != nil {
		return sum, err
	}

	k, err := session.ParseKind(kind)
	if err != nil {
		return sum, err
	}
	sum.Kind = k
	sum.FinalDigest = parseDigest(digest)
	sum.StartedAt = time.UnixMilli(started)
	sum.EndedAt = time.UnixMilli(ended)
	sum.CreatedAt = parseTime(createdAt)
	return sum, nil
}

// RecentSessions returns the latest sessions, newest first.
func (s *Store) RecentSessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+summaryColumns+`
		 FROM sessions s
		 ORDER BY s.started_at DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: cannot scan row: %w", err)
		}
		out = append(out, sum)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: row iteration error: %w", err)
	}

	return out, nil
}

// SessionByID returns a stored session summary, or nil if there is none.
func (s *Store) SessionByID(ctx context.Context, id string) (*SessionSummary, error) {
	sum, err := scanSummary(s.db.QueryRowContext(ctx,
		`SELECT `+summaryColumns+` FROM sessions s WHERE s.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query session: %w", err)
	}
	return &sum, nil
}

// Desyncs returns the desync reports of a session in tick order.
func (s *Store) Desyncs(ctx context.Context, id string) ([]session.DesyncDetected, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tick, local_digest, remote_digest, peer
		 FROM desyncs
		 WHERE session_id = ?
		 ORDER BY tick, id`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query desyncs: %w", err)
	}
	defer rows.Close()

	var out []session.DesyncDetected
	for rows.Next() {
		var d session.DesyncDetected
		var local, remote string
		if err := rows.Scan(&d.Tick, &local, &remote, &d.Peer); err != nil {
			return nil, fmt.Errorf("storage: cannot scan row: %w", err)
		}
		d.Local, d.Remote = parseDigest(local), parseDigest(remote)
		out = append(out, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: row iteration error: %w", err)
	}

	return out, nil
}

// SessionFrames returns the confirmed frame stream of a session.
func (s *Store) SessionFrames(ctx context.Context, id string) ([]session.ConfirmedFrame, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT frames FROM session_frames WHERE session_id = ?", id,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query frames: %w", err)
	}

	var frames []session.ConfirmedFrame
	if err := msgpack.Unmarshal(blob, &frames); err != nil {
		return nil, fmt.Errorf("storage: cannot decode frames: %w", err)
	}
	return frames, nil
}

// LoadRecord rebuilds the full record of a stored session so it can be
// replayed. It returns nil if the session does not exist.
func (s *Store) LoadRecord(ctx context.Context, id string) (*session.Record, error) {
	sum, err := s.SessionByID(ctx, id)
	if err != nil || sum == nil {
		return nil, err
	}

	frames, err := s.SessionFrames(ctx, id)
	if err != nil {
		return nil, err
	}

	rec := &session.Record{
		ID:           sum.ID,
		Kind:         sum.Kind,
		Participants: sum.Participants,
		FPS:          sum.FPS,
		StartedAt:    sum.StartedAt,
		EndedAt:      sum.EndedAt,
		EndReason:    sum.EndReason,
		Ticks:        sum.Ticks,
		FinalTick:    sum.FinalTick,
		FinalDigest:  sum.FinalDigest,
		Frames:       frames,
	}

	rec.Desyncs, err = s.Desyncs(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// SaveOnlineMatch records the result of a lobby-paired match.
// Returns the ID of the inserted record.
func (s *Store) SaveOnlineMatch(result MatchResult) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO online_matches
		 (match_id, code, host_session, guest_session, end_reason, ticks, duration_secs)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		result.MatchID,
		result.Code,
		result.HostSession,
		result.GuestSession,
		result.EndReason,
		result.Ticks,
		result.Duration,
	)
	if err != nil {
		return 0, fmt.Errorf("storage: cannot save online match: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("storage: cannot get inserted ID: %w", err)
	}

	return id, nil
}

// RecentOnlineMatches retrieves the most recent online matches.
func (s *Store) RecentOnlineMatches(limit int) ([]MatchResult, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(
		`SELECT id, match_id, code, host_session, guest_session,
		        end_reason, ticks, duration_secs, created_at
		 FROM online_matches
		 ORDER BY id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query online matches: %w", err)
	}
	defer rows.Close()

	var results []MatchResult
	for rows.Next() {
		var result MatchResult
		var createdAt any

		if err := rows.Scan(
			&result.ID,
			&result.MatchID,
			&result.Code,
			&result.HostSession,
			&result.GuestSession,
			&result.EndReason,
			&result.Ticks,
			&result.Duration,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("storage: cannot scan row: %w", err)
		}
		result.CreatedAt = parseTime(createdAt)
		results = append(results, result)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: row iteration error: %w", err)
	}

	return results, nil
}

// SaveMatchResult implements multiplayer.MatchResultSaver.
func (s *Store) SaveMatchResult(data multiplayer.MatchResultData) error {
	_, err := s.SaveOnlineMatch(MatchResult{
		MatchID:      data.MatchID,
		Code:         data.Code,
		HostSession:  data.HostSession,
		GuestSession: data.GuestSession,
		EndReason:    data.EndReason,
		Ticks:        data.Ticks,
		Duration:     data.DurationSecs,
	})
	return err
}

var _ multiplayer.MatchResultSaver = (*Store)(nil)
