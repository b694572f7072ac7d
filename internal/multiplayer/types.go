// Package multiplayer pairs terminal sessions into online rounds.
//
// A host opens a lobby and gets a join code; a second session joins with the
// code. The coordinator then wires the two together with in-memory
// transport endpoints and tells each which handle it plays. From there the
// two sides run ordinary online rollback sessions against each other; the
// coordinator only tracks who is paired with whom.
package multiplayer

import (
	"time"

	"github.com/vovakirdan/bomberboy/internal/sim"
)

// SessionID uniquely identifies a connected terminal session.
type SessionID string

// MatchID uniquely identifies a paired round.
type MatchID string

// Lobby is a hosted round waiting for its second player.
type Lobby struct {
	Code      string
	Host      SessionHandle
	CreatedAt time.Time
}

// Seat is one side of a match.
type Seat struct {
	Session SessionHandle
	Handle  sim.Handle
}

// Match is a running pair of sessions.
type Match struct {
	ID        MatchID
	Code      string
	Seats     [2]Seat
	StartedAt time.Time
}

// Other returns the seat not held by id.
func (m *Match) Other(id SessionID) Seat {
	if m.Seats[0].Session.ID() == id {
		return m.Seats[1]
	}
	return m.Seats[0]
}
