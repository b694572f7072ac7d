package multiplayer

import (
	"github.com/vovakirdan/bomberboy/internal/sim"
	"github.com/vovakirdan/bomberboy/internal/transport"
)

// SessionEvent is sent from the coordinator to a session.
type SessionEvent interface {
	sessionEvent()
}

// LobbyCreatedEvent carries the join code of a new lobby.
type LobbyCreatedEvent struct {
	Code string
}

func (LobbyCreatedEvent) sessionEvent() {}

// LobbyErrorEvent reports a failed lobby operation.
type LobbyErrorEvent struct {
	Message string
}

func (LobbyErrorEvent) sessionEvent() {}

// MatchStartedEvent hands a session everything it needs to start an
// online round: its handle, the opponent's address on Transport, and the
// transport itself. The receiver owns Transport.
type MatchStartedEvent struct {
	MatchID   MatchID
	Code      string
	Handle    sim.Handle
	Opponent  string
	Transport transport.Transport
}

func (MatchStartedEvent) sessionEvent() {}

// MatchEndedEvent tells a session its pairing is over.
type MatchEndedEvent struct {
	MatchID MatchID
	Reason  MatchEndReason
}

func (MatchEndedEvent) sessionEvent() {}

// MatchEndReason describes why a match or lobby ended.
type MatchEndReason int

const (
	MatchEndReasonLeft       MatchEndReason = iota // a player left the round
	MatchEndReasonDisconnect                       // a player's terminal went away
	MatchEndReasonHostLeft                         // the host closed the lobby
	MatchEndReasonExpired                          // nobody joined in time
)

func (r MatchEndReason) String() string {
	switch r {
	case MatchEndReasonLeft:
		return "left"
	case MatchEndReasonDisconnect:
		return "disconnect"
	case MatchEndReasonHostLeft:
		return "host left"
	case MatchEndReasonExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// CoordinatorMessage is sent from a session to the coordinator.
type CoordinatorMessage interface {
	coordinatorMessage()
}

// CreateLobbyMsg asks for a new lobby hosted by SessionID.
type CreateLobbyMsg struct {
	SessionID SessionID
}

func (CreateLobbyMsg) coordinatorMessage() {}

// JoinLobbyMsg asks to join the lobby with Code.
type JoinLobbyMsg struct {
	SessionID SessionID
	Code      string
}

func (JoinLobbyMsg) coordinatorMessage() {}

// CancelLobbyMsg closes a lobby the sender hosts.
type CancelLobbyMsg struct {
	SessionID SessionID
	Code      string
}

func (CancelLobbyMsg) coordinatorMessage() {}

// LeaveMatchMsg ends the sender's match.
type LeaveMatchMsg struct {
	SessionID SessionID
	MatchID   MatchID
	Ticks     int64
}

func (LeaveMatchMsg) coordinatorMessage() {}

// SessionDisconnectedMsg is sent when a terminal session goes away.
type SessionDisconnectedMsg struct {
	SessionID SessionID
}

func (SessionDisconnectedMsg) coordinatorMessage() {}
