// Package transport moves session messages between peers.
//
// The session core only sees the Transport interface; addresses are opaque
// tokens chosen by the implementation (a relay peer id, a hub endpoint
// name). Two implementations exist: an in-process hub used by tests and
// SSH lobbies, and a WebSocket client that talks to the room relay.
package transport

import (
	"context"
	"errors"
)

var (
	// ErrClosed is returned by operations on a closed transport.
	ErrClosed = errors.New("transport: closed")
	// ErrUnknownPeer is returned when sending to an address that is not a peer.
	ErrUnknownPeer = errors.New("transport: unknown peer")
)

// Kind tags a session message.
type Kind uint8

const (
	KindHello    Kind = iota + 1 // handshake, carries the sender's handle
	KindInput                    // one participant input for one tick
	KindChecksum                 // digest of a confirmed tick
	KindGoodbye                  // sender is leaving
	KindPeerLeft                 // generated locally when a peer's link drops
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindHello:
		return "hello"
	case KindInput:
		return "input"
	case KindChecksum:
		return "checksum"
	case KindGoodbye:
		return "goodbye"
	case KindPeerLeft:
		return "peer-left"
	default:
		return "unknown"
	}
}

// Message is the unit exchanged between session peers.
// Fields unused by a kind are left zero.
type Message struct {
	Kind   Kind   `msgpack:"k"`
	Handle int    `msgpack:"h,omitempty"`
	Tick   int64  `msgpack:"t,omitempty"`
	Bits   uint8  `msgpack:"b,omitempty"`
	Digest uint64 `msgpack:"d,omitempty"`
}

// Envelope is a received message with its sender address.
type Envelope struct {
	From string
	Msg  Message
}

// Transport connects one local endpoint to a fixed set of peers.
// Send and Recv may be called from different goroutines.
type Transport interface {
	// Local returns this endpoint's address as peers know it.
	Local() string

	// Peers returns the addresses of every other endpoint.
	Peers() []string

	// Send delivers msg to the peer at address to.
	Send(ctx context.Context, to string, msg Message) error

	// Recv blocks until a message arrives, ctx is done, or the transport closes.
	Recv(ctx context.Context) (Envelope, error)

	// Close releases the transport. Safe to call multiple times.
	Close() error
}
