package transport

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Encode serializes a session message.
func Encode(msg Message) ([]byte, error) {
	data, err := msgpack.Marshal(&msg)
	if err != nil {
		return nil, fmt.Errorf("transport: encode %s: %w", msg.Kind, err)
	}
	return data, nil
}

// Decode parses a session message.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("transport: decode: %w", err)
	}
	if msg.Kind < KindHello || msg.Kind > KindPeerLeft {
		return Message{}, fmt.Errorf("transport: decode: unknown kind %d", msg.Kind)
	}
	return msg, nil
}

// Relay frame types.
const (
	FrameWelcome = "welcome"
	FrameData    = "data"
	FrameLeft    = "left"
)

// RelayFrame is the envelope spoken between relay clients and the relay.
//
// The relay sends one welcome frame when the room is full, then forwards
// data frames between peers and emits a left frame when a peer drops.
type RelayFrame struct {
	Type    string   `msgpack:"type"`
	From    string   `msgpack:"from,omitempty"`
	To      string   `msgpack:"to,omitempty"`
	ID      string   `msgpack:"id,omitempty"`
	Handle  int      `msgpack:"handle,omitempty"`
	Peers   []string `msgpack:"peers,omitempty"`
	Payload []byte   `msgpack:"payload,omitempty"`
}

// EncodeFrame serializes a relay frame.
func EncodeFrame(f RelayFrame) ([]byte, error) {
	data, err := msgpack.Marshal(&f)
	if err != nil {
		return nil, fmt.Errorf("transport: encode %s frame: %w", f.Type, err)
	}
	return data, nil
}

// DecodeFrame parses a relay frame.
func DecodeFrame(data []byte) (RelayFrame, error) {
	var f RelayFrame
	if err := msgpack.Unmarshal(data, &f); err != nil {
		return RelayFrame{}, fmt.Errorf("transport: decode frame: %w", err)
	}
	return f, nil
}
