package transport

import (
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

func TestDecodeRejectsUnknownKind(t *testing.T) {
	data, err := msgpack.Marshal(&Message{Kind: 42})
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}
	if _, err := Decode(data); err == nil {
		t.Error("Decode() should reject kind 42")
	}
	if _, err := Decode([]byte{0xc1}); err == nil {
		t.Error("Decode() should reject garbage")
	}
}

func TestEncodeKeepsFields(t *testing.T) {
	want := Message{Kind: KindChecksum, Handle: 1, Tick: 240, Digest: 0xdeadbeefcafef00d}
	data, err := Encode(want)
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if got != want {
		t.Errorf("Decode() = %+v, expected %+v", got, want)
	}
}

func TestFrameCarriesPayload(t *testing.T) {
	payload, err := Encode(Message{Kind: KindInput, Tick: 7, Bits: 0x11})
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	data, err := EncodeFrame(RelayFrame{Type: FrameData, From: "a", To: "b", Payload: payload})
	if err != nil {
		t.Fatalf("EncodeFrame() failed: %v", err)
	}
	f, err := DecodeFrame(data)
	if err != nil {
		t.Fatalf("DecodeFrame() failed: %v", err)
	}
	if f.Type != FrameData || f.From != "a" || f.To != "b" {
		t.Errorf("DecodeFrame() = %+v", f)
	}
	msg, err := Decode(f.Payload)
	if err != nil {
		t.Fatalf("Decode(payload) failed: %v", err)
	}
	if msg.Tick != 7 || msg.Bits != 0x11 {
		t.Errorf("payload = %+v", msg)
	}
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindHello, "hello"},
		{KindInput, "input"},
		{KindChecksum, "checksum"},
		{KindGoodbye, "goodbye"},
		{KindPeerLeft, "peer-left"},
		{Kind(0), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, expected %q", tt.kind, got, tt.want)
		}
	}
}
