package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 25 * time.Second
	wsReadLimit  = 1 << 16
)

// Welcome is what the relay tells a client once its room is full.
type Welcome struct {
	ID     string   // this client's peer id
	Handle int      // join order within the room
	Peers  []string // every peer id in join order, including ID
}

// RoomMember is implemented by transports that joined a relay room. The
// welcome fixes this peer's handle and the roster order.
type RoomMember interface {
	Welcome() Welcome
}

// WebSocket is a Transport backed by a relay room.
type WebSocket struct {
	conn    *websocket.Conn
	welcome Welcome
	logger  *log.Logger

	writeMu   sync.Mutex
	inbox     chan Envelope
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	errMu   sync.Mutex
	readErr error
}

// Option configures a WebSocket transport.
type Option func(*WebSocket)

// WithLogger sets the logger used for link diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(w *WebSocket) {
		if l != nil {
			w.logger = l
		}
	}
}

// DialWebSocket connects to a relay room URL such as
// ws://127.0.0.1:3536/lobby?next=2 and waits until the room is full.
func DialWebSocket(ctx context.Context, url string, opts ...Option) (*WebSocket, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", url, err)
	}

	w := &WebSocket{
		conn:   conn,
		logger: log.New(io.Discard),
		inbox:  make(chan Envelope, DefaultInboxSize),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	conn.SetReadLimit(wsReadLimit)
	welcome, err := w.awaitWelcome(ctx)
	if err != nil {
		conn.Close()
		return nil, err
	}
	w.welcome = welcome
	w.logger.Debug("joined relay room", "id", welcome.ID, "handle", welcome.Handle, "peers", len(welcome.Peers))

	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	w.wg.Add(2)
	go w.readLoop()
	go w.pingLoop()
	return w, nil
}

// awaitWelcome blocks until the relay's welcome frame or ctx is done.
func (w *WebSocket) awaitWelcome(ctx context.Context) (Welcome, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = w.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return Welcome{}, fmt.Errorf("transport: waiting for room: %w", ctx.Err())
			}
			return Welcome{}, fmt.Errorf("transport: waiting for room: %w", err)
		}
		f, err := DecodeFrame(data)
		if err != nil {
			return Welcome{}, err
		}
		if f.Type != FrameWelcome {
			continue
		}
		if !slices.Contains(f.Peers, f.ID) {
			return Welcome{}, fmt.Errorf("transport: welcome does not list own id %q", f.ID)
		}
		_ = w.conn.SetReadDeadline(time.Time{})
		return Welcome{ID: f.ID, Handle: f.Handle, Peers: f.Peers}, nil
	}
}

// Welcome returns the room assignment received at dial time.
func (w *WebSocket) Welcome() Welcome {
	return w.welcome
}

// Local returns this client's peer id.
func (w *WebSocket) Local() string {
	return w.welcome.ID
}

// Peers returns the other peer ids in join order.
func (w *WebSocket) Peers() []string {
	return slices.DeleteFunc(slices.Clone(w.welcome.Peers), func(id string) bool {
		return id == w.welcome.ID
	})
}

// Send wraps msg in a data frame addressed to peer to.
func (w *WebSocket) Send(ctx context.Context, to string, msg Message) error {
	select {
	case <-w.done:
		return ErrClosed
	default:
	}
	if !slices.Contains(w.welcome.Peers, to) || to == w.welcome.ID {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, to)
	}

	payload, err := Encode(msg)
	if err != nil {
		return err
	}
	data, err := EncodeFrame(RelayFrame{Type: FrameData, To: to, Payload: payload})
	if err != nil {
		return err
	}

	deadline := time.Now().Add(wsWriteWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	_ = w.conn.SetWriteDeadline(deadline)
	if err := w.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("transport: send to %s: %w", to, err)
	}
	return nil
}

// Recv returns the next message from a peer.
func (w *WebSocket) Recv(ctx context.Context) (Envelope, error) {
	select {
	case env, ok := <-w.inbox:
		if !ok {
			return Envelope{}, w.err()
		}
		return env, nil
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	}
}

func (w *WebSocket) err() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	if w.readErr != nil {
		return w.readErr
	}
	return ErrClosed
}

func (w *WebSocket) readLoop() {
	defer w.wg.Done()
	defer close(w.inbox)

	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
			default:
				w.errMu.Lock()
				w.readErr = fmt.Errorf("transport: relay link: %w", err)
				w.errMu.Unlock()
				w.logger.Warn("relay link lost", "error", err)
			}
			return
		}

		f, err := DecodeFrame(data)
		if err != nil {
			w.logger.Warn("dropping malformed frame", "error", err)
			continue
		}

		var env Envelope
		switch f.Type {
		case FrameData:
			msg, err := Decode(f.Payload)
			if err != nil {
				w.logger.Warn("dropping malformed message", "from", f.From, "error", err)
				continue
			}
			env = Envelope{From: f.From, Msg: msg}
		case FrameLeft:
			env = Envelope{From: f.From, Msg: Message{Kind: KindPeerLeft}}
		default:
			continue
		}

		select {
		case w.inbox <- env:
		case <-w.done:
			return
		}
	}
}

func (w *WebSocket) pingLoop() {
	defer w.wg.Done()
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.writeMu.Lock()
			err := w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
			w.writeMu.Unlock()
			if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
				w.logger.Debug("ping failed", "error", err)
				return
			}
		case <-w.done:
			return
		}
	}
}

// Close sends a close frame, shuts the connection and waits for the
// background loops to exit.
func (w *WebSocket) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		w.writeMu.Lock()
		_ = w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		w.writeMu.Unlock()
		err = w.conn.Close()
		w.wg.Wait()
	})
	return err
}
