// Package relay is a room-based WebSocket message forwarder.
//
// Clients connect to ws://host/<room>?next=N. Once N clients have joined
// a room, each receives a welcome frame with its peer id, its handle (join
// order) and the full peer list. From then on data frames are forwarded
// to the peer named in their To field, and a left frame is sent to the
// remaining peers when one disconnects. The relay never looks inside the
// payloads.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vovakirdan/bomberboy/internal/sim"
	"github.com/vovakirdan/bomberboy/internal/transport"
)

const (
	// DefaultRoomSize is used when a client does not pass ?next=.
	DefaultRoomSize = 2

	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	readLimit   = 1 << 16
	sendBacklog = 256
)

// Server tracks rooms that are still filling up. Full rooms are owned by
// their peers and disappear when the last one leaves.
type Server struct {
	logger   *log.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	waiting map[string]*room
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a relay server.
func New(opts ...Option) *Server {
	s := &Server{
		logger: log.New(io.Discard),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		waiting: make(map[string]*room),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Waiting returns how many rooms are still filling up.
func (s *Server) Waiting() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waiting)
}

type room struct {
	name  string
	size  int
	mu    sync.Mutex
	peers []*peer
	full  bool
}

type peer struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *log.Logger
}

func (p *peer) close() {
	p.once.Do(func() {
		close(p.done)
		_ = p.conn.Close()
	})
}

// enqueue hands data to the peer's writer. A peer that cannot keep up is
// disconnected rather than stalling the room.
func (p *peer) enqueue(data []byte) {
	select {
	case p.send <- data:
	case <-p.done:
	default:
		p.logger.Warn("peer too slow, dropping connection", "peer", p.id)
		p.close()
	}
}

func (p *peer) writeLoop() {
	for {
		select {
		case data := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				p.logger.Debug("write failed", "peer", p.id, "error", err)
				p.close()
				return
			}
		case <-p.done:
			return
		}
	}
}

func parseRoom(r *http.Request) (string, int, error) {
	name := strings.Trim(r.URL.Path, "/")
	if name == "" {
		return "", 0, errors.New("missing room name")
	}
	size := DefaultRoomSize
	if v := r.URL.Query().Get("next"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 2 || n > sim.MaxPlayers {
			return "", 0, fmt.Errorf("next must be in [2, %d]", sim.MaxPlayers)
		}
		size = n
	}
	return name, size, nil
}

// ServeHTTP upgrades the request and joins the client to its room.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name, size, err := parseRoom(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	rm, ok := s.waiting[name]
	if ok && rm.size != size {
		s.mu.Unlock()
		http.Error(w, fmt.Sprintf("room %s expects %d peers", name, rm.size), http.StatusConflict)
		return
	}
	s.mu.Unlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	p := &peer{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, sendBacklog),
		done:   make(chan struct{}),
		logger: s.logger,
	}
	go p.writeLoop()

	rm = s.join(name, size, p)
	s.readLoop(rm, p)
	s.leave(rm, p)
}

// join adds p to the waiting room, creating it if needed, and welcomes
// everyone once the room is full.
func (s *Server) join(name string, size int, p *peer) *room {
	s.mu.Lock()
	rm, ok := s.waiting[name]
	if !ok {
		rm = &room{name: name, size: size}
		s.waiting[name] = rm
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.peers = append(rm.peers, p)
	s.logger.Info("peer joined", "room", name, "peer", p.id, "waiting", len(rm.peers), "size", rm.size)
	if len(rm.peers) < rm.size {
		s.mu.Unlock()
		return rm
	}
	rm.full = true
	delete(s.waiting, name)
	s.mu.Unlock()

	ids := make([]string, len(rm.peers))
	for i, q := range rm.peers {
		ids[i] = q.id
	}
	for i, q := range rm.peers {
		data, err := transport.EncodeFrame(transport.RelayFrame{
			Type:   transport.FrameWelcome,
			ID:     q.id,
			Handle: i,
			Peers:  ids,
		})
		if err != nil {
			s.logger.Error("failed to encode welcome", "error", err)
			continue
		}
		q.enqueue(data)
	}
	s.logger.Info("room full", "room", name, "peers", len(ids))
	return rm
}

func (s *Server) readLoop(rm *room, p *peer) {
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("read failed", "peer", p.id, "error", err)
			}
			return
		}

		f, err := transport.DecodeFrame(data)
		if err != nil || f.Type != transport.FrameData {
			s.logger.Warn("dropping frame", "peer", p.id, "error", err)
			continue
		}

		rm.mu.Lock()
		var target *peer
		if rm.full {
			for _, q := range rm.peers {
				if q.id == f.To && q != p {
					target = q
					break
				}
			}
		}
		rm.mu.Unlock()
		if target == nil {
			s.logger.Debug("no such peer", "room", rm.name, "from", p.id, "to", f.To)
			continue
		}

		out, err := transport.EncodeFrame(transport.RelayFrame{Type: transport.FrameData, From: p.id, Payload: f.Payload})
		if err != nil {
			continue
		}
		target.enqueue(out)
	}
}

// leave removes p from its room and tells the others.
func (s *Server) leave(rm *room, p *peer) {
	p.close()

	s.mu.Lock()
	rm.mu.Lock()
	for i, q := range rm.peers {
		if q == p {
			rm.peers = append(rm.peers[:i], rm.peers[i+1:]...)
			break
		}
	}
	if !rm.full && len(rm.peers) == 0 && s.waiting[rm.name] == rm {
		delete(s.waiting, rm.name)
	}
	full := rm.full
	rest := append([]*peer(nil), rm.peers...)
	rm.mu.Unlock()
	s.mu.Unlock()

	s.logger.Info("peer left", "room", rm.name, "peer", p.id, "remaining", len(rest))
	if !full {
		return
	}
	data, err := transport.EncodeFrame(transport.RelayFrame{Type: transport.FrameLeft, From: p.id})
	if err != nil {
		return
	}
	for _, q := range rest {
		q.enqueue(data)
	}
}

// ListenAndServe serves the relay on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("relay listening", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("relay: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("relay: shutdown: %w", err)
		}
		return nil
	}
}
