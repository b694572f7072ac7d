package transport

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// DefaultInboxSize is how many messages an endpoint buffers before Send blocks.
const DefaultInboxSize = 256

// MemoryHub connects in-process endpoints by name.
// Messages are encoded on send and decoded on receive so that the hub
// behaves like a real wire.
type MemoryHub struct {
	mu        sync.RWMutex
	endpoints map[string]*Memory
	inboxSize int
}

// NewMemoryHub creates an empty hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{
		endpoints: make(map[string]*Memory),
		inboxSize: DefaultInboxSize,
	}
}

// Endpoint creates and registers an endpoint. Names must be unique.
func (h *MemoryHub) Endpoint(name string) (*Memory, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.endpoints[name]; exists {
		return nil, fmt.Errorf("transport: endpoint %q already exists", name)
	}
	m := &Memory{
		name:  name,
		hub:   h,
		inbox: make(chan packet, h.inboxSize),
		done:  make(chan struct{}),
	}
	h.endpoints[name] = m
	return m, nil
}

func (h *MemoryHub) lookup(name string) (*Memory, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	m, ok := h.endpoints[name]
	return m, ok
}

func (h *MemoryHub) names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.endpoints))
	for n := range h.endpoints {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

func (h *MemoryHub) remove(name string) []*Memory {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.endpoints, name)
	rest := make([]*Memory, 0, len(h.endpoints))
	for _, m := range h.endpoints {
		rest = append(rest, m)
	}
	return rest
}

// Pipe creates a hub with two connected endpoints.
func Pipe(a, b string) (*Memory, *Memory, error) {
	hub := NewMemoryHub()
	ea, err := hub.Endpoint(a)
	if err != nil {
		return nil, nil, err
	}
	eb, err := hub.Endpoint(b)
	if err != nil {
		return nil, nil, err
	}
	return ea, eb, nil
}

type packet struct {
	from string
	data []byte
}

// Memory is one endpoint of a MemoryHub.
type Memory struct {
	name      string
	hub       *MemoryHub
	inbox     chan packet
	done      chan struct{}
	closeOnce sync.Once
}

// Local returns the endpoint name.
func (m *Memory) Local() string {
	return m.name
}

// Peers returns every other endpoint currently on the hub.
func (m *Memory) Peers() []string {
	return slices.DeleteFunc(m.hub.names(), func(n string) bool { return n == m.name })
}

// Send delivers msg to the named endpoint.
func (m *Memory) Send(ctx context.Context, to string, msg Message) error {
	select {
	case <-m.done:
		return ErrClosed
	default:
	}

	target, ok := m.hub.lookup(to)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, to)
	}
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	return target.deliver(ctx, m.name, data)
}

func (m *Memory) deliver(ctx context.Context, from string, data []byte) error {
	select {
	case m.inbox <- packet{from: from, data: data}:
		return nil
	case <-m.done:
		return fmt.Errorf("%w: %s", ErrUnknownPeer, m.name)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv returns the next message for this endpoint.
func (m *Memory) Recv(ctx context.Context) (Envelope, error) {
	select {
	case p := <-m.inbox:
		msg, err := Decode(p.data)
		if err != nil {
			return Envelope{}, err
		}
		return Envelope{From: p.from, Msg: msg}, nil
	case <-m.done:
		return Envelope{}, ErrClosed
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	}
}

// Close removes the endpoint from the hub and tells the remaining
// endpoints that it left.
func (m *Memory) Close() error {
	m.closeOnce.Do(func() {
		close(m.done)
		rest := m.hub.remove(m.name)
		data, err := Encode(Message{Kind: KindPeerLeft})
		if err != nil {
			return
		}
		for _, peer := range rest {
			// Best effort: a full inbox drops the notice rather than blocking Close.
			select {
			case peer.inbox <- packet{from: m.name, data: data}:
			default:
			}
		}
	})
	return nil
}
