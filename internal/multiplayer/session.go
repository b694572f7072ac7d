package multiplayer

import "sync"

// SessionHandle is how the coordinator reaches a terminal session without
// knowing anything about SSH or Bubble Tea.
type SessionHandle interface {
	ID() SessionID

	// Send delivers an event. It must not block.
	Send(evt SessionEvent)

	// Done closes when the session ends.
	Done() <-chan struct{}
}

// ChannelSession is a SessionHandle backed by a buffered channel.
type ChannelSession struct {
	id       SessionID
	events   chan SessionEvent
	done     chan struct{}
	doneOnce sync.Once
}

// NewChannelSession creates a session handle buffering up to size events.
func NewChannelSession(id SessionID, size int) *ChannelSession {
	if size < 1 {
		size = 16
	}
	return &ChannelSession{
		id:     id,
		events: make(chan SessionEvent, size),
		done:   make(chan struct{}),
	}
}

func (s *ChannelSession) ID() SessionID {
	return s.id
}

// Send queues evt. When the buffer is full the oldest event is dropped.
func (s *ChannelSession) Send(evt SessionEvent) {
	select {
	case <-s.done:
		return
	default:
	}

	for range 2 {
		select {
		case s.events <- evt:
			return
		default:
		}
		select {
		case <-s.events:
		default:
		}
	}
}

// Events returns the channel the terminal side reads from.
func (s *ChannelSession) Events() <-chan SessionEvent {
	return s.events
}

func (s *ChannelSession) Done() <-chan struct{} {
	return s.done
}

// Close marks the session as done. Safe to call multiple times.
func (s *ChannelSession) Close() {
	s.doneOnce.Do(func() {
		close(s.done)
	})
}

// SessionRegistry tracks connected sessions.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[SessionID]SessionHandle
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[SessionID]SessionHandle)}
}

func (r *SessionRegistry) Register(s SessionHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
}

func (r *SessionRegistry) Unregister(id SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *SessionRegistry) Get(id SessionID) (SessionHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Count returns the number of registered sessions.
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
