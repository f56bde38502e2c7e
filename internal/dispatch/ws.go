package dispatch

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"
)

var ErrNoSession = errors.New("no ws session")

// Session is one connected app (driver or passenger). Writes are serialized
// per connection.
type Session struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *Session) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

// Registry holds live sessions keyed by actor id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) Add(actorID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[actorID] = &Session{conn: conn}
}

func (r *Registry) Remove(actorID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, actorID)
}

func (r *Registry) Send(actorID string, v any) error {
	r.mu.RLock()
	s, ok := r.sessions[actorID]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	return s.Send(v)
}
