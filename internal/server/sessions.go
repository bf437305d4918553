package server

import (
	"net"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fzdarsky/realmgate/internal/authserver"
)

// SessionInfo is a point-in-time view of one connection.
type SessionInfo struct {
	ID          string    `json:"id"`
	RemoteAddr  string    `json:"remote_addr"`
	Username    string    `json:"username,omitempty"`
	Status      string    `json:"status"`
	ConnectedAt time.Time `json:"connected_at"`
}

type sessionEntry struct {
	conn        net.Conn
	session     *authserver.Session
	connectedAt time.Time
}

// SessionTable tracks the open connections of one server.
type SessionTable struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*sessionEntry
}

// NewSessionTable creates an empty table.
func NewSessionTable() *SessionTable {
	return &SessionTable{sessions: make(map[uuid.UUID]*sessionEntry)}
}

// Put registers a connection under an id chosen by the caller.
func (t *SessionTable) Put(id uuid.UUID, conn net.Conn, session *authserver.Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[id] = &sessionEntry{conn: conn, session: session, connectedAt: time.Now()}
}

// Remove forgets a connection.
func (t *SessionTable) Remove(id uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, id)
}

// Len returns the number of tracked connections.
func (t *SessionTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// Snapshot lists the tracked connections, oldest first.
func (t *SessionTable) Snapshot() []SessionInfo {
	t.mu.RLock()
	out := make([]SessionInfo, 0, len(t.sessions))
	for id, e := range t.sessions {
		info := SessionInfo{
			ID:          id.String(),
			RemoteAddr:  e.conn.RemoteAddr().String(),
			ConnectedAt: e.connectedAt,
			Status:      authserver.StatusChallenge.String(),
		}
		if e.session != nil {
			info.Status = e.session.Status().String()
			info.Username = e.session.Username()
		}
		out = append(out, info)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ConnectedAt.Before(out[j].ConnectedAt) })
	return out
}

// SetReadDeadline applies a deadline to every tracked connection.
func (t *SessionTable) SetReadDeadline(deadline time.Time) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, e := range t.sessions {
		_ = e.conn.SetReadDeadline(deadline)
	}
}

// CloseAll closes every tracked connection and returns how many were closed.
func (t *SessionTable) CloseAll() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	closed := 0
	for _, e := range t.sessions {
		if e.session != nil {
			e.session.Close()
		}
		if err := e.conn.Close(); err == nil {
			closed++
		}
	}
	return closed
}
