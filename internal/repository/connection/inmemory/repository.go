package inmemory

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/watchsync/server/internal/repository/connection"
)

type repo struct {
	mu       sync.RWMutex
	bindings map[*websocket.Conn]connection.Binding
	conns    map[string]*websocket.Conn
	logger   *slog.Logger
}

func NewRepo(logger *slog.Logger) *repo {
	return &repo{
		bindings: make(map[*websocket.Conn]connection.Binding),
		conns:    make(map[string]*websocket.Conn),
		logger:   logger,
	}
}

func (r *repo) Bind(conn *websocket.Conn, binding connection.Binding) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bindings[conn]; exists {
		return connection.ErrAlreadyBound
	}

	r.bindings[conn] = binding
	r.conns[binding.ConnId] = conn
	r.logger.Debug("connection bound", "conn_id", binding.ConnId, "room_id", binding.RoomId, "user_id", binding.UserId)

	return nil
}

func (r *repo) Unbind(conn *websocket.Conn) (connection.Binding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	binding, exists := r.bindings[conn]
	if !exists {
		return connection.Binding{}, connection.ErrNotFound
	}

	delete(r.bindings, conn)
	delete(r.conns, binding.ConnId)
	r.logger.Debug("connection unbound", "conn_id", binding.ConnId, "room_id", binding.RoomId)

	return binding, nil
}

func (r *repo) GetBinding(conn *websocket.Conn) (connection.Binding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	binding, exists := r.bindings[conn]
	if !exists {
		return connection.Binding{}, connection.ErrNotFound
	}

	return binding, nil
}

func (r *repo) GetConn(connId string) (*websocket.Conn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.conns[connId]
	if !exists {
		return nil, connection.ErrNotFound
	}

	return conn, nil
}

// GetConns resolves a set of connection ids to live connections. Ids that are
// mid-teardown are skipped, not reported.
func (r *repo) GetConns(connIds []string) []*websocket.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*websocket.Conn, 0, len(connIds))
	for _, connId := range connIds {
		if conn, exists := r.conns[connId]; exists {
			conns = append(conns, conn)
		}
	}

	return conns
}
