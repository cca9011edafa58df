package rpc

import (
	"fmt"
	"sync"
)

// ConnectionHub indexes live connections by id and by peer role. Several
// connections may share a role, e.g. two UI windows; Publish fans out to all
// of them.
type ConnectionHub struct {
	connections map[string]Connection
	roles       map[string]map[string]struct{}
	mu          sync.RWMutex
}

func NewConnectionHub() *ConnectionHub {
	return &ConnectionHub{
		connections: make(map[string]Connection),
		roles:       make(map[string]map[string]struct{}),
	}
}

// Add registers conn. Connection ids are unique within the hub.
func (hub *ConnectionHub) Add(conn Connection) error {
	if conn == nil {
		return fmt.Errorf("connection cannot be nil")
	}

	connID := conn.ConnectionID()
	role := conn.Role()

	hub.mu.Lock()
	defer hub.mu.Unlock()

	if _, exists := hub.connections[connID]; exists {
		return fmt.Errorf("connection with ID %s already exists", connID)
	}
	hub.connections[connID] = conn

	if _, exists := hub.roles[role]; !exists {
		hub.roles[role] = make(map[string]struct{})
	}
	hub.roles[role][connID] = struct{}{}
	return nil
}

// Get returns the connection with connID, or nil.
func (hub *ConnectionHub) Get(connID string) Connection {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	return hub.connections[connID]
}

// Remove unregisters a connection; unknown ids are ignored.
func (hub *ConnectionHub) Remove(connID string) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	conn, ok := hub.connections[connID]
	if !ok {
		return
	}
	delete(hub.connections, connID)

	role := conn.Role()
	if conns, exists := hub.roles[role]; exists {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(hub.roles, role)
		}
	}
}

// Count returns the number of live connections with role.
func (hub *ConnectionHub) Count(role string) int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	return len(hub.roles[role])
}

// Publish writes message to every connection with role and returns how many
// of them accepted it.
func (hub *ConnectionHub) Publish(role string, message []byte) int {
	hub.mu.RLock()
	conns := make([]Connection, 0, len(hub.roles[role]))
	for connID := range hub.roles[role] {
		if conn := hub.connections[connID]; conn != nil {
			conns = append(conns, conn)
		}
	}
	hub.mu.RUnlock()

	delivered := 0
	for _, conn := range conns {
		if conn.WriteRawMessage(message) {
			delivered++
		}
	}
	return delivered
}
