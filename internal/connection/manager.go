package connection

import (
	"sync"
)

// Manager 管理所有连接
// 一个用户可以同时持有多条连接（多设备）
type Manager struct {
	connections map[int64]*Connection
	userConns   map[int64]map[int64]*Connection // userID -> connID -> Connection
	mu          sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		connections: make(map[int64]*Connection),
		userConns:   make(map[int64]map[int64]*Connection),
	}
}

func (m *Manager) Add(conn *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[conn.ID()] = conn
}

// Remove 移除连接，返回该用户是否已无存活连接
func (m *Manager) Remove(connID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.connections[connID]
	if !ok {
		return false
	}

	delete(m.connections, connID)

	// 从用户连接映射中移除
	if conn.UserID() > 0 {
		if userConns, ok := m.userConns[conn.UserID()]; ok {
			delete(userConns, connID)
			if len(userConns) == 0 {
				delete(m.userConns, conn.UserID())
				return true
			}
		}
	}
	return false
}

func (m *Manager) Get(connID int64) *Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connections[connID]
}

// BindUser 将连接登记到用户索引，返回这是否是该用户的首条连接
func (m *Manager) BindUser(conn *Connection) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	userID := conn.UserID()
	if userID <= 0 {
		return false
	}

	first := len(m.userConns[userID]) == 0
	if _, ok := m.userConns[userID]; !ok {
		m.userConns[userID] = make(map[int64]*Connection)
	}
	m.userConns[userID][conn.ID()] = conn
	return first
}

func (m *Manager) GetByUserID(userID int64) []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	userConns, ok := m.userConns[userID]
	if !ok {
		return nil
	}

	conns := make([]*Connection, 0, len(userConns))
	for _, conn := range userConns {
		conns = append(conns, conn)
	}
	return conns
}

// IsOnline 判断用户是否有存活连接
func (m *Manager) IsOnline(userID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.userConns[userID]) > 0
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}
