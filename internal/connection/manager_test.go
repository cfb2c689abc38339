package connection

import (
	"testing"

	"sudooom.estate.chat/internal/model"
)

// newTestConnection 构造不带底层 WebSocket 的连接，仅测试管理器索引
func newTestConnection(id, userID int64) *Connection {
	return &Connection{
		id:        id,
		identity:  &model.Identity{ID: userID},
		writeChan: make(chan []byte, 1),
		closeChan: make(chan struct{}),
	}
}

func TestManager_AddRemove(t *testing.T) {
	m := NewManager()

	conn := newTestConnection(1, 100)
	m.Add(conn)

	if m.Count() != 1 {
		t.Errorf("Expected count 1, got %d", m.Count())
	}
	if m.Get(1) != conn {
		t.Error("Expected to get the added connection")
	}

	m.Remove(1)
	if m.Count() != 0 {
		t.Errorf("Expected count 0 after remove, got %d", m.Count())
	}
	if m.Get(1) != nil {
		t.Error("Expected nil after remove")
	}
}

func TestManager_MultiDevice(t *testing.T) {
	m := NewManager()

	phone := newTestConnection(1, 100)
	laptop := newTestConnection(2, 100)

	m.Add(phone)
	if first := m.BindUser(phone); !first {
		t.Error("Expected first connection to report first=true")
	}

	m.Add(laptop)
	if first := m.BindUser(laptop); first {
		t.Error("Expected second connection to report first=false")
	}

	if !m.IsOnline(100) {
		t.Error("Expected user to be online")
	}
	if conns := m.GetByUserID(100); len(conns) != 2 {
		t.Errorf("Expected 2 connections for user, got %d", len(conns))
	}

	// 移除一条连接后用户仍在线
	if last := m.Remove(1); last {
		t.Error("Expected user to remain online after removing one connection")
	}
	if !m.IsOnline(100) {
		t.Error("Expected user to still be online")
	}

	// 移除最后一条连接后用户离线
	if last := m.Remove(2); !last {
		t.Error("Expected removing last connection to report last=true")
	}
	if m.IsOnline(100) {
		t.Error("Expected user to be offline")
	}
	if conns := m.GetByUserID(100); conns != nil {
		t.Errorf("Expected nil connections, got %d", len(conns))
	}
}

func TestManager_RemoveUnknown(t *testing.T) {
	m := NewManager()

	if last := m.Remove(404); last {
		t.Error("Expected removing unknown connection to report last=false")
	}
}
