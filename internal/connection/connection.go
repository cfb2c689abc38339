package connection

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"sudooom.estate.chat/internal/model"
)

var ErrConnectionClosed = errors.New("connection closed")

const (
	// 写超时
	writeWait = 10 * time.Second

	// 等待 pong 的超时，读循环按此设置读截止时间
	PongWait = 60 * time.Second

	// ping 周期，必须小于 PongWait
	pingPeriod = (PongWait * 9) / 10
)

var connIDCounter int64

// Connection 表示一个客户端 WebSocket 连接
// 握手认证后绑定身份，之后身份不再变化
type Connection struct {
	id         int64
	identity   *model.Identity
	ws         *websocket.Conn
	logger     *slog.Logger
	writeChan  chan []byte
	closeChan  chan struct{}
	closeOnce  sync.Once
	createTime time.Time
}

// New 包装一条已升级的 WebSocket 连接并启动写协程
func New(ws *websocket.Conn, logger *slog.Logger) *Connection {
	id := atomic.AddInt64(&connIDCounter, 1)
	c := &Connection{
		id:         id,
		ws:         ws,
		logger:     logger,
		writeChan:  make(chan []byte, 256),
		closeChan:  make(chan struct{}),
		createTime: time.Now(),
	}
	go c.writePump()
	return c
}

func (c *Connection) ID() int64 {
	return c.id
}

// BindIdentity 绑定已验证的身份
func (c *Connection) BindIdentity(identity *model.Identity) {
	c.identity = identity
}

func (c *Connection) Identity() *model.Identity {
	return c.identity
}

func (c *Connection) UserID() int64 {
	if c.identity == nil {
		return 0
	}
	return c.identity.ID
}

// Send 将数据放入发送队列，连接已关闭时返回错误
func (c *Connection) Send(data []byte) error {
	select {
	case c.writeChan <- data:
		return nil
	case <-c.closeChan:
		return ErrConnectionClosed
	}
}

// writePump 独占写端：串行发送队列数据并定期 ping
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.writeChan:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("Failed to write to connection", "conn_id", c.id, "error", err)
				c.Close()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.closeChan:
			return
		}
	}
}

// Close 关闭连接，可重复调用
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.closeChan)
		c.ws.Close()
	})
}

// Done 返回连接关闭信号
func (c *Connection) Done() <-chan struct{} {
	return c.closeChan
}

func (c *Connection) CreateTime() time.Time {
	return c.createTime
}
