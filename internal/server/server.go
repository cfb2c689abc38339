package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"sudooom.estate.chat/internal/auth"
	"sudooom.estate.chat/internal/chat"
	"sudooom.estate.chat/internal/connection"
	"sudooom.estate.chat/internal/handler"
	"sudooom.estate.chat/internal/model"
	"sudooom.estate.chat/internal/router"
	"sudooom.estate.chat/pkg/response"
)

// ConversationLister 上下线广播需要的会话查询
type ConversationLister interface {
	ListByParticipant(ctx context.Context, userID int64) ([]model.Conversation, error)
}

// Server WebSocket 接入网关
// 握手时验证一次身份，之后连接上的所有事件都以该身份为准
type Server struct {
	upgrader websocket.Upgrader
	verifier *auth.Verifier
	connMgr  *connection.Manager
	router   *router.Router
	handler  *handler.Handler
	convs    ConversationLister
	logger   *slog.Logger
}

// New 创建接入网关
func New(verifier *auth.Verifier, connMgr *connection.Manager, r *router.Router, h *handler.Handler, convs ConversationLister, allowedOrigins []string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = struct{}{}
	}

	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(req *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				_, ok := allowed[req.Header.Get("Origin")]
				return ok
			},
		},
		verifier: verifier,
		connMgr:  connMgr,
		router:   r,
		handler:  h,
		convs:    convs,
		logger:   logger,
	}
}

// HandleWS 处理 WebSocket 升级请求
// 凭证来自 token 查询参数或 Authorization 头；验证失败拒绝本次连接，返回 401
func (s *Server) HandleWS(c *gin.Context) {
	credential := c.Query("token")
	if credential == "" {
		credential = c.GetHeader("Authorization")
	}

	identity, err := s.verifier.Verify(credential)
	if err != nil {
		response.Unauthorized(c)
		return
	}

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	conn := connection.New(ws, s.logger)
	conn.BindIdentity(identity)

	s.connMgr.Add(conn)
	first := s.connMgr.BindUser(conn)
	s.router.OnConnect(conn)

	s.logger.Info("Connection established",
		"conn_id", conn.ID(),
		"user_id", identity.ID,
		"total", s.connMgr.Count())

	if first {
		go s.broadcastPresence(identity.ID, true)
	}

	s.readLoop(c.Request.Context(), conn, ws)
}

// readLoop 连接的读循环，退出即清理全部状态
func (s *Server) readLoop(ctx context.Context, conn *connection.Connection, ws *websocket.Conn) {
	defer func() {
		s.router.OnDisconnect(ctx, conn)
		last := s.connMgr.Remove(conn.ID())
		conn.Close()

		s.logger.Info("Connection closed", "conn_id", conn.ID(), "user_id", conn.UserID())

		if last {
			s.broadcastPresence(conn.UserID(), false)
		}
	}()

	ws.SetReadDeadline(time.Now().Add(connection.PongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(connection.PongWait))
		// 心跳顺带续期在场状态，长时间停留在会话页不因 TTL 误判离场
		s.router.RefreshPresence(ctx, conn)
		return nil
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("Unexpected close", "conn_id", conn.ID(), "error", err)
			}
			return
		}

		s.handler.HandleMessage(ctx, conn, data)
	}
}

// broadcastPresence 向该用户每个会话的对端广播上下线事件
func (s *Server) broadcastPresence(userID int64, online bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conversations, err := s.convs.ListByParticipant(ctx, userID)
	if err != nil {
		s.logger.Warn("Failed to list conversations for presence broadcast", "user_id", userID, "error", err)
		return
	}

	event := chat.EventUserOnline
	if !online {
		event = chat.EventUserOffline
	}

	notified := make(map[int64]struct{}, len(conversations))
	for _, conv := range conversations {
		peerID := conv.PeerOf(userID)
		if _, ok := notified[peerID]; ok {
			continue
		}
		notified[peerID] = struct{}{}
		s.router.BroadcastToUser(peerID, event, chat.PresencePayload{UserID: userID})
	}
}
