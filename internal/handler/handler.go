package handler

import (
	"context"
	"encoding/json"
	"log/slog"

	"sudooom.estate.chat/internal/chat"
	"sudooom.estate.chat/internal/connection"
	apperrors "sudooom.estate.chat/internal/errors"
	"sudooom.estate.chat/internal/notify"
	"sudooom.estate.chat/internal/router"
	"sudooom.estate.chat/internal/workerpool"
)

// PushPublisher 推送管线入口
type PushPublisher interface {
	PublishPush(req *notify.PushRequest) error
}

// Handler 入站事件处理器
// 事件是封闭集合：每种事件一个类型化负载，经穷举分发处理
type Handler struct {
	router     *router.Router
	chatSvc    *chat.Service
	publisher  PushPublisher
	workerPool *workerpool.Pool
	logger     *slog.Logger
}

// NewHandler 创建事件处理器
func NewHandler(r *router.Router, chatSvc *chat.Service, publisher PushPublisher, pool *workerpool.Pool, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		router:     r,
		chatSvc:    chatSvc,
		publisher:  publisher,
		workerPool: pool,
		logger:     logger,
	}
}

// HandleMessage 处理一帧入站数据
// 异步提交到 Worker Pool：单个事件里的阻塞 I/O 不影响其他连接
func (h *Handler) HandleMessage(ctx context.Context, conn *connection.Connection, data []byte) {
	var env chat.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		h.sendError(conn, apperrors.ErrInvalidParams.Wrap(err))
		return
	}

	submitted := h.workerPool.Submit(func() {
		h.dispatch(ctx, conn, &env)
	})
	if !submitted {
		h.logger.Warn("Worker pool is shutting down, event dropped", "event", env.Event, "conn_id", conn.ID())
	}
}

// dispatch 按事件名穷举分发
func (h *Handler) dispatch(ctx context.Context, conn *connection.Connection, env *chat.Envelope) {
	switch env.Event {
	case chat.EventJoinConversation:
		h.handleJoinConversation(ctx, conn, env.Data)
	case chat.EventLeaveConversation:
		h.handleLeaveConversation(ctx, conn, env.Data)
	case chat.EventSendMessage:
		h.handleSendMessage(ctx, conn, env.Data)
	case chat.EventTypingStart:
		h.handleTyping(conn, env.Data, true)
	case chat.EventTypingStop:
		h.handleTyping(conn, env.Data, false)
	case chat.EventMessageDelivered:
		h.handleMessageDelivered(ctx, conn, env.Data)
	case chat.EventMessagesRead:
		h.handleMessagesRead(ctx, conn, env.Data)
	default:
		h.logger.Warn("Unknown event", "event", env.Event, "conn_id", conn.ID())
		h.sendError(conn, apperrors.ErrInvalidParams)
	}
}

// sendError 向出错的那条连接定向发送错误事件
// 业务失败不影响连接本身，套接字保持打开
func (h *Handler) sendError(conn *connection.Connection, err error) {
	data, encodeErr := chat.Encode(chat.EventError, chat.ErrorPayload{
		Code:    apperrors.GetCode(err),
		Message: apperrors.GetMessage(err),
	})
	if encodeErr != nil {
		h.logger.Error("Failed to encode error event", "error", encodeErr)
		return
	}
	if sendErr := conn.Send(data); sendErr != nil {
		h.logger.Debug("Failed to deliver error event", "conn_id", conn.ID(), "error", sendErr)
	}
}

// sendTo 向指定连接定向发送事件
func (h *Handler) sendTo(conn *connection.Connection, event string, payload any) {
	data, err := chat.Encode(event, payload)
	if err != nil {
		h.logger.Error("Failed to encode event", "event", event, "error", err)
		return
	}
	if err := conn.Send(data); err != nil {
		h.logger.Debug("Failed to deliver event", "event", event, "conn_id", conn.ID(), "error", err)
	}
}
