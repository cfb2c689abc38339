package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"sudooom.estate.chat/internal/presence"
	"sudooom.estate.chat/internal/push"
)

// Subscriber 推送请求消费者
// 从队列组消费推送请求，接收方不在会话中时才走 Web Push
type Subscriber struct {
	nc         *nats.Conn
	dispatcher *push.Dispatcher
	presence   *presence.Store
	logger     *slog.Logger

	sub *nats.Subscription
}

// NewSubscriber 创建推送请求消费者
func NewSubscriber(nc *nats.Conn, dispatcher *push.Dispatcher, presenceStore *presence.Store) *Subscriber {
	return &Subscriber{
		nc:         nc,
		dispatcher: dispatcher,
		presence:   presenceStore,
		logger:     slog.Default(),
	}
}

// Start 启动消费
func (s *Subscriber) Start(ctx context.Context) error {
	sub, err := s.nc.QueueSubscribe(SubjectPushNotify, QueueGroupPush, func(msg *nats.Msg) {
		s.handle(ctx, msg.Data)
	})
	if err != nil {
		return err
	}
	s.sub = sub
	s.logger.Info("Push subscriber started", "subject", SubjectPushNotify, "queue", QueueGroupPush)
	return nil
}

// Stop 停止消费
func (s *Subscriber) Stop() {
	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil {
			s.logger.Warn("Failed to unsubscribe", "error", err)
		}
	}
}

// handle 处理单条推送请求
// 扇出失败只记日志：推送是尽力而为，不向发送方回传错误
func (s *Subscriber) handle(ctx context.Context, data []byte) {
	var req PushRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.logger.Error("Failed to unmarshal push request", "error", err)
		return
	}

	// 接收方正打开着这个会话，站内事件已经送达，跳过 Web Push
	active, err := s.presence.IsActive(ctx, req.UserID, req.ConversationID)
	if err != nil {
		s.logger.Warn("Presence check failed, pushing anyway", "user_id", req.UserID, "error", err)
	}
	if active {
		s.logger.Debug("Recipient active in conversation, push skipped",
			"user_id", req.UserID,
			"conversation_id", req.ConversationID)
		return
	}

	result, err := s.dispatcher.SendToUser(ctx, req.UserID, &req.Notification)
	if err != nil {
		s.logger.Error("Push fan-out failed", "user_id", req.UserID, "error", err)
		return
	}

	s.logger.Info("Push notification dispatched",
		"user_id", req.UserID,
		"sent", result.Sent,
		"failed", result.Failed)
}
