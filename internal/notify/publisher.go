package notify

import (
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"sudooom.estate.chat/internal/push"
)

// PushRequest 推送请求：消息提交之后进入推送管线的任务
type PushRequest struct {
	UserID         int64             `json:"userId"`
	ConversationID int64             `json:"conversationId"`
	Notification   push.Notification `json:"notification"`
}

// Publisher 推送请求发布器
type Publisher struct {
	nc     *nats.Conn
	logger *slog.Logger
}

// NewPublisher 创建推送请求发布器
func NewPublisher(nc *nats.Conn) *Publisher {
	return &Publisher{
		nc:     nc,
		logger: slog.Default(),
	}
}

// PublishPush 发布推送请求到推送管线
func (p *Publisher) PublishPush(req *PushRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		p.logger.Error("Failed to marshal push request", "error", err)
		return err
	}

	if err := p.nc.Publish(SubjectPushNotify, data); err != nil {
		p.logger.Error("Failed to publish push request", "user_id", req.UserID, "error", err)
		return err
	}

	p.logger.Debug("Push request published", "user_id", req.UserID, "conversation_id", req.ConversationID)
	return nil
}
