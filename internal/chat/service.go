package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	apperrors "sudooom.estate.chat/internal/errors"
	"sudooom.estate.chat/internal/model"
	"sudooom.estate.chat/internal/repository"
)

// ConversationStore 会话存储依赖
type ConversationStore interface {
	GetByID(ctx context.Context, id int64) (*model.Conversation, error)
	GetForParticipant(ctx context.Context, userID, conversationID int64) (*model.Conversation, error)
	ApplyMessage(ctx context.Context, conversationID int64, preview string, recipientID int64, at time.Time) error
	ResetUnread(ctx context.Context, conversationID, readerID int64) error
}

// MessageStore 消息存储依赖
type MessageStore interface {
	Create(ctx context.Context, msg *model.Message) error
	GetByID(ctx context.Context, id int64) (*model.Message, error)
	AdvanceStatus(ctx context.Context, id int64, status model.MessageStatus) (bool, error)
	MarkConversationRead(ctx context.Context, conversationID, readerID int64, at time.Time) (int64, error)
}

// Service 消息生命周期服务
// 消息状态和会话未读数只允许经由这里变更
type Service struct {
	convs  ConversationStore
	msgs   MessageStore
	logger *slog.Logger
}

// NewService 创建消息生命周期服务
func NewService(convs ConversationStore, msgs MessageStore) *Service {
	return &Service{
		convs:  convs,
		msgs:   msgs,
		logger: slog.Default(),
	}
}

// mapConversationErr 把仓库哨兵错误映射为业务错误
func mapConversationErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrConversationNotFound):
		return apperrors.ErrConversationNotFound
	case errors.Is(err, repository.ErrNotParticipant):
		return apperrors.ErrNotParticipant
	default:
		return apperrors.ErrDBError.Wrap(err)
	}
}

// validateMessage 按消息类型校验负载
// 文本必须有内容，图片必须有 URL
func validateMessage(req *SendMessageReq) error {
	if !req.Type.Valid() {
		return apperrors.ErrInvalidMessage
	}
	switch req.Type {
	case model.MessageTypeText:
		if strings.TrimSpace(req.Content) == "" {
			return apperrors.ErrInvalidMessage
		}
	case model.MessageTypeImage:
		if req.ImageURL == "" {
			return apperrors.ErrInvalidMessage
		}
	}
	return nil
}

// SendMessage 创建消息并更新会话聚合
// 返回创建的消息和更新后的会话投影（含接收方最新未读数）
func (s *Service) SendMessage(ctx context.Context, sender *model.Identity, req SendMessageReq) (*model.Message, *model.Conversation, error) {
	conv, err := s.convs.GetForParticipant(ctx, sender.ID, req.ConversationID)
	if err != nil {
		return nil, nil, mapConversationErr(err)
	}

	if err := validateMessage(&req); err != nil {
		return nil, nil, err
	}

	msg := &model.Message{
		ConversationID: conv.ID,
		SenderID:       sender.ID,
		Type:           req.Type,
		Content:        strings.TrimSpace(req.Content),
		ImageURL:       req.ImageURL,
		Status:         model.MessageStatusSent,
	}
	if err := s.msgs.Create(ctx, msg); err != nil {
		return nil, nil, apperrors.ErrDBError.Wrap(err)
	}

	recipientID := conv.PeerOf(sender.ID)
	if err := s.convs.ApplyMessage(ctx, conv.ID, msg.Preview(), recipientID, msg.CreatedAt); err != nil {
		return nil, nil, apperrors.ErrDBError.Wrap(err)
	}

	// 重新读取会话投影，广播时带上最新未读数
	conv, err = s.convs.GetByID(ctx, conv.ID)
	if err != nil {
		return nil, nil, apperrors.ErrDBError.Wrap(err)
	}

	s.logger.Info("Message created",
		"message_id", msg.ID,
		"conversation_id", conv.ID,
		"sender_id", sender.ID,
		"type", msg.Type)

	return msg, conv, nil
}

// UpdateMessageStatus 推进消息状态
// 状态机只前进不回退；目标状态已达到或已越过时是幂等空操作
// 返回消息本体和是否实际发生了变更
func (s *Service) UpdateMessageStatus(ctx context.Context, messageID int64, status model.MessageStatus) (*model.Message, bool, error) {
	if !status.Valid() {
		return nil, false, apperrors.ErrInvalidParams
	}

	msg, err := s.msgs.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			return nil, false, apperrors.ErrMessageNotFound
		}
		return nil, false, apperrors.ErrDBError.Wrap(err)
	}

	applied, err := s.msgs.AdvanceStatus(ctx, messageID, status)
	if err != nil {
		return nil, false, apperrors.ErrDBError.Wrap(err)
	}
	if applied {
		msg.Status = status
		if status == model.MessageStatusRead && msg.ReadAt == nil {
			now := time.Now()
			msg.ReadAt = &now
		}
	}
	return msg, applied, nil
}

// MarkMessagesAsRead 批量已读：对方发出的所有未读消息置为已读，读者未读数清零
// 返回置为已读的消息数
func (s *Service) MarkMessagesAsRead(ctx context.Context, reader *model.Identity, conversationID int64) (int64, error) {
	if _, err := s.convs.GetForParticipant(ctx, reader.ID, conversationID); err != nil {
		return 0, mapConversationErr(err)
	}

	count, err := s.msgs.MarkConversationRead(ctx, conversationID, reader.ID, time.Now())
	if err != nil {
		return 0, apperrors.ErrDBError.Wrap(err)
	}

	if err := s.convs.ResetUnread(ctx, conversationID, reader.ID); err != nil {
		return 0, apperrors.ErrDBError.Wrap(err)
	}

	s.logger.Debug("Messages marked as read",
		"conversation_id", conversationID,
		"reader_id", reader.ID,
		"count", count)

	return count, nil
}
