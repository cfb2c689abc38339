package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"sudooom.estate.chat/internal/chat"
	apperrors "sudooom.estate.chat/internal/errors"
	"sudooom.estate.chat/internal/model"
	"sudooom.estate.chat/internal/repository"
)

// Sender 路由器眼中的连接：只负责把序列化好的事件送达
type Sender interface {
	ID() int64
	UserID() int64
	Send(data []byte) error
}

// Authorizer 会话参与者鉴权
type Authorizer interface {
	GetForParticipant(ctx context.Context, userID, conversationID int64) (*model.Conversation, error)
}

// Presence 在场状态登记，进出会话房间时维护
type Presence interface {
	EnterConversation(ctx context.Context, userID, conversationID int64) error
	LeaveConversation(ctx context.Context, userID, conversationID int64) error
	Refresh(ctx context.Context, userID, conversationID int64) error
}

// UserRoom 构建个人房间标签
func UserRoom(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

// ConversationRoom 构建会话房间标签
func ConversationRoom(conversationID int64) string {
	return fmt.Sprintf("conversation:%d", conversationID)
}

// Router 事件路由器，独占管理连接与房间的拓扑
// 房间是纯内存状态，连接断开即全部回收
type Router struct {
	mu    sync.RWMutex
	rooms map[string]map[int64]Sender   // room tag -> connID -> Sender
	conns map[int64]map[string]struct{} // connID -> room tags

	authorizer Authorizer
	presence   Presence
	logger     *slog.Logger
}

// New 创建事件路由器
func New(authorizer Authorizer, presence Presence, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		rooms:      make(map[string]map[int64]Sender),
		conns:      make(map[int64]map[string]struct{}),
		authorizer: authorizer,
		presence:   presence,
		logger:     logger,
	}
}

// OnConnect 连接认证完成后调用：自动加入个人房间
// 个人房间承载跨设备的身份级投递，与会话成员资格无关
func (r *Router) OnConnect(s Sender) {
	r.join(s, UserRoom(s.UserID()))
	r.logger.Debug("Connection joined personal room", "conn_id", s.ID(), "user_id", s.UserID())
}

// OnDisconnect 断开时无条件回收该连接的全部房间成员资格
func (r *Router) OnDisconnect(ctx context.Context, s Sender) {
	r.mu.Lock()
	tags := r.conns[s.ID()]
	delete(r.conns, s.ID())
	convIDs := make([]int64, 0, len(tags))
	for tag := range tags {
		if members, ok := r.rooms[tag]; ok {
			delete(members, s.ID())
			if len(members) == 0 {
				delete(r.rooms, tag)
			}
		}
		var convID int64
		if _, err := fmt.Sscanf(tag, "conversation:%d", &convID); err == nil {
			convIDs = append(convIDs, convID)
		}
	}
	r.mu.Unlock()

	for _, convID := range convIDs {
		if err := r.presence.LeaveConversation(ctx, s.UserID(), convID); err != nil {
			r.logger.Warn("Failed to clear presence on disconnect", "user_id", s.UserID(), "conversation_id", convID, "error", err)
		}
	}
}

// JoinConversation 鉴权通过后把连接加入会话房间
// 鉴权失败只影响请求方：返回错误，不产生任何状态变更
func (r *Router) JoinConversation(ctx context.Context, s Sender, conversationID int64) (*model.Conversation, error) {
	conv, err := r.authorizer.GetForParticipant(ctx, s.UserID(), conversationID)
	if err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			return nil, apperrors.ErrConversationNotFound
		}
		if errors.Is(err, repository.ErrNotParticipant) {
			return nil, apperrors.ErrNotParticipant
		}
		return nil, apperrors.ErrDBError.Wrap(err)
	}

	r.join(s, ConversationRoom(conversationID))

	if err := r.presence.EnterConversation(ctx, s.UserID(), conversationID); err != nil {
		r.logger.Warn("Failed to register presence", "user_id", s.UserID(), "conversation_id", conversationID, "error", err)
	}

	r.logger.Debug("Connection joined conversation room",
		"conn_id", s.ID(),
		"user_id", s.UserID(),
		"conversation_id", conversationID)
	return conv, nil
}

// LeaveConversation 离开会话房间，离开不需要重新鉴权
func (r *Router) LeaveConversation(ctx context.Context, s Sender, conversationID int64) {
	r.leave(s, ConversationRoom(conversationID))

	if err := r.presence.LeaveConversation(ctx, s.UserID(), conversationID); err != nil {
		r.logger.Warn("Failed to clear presence", "user_id", s.UserID(), "conversation_id", conversationID, "error", err)
	}
}

// BroadcastToConversation 向会话房间内所有连接投递事件
func (r *Router) BroadcastToConversation(conversationID int64, event string, payload any) {
	r.broadcast(ConversationRoom(conversationID), event, payload, 0)
}

// BroadcastToUser 向用户个人房间的全部连接（多设备）投递事件
func (r *Router) BroadcastToUser(userID int64, event string, payload any) {
	r.broadcast(UserRoom(userID), event, payload, 0)
}

// RelayTyping 转发输入状态给房间内其他连接，发起方不收到自己的回声
// 纯瞬态信号，不落库，不保证与并发消息的先后顺序
func (r *Router) RelayTyping(from Sender, conversationID int64, started bool) {
	event := chat.EventUserTyping
	if !started {
		event = chat.EventUserStoppedTyping
	}
	payload := chat.TypingPayload{
		ConversationID: conversationID,
		UserID:         from.UserID(),
	}
	r.broadcast(ConversationRoom(conversationID), event, payload, from.ID())
}

// join 把连接加入房间
func (r *Router) join(s Sender, tag string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[tag]; !ok {
		r.rooms[tag] = make(map[int64]Sender)
	}
	r.rooms[tag][s.ID()] = s

	if _, ok := r.conns[s.ID()]; !ok {
		r.conns[s.ID()] = make(map[string]struct{})
	}
	r.conns[s.ID()][tag] = struct{}{}
}

// leave 把连接移出房间
func (r *Router) leave(s Sender, tag string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if members, ok := r.rooms[tag]; ok {
		delete(members, s.ID())
		if len(members) == 0 {
			delete(r.rooms, tag)
		}
	}
	if tags, ok := r.conns[s.ID()]; ok {
		delete(tags, tag)
	}
}

// broadcast 向房间投递，excludeConnID > 0 时跳过该连接
// 单条连接发送失败只记日志，不影响其余成员
func (r *Router) broadcast(tag, event string, payload any, excludeConnID int64) {
	data, err := chat.Encode(event, payload)
	if err != nil {
		r.logger.Error("Failed to encode event", "event", event, "error", err)
		return
	}

	r.mu.RLock()
	members := make([]Sender, 0, len(r.rooms[tag]))
	for connID, s := range r.rooms[tag] {
		if connID == excludeConnID {
			continue
		}
		members = append(members, s)
	}
	r.mu.RUnlock()

	for _, s := range members {
		if err := s.Send(data); err != nil {
			r.logger.Debug("Failed to deliver event", "event", event, "conn_id", s.ID(), "error", err)
		}
	}
}

// RefreshPresence 续期该连接所在全部会话的在场状态，由心跳触发
func (r *Router) RefreshPresence(ctx context.Context, s Sender) {
	r.mu.RLock()
	convIDs := make([]int64, 0, len(r.conns[s.ID()]))
	for tag := range r.conns[s.ID()] {
		var convID int64
		if _, err := fmt.Sscanf(tag, "conversation:%d", &convID); err == nil {
			convIDs = append(convIDs, convID)
		}
	}
	r.mu.RUnlock()

	for _, convID := range convIDs {
		if err := r.presence.Refresh(ctx, s.UserID(), convID); err != nil {
			r.logger.Warn("Failed to refresh presence", "user_id", s.UserID(), "conversation_id", convID, "error", err)
		}
	}
}

// InRoom 判断用户是否有连接在指定会话房间内
func (r *Router) InRoom(userID, conversationID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.rooms[ConversationRoom(conversationID)] {
		if s.UserID() == userID {
			return true
		}
	}
	return false
}
