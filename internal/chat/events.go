package chat

import (
	"encoding/json"

	"sudooom.estate.chat/internal/model"
)

// 客户端 -> 服务端事件
const (
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventSendMessage       = "send_message"
	EventTypingStart       = "typing_start"
	EventTypingStop        = "typing_stop"
	EventMessageDelivered  = "message_delivered"
	EventMessagesRead      = "messages_read"
)

// 服务端 -> 客户端事件
const (
	EventJoinedConversation   = "joined_conversation"
	EventNewMessage           = "new_message"
	EventMessageNotification  = "message_notification"
	EventMessageStatusUpdated = "message_status_updated"
	EventUserTyping           = "user_typing"
	EventUserStoppedTyping    = "user_stopped_typing"
	EventUserOnline           = "user_online"
	EventUserOffline          = "user_offline"
	EventError                = "error"
)

// Envelope 事件信封，所有出入站帧统一为 {event, data}
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode 序列化一个出站事件
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// ============== 入站事件负载 ==============

// JoinConversationReq 加入会话请求
type JoinConversationReq struct {
	ConversationID int64 `json:"conversationId"`
}

// LeaveConversationReq 离开会话请求
type LeaveConversationReq struct {
	ConversationID int64 `json:"conversationId"`
}

// SendMessageReq 发送消息请求
type SendMessageReq struct {
	ConversationID int64             `json:"conversationId"`
	Type           model.MessageType `json:"type"`
	Content        string            `json:"content,omitempty"`
	ImageURL       string            `json:"imageUrl,omitempty"`
}

// TypingReq 输入状态请求
type TypingReq struct {
	ConversationID int64 `json:"conversationId"`
}

// MessageDeliveredReq 送达确认请求
type MessageDeliveredReq struct {
	MessageID int64 `json:"messageId"`
}

// MessagesReadReq 批量已读请求
type MessagesReadReq struct {
	ConversationID int64 `json:"conversationId"`
}

// ============== 出站事件负载 ==============

// JoinedConversationPayload 加入会话确认，仅发给请求方
type JoinedConversationPayload struct {
	Conversation *model.Conversation `json:"conversation"`
}

// NewMessagePayload 新消息广播
type NewMessagePayload struct {
	Message *model.Message `json:"message"`
}

// NotificationPayload 发给接收方个人房间的消息通知
// 附带会话投影，客户端无需再拉取未读数
type NotificationPayload struct {
	Message      *model.Message      `json:"message"`
	Conversation *model.Conversation `json:"conversation"`
}

// StatusUpdatedPayload 消息状态变更广播
type StatusUpdatedPayload struct {
	MessageID      int64               `json:"messageId"`
	ConversationID int64               `json:"conversationId"`
	Status         model.MessageStatus `json:"status"`
}

// TypingPayload 输入状态广播
type TypingPayload struct {
	ConversationID int64 `json:"conversationId"`
	UserID         int64 `json:"userId"`
}

// MessagesReadPayload 已读广播，标明读者方便对端本地核销
type MessagesReadPayload struct {
	ConversationID int64 `json:"conversationId"`
	ReaderID       int64 `json:"readerId"`
}

// PresencePayload 用户上下线广播
type PresencePayload struct {
	UserID int64 `json:"userId"`
}

// ErrorPayload 定向错误事件，仅发给出错的那条连接
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
