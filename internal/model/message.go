package model

import "time"

// MessageType 消息类型
type MessageType string

const (
	MessageTypeText  MessageType = "text"  // 文本消息
	MessageTypeImage MessageType = "image" // 图片消息
)

// Valid 判断消息类型是否合法
func (t MessageType) Valid() bool {
	return t == MessageTypeText || t == MessageTypeImage
}

// MessageStatus 消息状态，只允许单向推进：sent -> delivered -> read
type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
)

// Rank 返回状态在状态机中的序号，用于禁止回退
func (s MessageStatus) Rank() int {
	switch s {
	case MessageStatusSent:
		return 0
	case MessageStatusDelivered:
		return 1
	case MessageStatusRead:
		return 2
	}
	return -1
}

// Valid 判断状态值是否合法
func (s MessageStatus) Valid() bool {
	return s.Rank() >= 0
}

// Message 会话内的一条消息
type Message struct {
	ID             int64         `json:"id"`
	ConversationID int64         `json:"conversationId"`
	SenderID       int64         `json:"senderId"`
	Type           MessageType   `json:"type"`
	Content        string        `json:"content,omitempty"`
	ImageURL       string        `json:"imageUrl,omitempty"`
	Status         MessageStatus `json:"status"`
	CreatedAt      time.Time     `json:"createdAt"`
	ReadAt         *time.Time    `json:"readAt,omitempty"`
}

// Preview 返回消息在会话列表中的预览文本
func (m *Message) Preview() string {
	if m.Type == MessageTypeImage {
		return "[图片]"
	}
	return m.Content
}
