package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"sudooom.estate.chat/internal/chat"
	"sudooom.estate.chat/internal/connection"
	apperrors "sudooom.estate.chat/internal/errors"
	"sudooom.estate.chat/internal/model"
	"sudooom.estate.chat/internal/notify"
	"sudooom.estate.chat/internal/push"
)

// handleJoinConversation 处理加入会话请求
// 鉴权由路由器完成；确认只发给请求方，拒绝也只发给请求方
func (h *Handler) handleJoinConversation(ctx context.Context, conn *connection.Connection, data []byte) {
	var req chat.JoinConversationReq
	if err := json.Unmarshal(data, &req); err != nil {
		h.sendError(conn, apperrors.ErrInvalidParams.Wrap(err))
		return
	}

	conv, err := h.router.JoinConversation(ctx, conn, req.ConversationID)
	if err != nil {
		h.sendError(conn, err)
		return
	}

	h.sendTo(conn, chat.EventJoinedConversation, chat.JoinedConversationPayload{Conversation: conv})
}

// handleLeaveConversation 处理离开会话请求，无需确认
func (h *Handler) handleLeaveConversation(ctx context.Context, conn *connection.Connection, data []byte) {
	var req chat.LeaveConversationReq
	if err := json.Unmarshal(data, &req); err != nil {
		h.sendError(conn, apperrors.ErrInvalidParams.Wrap(err))
		return
	}

	h.router.LeaveConversation(ctx, conn, req.ConversationID)
}

// handleSendMessage 处理发送消息请求
// 落库成功后才广播：房间内所有成员收到 new_message，
// 接收方个人房间另收 message_notification，并进入推送管线
func (h *Handler) handleSendMessage(ctx context.Context, conn *connection.Connection, data []byte) {
	var req chat.SendMessageReq
	if err := json.Unmarshal(data, &req); err != nil {
		h.sendError(conn, apperrors.ErrInvalidParams.Wrap(err))
		return
	}

	sender := conn.Identity()
	msg, conv, err := h.chatSvc.SendMessage(ctx, sender, req)
	if err != nil {
		h.sendError(conn, err)
		return
	}

	h.router.BroadcastToConversation(conv.ID, chat.EventNewMessage, chat.NewMessagePayload{Message: msg})

	recipientID := conv.PeerOf(sender.ID)
	h.router.BroadcastToUser(recipientID, chat.EventMessageNotification, chat.NotificationPayload{
		Message:      msg,
		Conversation: conv,
	})

	h.publishPushRequest(sender.Email, recipientID, conv.ID, msg)
}

// handleMessageDelivered 处理送达确认
// 状态机只前进；重复或乱序的确认是幂等空操作，不广播
func (h *Handler) handleMessageDelivered(ctx context.Context, conn *connection.Connection, data []byte) {
	var req chat.MessageDeliveredReq
	if err := json.Unmarshal(data, &req); err != nil {
		h.sendError(conn, apperrors.ErrInvalidParams.Wrap(err))
		return
	}

	msg, applied, err := h.chatSvc.UpdateMessageStatus(ctx, req.MessageID, model.MessageStatusDelivered)
	if err != nil {
		h.sendError(conn, err)
		return
	}
	if !applied {
		return
	}

	h.router.BroadcastToConversation(msg.ConversationID, chat.EventMessageStatusUpdated, chat.StatusUpdatedPayload{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		Status:         msg.Status,
	})
}

// handleMessagesRead 处理批量已读
// 广播标明读者，对端客户端据此把自己发出的消息本地置为已读
func (h *Handler) handleMessagesRead(ctx context.Context, conn *connection.Connection, data []byte) {
	var req chat.MessagesReadReq
	if err := json.Unmarshal(data, &req); err != nil {
		h.sendError(conn, apperrors.ErrInvalidParams.Wrap(err))
		return
	}

	reader := conn.Identity()
	if _, err := h.chatSvc.MarkMessagesAsRead(ctx, reader, req.ConversationID); err != nil {
		h.sendError(conn, err)
		return
	}

	h.router.BroadcastToConversation(req.ConversationID, chat.EventMessagesRead, chat.MessagesReadPayload{
		ConversationID: req.ConversationID,
		ReaderID:       reader.ID,
	})
}

// publishPushRequest 把新消息的推送请求送入推送管线
// 发布失败只记日志：推送是尽力而为，不影响消息本身
func (h *Handler) publishPushRequest(senderEmail string, recipientID, conversationID int64, msg *model.Message) {
	req := &notify.PushRequest{
		UserID:         recipientID,
		ConversationID: conversationID,
		Notification: push.Notification{
			Title: senderEmail,
			Body:  msg.Preview(),
			Tag:   fmt.Sprintf("conversation-%d", conversationID),
			Data: map[string]any{
				"conversationId": conversationID,
				"messageId":      msg.ID,
			},
		},
	}
	if err := h.publisher.PublishPush(req); err != nil {
		h.logger.Error("Failed to publish push request", "user_id", recipientID, "error", err)
	}
}
