package handler

import (
	"encoding/json"

	"sudooom.estate.chat/internal/chat"
	"sudooom.estate.chat/internal/connection"
	apperrors "sudooom.estate.chat/internal/errors"
)

// handleTyping 处理输入状态
// 只转发给房间内其他连接，发起方不收自己的回声；不落库
func (h *Handler) handleTyping(conn *connection.Connection, data []byte, started bool) {
	var req chat.TypingReq
	if err := json.Unmarshal(data, &req); err != nil {
		h.sendError(conn, apperrors.ErrInvalidParams.Wrap(err))
		return
	}

	h.router.RelayTyping(conn, req.ConversationID, started)
}
