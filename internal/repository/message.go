package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sudooom.estate.chat/internal/model"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository 消息数据访问
type MessageRepository struct {
	db *pgxpool.Pool
}

// NewMessageRepository 创建消息仓库
func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create 保存新消息，回填 ID 和创建时间
func (r *MessageRepository) Create(ctx context.Context, msg *model.Message) error {
	query := `
		INSERT INTO messages (conversation_id, sender_id, msg_type, content, image_url, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, created_at
	`
	return r.db.QueryRow(ctx, query,
		msg.ConversationID,
		msg.SenderID,
		msg.Type,
		msg.Content,
		msg.ImageURL,
		msg.Status,
	).Scan(&msg.ID, &msg.CreatedAt)
}

// GetByID 通过 ID 获取消息
func (r *MessageRepository) GetByID(ctx context.Context, id int64) (*model.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, msg_type, content, image_url, status, created_at, read_at
		FROM messages WHERE id = $1
	`
	msg := &model.Message{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.SenderID,
		&msg.Type,
		&msg.Content,
		&msg.ImageURL,
		&msg.Status,
		&msg.CreatedAt,
		&msg.ReadAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return msg, nil
}

// AdvanceStatus 条件更新消息状态，只允许前进，不允许回退
// 返回是否实际发生了状态变更；目标状态已达到或已越过时返回 false（幂等）
func (r *MessageRepository) AdvanceStatus(ctx context.Context, id int64, status model.MessageStatus) (bool, error) {
	query := `
		UPDATE messages SET
			status = $2,
			read_at = CASE WHEN $2 = 'read' THEN NOW() ELSE read_at END
		WHERE id = $1
		  AND CASE status WHEN 'sent' THEN 0 WHEN 'delivered' THEN 1 ELSE 2 END
		    < CASE $2::text WHEN 'sent' THEN 0 WHEN 'delivered' THEN 1 ELSE 2 END
	`
	result, err := r.db.Exec(ctx, query, id, status)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// MarkConversationRead 将会话中对方发出的所有未读消息置为已读
// 返回受影响的消息数
func (r *MessageRepository) MarkConversationRead(ctx context.Context, conversationID, readerID int64, at time.Time) (int64, error) {
	query := `
		UPDATE messages SET status = 'read', read_at = $3
		WHERE conversation_id = $1 AND sender_id <> $2 AND status <> 'read'
	`
	result, err := r.db.Exec(ctx, query, conversationID, readerID, at)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// ListByConversation 分页获取会话消息，按时间正序
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID int64, limit, offset int) ([]model.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, msg_type, content, image_url, status, created_at, read_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, conversationID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]model.Message, 0, limit)
	for rows.Next() {
		msg := model.Message{}
		err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.SenderID,
			&msg.Type,
			&msg.Content,
			&msg.ImageURL,
			&msg.Status,
			&msg.CreatedAt,
			&msg.ReadAt,
		)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
