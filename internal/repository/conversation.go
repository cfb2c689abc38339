package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sudooom.estate.chat/internal/model"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNotParticipant       = errors.New("user is not a participant")
)

// ConversationRepository 会话数据访问
type ConversationRepository struct {
	db *pgxpool.Pool
}

// NewConversationRepository 创建会话仓库
func NewConversationRepository(db *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{db: db}
}

const conversationColumns = `
	id, property_id, buyer_id, seller_id, last_message, last_message_at,
	buyer_unread_count, seller_unread_count, created_at, updated_at
`

func scanConversation(row pgx.Row) (*model.Conversation, error) {
	conv := &model.Conversation{}
	err := row.Scan(
		&conv.ID,
		&conv.PropertyID,
		&conv.BuyerID,
		&conv.SellerID,
		&conv.LastMessage,
		&conv.LastMessageAt,
		&conv.BuyerUnreadCount,
		&conv.SellerUnreadCount,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return conv, nil
}

// GetByID 通过 ID 获取会话
func (r *ConversationRepository) GetByID(ctx context.Context, id int64) (*model.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`
	return scanConversation(r.db.QueryRow(ctx, query, id))
}

// GetForParticipant 获取会话并校验用户是参与者
// 用户不是买方或卖方时返回 ErrNotParticipant
func (r *ConversationRepository) GetForParticipant(ctx context.Context, userID, conversationID int64) (*model.Conversation, error) {
	conv, err := r.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.IsParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return conv, nil
}

// ListByParticipant 获取用户参与的所有会话，按最近消息倒序
func (r *ConversationRepository) ListByParticipant(ctx context.Context, userID int64) ([]model.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE buyer_id = $1 OR seller_id = $1
		ORDER BY last_message_at DESC NULLS LAST
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conversations := make([]model.Conversation, 0)
	for rows.Next() {
		conv := model.Conversation{}
		err := rows.Scan(
			&conv.ID,
			&conv.PropertyID,
			&conv.BuyerID,
			&conv.SellerID,
			&conv.LastMessage,
			&conv.LastMessageAt,
			&conv.BuyerUnreadCount,
			&conv.SellerUnreadCount,
			&conv.CreatedAt,
			&conv.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

// ApplyMessage 新消息落库后更新会话聚合：最近消息预览 + 接收方未读数 +1
func (r *ConversationRepository) ApplyMessage(ctx context.Context, conversationID int64, preview string, recipientID int64, at time.Time) error {
	query := `
		UPDATE conversations SET
			last_message = $2,
			last_message_at = $3,
			buyer_unread_count = buyer_unread_count + CASE WHEN buyer_id = $4 THEN 1 ELSE 0 END,
			seller_unread_count = seller_unread_count + CASE WHEN seller_id = $4 THEN 1 ELSE 0 END,
			updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, conversationID, preview, at, recipientID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// ResetUnread 将指定参与者的未读数清零
func (r *ConversationRepository) ResetUnread(ctx context.Context, conversationID, readerID int64) error {
	query := `
		UPDATE conversations SET
			buyer_unread_count = CASE WHEN buyer_id = $2 THEN 0 ELSE buyer_unread_count END,
			seller_unread_count = CASE WHEN seller_id = $2 THEN 0 ELSE seller_unread_count END,
			updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, conversationID, readerID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrConversationNotFound
	}
	return nil
}
