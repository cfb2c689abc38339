package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"

	"sudooom.estate.chat/internal/model"
)

var ErrSubscriptionNotFound = errors.New("push subscription not found")

// SubscriptionRepository 推送订阅数据访问
type SubscriptionRepository struct {
	db *pgxpool.Pool
}

// NewSubscriptionRepository 创建推送订阅仓库
func NewSubscriptionRepository(db *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// ListByUser 获取用户的全部订阅
func (r *SubscriptionRepository) ListByUser(ctx context.Context, userID int64) ([]model.PushSubscription, error) {
	query := `
		SELECT id, user_id, endpoint, p256dh, auth, created_at
		FROM push_subscriptions WHERE user_id = $1
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := make([]model.PushSubscription, 0)
	for rows.Next() {
		sub := model.PushSubscription{}
		err := rows.Scan(
			&sub.ID,
			&sub.UserID,
			&sub.Endpoint,
			&sub.Keys.P256dh,
			&sub.Keys.Auth,
			&sub.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// Upsert 创建或重绑订阅
// endpoint 唯一：同端点再次订阅时归属和密钥转移给新的请求者
func (r *SubscriptionRepository) Upsert(ctx context.Context, sub *model.PushSubscription) error {
	query := `
		INSERT INTO push_subscriptions (id, user_id, endpoint, p256dh, auth, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (endpoint) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			p256dh = EXCLUDED.p256dh,
			auth = EXCLUDED.auth
		RETURNING id, created_at
	`
	return r.db.QueryRow(ctx, query,
		sub.ID,
		sub.UserID,
		sub.Endpoint,
		sub.Keys.P256dh,
		sub.Keys.Auth,
	).Scan(&sub.ID, &sub.CreatedAt)
}

// Delete 删除用户的指定订阅
func (r *SubscriptionRepository) Delete(ctx context.Context, userID int64, endpoint string) error {
	query := `DELETE FROM push_subscriptions WHERE user_id = $1 AND endpoint = $2`
	result, err := r.db.Exec(ctx, query, userID, endpoint)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// DeleteByEndpoint 按端点删除订阅（推送服务报告端点失效时的自愈清理）
func (r *SubscriptionRepository) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM push_subscriptions WHERE endpoint = $1`, endpoint)
	return err
}
