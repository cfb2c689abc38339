package presence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// ActiveConversationKeyPrefix 在场状态 Key 前缀
	// Key: chat:active:{conversationId}:{userId}
	ActiveConversationKeyPrefix = "chat:active:"

	// 在场状态 TTL，进程异常退出后由过期兜底回收
	activeTTL = 10 * time.Minute
)

// BuildActiveConversationKey 构建在场状态 Key
func BuildActiveConversationKey(conversationID, userID int64) string {
	return fmt.Sprintf("%s%d:%d", ActiveConversationKeyPrefix, conversationID, userID)
}

// Store 在场状态存储
// 记录哪些用户正打开着哪个会话，推送管线据此决定是否走 Web Push
type Store struct {
	client *redis.Client
	logger *slog.Logger
}

// NewStore 创建在场状态存储
func NewStore(client *redis.Client) *Store {
	return &Store{
		client: client,
		logger: slog.Default(),
	}
}

// EnterConversation 登记用户进入会话
func (s *Store) EnterConversation(ctx context.Context, userID, conversationID int64) error {
	key := BuildActiveConversationKey(conversationID, userID)
	return s.client.Set(ctx, key, "1", activeTTL).Err()
}

// LeaveConversation 登记用户离开会话
func (s *Store) LeaveConversation(ctx context.Context, userID, conversationID int64) error {
	key := BuildActiveConversationKey(conversationID, userID)
	return s.client.Del(ctx, key).Err()
}

// IsActive 判断用户当前是否在会话中
func (s *Store) IsActive(ctx context.Context, userID, conversationID int64) (bool, error) {
	key := BuildActiveConversationKey(conversationID, userID)
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Refresh 续期在场状态（长时间停留在会话页时由心跳触发）
func (s *Store) Refresh(ctx context.Context, userID, conversationID int64) error {
	key := BuildActiveConversationKey(conversationID, userID)
	return s.client.Expire(ctx, key, activeTTL).Err()
}
