package push

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	apperrors "sudooom.estate.chat/internal/errors"
	"sudooom.estate.chat/internal/model"
	"sudooom.estate.chat/internal/repository"
)

const defaultMaxConcurrency = 8

// SubscriptionStore 订阅存储依赖
type SubscriptionStore interface {
	ListByUser(ctx context.Context, userID int64) ([]model.PushSubscription, error)
	Upsert(ctx context.Context, sub *model.PushSubscription) error
	Delete(ctx context.Context, userID int64, endpoint string) error
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

// Notification 推送负载，固定形状
type Notification struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Icon  string         `json:"icon,omitempty"`
	Badge string         `json:"badge,omitempty"`
	Tag   string         `json:"tag,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

// Result 一次扇出的结果汇总
type Result struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// Dispatcher 推送扇出调度器
// 对每个端点独立投递：单个端点失败不阻断其余端点，
// 端点永久失效时顺手删除订阅（自愈），瞬时失败只计数不重试
type Dispatcher struct {
	subs   SubscriptionStore
	sender Sender
	limit  int
	logger *slog.Logger
}

// NewDispatcher 创建推送扇出调度器
// limit 限制单次扇出的并发投递数
func NewDispatcher(subs SubscriptionStore, sender Sender, limit int) *Dispatcher {
	if limit <= 0 {
		limit = defaultMaxConcurrency
	}
	return &Dispatcher{
		subs:   subs,
		sender: sender,
		limit:  limit,
		logger: slog.Default(),
	}
}

// SendToUser 向用户的全部订阅端点并发投递通知
// 没有任何订阅不是错误，返回 {0, 0} 且不触发任何投递
func (d *Dispatcher) SendToUser(ctx context.Context, userID int64, n *Notification) (Result, error) {
	subs, err := d.subs.ListByUser(ctx, userID)
	if err != nil {
		return Result{}, apperrors.ErrDBError.Wrap(err)
	}
	if len(subs) == 0 {
		return Result{}, nil
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return Result{}, err
	}

	var sent, failed atomic.Int64

	// 有界并发扇出：每个端点一个任务，互不取消
	g := new(errgroup.Group)
	g.SetLimit(d.limit)

	for i := range subs {
		sub := subs[i]
		g.Go(func() error {
			err := d.sender.Send(ctx, &sub, payload)
			switch {
			case err == nil:
				sent.Add(1)
			case errors.Is(err, ErrEndpointGone):
				failed.Add(1)
				// 端点已永久失效，静默删除
				if delErr := d.subs.DeleteByEndpoint(ctx, sub.Endpoint); delErr != nil {
					d.logger.Warn("Failed to prune dead subscription", "endpoint", sub.Endpoint, "error", delErr)
				} else {
					d.logger.Info("Pruned dead push subscription", "user_id", userID, "endpoint", sub.Endpoint)
				}
			default:
				failed.Add(1)
				d.logger.Warn("Push delivery failed", "user_id", userID, "endpoint", sub.Endpoint, "error", err)
			}
			return nil
		})
	}
	g.Wait()

	result := Result{Sent: int(sent.Load()), Failed: int(failed.Load())}
	d.logger.Debug("Push fan-out finished",
		"user_id", userID,
		"sent", result.Sent,
		"failed", result.Failed)
	return result, nil
}

// SendToUsers 依次向多个用户投递，汇总结果
func (d *Dispatcher) SendToUsers(ctx context.Context, userIDs []int64, n *Notification) (Result, error) {
	total := Result{}
	for _, userID := range userIDs {
		result, err := d.SendToUser(ctx, userID, n)
		if err != nil {
			return total, err
		}
		total.Sent += result.Sent
		total.Failed += result.Failed
	}
	return total, nil
}

// Subscribe 注册推送端点
// 同端点同用户重复订阅是幂等空操作；同端点换用户则归属转移
func (d *Dispatcher) Subscribe(ctx context.Context, userID int64, endpoint string, keys model.SubscriptionKeys) (*model.PushSubscription, error) {
	sub := &model.PushSubscription{
		ID:       uuid.NewString(),
		UserID:   userID,
		Endpoint: endpoint,
		Keys:     keys,
	}
	if err := d.subs.Upsert(ctx, sub); err != nil {
		return nil, apperrors.ErrDBError.Wrap(err)
	}
	return sub, nil
}

// Unsubscribe 删除推送端点
func (d *Dispatcher) Unsubscribe(ctx context.Context, userID int64, endpoint string) error {
	err := d.subs.Delete(ctx, userID, endpoint)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			return apperrors.ErrSubscriptionNotFound
		}
		return apperrors.ErrDBError.Wrap(err)
	}
	return nil
}
