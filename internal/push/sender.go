package push

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"sudooom.estate.chat/internal/config"
	"sudooom.estate.chat/internal/model"
)

// ErrEndpointGone 推送服务报告端点永久失效（404/410）
// 调用方应删除该订阅；其他失败视为瞬时，订阅保留
var ErrEndpointGone = errors.New("push endpoint gone")

// Sender 单端点推送发送器
type Sender interface {
	Send(ctx context.Context, sub *model.PushSubscription, payload []byte) error
}

// WebPushSender 基于 Web Push 协议的发送器
type WebPushSender struct {
	subscriber      string
	vapidPublicKey  string
	vapidPrivateKey string
	timeout         time.Duration
}

// NewWebPushSender 创建 Web Push 发送器
func NewWebPushSender(cfg config.PushConfig) *WebPushSender {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebPushSender{
		subscriber:      cfg.Subscriber,
		vapidPublicKey:  cfg.VAPIDPublicKey,
		vapidPrivateKey: cfg.VAPIDPrivateKey,
		timeout:         timeout,
	}
}

// Send 向单个端点发送推送，用该端点自己的密钥加密
// 超时视为瞬时失败；404/410 返回 ErrEndpointGone
func (s *WebPushSender) Send(ctx context.Context, sub *model.PushSubscription, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.Keys.P256dh,
			Auth:   sub.Keys.Auth,
		},
	}, &webpush.Options{
		Subscriber:      s.subscriber,
		VAPIDPublicKey:  s.vapidPublicKey,
		VAPIDPrivateKey: s.vapidPrivateKey,
		TTL:             60,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return ErrEndpointGone
	case resp.StatusCode >= 400:
		return fmt.Errorf("push provider returned status %d", resp.StatusCode)
	}
	return nil
}
