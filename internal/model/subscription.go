package model

import "time"

// SubscriptionKeys Web Push 订阅的加密密钥
type SubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// PushSubscription 用户注册的推送端点
// endpoint 全局唯一：同一端点被其他用户重新订阅时，归属转移到新用户
type PushSubscription struct {
	ID        string           `json:"id"`
	UserID    int64            `json:"userId"`
	Endpoint  string           `json:"endpoint"`
	Keys      SubscriptionKeys `json:"keys"`
	CreatedAt time.Time        `json:"createdAt"`
}
