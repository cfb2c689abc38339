package push

import (
	"context"
	"errors"
	"sync"
	"testing"

	apperrors "sudooom.estate.chat/internal/errors"
	"sudooom.estate.chat/internal/model"
	"sudooom.estate.chat/internal/repository"
)

// fakeSubscriptionStore 内存订阅存储，endpoint 唯一
type fakeSubscriptionStore struct {
	mu   sync.Mutex
	subs map[string]*model.PushSubscription // endpoint -> sub
}

func newFakeSubscriptionStore() *fakeSubscriptionStore {
	return &fakeSubscriptionStore{subs: make(map[string]*model.PushSubscription)}
}

func (s *fakeSubscriptionStore) ListByUser(ctx context.Context, userID int64) ([]model.PushSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []model.PushSubscription
	for _, sub := range s.subs {
		if sub.UserID == userID {
			result = append(result, *sub)
		}
	}
	return result, nil
}

func (s *fakeSubscriptionStore) Upsert(ctx context.Context, sub *model.PushSubscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.subs[sub.Endpoint]; ok {
		existing.UserID = sub.UserID
		existing.Keys = sub.Keys
		return nil
	}
	copied := *sub
	s.subs[sub.Endpoint] = &copied
	return nil
}

func (s *fakeSubscriptionStore) Delete(ctx context.Context, userID int64, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[endpoint]
	if !ok || sub.UserID != userID {
		return repository.ErrSubscriptionNotFound
	}
	delete(s.subs, endpoint)
	return nil
}

func (s *fakeSubscriptionStore) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, endpoint)
	return nil
}

func (s *fakeSubscriptionStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// fakePushSender 按 endpoint 返回预设结果
type fakePushSender struct {
	mu      sync.Mutex
	results map[string]error // endpoint -> error
	calls   int
}

func (f *fakePushSender) Send(ctx context.Context, sub *model.PushSubscription, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.results[sub.Endpoint]
}

func (f *fakePushSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestSendToUser_NoSubscriptions(t *testing.T) {
	store := newFakeSubscriptionStore()
	sender := &fakePushSender{}
	d := NewDispatcher(store, sender, 4)

	result, err := d.SendToUser(context.Background(), 1, &Notification{Title: "hi"})
	if err != nil {
		t.Fatalf("SendToUser failed: %v", err)
	}

	// 没有订阅不是错误：零结果且不触发任何投递
	if result.Sent != 0 || result.Failed != 0 {
		t.Errorf("Expected {0 0}, got %+v", result)
	}
	if sender.callCount() != 0 {
		t.Errorf("Expected no send calls, got %d", sender.callCount())
	}
}

func TestSendToUser_FanOut(t *testing.T) {
	store := newFakeSubscriptionStore()
	ctx := context.Background()

	endpoints := []string{
		"https://push.example.com/ok",
		"https://push.example.com/gone",
		"https://push.example.com/flaky",
	}
	for i, endpoint := range endpoints {
		store.Upsert(ctx, &model.PushSubscription{
			ID:       string(rune('a' + i)),
			UserID:   1,
			Endpoint: endpoint,
			Keys:     model.SubscriptionKeys{P256dh: "p", Auth: "a"},
		})
	}

	sender := &fakePushSender{results: map[string]error{
		"https://push.example.com/gone":  ErrEndpointGone,
		"https://push.example.com/flaky": errors.New("timeout"),
	}}
	d := NewDispatcher(store, sender, 2)

	result, err := d.SendToUser(ctx, 1, &Notification{Title: "新消息", Body: "hello"})
	if err != nil {
		t.Fatalf("SendToUser failed: %v", err)
	}

	if result.Sent != 1 {
		t.Errorf("Expected 1 sent, got %d", result.Sent)
	}
	if result.Failed != 2 {
		t.Errorf("Expected 2 failed, got %d", result.Failed)
	}

	// 只有永久失效的端点被删除，瞬时失败的保留
	if store.count() != 2 {
		t.Errorf("Expected 2 subscriptions to remain, got %d", store.count())
	}
	subs, _ := store.ListByUser(ctx, 1)
	for _, sub := range subs {
		if sub.Endpoint == "https://push.example.com/gone" {
			t.Error("Expected gone endpoint to be pruned")
		}
	}
}

func TestSendToUsers_Aggregates(t *testing.T) {
	store := newFakeSubscriptionStore()
	ctx := context.Background()

	store.Upsert(ctx, &model.PushSubscription{ID: "a", UserID: 1, Endpoint: "https://push.example.com/u1"})
	store.Upsert(ctx, &model.PushSubscription{ID: "b", UserID: 2, Endpoint: "https://push.example.com/u2"})

	sender := &fakePushSender{}
	d := NewDispatcher(store, sender, 4)

	result, err := d.SendToUsers(ctx, []int64{1, 2, 3}, &Notification{Title: "hi"})
	if err != nil {
		t.Fatalf("SendToUsers failed: %v", err)
	}
	if result.Sent != 2 || result.Failed != 0 {
		t.Errorf("Expected {2 0}, got %+v", result)
	}
}

func TestSubscribe(t *testing.T) {
	store := newFakeSubscriptionStore()
	d := NewDispatcher(store, &fakePushSender{}, 4)
	ctx := context.Background()

	keys := model.SubscriptionKeys{P256dh: "p256dh-key", Auth: "auth-secret"}
	sub, err := d.Subscribe(ctx, 1, "https://push.example.com/endpoint", keys)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if sub.ID == "" {
		t.Error("Expected subscription ID to be assigned")
	}
	if sub.UserID != 1 {
		t.Errorf("Expected user 1, got %d", sub.UserID)
	}

	// 同端点重复订阅是幂等的，不会产生第二条记录
	if _, err := d.Subscribe(ctx, 1, "https://push.example.com/endpoint", keys); err != nil {
		t.Fatalf("Repeat subscribe failed: %v", err)
	}
	if store.count() != 1 {
		t.Errorf("Expected 1 subscription after repeat, got %d", store.count())
	}

	// 同端点换用户：归属转移
	if _, err := d.Subscribe(ctx, 2, "https://push.example.com/endpoint", keys); err != nil {
		t.Fatalf("Rebind subscribe failed: %v", err)
	}
	if store.count() != 1 {
		t.Errorf("Expected 1 subscription after rebind, got %d", store.count())
	}
	subs, _ := store.ListByUser(ctx, 2)
	if len(subs) != 1 {
		t.Errorf("Expected endpoint to belong to user 2, got %d subscriptions", len(subs))
	}
	if old, _ := store.ListByUser(ctx, 1); len(old) != 0 {
		t.Errorf("Expected user 1 to lose the endpoint, got %d subscriptions", len(old))
	}
}

func TestUnsubscribe(t *testing.T) {
	store := newFakeSubscriptionStore()
	d := NewDispatcher(store, &fakePushSender{}, 4)
	ctx := context.Background()

	keys := model.SubscriptionKeys{P256dh: "p", Auth: "a"}
	if _, err := d.Subscribe(ctx, 1, "https://push.example.com/endpoint", keys); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := d.Unsubscribe(ctx, 1, "https://push.example.com/endpoint"); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	if store.count() != 0 {
		t.Errorf("Expected 0 subscriptions, got %d", store.count())
	}

	// 再次删除返回订阅不存在
	err := d.Unsubscribe(ctx, 1, "https://push.example.com/endpoint")
	if !apperrors.Is(err, apperrors.ErrSubscriptionNotFound) {
		t.Errorf("Expected ErrSubscriptionNotFound, got %v", err)
	}
}
