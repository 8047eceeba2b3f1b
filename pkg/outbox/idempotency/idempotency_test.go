package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubStore struct {
	setNXResults []bool
	setNXErr     error
	index        int
	deletedKeys  []string
	lastKey      string
	lastTTL      time.Duration
}

func (s *stubStore) Get(context.Context, string) (string, error) {
	return "", nil
}

func (s *stubStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.lastKey = key
	s.lastTTL = ttl
	if s.setNXErr != nil {
		return false, s.setNXErr
	}
	result := false
	if s.index < len(s.setNXResults) {
		result = s.setNXResults[s.index]
	}
	s.index++
	return result, nil
}

func (s *stubStore) IdempotencyKey(scope, id string) string {
	return "sl:idempotency:" + scope + ":" + id
}

func (s *stubStore) Del(ctx context.Context, keys ...string) error {
	s.deletedKeys = append(s.deletedKeys, keys...)
	return nil
}

func TestCheckAndMarkFirstSeen(t *testing.T) {
	store := &stubStore{setNXResults: []bool{true, false}}
	manager, err := NewManager(store, "square-webhook", time.Hour)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	processed, err := manager.CheckAndMark(context.Background(), "evt-1")
	if err != nil {
		t.Fatalf("first check: %v", err)
	}
	if processed {
		t.Fatalf("first event should not be marked processed")
	}
	if store.lastKey != "sl:idempotency:evt:processed:square-webhook:evt-1" {
		t.Fatalf("unexpected key %q", store.lastKey)
	}
	if store.lastTTL != time.Hour {
		t.Fatalf("expected ttl %v, got %v", time.Hour, store.lastTTL)
	}

	processed, err = manager.CheckAndMark(context.Background(), "evt-1")
	if err != nil {
		t.Fatalf("second check: %v", err)
	}
	if !processed {
		t.Fatalf("duplicate event should report processed")
	}
}

func TestCheckAndMarkPropagatesStoreError(t *testing.T) {
	store := &stubStore{setNXErr: errors.New("redis down")}
	manager, err := NewManager(store, "stripe-webhook", time.Hour)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, err := manager.CheckAndMark(context.Background(), "evt-1"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDeleteRemovesProcessedMark(t *testing.T) {
	store := &stubStore{}
	manager, err := NewManager(store, "square-webhook", time.Hour)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := manager.Delete(context.Background(), "evt-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(store.deletedKeys) != 1 {
		t.Fatalf("expected one deleted key, got %d", len(store.deletedKeys))
	}
}

func TestNewManagerValidation(t *testing.T) {
	if _, err := NewManager(nil, "consumer", time.Hour); err == nil {
		t.Fatalf("expected error for nil store")
	}
	if _, err := NewManager(&stubStore{}, "", time.Hour); err == nil {
		t.Fatalf("expected error for empty consumer")
	}
	if _, err := NewManager(&stubStore{}, "consumer", -time.Second); err == nil {
		t.Fatalf("expected error for negative ttl")
	}
}

func TestCheckAndMarkRequiresEventID(t *testing.T) {
	manager, err := NewManager(&stubStore{}, "consumer", time.Hour)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, err := manager.CheckAndMark(context.Background(), " "); err == nil {
		t.Fatalf("expected error for blank event id")
	}
}
