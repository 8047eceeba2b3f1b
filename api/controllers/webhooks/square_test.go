package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shoplane/shoplane-backend/pkg/gateway"
	"github.com/shoplane/shoplane-backend/pkg/outbox/idempotency"
)

func TestSquareWebhook_SuccessAndIdempotent(t *testing.T) {
	payload := buildSquareEvent(t, "payment.updated", "COMPLETED")
	header := buildSquareSignature(payload, "secret")
	service := &fakeWebhookService{}
	guard, err := idempotency.NewManager(newInMemoryStore(), "square-webhook", time.Minute)
	if err != nil {
		t.Fatalf("guard setup: %v", err)
	}
	handler := SquareWebhook(service, &fakeSigningClient{secret: "secret"}, guard, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/square", bytes.NewReader(payload))
	req.Header.Set("Square-Signature", header)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if len(service.updates) != 1 {
		t.Fatalf("expected service called once, got %d", len(service.updates))
	}
	if service.updates[0] == nil || service.updates[0].Status != "approved" {
		t.Fatalf("unexpected update %+v", service.updates[0])
	}

	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/square", bytes.NewReader(payload))
	req2.Header.Set("Square-Signature", header)
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200 on duplicate, got %d", rec2.Code)
	}
	if len(service.updates) != 1 {
		t.Fatalf("duplicate should not reach the service, got %d calls", len(service.updates))
	}
}

func TestSquareWebhook_InvalidSignature(t *testing.T) {
	payload := buildSquareEvent(t, "payment.updated", "COMPLETED")
	service := &fakeWebhookService{}
	guard, err := idempotency.NewManager(newInMemoryStore(), "square-webhook", time.Minute)
	if err != nil {
		t.Fatalf("guard setup: %v", err)
	}
	handler := SquareWebhook(service, &fakeSigningClient{secret: "secret"}, guard, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/square", bytes.NewReader(payload))
	req.Header.Set("Square-Signature", "invalid")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for invalid signature, got %d", rec.Code)
	}
	if len(service.updates) != 0 {
		t.Fatalf("service should not be invoked on invalid signature")
	}
}

func TestSquareWebhook_IgnoredEventTypeStillAcked(t *testing.T) {
	payload := buildSquareEvent(t, "refund.created", "COMPLETED")
	header := buildSquareSignature(payload, "secret")
	service := &fakeWebhookService{}
	guard, err := idempotency.NewManager(newInMemoryStore(), "square-webhook", time.Minute)
	if err != nil {
		t.Fatalf("guard setup: %v", err)
	}
	handler := SquareWebhook(service, &fakeSigningClient{secret: "secret"}, guard, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/square", bytes.NewReader(payload))
	req.Header.Set("Square-Signature", header)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for ignored event type, got %d (%s)", rec.Code, rec.Body.String())
	}
	if len(service.updates) != 1 || service.updates[0] != nil {
		t.Fatalf("ignored event should forward a nil update, got %+v", service.updates)
	}
}

func TestSquareWebhook_MalformedPayloadAcked(t *testing.T) {
	payload := []byte("{not json")
	header := buildSquareSignature(payload, "secret")
	service := &fakeWebhookService{}
	guard, err := idempotency.NewManager(newInMemoryStore(), "square-webhook", time.Minute)
	if err != nil {
		t.Fatalf("guard setup: %v", err)
	}
	handler := SquareWebhook(service, &fakeSigningClient{secret: "secret"}, guard, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/square", bytes.NewReader(payload))
	req.Header.Set("Square-Signature", header)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for undecodable payload, got %d (%s)", rec.Code, rec.Body.String())
	}
	if len(service.updates) != 0 {
		t.Fatalf("undecodable payload must not reach the service, got %d calls", len(service.updates))
	}
}

func TestSquareWebhook_UnmappableEventAcked(t *testing.T) {
	// payment.updated without a payment object cannot be mapped and will
	// fail the same way on every redelivery.
	payload := []byte(`{"event_id":"evt_empty","type":"payment.updated","data":{"type":"payment","id":"pay_empty","object":{}}}`)
	header := buildSquareSignature(payload, "secret")
	service := &fakeWebhookService{}
	guard, err := idempotency.NewManager(newInMemoryStore(), "square-webhook", time.Minute)
	if err != nil {
		t.Fatalf("guard setup: %v", err)
	}
	handler := SquareWebhook(service, &fakeSigningClient{secret: "secret"}, guard, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/square", bytes.NewReader(payload))
	req.Header.Set("Square-Signature", header)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for unmappable event, got %d (%s)", rec.Code, rec.Body.String())
	}
	if len(service.updates) != 0 {
		t.Fatalf("unmappable event must not reach the service, got %d calls", len(service.updates))
	}
}

func buildSquareEvent(t *testing.T, eventType, status string) []byte {
	event := &gateway.SquareWebhookEvent{
		EventID: "evt_" + uuid.NewString(),
		Type:    eventType,
		Data: gateway.SquareWebhookData{
			Type: "payment",
			ID:   "pay_" + uuid.NewString(),
			Object: gateway.SquareWebhookObject{
				Payment: &gateway.SquareWebhookPayment{
					ID:      "pay_" + uuid.NewString(),
					Status:  status,
					OrderID: "sq_order_" + uuid.NewString(),
				},
			},
		},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return payload
}

func buildSquareSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

type fakeWebhookService struct {
	updates []*gateway.WebhookUpdate
	err     error
}

func (f *fakeWebhookService) HandleWebhook(ctx context.Context, update *gateway.WebhookUpdate) error {
	f.updates = append(f.updates, update)
	return f.err
}

type fakeSigningClient struct {
	secret string
}

func (c *fakeSigningClient) SigningSecret() string {
	return c.secret
}

type inMemoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newInMemoryStore() *inMemoryStore {
	return &inMemoryStore{data: make(map[string]string)}
}

func (s *inMemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *inMemoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key]; exists {
		return false, nil
	}
	s.data[key] = fmt.Sprintf("%v", value)
	return true, nil
}

func (s *inMemoryStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("sl:idempotency:%s:%s", scope, id)
}

func (s *inMemoryStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}
