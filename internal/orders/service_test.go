package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/shoplane/shoplane-backend/pkg/db/models"
	"github.com/shoplane/shoplane-backend/pkg/enums"
	pkgerrors "github.com/shoplane/shoplane-backend/pkg/errors"
	"github.com/shoplane/shoplane-backend/pkg/outbox"
	"github.com/shoplane/shoplane-backend/pkg/pagination"
	"github.com/shoplane/shoplane-backend/pkg/types"
)

type testTxRunner struct {
	db *gorm.DB
}

func (r *testTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = db.AutoMigrate(
		&models.Variant{},
		&models.Order{},
		&models.OrderItem{},
		&models.Payment{},
		&models.PaymentEvent{},
		&models.OutboxEvent{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	svc, err := NewService(ServiceParams{
		Repo:              NewRepository(db),
		TransactionRunner: &testTxRunner{db: db},
		Outbox:            outbox.NewService(outbox.NewRepository(db), nil),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, db
}

type seededOrder struct {
	orderID   uuid.UUID
	userID    uuid.UUID
	variantID uuid.UUID
	paymentID uuid.UUID
}

func seedOrder(t *testing.T, db *gorm.DB, status enums.OrderStatus, paymentStatus enums.PaymentStatus) seededOrder {
	t.Helper()
	variant := models.Variant{
		ID:        uuid.New(),
		ProductID: uuid.New(),
		SKU:       "SKU-" + uuid.NewString()[:8],
		Name:      "variant",
		Stock:     3,
		Reserved:  2,
	}
	if err := db.Create(&variant).Error; err != nil {
		t.Fatalf("seed variant: %v", err)
	}

	userID := uuid.New()
	order := models.Order{
		ID:     uuid.New(),
		Number: "SL-" + uuid.NewString()[:8],
		UserID: userID,
		Status: status,
		ShippingAddress: types.Address{
			Name: "Test Buyer", Line1: "1 Main St", City: "Austin",
			State: "TX", PostalCode: "78701", Country: "US",
		},
		SubtotalCents: 3000,
		TotalCents:    3500,
		Items: []models.OrderItem{{
			ID:             uuid.New(),
			VariantID:      variant.ID,
			ProductName:    "product",
			VariantName:    "variant",
			SKU:            variant.SKU,
			UnitPriceCents: 1500,
			Quantity:       2,
			LineTotalCents: 3000,
		}},
	}
	if err := db.Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}

	payment := models.Payment{
		ID:          uuid.New(),
		OrderID:     order.ID,
		Method:      enums.PaymentMethodBankTransfer,
		Status:      paymentStatus,
		AmountCents: 3500,
	}
	if err := db.Create(&payment).Error; err != nil {
		t.Fatalf("seed payment: %v", err)
	}

	return seededOrder{
		orderID:   order.ID,
		userID:    userID,
		variantID: variant.ID,
		paymentID: payment.ID,
	}
}

func TestCancelReleasesStockAndClosesPayment(t *testing.T) {
	t.Parallel()
	svc, db := newTestService(t)
	ctx := context.Background()
	seed := seedOrder(t, db, enums.OrderStatusPending, enums.PaymentStatusInitiated)

	order, err := svc.Cancel(ctx, seed.userID, seed.orderID, "changed my mind")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if order.Status != enums.OrderStatusCanceled {
		t.Fatalf("expected canceled, got %s", order.Status)
	}

	var variant models.Variant
	if err := db.First(&variant, "id = ?", seed.variantID).Error; err != nil {
		t.Fatalf("load variant: %v", err)
	}
	if variant.Stock != 5 || variant.Reserved != 0 {
		t.Fatalf("expected stock released: stock=%d reserved=%d", variant.Stock, variant.Reserved)
	}

	var payment models.Payment
	if err := db.First(&payment, "id = ?", seed.paymentID).Error; err != nil {
		t.Fatalf("load payment: %v", err)
	}
	if payment.Status != enums.PaymentStatusCanceled {
		t.Fatalf("expected payment canceled, got %s", payment.Status)
	}

	var events []models.PaymentEvent
	if err := db.Find(&events, "payment_id = ?", seed.paymentID).Error; err != nil {
		t.Fatalf("load events: %v", err)
	}
	if len(events) != 1 || events[0].ToStatus != enums.PaymentStatusCanceled {
		t.Fatalf("expected one cancel event, got %+v", events)
	}
	if events[0].Actor != enums.PaymentActorBuyer {
		t.Fatalf("expected buyer actor, got %s", events[0].Actor)
	}

	var outboxCount int64
	if err := db.Model(&models.OutboxEvent{}).Where("aggregate_id = ?", seed.orderID).Count(&outboxCount).Error; err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	if outboxCount != 1 {
		t.Fatalf("expected one outbox event, got %d", outboxCount)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	t.Parallel()
	svc, db := newTestService(t)
	ctx := context.Background()
	seed := seedOrder(t, db, enums.OrderStatusPending, enums.PaymentStatusInitiated)

	if _, err := svc.Cancel(ctx, seed.userID, seed.orderID, ""); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	order, err := svc.Cancel(ctx, seed.userID, seed.orderID, "")
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if order.Status != enums.OrderStatusCanceled {
		t.Fatalf("expected canceled, got %s", order.Status)
	}

	var variant models.Variant
	if err := db.First(&variant, "id = ?", seed.variantID).Error; err != nil {
		t.Fatalf("load variant: %v", err)
	}
	if variant.Stock != 5 || variant.Reserved != 0 {
		t.Fatalf("stock must only be released once: stock=%d reserved=%d", variant.Stock, variant.Reserved)
	}
}

func TestCancelPaidOrderRejected(t *testing.T) {
	t.Parallel()
	svc, db := newTestService(t)
	ctx := context.Background()
	seed := seedOrder(t, db, enums.OrderStatusPaid, enums.PaymentStatusApproved)

	_, err := svc.Cancel(ctx, seed.userID, seed.orderID, "")
	if err == nil {
		t.Fatal("expected state conflict")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCancelForeignOrderHidden(t *testing.T) {
	t.Parallel()
	svc, db := newTestService(t)
	ctx := context.Background()
	seed := seedOrder(t, db, enums.OrderStatusPending, enums.PaymentStatusInitiated)

	_, err := svc.Cancel(ctx, uuid.New(), seed.orderID, "")
	if err == nil {
		t.Fatal("expected not found")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestShipAndDeliver(t *testing.T) {
	t.Parallel()
	svc, db := newTestService(t)
	ctx := context.Background()
	seed := seedOrder(t, db, enums.OrderStatusPaid, enums.PaymentStatusApproved)

	order, err := svc.Ship(ctx, seed.orderID)
	if err != nil {
		t.Fatalf("ship: %v", err)
	}
	if order.Status != enums.OrderStatusShipped {
		t.Fatalf("expected shipped, got %s", order.Status)
	}

	order, err = svc.Deliver(ctx, seed.orderID)
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if order.Status != enums.OrderStatusDelivered {
		t.Fatalf("expected delivered, got %s", order.Status)
	}

	if _, err := svc.Ship(ctx, seed.orderID); err == nil {
		t.Fatal("expected shipping a delivered order to fail")
	}
}

func TestListPaginates(t *testing.T) {
	t.Parallel()
	svc, db := newTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		order := models.Order{
			ID:     uuid.New(),
			Number: "SL-" + uuid.NewString()[:8],
			UserID: userID,
			Status: enums.OrderStatusPending,
			ShippingAddress: types.Address{
				Name: "Test Buyer", Line1: "1 Main St", City: "Austin",
				State: "TX", PostalCode: "78701", Country: "US",
			},
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := db.Create(&order).Error; err != nil {
			t.Fatalf("seed order %d: %v", i, err)
		}
	}

	page, next, err := svc.List(ctx, userID, pagination.Params{Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(page))
	}
	if next == "" {
		t.Fatal("expected next cursor")
	}
	if !page[0].CreatedAt.After(page[1].CreatedAt) {
		t.Fatalf("expected newest first")
	}

	rest, next, err := svc.List(ctx, userID, pagination.Params{Limit: 2, Cursor: next})
	if err != nil {
		t.Fatalf("list second page: %v", err)
	}
	if len(rest) != 1 {
		t.Fatalf("expected 1 order on second page, got %d", len(rest))
	}
	if next != "" {
		t.Fatalf("expected no further cursor, got %q", next)
	}
}
