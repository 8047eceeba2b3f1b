package cart

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/shoplane/shoplane-backend/internal/catalog"
	"github.com/shoplane/shoplane-backend/pkg/db/models"
	pkgerrors "github.com/shoplane/shoplane-backend/pkg/errors"
)

type testTxRunner struct {
	db *gorm.DB
}

func (r *testTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	dsn := "file:cart_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Product{}, &models.Variant{}, &models.Cart{}, &models.CartItem{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	svc, err := NewService(ServiceParams{
		Repo:              NewRepository(db),
		Catalog:           catalog.NewRepository(db),
		TransactionRunner: &testTxRunner{db: db},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, db
}

func seedVariant(t *testing.T, db *gorm.DB, stock int) uuid.UUID {
	t.Helper()
	product := models.Product{ID: uuid.New(), Name: "product", Active: true}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	variant := models.Variant{
		ID:         uuid.New(),
		ProductID:  product.ID,
		SKU:        "SKU-" + uuid.NewString()[:8],
		Name:       "variant",
		PriceCents: 1500,
		Stock:      stock,
	}
	if err := db.Create(&variant).Error; err != nil {
		t.Fatalf("seed variant: %v", err)
	}
	return variant.ID
}

func guestIdentity(token string) Identity {
	return Identity{GuestToken: token}
}

func userIdentity(id uuid.UUID) Identity {
	return Identity{UserID: &id}
}

// newGuestCart creates a guest cart through the service and hands back its
// minted token.
func newGuestCart(t *testing.T, svc Service) (*models.Cart, string) {
	t.Helper()
	cart, rotated, err := svc.Resolve(context.Background(), guestIdentity(""))
	if err != nil {
		t.Fatalf("create guest cart: %v", err)
	}
	if !rotated || cart.GuestToken == nil {
		t.Fatalf("expected a minted token on a fresh guest cart: %+v", cart)
	}
	return cart, *cart.GuestToken
}

func TestResolveMintsGuestToken(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	cart, token := newGuestCart(t, svc)
	if cart.UserID != nil {
		t.Fatalf("fresh guest cart must be unowned: %+v", cart)
	}

	again, rotated, err := svc.Resolve(ctx, guestIdentity(token))
	if err != nil {
		t.Fatalf("resolve again: %v", err)
	}
	if rotated {
		t.Fatal("token must not rotate when it still resolves")
	}
	if again.ID != cart.ID {
		t.Fatalf("expected same cart, got %s and %s", cart.ID, again.ID)
	}
}

func TestResolveReplacesUnknownGuestToken(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	cart, rotated, err := svc.Resolve(ctx, guestIdentity("tok-unknown"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !rotated {
		t.Fatal("unknown token must trigger rotation")
	}
	if cart.GuestToken == nil || *cart.GuestToken == "tok-unknown" {
		t.Fatalf("expected a server-minted token, got %+v", cart.GuestToken)
	}
}

func TestResolveCreatesUserCartWhenNeitherExists(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	cart, rotated, err := svc.Resolve(ctx, Identity{UserID: &userID, GuestToken: "tok-none"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cart.UserID == nil || *cart.UserID != userID {
		t.Fatalf("expected user cart, got %+v", cart)
	}
	if rotated {
		t.Fatal("creating a user cart must not signal rotation")
	}
}

func TestResolveAdoptsGuestCartWithFreshToken(t *testing.T) {
	t.Parallel()
	svc, db := newTestService(t)
	ctx := context.Background()
	variantID := seedVariant(t, db, 10)
	userID := uuid.New()

	_, token := newGuestCart(t, svc)
	guestCart, _, err := svc.AddItem(ctx, guestIdentity(token), variantID, 2)
	if err != nil {
		t.Fatalf("seed guest cart: %v", err)
	}

	cart, rotated, err := svc.Resolve(ctx, Identity{UserID: &userID, GuestToken: token})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cart.ID != guestCart.ID {
		t.Fatalf("expected adopted guest cart %s, got %s", guestCart.ID, cart.ID)
	}
	if cart.UserID == nil || *cart.UserID != userID {
		t.Fatalf("cart not claimed for user: %+v", cart)
	}
	if cart.GuestToken == nil || *cart.GuestToken == token {
		t.Fatalf("adopted cart must carry a fresh token, got %+v", cart.GuestToken)
	}
	if !rotated {
		t.Fatal("adoption must signal rotation")
	}
}

func TestResolveDropsEmptyGuestCart(t *testing.T) {
	t.Parallel()
	svc, db := newTestService(t)
	ctx := context.Background()
	userID := uuid.New()
	variantID := seedVariant(t, db, 10)

	guestCart, token := newGuestCart(t, svc)
	userCart, _, err := svc.AddItem(ctx, userIdentity(userID), variantID, 1)
	if err != nil {
		t.Fatalf("seed user cart: %v", err)
	}

	cart, _, err := svc.Resolve(ctx, Identity{UserID: &userID, GuestToken: token})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cart.ID != userCart.ID {
		t.Fatalf("expected user cart kept, got %s", cart.ID)
	}
	if len(cart.Items) != 1 || cart.Items[0].Quantity != 1 {
		t.Fatalf("user cart items must be untouched: %+v", cart.Items)
	}

	var count int64
	if err := db.Model(&models.Cart{}).Where("id = ?", guestCart.ID).Count(&count).Error; err != nil {
		t.Fatalf("count guest cart: %v", err)
	}
	if count != 0 {
		t.Fatal("losing guest cart must be deleted")
	}
}

func TestResolveMergesCartsCappedAtStock(t *testing.T) {
	t.Parallel()
	svc, db := newTestService(t)
	ctx := context.Background()
	userID := uuid.New()
	shared := seedVariant(t, db, 5)
	guestOnly := seedVariant(t, db, 10)

	_, token := newGuestCart(t, svc)
	if _, _, err := svc.AddItem(ctx, guestIdentity(token), shared, 4); err != nil {
		t.Fatalf("guest add shared: %v", err)
	}
	if _, _, err := svc.AddItem(ctx, guestIdentity(token), guestOnly, 2); err != nil {
		t.Fatalf("guest add: %v", err)
	}
	if _, _, err := svc.AddItem(ctx, userIdentity(userID), shared, 3); err != nil {
		t.Fatalf("user add: %v", err)
	}

	cart, _, err := svc.Resolve(ctx, Identity{UserID: &userID, GuestToken: token})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(cart.Items) != 2 {
		t.Fatalf("expected 2 merged lines, got %d", len(cart.Items))
	}
	quantities := map[uuid.UUID]int{}
	for _, item := range cart.Items {
		quantities[item.VariantID] = item.Quantity
	}
	// 3 + 4 capped at stock 5.
	if quantities[shared] != 5 {
		t.Fatalf("expected shared line capped at 5, got %d", quantities[shared])
	}
	if quantities[guestOnly] != 2 {
		t.Fatalf("expected guest-only line of 2, got %d", quantities[guestOnly])
	}

	if _, _, err := svc.Resolve(ctx, Identity{UserID: &userID, GuestToken: token}); err != nil {
		t.Fatalf("repeat resolve must be idempotent: %v", err)
	}
}

func TestResolveMergeDeletesGuestCartAndItems(t *testing.T) {
	t.Parallel()
	svc, db := newTestService(t)
	ctx := context.Background()
	userID := uuid.New()
	variantID := seedVariant(t, db, 10)

	_, token := newGuestCart(t, svc)
	guestCart, _, err := svc.AddItem(ctx, guestIdentity(token), variantID, 1)
	if err != nil {
		t.Fatalf("guest add: %v", err)
	}
	if _, _, err := svc.AddItem(ctx, userIdentity(userID), variantID, 1); err != nil {
		t.Fatalf("user add: %v", err)
	}

	if _, _, err := svc.Resolve(ctx, Identity{UserID: &userID, GuestToken: token}); err != nil {
		t.Fatalf("merge: %v", err)
	}

	var carts int64
	if err := db.Model(&models.Cart{}).Where("id = ?", guestCart.ID).Count(&carts).Error; err != nil {
		t.Fatalf("count carts: %v", err)
	}
	if carts != 0 {
		t.Fatal("merged guest cart row must be deleted")
	}
	var items int64
	if err := db.Model(&models.CartItem{}).Where("cart_id = ?", guestCart.ID).Count(&items).Error; err != nil {
		t.Fatalf("count items: %v", err)
	}
	if items != 0 {
		t.Fatalf("guest cart items must be deleted after merge, %d rows remain", items)
	}
}

func TestResolveMergeDropsOutOfStockLines(t *testing.T) {
	t.Parallel()
	svc, db := newTestService(t)
	ctx := context.Background()
	userID := uuid.New()
	variantID := seedVariant(t, db, 3)

	_, token := newGuestCart(t, svc)
	if _, _, err := svc.AddItem(ctx, guestIdentity(token), variantID, 2); err != nil {
		t.Fatalf("guest add: %v", err)
	}
	if _, _, err := svc.Resolve(ctx, userIdentity(userID)); err != nil {
		t.Fatalf("seed empty user cart: %v", err)
	}
	if err := db.Model(&models.Variant{}).Where("id = ?", variantID).Update("stock", 0).Error; err != nil {
		t.Fatalf("zero stock: %v", err)
	}

	cart, _, err := svc.Resolve(ctx, Identity{UserID: &userID, GuestToken: token})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(cart.Items) != 0 {
		t.Fatalf("expected out-of-stock line dropped, got %+v", cart.Items)
	}
}

func TestStaleTokenGetsFreshCartAfterMerge(t *testing.T) {
	t.Parallel()
	svc, db := newTestService(t)
	ctx := context.Background()
	userID := uuid.New()
	variantID := seedVariant(t, db, 10)

	_, token := newGuestCart(t, svc)
	if _, _, err := svc.AddItem(ctx, guestIdentity(token), variantID, 1); err != nil {
		t.Fatalf("guest add: %v", err)
	}
	if _, _, err := svc.AddItem(ctx, userIdentity(userID), variantID, 1); err != nil {
		t.Fatalf("user add: %v", err)
	}
	merged, _, err := svc.Resolve(ctx, Identity{UserID: &userID, GuestToken: token})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}

	cart, rotated, err := svc.Resolve(ctx, guestIdentity(token))
	if err != nil {
		t.Fatalf("resolve with stale token: %v", err)
	}
	if !rotated || cart.GuestToken == nil || *cart.GuestToken == token {
		t.Fatalf("stale token must yield a fresh cart and rotation: %+v", cart)
	}
	if cart.ID == merged.ID || cart.UserID != nil || len(cart.Items) != 0 {
		t.Fatalf("expected a fresh unowned empty cart, got %+v", cart)
	}
}

func TestGuestMutationRejectedOnOwnedCart(t *testing.T) {
	t.Parallel()
	svc, db := newTestService(t)
	ctx := context.Background()
	userID := uuid.New()
	variantID := seedVariant(t, db, 10)

	_, token := newGuestCart(t, svc)
	if _, _, err := svc.AddItem(ctx, guestIdentity(token), variantID, 1); err != nil {
		t.Fatalf("guest add: %v", err)
	}
	adopted, _, err := svc.Resolve(ctx, Identity{UserID: &userID, GuestToken: token})
	if err != nil {
		t.Fatalf("adopt: %v", err)
	}
	if adopted.GuestToken == nil {
		t.Fatal("adopted cart must carry a token")
	}

	// An anonymous caller presenting the adopted cart's token must not be
	// able to mutate it.
	_, _, err = svc.UpdateItemQuantity(ctx, guestIdentity(*adopted.GuestToken), variantID, 5)
	if err == nil {
		t.Fatal("expected guest mutation of an owned cart to fail")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAddItemCapsAtStock(t *testing.T) {
	t.Parallel()
	svc, db := newTestService(t)
	ctx := context.Background()
	variantID := seedVariant(t, db, 3)

	_, token := newGuestCart(t, svc)
	cart, _, err := svc.AddItem(ctx, guestIdentity(token), variantID, 2)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if cart.Items[0].Quantity != 2 {
		t.Fatalf("expected quantity 2, got %d", cart.Items[0].Quantity)
	}

	cart, _, err = svc.AddItem(ctx, guestIdentity(token), variantID, 5)
	if err != nil {
		t.Fatalf("add over stock: %v", err)
	}
	if cart.Items[0].Quantity != 3 {
		t.Fatalf("expected quantity capped at 3, got %d", cart.Items[0].Quantity)
	}
}

func TestAddItemMintsCartForTokenlessGuest(t *testing.T) {
	t.Parallel()
	svc, db := newTestService(t)
	ctx := context.Background()
	variantID := seedVariant(t, db, 5)

	cart, rotated, err := svc.AddItem(ctx, guestIdentity(""), variantID, 1)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !rotated || cart.GuestToken == nil {
		t.Fatalf("expected a minted token, got %+v", cart)
	}
	if len(cart.Items) != 1 {
		t.Fatalf("expected one line, got %+v", cart.Items)
	}
}

func TestAddItemCapturesPriceAtAddition(t *testing.T) {
	t.Parallel()
	svc, db := newTestService(t)
	ctx := context.Background()
	variantID := seedVariant(t, db, 10)

	_, token := newGuestCart(t, svc)
	cart, _, err := svc.AddItem(ctx, guestIdentity(token), variantID, 1)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if cart.Items[0].PriceCents != 1500 {
		t.Fatalf("expected captured price 1500, got %d", cart.Items[0].PriceCents)
	}

	if err := db.Model(&models.Variant{}).Where("id = ?", variantID).Update("price_cents", 2000).Error; err != nil {
		t.Fatalf("reprice variant: %v", err)
	}
	cart, _, err = svc.AddItem(ctx, guestIdentity(token), variantID, 1)
	if err != nil {
		t.Fatalf("add again: %v", err)
	}
	if cart.Items[0].PriceCents != 1500 {
		t.Fatalf("line must keep the price captured at first addition, got %d", cart.Items[0].PriceCents)
	}

	second := seedVariant(t, db, 10)
	cart, _, err = svc.AddItem(ctx, guestIdentity(token), second, 1)
	if err != nil {
		t.Fatalf("add second variant: %v", err)
	}
	for _, item := range cart.Items {
		if item.VariantID == second && item.PriceCents != 1500 {
			t.Fatalf("new line must capture the current price, got %d", item.PriceCents)
		}
	}
}

func TestAddItemOutOfStock(t *testing.T) {
	t.Parallel()
	svc, db := newTestService(t)
	ctx := context.Background()
	variantID := seedVariant(t, db, 0)

	_, token := newGuestCart(t, svc)
	_, _, err := svc.AddItem(ctx, guestIdentity(token), variantID, 1)
	if err == nil {
		t.Fatal("expected out of stock error")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeOutOfStock {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUpdateItemQuantityZeroRemovesLine(t *testing.T) {
	t.Parallel()
	svc, db := newTestService(t)
	ctx := context.Background()
	variantID := seedVariant(t, db, 10)

	_, token := newGuestCart(t, svc)
	if _, _, err := svc.AddItem(ctx, guestIdentity(token), variantID, 2); err != nil {
		t.Fatalf("add: %v", err)
	}
	cart, _, err := svc.UpdateItemQuantity(ctx, guestIdentity(token), variantID, 0)
	if err != nil {
		t.Fatalf("update to zero: %v", err)
	}
	if len(cart.Items) != 0 {
		t.Fatalf("expected empty cart, got %+v", cart.Items)
	}
}

func TestUpdateItemQuantityUnknownLine(t *testing.T) {
	t.Parallel()
	svc, db := newTestService(t)
	ctx := context.Background()
	variantID := seedVariant(t, db, 10)

	_, token := newGuestCart(t, svc)
	_, _, err := svc.UpdateItemQuantity(ctx, guestIdentity(token), variantID, 2)
	if err == nil {
		t.Fatal("expected not found error")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClearEmptiesCartInPlace(t *testing.T) {
	t.Parallel()
	svc, db := newTestService(t)
	ctx := context.Background()
	first := seedVariant(t, db, 10)
	second := seedVariant(t, db, 10)

	created, token := newGuestCart(t, svc)
	if _, _, err := svc.AddItem(ctx, guestIdentity(token), first, 2); err != nil {
		t.Fatalf("add first: %v", err)
	}
	if _, _, err := svc.AddItem(ctx, guestIdentity(token), second, 1); err != nil {
		t.Fatalf("add second: %v", err)
	}

	cart, rotated, err := svc.Clear(ctx, guestIdentity(token))
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if rotated {
		t.Fatal("clear must not rotate the token")
	}
	if cart.ID != created.ID {
		t.Fatalf("expected the same cart back, got %s", cart.ID)
	}
	if len(cart.Items) != 0 {
		t.Fatalf("expected empty cart, got %+v", cart.Items)
	}

	again, err := svc.Get(ctx, guestIdentity(token))
	if err != nil {
		t.Fatalf("get after clear: %v", err)
	}
	if len(again.Items) != 0 {
		t.Fatalf("clear must persist, got %+v", again.Items)
	}
}

func TestClearUnknownCart(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)

	_, _, err := svc.Clear(context.Background(), guestIdentity("tok-missing"))
	if err == nil {
		t.Fatal("expected not found error")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLockOrderIsAscendingByID(t *testing.T) {
	t.Parallel()
	a := &models.Cart{ID: uuid.New()}
	b := &models.Cart{ID: uuid.New()}

	forward := lockOrder(a, b)
	reverse := lockOrder(b, a)
	if len(forward) != 2 || len(reverse) != 2 {
		t.Fatalf("expected both carts in the order, got %v and %v", forward, reverse)
	}
	if forward[0] != reverse[0] || forward[1] != reverse[1] {
		t.Fatal("lock order must not depend on argument order")
	}
	if bytes.Compare(forward[0][:], forward[1][:]) >= 0 {
		t.Fatal("lock order must be ascending by id")
	}

	single := lockOrder(nil, a)
	if len(single) != 1 || single[0] != a.ID {
		t.Fatalf("nil carts must be skipped, got %v", single)
	}
}
