package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/shoplane/shoplane-backend/internal/cart"
	"github.com/shoplane/shoplane-backend/internal/catalog"
	"github.com/shoplane/shoplane-backend/internal/inventory"
	"github.com/shoplane/shoplane-backend/internal/orders"
	"github.com/shoplane/shoplane-backend/internal/profiles"
	"github.com/shoplane/shoplane-backend/pkg/config"
	"github.com/shoplane/shoplane-backend/pkg/db/models"
	"github.com/shoplane/shoplane-backend/pkg/enums"
	pkgerrors "github.com/shoplane/shoplane-backend/pkg/errors"
	"github.com/shoplane/shoplane-backend/pkg/logger"
	"github.com/shoplane/shoplane-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Params carries the buyer's checkout submission. ShippingAddress and Billing
// fall back to the profile defaults when omitted.
type Params struct {
	UserID          uuid.UUID
	Method          enums.PaymentMethod
	ShippingAddress *types.Address
	Billing         *types.BillingProfile
}

// Result is the assembled order and its opening payment.
type Result struct {
	Order   *models.Order
	Payment *models.Payment
}

// Service turns the active cart into an immutable order with reserved stock
// and an initiated payment.
type Service interface {
	Checkout(ctx context.Context, params Params) (*Result, error)
}

type ServiceParams struct {
	CartRepo          *cart.Repository
	CatalogRepo       *catalog.Repository
	ProfileRepo       *profiles.Repository
	OrderRepo         *orders.Repository
	TransactionRunner txRunner
	Checkout          config.CheckoutConfig
	Payments          config.PaymentsConfig
	Logger            *logger.Logger
}

type service struct {
	cartRepo    *cart.Repository
	catalogRepo *catalog.Repository
	profileRepo *profiles.Repository
	orderRepo   *orders.Repository
	txRunner    txRunner
	checkoutCfg config.CheckoutConfig
	paymentsCfg config.PaymentsConfig
	logg        *logger.Logger
	now         func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.CartRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart repo required")
	}
	if params.CatalogRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "catalog repo required")
	}
	if params.ProfileRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "profile repo required")
	}
	if params.OrderRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order repo required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	return &service{
		cartRepo:    params.CartRepo,
		catalogRepo: params.CatalogRepo,
		profileRepo: params.ProfileRepo,
		orderRepo:   params.OrderRepo,
		txRunner:    params.TransactionRunner,
		checkoutCfg: params.Checkout,
		paymentsCfg: params.Payments,
		logg:        params.Logger,
		now:         time.Now,
	}, nil
}

// Checkout snapshots the cart into an order. Everything happens in one
// transaction: stock reservation, order and payment creation, and cart
// conversion. Any failure rolls the whole attempt back.
func (s *service) Checkout(ctx context.Context, params Params) (*Result, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to check out")
	}
	if !params.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment method")
	}
	if params.ShippingAddress != nil && !params.ShippingAddress.Validate() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping address is incomplete")
	}

	var result *Result
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		assembled, err := s.assemble(ctx, tx, params)
		if err != nil {
			return err
		}
		result = assembled
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithOrderID(ctx, result.Order.ID.String()), "order assembled")
	}
	return result, nil
}

func (s *service) assemble(ctx context.Context, tx *gorm.DB, params Params) (*Result, error) {
	cartRepo := s.cartRepo.WithTx(tx)
	activeCart, err := cartRepo.FindActiveByUser(ctx, params.UserID)
	if err != nil {
		return nil, err
	}
	if activeCart == nil || len(activeCart.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	user, err := s.profileRepo.WithTx(tx).FindUser(ctx, params.UserID)
	if err != nil {
		return nil, err
	}
	address, err := resolveAddress(params.ShippingAddress, user)
	if err != nil {
		return nil, err
	}
	billing := params.Billing
	if billing == nil {
		billing = user.Billing
	}

	variants, err := s.loadVariants(ctx, tx, activeCart)
	if err != nil {
		return nil, err
	}

	if err := s.reserve(ctx, tx, activeCart); err != nil {
		return nil, err
	}

	order, err := s.buildOrder(params.UserID, activeCart, variants, address, billing)
	if err != nil {
		return nil, err
	}
	orderRepo := s.orderRepo.WithTx(tx)
	if err := orderRepo.Create(ctx, order); err != nil {
		return nil, err
	}

	expiresAt := s.now().Add(s.paymentsCfg.InitiatedTTL)
	payment := &models.Payment{
		OrderID:     order.ID,
		Method:      params.Method,
		Status:      enums.PaymentStatusInitiated,
		AmountCents: order.TotalCents,
		Currency:    order.Currency,
		ExpiresAt:   &expiresAt,
	}
	if err := tx.WithContext(ctx).Create(payment).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
	}

	converted, err := cartRepo.MarkConverted(ctx, activeCart.ID)
	if err != nil {
		return nil, err
	}
	if !converted {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "cart changed during checkout, retry")
	}

	order.Payments = []models.Payment{*payment}
	return &Result{Order: order, Payment: payment}, nil
}

func (s *service) loadVariants(ctx context.Context, tx *gorm.DB, activeCart *models.Cart) (map[uuid.UUID]models.Variant, error) {
	ids := make([]uuid.UUID, 0, len(activeCart.Items))
	for _, item := range activeCart.Items {
		ids = append(ids, item.VariantID)
	}
	rows, err := s.catalogRepo.WithTx(tx).FindVariants(ctx, ids)
	if err != nil {
		return nil, err
	}
	variants := make(map[uuid.UUID]models.Variant, len(rows))
	for _, variant := range rows {
		variants[variant.ID] = variant
	}
	for _, item := range activeCart.Items {
		variant, ok := variants[item.VariantID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart references an unknown variant").
				WithDetails(map[string]any{"variant_id": item.VariantID.String()})
		}
		if variant.Product != nil && !variant.Product.Active {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product is no longer available").
				WithDetails(map[string]any{"variant_id": item.VariantID.String()})
		}
	}
	return variants, nil
}

func (s *service) reserve(ctx context.Context, tx *gorm.DB, activeCart *models.Cart) error {
	requests := make([]inventory.ReservationRequest, 0, len(activeCart.Items))
	for _, item := range activeCart.Items {
		requests = append(requests, inventory.ReservationRequest{
			VariantID: item.VariantID,
			Qty:       item.Quantity,
		})
	}
	results, err := inventory.Reserve(ctx, tx, requests)
	if err != nil {
		return err
	}
	failures := map[string]any{}
	for _, result := range results {
		if !result.Reserved {
			failures[result.VariantID.String()] = result.Reason
		}
	}
	if len(failures) > 0 {
		return pkgerrors.New(pkgerrors.CodeOutOfStock, "insufficient stock for checkout").
			WithDetails(failures)
	}
	return nil
}

func (s *service) buildOrder(userID uuid.UUID, activeCart *models.Cart, variants map[uuid.UUID]models.Variant, address *types.Address, billing *types.BillingProfile) (*models.Order, error) {
	var subtotal int64
	currency := ""
	items := make([]models.OrderItem, 0, len(activeCart.Items))
	for _, line := range activeCart.Items {
		variant := variants[line.VariantID]
		lineTotal := variant.PriceCents * int64(line.Quantity)
		subtotal += lineTotal
		if currency == "" {
			currency = variant.Currency
		}
		productName := variant.Name
		if variant.Product != nil {
			productName = variant.Product.Name
		}
		items = append(items, models.OrderItem{
			VariantID:      variant.ID,
			ProductName:    productName,
			VariantName:    variant.Name,
			SKU:            variant.SKU,
			UnitPriceCents: variant.PriceCents,
			Quantity:       line.Quantity,
			LineTotalCents: lineTotal,
		})
	}
	if currency == "" {
		currency = "USD"
	}

	tax, err := taxCents(subtotal, s.checkoutCfg.TaxRate)
	if err != nil {
		return nil, err
	}
	shipping := int64(s.checkoutCfg.ShippingFlatCents)

	return &models.Order{
		Number:          s.newOrderNumber(),
		UserID:          userID,
		Status:          enums.OrderStatusPending,
		SubtotalCents:   subtotal,
		ShippingCents:   shipping,
		TaxCents:        tax,
		TotalCents:      subtotal + shipping + tax,
		Currency:        currency,
		ShippingAddress: address.Clone(),
		Billing:         cloneBilling(billing),
		Items:           items,
	}, nil
}

func (s *service) newOrderNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return fmt.Sprintf("SL-%s-%s", s.now().UTC().Format("20060102"), suffix)
}

func resolveAddress(override *types.Address, user *models.User) (*types.Address, error) {
	if override != nil {
		return override, nil
	}
	if user.DefaultAddress == nil || !user.DefaultAddress.Validate() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping address is required")
	}
	return user.DefaultAddress, nil
}

func cloneBilling(billing *types.BillingProfile) *types.BillingProfile {
	if billing == nil {
		return nil
	}
	cloned := billing.Clone()
	return &cloned
}

func taxCents(subtotal int64, rate string) (int64, error) {
	parsed, err := decimal.NewFromString(strings.TrimSpace(rate))
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "invalid tax rate")
	}
	if parsed.IsZero() {
		return 0, nil
	}
	return decimal.NewFromInt(subtotal).Mul(parsed).Round(0).IntPart(), nil
}
