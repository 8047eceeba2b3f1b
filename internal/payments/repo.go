package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shoplane/shoplane-backend/pkg/db/models"
	"github.com/shoplane/shoplane-backend/pkg/enums"
	pkgerrors "github.com/shoplane/shoplane-backend/pkg/errors"
)

// Repository persists payments and their audit trail. Status changes are
// compare-and-swap updates; the losing side of a race sees zero rows affected
// and treats the transition as already applied.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the supplied transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByID loads a payment by id.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).First(&payment, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	return &payment, nil
}

// FindByOrderID loads the order's payment. Orders carry exactly one.
func (r *Repository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		First(&payment, "order_id = ?", orderID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	return &payment, nil
}

// FindByProviderRef correlates a gateway webhook to a payment. Returns nil
// without error when no payment carries the reference, since webhooks can
// refer to sessions created outside this system.
func (r *Repository) FindByProviderRef(ctx context.Context, provider enums.PaymentProvider, ref string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		First(&payment, "provider = ? AND provider_ref = ?", provider, ref).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment by provider ref")
	}
	return &payment, nil
}

// TransitionStatus atomically moves a payment between statuses. It reports
// false when the payment was not in the expected status.
func (r *Repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.PaymentStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "transition payment status")
	}
	return res.RowsAffected > 0, nil
}

// UpdateMethod changes the payment method while the payment is still
// initiated.
func (r *Repository) UpdateMethod(ctx context.Context, id uuid.UUID, method enums.PaymentMethod) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, enums.PaymentStatusInitiated).
		Update("method", method)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update payment method")
	}
	return res.RowsAffected > 0, nil
}

// SetProviderSession stores the gateway correlation data obtained when a
// checkout session is created.
func (r *Repository) SetProviderSession(ctx context.Context, id uuid.UUID, provider enums.PaymentProvider, ref, checkoutURL string) error {
	updates := map[string]any{
		"provider":     provider,
		"provider_ref": ref,
	}
	if checkoutURL != "" {
		updates["checkout_url"] = checkoutURL
	}
	err := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ?", id).
		Updates(updates).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store provider session")
	}
	return nil
}

// SetTransferDetails records the buyer's transfer reference, the optional
// receipt reference and the admin review window alongside the pending
// transition.
func (r *Repository) SetTransferDetails(ctx context.Context, id uuid.UUID, reference, receiptRef string, reviewDeadline time.Time) error {
	updates := map[string]any{
		"transfer_reference": reference,
		"review_deadline":    reviewDeadline,
		"expires_at":         reviewDeadline,
	}
	if receiptRef != "" {
		updates["transfer_receipt_ref"] = receiptRef
	}
	err := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ?", id).
		Updates(updates).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store transfer details")
	}
	return nil
}

// AppendEvent writes one audit row. Events are never updated or deleted.
func (r *Repository) AppendEvent(ctx context.Context, event *models.PaymentEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment event")
	}
	return nil
}

// ListEvents returns a payment's audit trail, oldest first.
func (r *Repository) ListEvents(ctx context.Context, paymentID uuid.UUID) ([]models.PaymentEvent, error) {
	var events []models.PaymentEvent
	err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("created_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payment events")
	}
	return events, nil
}

// FindExpired returns open payments whose expiry has passed, oldest first.
func (r *Repository) FindExpired(ctx context.Context, now time.Time, limit int) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.WithContext(ctx).
		Where("status IN ? AND expires_at IS NOT NULL AND expires_at < ?",
			[]enums.PaymentStatus{enums.PaymentStatusInitiated, enums.PaymentStatusPending}, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&payments).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expired payments")
	}
	return payments, nil
}
