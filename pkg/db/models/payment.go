package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/shoplane/shoplane-backend/pkg/enums"
)

// Payment tracks a single settlement attempt for an order. Bank transfers
// carry a TransferReference supplied by the buyer; gateway payments carry the
// provider name and its opaque reference.
type Payment struct {
	ID      uuid.UUID           `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index" json:"orderId"`
	Method  enums.PaymentMethod `gorm:"column:method;not null" json:"method"`
	Status  enums.PaymentStatus `gorm:"column:status;not null;default:initiated" json:"status"`

	AmountCents int64  `gorm:"column:amount_cents;not null" json:"amountCents"`
	Currency    string `gorm:"column:currency;not null;default:USD" json:"currency"`

	Provider    *enums.PaymentProvider `gorm:"column:provider;index:idx_payments_provider_ref" json:"provider,omitempty"`
	ProviderRef *string                `gorm:"column:provider_ref;index:idx_payments_provider_ref" json:"providerRef,omitempty"`
	CheckoutURL *string                `gorm:"column:checkout_url" json:"checkoutUrl,omitempty"`

	TransferReference  *string `gorm:"column:transfer_reference" json:"transferReference,omitempty"`
	TransferReceiptRef *string `gorm:"column:transfer_receipt_ref" json:"transferReceiptRef,omitempty"`

	ExpiresAt      *time.Time `gorm:"column:expires_at;index" json:"expiresAt,omitempty"`
	ReviewDeadline *time.Time `gorm:"column:review_deadline" json:"reviewDeadline,omitempty"`

	Events []PaymentEvent `gorm:"foreignKey:PaymentID" json:"events,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// TableName overrides the default gorm table name.
func (Payment) TableName() string {
	return "payments"
}
