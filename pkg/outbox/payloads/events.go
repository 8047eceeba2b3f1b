package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/shoplane/shoplane-backend/pkg/enums"
)

// OrderConfirmedEvent signals that a buyer locked in an order and picked a
// payment method.
type OrderConfirmedEvent struct {
	OrderID    uuid.UUID           `json:"order_id"`
	UserID     uuid.UUID           `json:"user_id"`
	Method     enums.PaymentMethod `json:"method"`
	TotalCents int64               `json:"total_cents"`
	Currency   string              `json:"currency"`
}

// TransferPendingReviewEvent tells back office a bank transfer claims to be
// sent and needs manual verification.
type TransferPendingReviewEvent struct {
	PaymentID         uuid.UUID `json:"payment_id"`
	OrderID           uuid.UUID `json:"order_id"`
	TransferReference string    `json:"transfer_reference"`
	ReceiptRef        string    `json:"receipt_ref,omitempty"`
	ReviewDeadline    time.Time `json:"review_deadline"`
}

// PaymentApprovedEvent is emitted once a payment settles, by admin review or
// gateway webhook.
type PaymentApprovedEvent struct {
	PaymentID   uuid.UUID           `json:"payment_id"`
	OrderID     uuid.UUID           `json:"order_id"`
	Method      enums.PaymentMethod `json:"method"`
	AmountCents int64               `json:"amount_cents"`
	ApprovedAt  time.Time           `json:"approved_at"`
}

// OrderCanceledEvent reports that an order was canceled and its stock
// released.
type OrderCanceledEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	UserID     uuid.UUID `json:"user_id"`
	CanceledAt time.Time `json:"canceled_at"`
	Reason     string    `json:"reason,omitempty"`
}
