package gateway

import (
	"encoding/json"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/shoplane/shoplane-backend/pkg/enums"
	pkgerrors "github.com/shoplane/shoplane-backend/pkg/errors"
)

// SquareWebhookEvent is the envelope Square posts to webhook endpoints.
type SquareWebhookEvent struct {
	EventID string            `json:"event_id"`
	Type    string            `json:"type"`
	Data    SquareWebhookData `json:"data"`
}

type SquareWebhookData struct {
	Type   string              `json:"type"`
	ID     string              `json:"id"`
	Object SquareWebhookObject `json:"object"`
}

type SquareWebhookObject struct {
	Payment *SquareWebhookPayment `json:"payment"`
}

// SquareWebhookPayment carries the subset of the payment object we act on.
// OrderID ties the webhook back to the payment link opened at initiation.
type SquareWebhookPayment struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	OrderID string `json:"order_id"`
}

// MapSquareEvent normalizes a Square payment event. It returns nil for event
// types and statuses the platform does not act on.
func MapSquareEvent(event *SquareWebhookEvent) (*WebhookUpdate, error) {
	if event == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "square event required")
	}
	switch strings.ToLower(event.Type) {
	case "payment.created", "payment.updated":
	default:
		return nil, nil
	}
	payment := event.Data.Object.Payment
	if payment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment payload missing")
	}
	if payment.OrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment order id missing")
	}
	status, ok := mapSquarePaymentStatus(payment.Status)
	if !ok {
		return nil, nil
	}
	return &WebhookUpdate{
		Provider:    enums.PaymentProviderSquare,
		ProviderRef: payment.OrderID,
		Status:      status,
	}, nil
}

func mapSquarePaymentStatus(raw string) (enums.PaymentStatus, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "APPROVED", "COMPLETED":
		return enums.PaymentStatusApproved, true
	case "PENDING":
		return enums.PaymentStatusPending, true
	case "CANCELED":
		return enums.PaymentStatusCanceled, true
	case "FAILED":
		return enums.PaymentStatusRejected, true
	default:
		return "", false
	}
}

// MapStripeEvent normalizes a Stripe payment_intent event. It returns nil for
// event types the platform does not act on.
func MapStripeEvent(event *stripe.Event) (*WebhookUpdate, error) {
	if event == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe event required")
	}

	var status enums.PaymentStatus
	switch event.Type {
	case "payment_intent.succeeded":
		status = enums.PaymentStatusApproved
	case "payment_intent.processing":
		status = enums.PaymentStatusPending
	case "payment_intent.canceled":
		status = enums.PaymentStatusCanceled
	case "payment_intent.payment_failed":
		status = enums.PaymentStatusRejected
	default:
		return nil, nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent")
	}
	if intent.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing")
	}
	return &WebhookUpdate{
		Provider:    enums.PaymentProviderStripe,
		ProviderRef: intent.ID,
		Status:      status,
	}, nil
}
