package gateway

import (
	"context"

	"github.com/google/uuid"

	"github.com/shoplane/shoplane-backend/pkg/enums"
)

// CheckoutParams describes the payment a hosted checkout session is opened for.
type CheckoutParams struct {
	PaymentID      uuid.UUID
	OrderNumber    string
	AmountCents    int64
	Currency       string
	IdempotencyKey string
}

// CheckoutSession is the provider-side handle for a gateway payment. Ref is
// the identifier incoming webhooks will carry.
type CheckoutSession struct {
	Provider enums.PaymentProvider
	Ref      string
	URL      string
}

// WebhookUpdate is a provider event normalized into domain terms.
type WebhookUpdate struct {
	Provider    enums.PaymentProvider
	ProviderRef string
	Status      enums.PaymentStatus
}

// Gateway opens hosted checkout sessions with an external payment provider.
type Gateway interface {
	Provider() enums.PaymentProvider
	CreateCheckout(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
}
