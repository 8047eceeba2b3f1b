package gateway

import (
	"errors"
	"strings"

	"github.com/shoplane/shoplane-backend/pkg/config"
)

// StripeClient holds the credentials for verifying inbound Stripe webhooks.
// Stripe checkouts are created by a separate frontend integration, so the
// backend only consumes its events.
type StripeClient struct {
	apiKey        string
	signingSecret string
}

// NewStripeClient validates the Stripe webhook credentials.
func NewStripeClient(cfg config.StripeConfig) (*StripeClient, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("stripe webhook secret is required")
	}
	return &StripeClient{
		apiKey:        strings.TrimSpace(cfg.APIKey),
		signingSecret: secret,
	}, nil
}

// SigningSecret returns the Stripe webhook signing secret.
func (c *StripeClient) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}
