package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/shoplane/shoplane-backend/api/middleware"
	"github.com/shoplane/shoplane-backend/internal/cart"
	pkgerrors "github.com/shoplane/shoplane-backend/pkg/errors"
)

// cartTokenHeader carries the anonymous cart token. Clients persist whatever
// value the cart endpoints hand back.
const cartTokenHeader = "X-SL-Cart-Token"

// cartIdentity builds the caller identity from the auth context and the cart
// token header. Tokens are minted by the cart service, never here; the
// service reports rotation and the controllers echo the new token back.
func cartIdentity(r *http.Request) (cart.Identity, error) {
	identity := cart.Identity{
		GuestToken: strings.TrimSpace(r.Header.Get(cartTokenHeader)),
	}
	if raw := middleware.UserIDFromContext(r.Context()); raw != "" {
		userID, err := uuid.Parse(raw)
		if err != nil {
			return cart.Identity{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid user identity")
		}
		identity.UserID = &userID
	}
	return identity, nil
}

// requireUserID extracts the authenticated caller or fails with unauthorized.
func requireUserID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in required")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid user identity")
	}
	return userID, nil
}
