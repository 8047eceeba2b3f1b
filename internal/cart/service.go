package cart

import (
	"bytes"
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shoplane/shoplane-backend/pkg/db/models"
	"github.com/shoplane/shoplane-backend/pkg/enums"
	pkgerrors "github.com/shoplane/shoplane-backend/pkg/errors"
	"github.com/shoplane/shoplane-backend/pkg/logger"
)

// Identity names the caller a cart operation acts for. UserID is set for
// signed-in users; GuestToken for anonymous sessions. Resolve accepts both at
// once, which triggers consolidation.
type Identity struct {
	UserID     *uuid.UUID
	GuestToken string
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type catalogReader interface {
	FindVariant(ctx context.Context, id uuid.UUID) (*models.Variant, error)
	FindVariants(ctx context.Context, ids []uuid.UUID) ([]models.Variant, error)
}

// Service owns cart reads, mutations and sign-in consolidation. Mutating
// operations return the cart plus a rotated flag: when true the server bound
// the cart to a new session token and the client must replace its stored
// token with cart.GuestToken.
type Service interface {
	Resolve(ctx context.Context, identity Identity) (*models.Cart, bool, error)
	Get(ctx context.Context, identity Identity) (*models.Cart, error)
	AddItem(ctx context.Context, identity Identity, variantID uuid.UUID, qty int) (*models.Cart, bool, error)
	UpdateItemQuantity(ctx context.Context, identity Identity, variantID uuid.UUID, qty int) (*models.Cart, bool, error)
	RemoveItem(ctx context.Context, identity Identity, variantID uuid.UUID) (*models.Cart, bool, error)
	Clear(ctx context.Context, identity Identity) (*models.Cart, bool, error)
}

type ServiceParams struct {
	Repo              *Repository
	Catalog           catalogReader
	TransactionRunner txRunner
	Logger            *logger.Logger
}

type service struct {
	repo     *Repository
	catalog  catalogReader
	txRunner txRunner
	logg     *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart repo required")
	}
	if params.Catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "catalog reader required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	return &service{
		repo:     params.Repo,
		catalog:  params.Catalog,
		txRunner: params.TransactionRunner,
		logg:     params.Logger,
	}, nil
}

// Resolve returns the caller's active cart, creating one when needed. When a
// signed-in user also presents a guest token the guest cart is consolidated
// into the user cart before returning. The returned flag reports whether the
// session token rotated.
func (s *service) Resolve(ctx context.Context, identity Identity) (*models.Cart, bool, error) {
	token := strings.TrimSpace(identity.GuestToken)
	if identity.UserID == nil {
		return s.resolveGuest(ctx, token)
	}
	if token == "" {
		cart, err := s.resolveUser(ctx, *identity.UserID)
		return cart, false, err
	}

	var result *models.Cart
	var rotated bool
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		cart, tokenIssued, err := s.consolidate(ctx, tx, *identity.UserID, token)
		if err != nil {
			return err
		}
		result = cart
		rotated = tokenIssued
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, rotated, nil
}

// Get loads the active cart without creating or consolidating anything.
func (s *service) Get(ctx context.Context, identity Identity) (*models.Cart, error) {
	cart, err := s.findActive(ctx, s.repo, identity)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}
	return cart, nil
}

// AddItem adds qty units of a variant to the cart, creating the cart when
// needed. The resulting line quantity is capped at the variant's stock; the
// variant price is captured on the line when it is first added.
func (s *service) AddItem(ctx context.Context, identity Identity, variantID uuid.UUID, qty int) (*models.Cart, bool, error) {
	if variantID == uuid.Nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeVariantRequired, "variant id is required")
	}
	if qty <= 0 {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	var result *models.Cart
	var rotated bool
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, tokenIssued, err := s.findOrCreateActive(ctx, repo, identity)
		if err != nil {
			return err
		}
		rotated = tokenIssued

		variant, err := s.catalog.FindVariant(ctx, variantID)
		if err != nil {
			return err
		}
		if variant.Stock <= 0 {
			return pkgerrors.New(pkgerrors.CodeOutOfStock, "variant is out of stock").
				WithDetails(map[string]any{"variant_id": variantID.String()})
		}

		existing := lineQuantity(cart, variantID)
		target := existing + qty
		if target > variant.Stock {
			target = variant.Stock
		}
		if err := repo.UpsertItem(ctx, &models.CartItem{
			CartID:     cart.ID,
			VariantID:  variantID,
			Quantity:   target,
			PriceCents: variant.PriceCents,
		}); err != nil {
			return err
		}

		updated, err := repo.FindByID(ctx, cart.ID)
		if err != nil {
			return err
		}
		result = updated
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, rotated, nil
}

// UpdateItemQuantity sets a cart line to qty, capped at stock. Zero removes
// the line.
func (s *service) UpdateItemQuantity(ctx context.Context, identity Identity, variantID uuid.UUID, qty int) (*models.Cart, bool, error) {
	if variantID == uuid.Nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeVariantRequired, "variant id is required")
	}
	if qty < 0 {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "quantity cannot be negative")
	}
	if qty == 0 {
		return s.RemoveItem(ctx, identity, variantID)
	}

	var result *models.Cart
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := s.findActive(ctx, repo, identity)
		if err != nil {
			return err
		}
		if cart == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
		}
		line := lineItem(cart, variantID)
		if line == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "item not in cart")
		}

		variant, err := s.catalog.FindVariant(ctx, variantID)
		if err != nil {
			return err
		}
		if variant.Stock <= 0 {
			return pkgerrors.New(pkgerrors.CodeOutOfStock, "variant is out of stock").
				WithDetails(map[string]any{"variant_id": variantID.String()})
		}
		target := qty
		if target > variant.Stock {
			target = variant.Stock
		}
		if err := repo.UpsertItem(ctx, &models.CartItem{
			CartID:     cart.ID,
			VariantID:  variantID,
			Quantity:   target,
			PriceCents: line.PriceCents,
		}); err != nil {
			return err
		}

		updated, err := repo.FindByID(ctx, cart.ID)
		if err != nil {
			return err
		}
		result = updated
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, false, nil
}

// RemoveItem deletes a cart line.
func (s *service) RemoveItem(ctx context.Context, identity Identity, variantID uuid.UUID) (*models.Cart, bool, error) {
	if variantID == uuid.Nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeVariantRequired, "variant id is required")
	}

	var result *models.Cart
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := s.findActive(ctx, repo, identity)
		if err != nil {
			return err
		}
		if cart == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
		}
		if err := repo.DeleteItem(ctx, cart.ID, variantID); err != nil {
			return err
		}
		updated, err := repo.FindByID(ctx, cart.ID)
		if err != nil {
			return err
		}
		result = updated
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, false, nil
}

// Clear removes every line from the cart, leaving the cart itself in place.
func (s *service) Clear(ctx context.Context, identity Identity) (*models.Cart, bool, error) {
	var result *models.Cart
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := s.findActive(ctx, repo, identity)
		if err != nil {
			return err
		}
		if cart == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
		}
		if err := repo.DeleteItems(ctx, cart.ID); err != nil {
			return err
		}
		updated, err := repo.FindByID(ctx, cart.ID)
		if err != nil {
			return err
		}
		result = updated
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, false, nil
}

// resolveGuest returns the cart the token points at, or a fresh unowned cart
// bound to a newly minted token when the token is absent, unknown, or points
// at a cart that was claimed, converted or deleted.
func (s *service) resolveGuest(ctx context.Context, token string) (*models.Cart, bool, error) {
	if token != "" {
		cart, err := s.repo.FindByGuestToken(ctx, token)
		if err != nil {
			return nil, false, err
		}
		if cart != nil && cart.UserID == nil && cart.Status == enums.CartStatusActive {
			return cart, false, nil
		}
	}
	fresh, err := s.createGuestCart(ctx, s.repo)
	if err != nil {
		return nil, false, err
	}
	return fresh, true, nil
}

func (s *service) resolveUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	cart, err := s.repo.FindActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cart != nil {
		return cart, nil
	}
	fresh := &models.Cart{
		UserID: &userID,
		Status: enums.CartStatusActive,
	}
	if err := s.repo.Create(ctx, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

func (s *service) createGuestCart(ctx context.Context, repo *Repository) (*models.Cart, error) {
	token := uuid.NewString()
	fresh := &models.Cart{
		GuestToken: &token,
		Status:     enums.CartStatusActive,
	}
	if err := repo.Create(ctx, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

// consolidate applies the sign-in merge decision inside the supplied
// transaction. Both candidate carts are locked in ascending id order and
// re-read under the locks before the decision, so a concurrent mutation of
// either cart cannot be overwritten from a stale snapshot. A guest token
// whose cart was already claimed or merged away is treated as absent so
// repeated sign-ins stay idempotent.
func (s *service) consolidate(ctx context.Context, tx *gorm.DB, userID uuid.UUID, token string) (*models.Cart, bool, error) {
	repo := s.repo.WithTx(tx)

	guest, err := repo.FindByGuestToken(ctx, token)
	if err != nil {
		return nil, false, err
	}
	user, err := repo.FindActiveByUser(ctx, userID)
	if err != nil {
		return nil, false, err
	}

	for _, id := range lockOrder(guest, user) {
		if err := repo.Lock(ctx, id); err != nil {
			return nil, false, err
		}
	}
	// Either row can change between the unlocked peek and the lock grant.
	guest, err = repo.FindByGuestToken(ctx, token)
	if err != nil {
		return nil, false, err
	}
	user, err = repo.FindActiveByUser(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if guest != nil && (guest.UserID != nil || guest.Status != enums.CartStatusActive) {
		guest = nil
	}

	switch Decide(guest, user) {
	case ActionCreateUserCart:
		fresh := &models.Cart{UserID: &userID, Status: enums.CartStatusActive}
		if err := repo.Create(ctx, fresh); err != nil {
			return nil, false, err
		}
		return fresh, false, nil

	case ActionUseUserCart:
		return user, false, nil

	case ActionAdoptGuestCart:
		claimed, err := repo.ClaimForUser(ctx, guest.ID, userID, uuid.NewString())
		if err != nil {
			return nil, false, err
		}
		if !claimed {
			return nil, false, pkgerrors.New(pkgerrors.CodeConflict, "cart changed concurrently, retry")
		}
		adopted, err := repo.FindByID(ctx, guest.ID)
		if err != nil {
			return nil, false, err
		}
		return adopted, true, nil

	case ActionDropGuestCart:
		if _, err := repo.DeleteCart(ctx, guest.ID); err != nil {
			return nil, false, err
		}
		return user, false, nil

	default: // ActionMergeCarts
		merged, err := s.mergeCarts(ctx, repo, guest, user)
		return merged, false, err
	}
}

// mergeCarts deletes the guest cart and its rows first so exactly one request
// performs the item merge, then folds the captured guest lines into the user
// cart capped at stock. New lines keep the price captured when the guest
// added them; lines the user already holds keep the user's captured price.
func (s *service) mergeCarts(ctx context.Context, repo *Repository, guest, user *models.Cart) (*models.Cart, error) {
	deleted, err := repo.DeleteCart(ctx, guest.ID)
	if err != nil {
		return nil, err
	}
	if !deleted {
		return user, nil
	}

	ids := make([]uuid.UUID, 0, len(guest.Items))
	for _, item := range guest.Items {
		ids = append(ids, item.VariantID)
	}
	variants, err := s.catalog.FindVariants(ctx, ids)
	if err != nil {
		return nil, err
	}
	stocks := make(map[uuid.UUID]int, len(variants))
	for _, variant := range variants {
		stocks[variant.ID] = variant.Stock
	}

	for _, item := range guest.Items {
		stock, known := stocks[item.VariantID]
		if !known {
			continue
		}
		target := mergedQuantity(lineQuantity(user, item.VariantID), item.Quantity, stock)
		if target == 0 {
			if err := repo.DeleteItem(ctx, user.ID, item.VariantID); err != nil {
				return nil, err
			}
			continue
		}
		if err := repo.UpsertItem(ctx, &models.CartItem{
			CartID:     user.ID,
			VariantID:  item.VariantID,
			Quantity:   target,
			PriceCents: item.PriceCents,
		}); err != nil {
			return nil, err
		}
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"guest_cart_id": guest.ID.String(),
			"user_cart_id":  user.ID.String(),
			"merged_lines":  len(guest.Items),
		}), "guest cart merged")
	}
	return repo.FindByID(ctx, user.ID)
}

// findActive locates the caller's active cart without creating one. Guest
// tokens bound to a claimed cart are rejected.
func (s *service) findActive(ctx context.Context, repo *Repository, identity Identity) (*models.Cart, error) {
	token := strings.TrimSpace(identity.GuestToken)
	if identity.UserID != nil {
		return repo.FindActiveByUser(ctx, *identity.UserID)
	}
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "guest token or user identity required")
	}
	cart, err := repo.FindByGuestToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, nil
	}
	if cart.UserID != nil || cart.Status != enums.CartStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "guest cart belongs to an account")
	}
	return cart, nil
}

// findOrCreateActive resolves the caller's active cart, creating one when
// absent. A created guest cart is bound to a newly minted token and reported
// through the rotated flag.
func (s *service) findOrCreateActive(ctx context.Context, repo *Repository, identity Identity) (*models.Cart, bool, error) {
	if identity.UserID == nil && strings.TrimSpace(identity.GuestToken) == "" {
		fresh, err := s.createGuestCart(ctx, repo)
		if err != nil {
			return nil, false, err
		}
		return fresh, true, nil
	}
	cart, err := s.findActive(ctx, repo, identity)
	if err != nil {
		return nil, false, err
	}
	if cart != nil {
		return cart, false, nil
	}
	if identity.UserID != nil {
		fresh := &models.Cart{UserID: identity.UserID, Status: enums.CartStatusActive}
		if err := repo.Create(ctx, fresh); err != nil {
			return nil, false, err
		}
		return fresh, false, nil
	}
	fresh, err := s.createGuestCart(ctx, repo)
	if err != nil {
		return nil, false, err
	}
	return fresh, true, nil
}

// lockOrder fixes one global lock acquisition order over the candidate
// carts: ascending by id bytes.
func lockOrder(carts ...*models.Cart) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(carts))
	for _, cart := range carts {
		if cart != nil {
			ids = append(ids, cart.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
	return ids
}

func lineQuantity(cart *models.Cart, variantID uuid.UUID) int {
	if item := lineItem(cart, variantID); item != nil {
		return item.Quantity
	}
	return 0
}

func lineItem(cart *models.Cart, variantID uuid.UUID) *models.CartItem {
	if cart == nil {
		return nil
	}
	for i := range cart.Items {
		if cart.Items[i].VariantID == variantID {
			return &cart.Items[i]
		}
	}
	return nil
}
