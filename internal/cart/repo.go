package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shoplane/shoplane-backend/pkg/db/models"
	"github.com/shoplane/shoplane-backend/pkg/enums"
	pkgerrors "github.com/shoplane/shoplane-backend/pkg/errors"
)

// Repository persists carts and their items. Ownership changes go through
// compare-and-swap updates so concurrent sign-ins cannot double-merge a cart.
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

// FindActiveByUser returns the user's active cart with items, or nil.
func (r *Repository) FindActiveByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ? AND status = ?", userID, enums.CartStatusActive).
		First(&cart).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user cart")
	}
	return &cart, nil
}

// FindByGuestToken returns the cart bound to the token regardless of status,
// or nil. Callers use the status and owner to detect tokens whose cart was
// already claimed or converted.
func (r *Repository) FindByGuestToken(ctx context.Context, token string) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("guest_token = ?", token).
		First(&cart).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load guest cart")
	}
	return &cart, nil
}

// FindByID returns a cart with items.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("Items").
		First(&cart, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return &cart, nil
}

// Create inserts a new cart.
func (r *Repository) Create(ctx context.Context, cart *models.Cart) error {
	if err := r.db.WithContext(ctx).Create(cart).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
	}
	return nil
}

// Lock takes an exclusive row lock on a cart until the enclosing transaction
// ends. A missing row is not an error; the caller re-reads after locking.
// SQLite serializes writers on its own and rejects FOR UPDATE, so the clause
// is skipped there.
func (r *Repository) Lock(ctx context.Context, cartID uuid.UUID) error {
	if r.db.Dialector.Name() == "sqlite" {
		return nil
	}
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		First(&cart, "id = ?", cartID).Error
	if err == gorm.ErrRecordNotFound {
		return nil
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock cart")
	}
	return nil
}

// ClaimForUser atomically assigns a guest cart to a user and rebinds it to a
// fresh session token. It reports false when another request already claimed
// or removed the cart.
func (r *Repository) ClaimForUser(ctx context.Context, cartID, userID uuid.UUID, freshToken string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Cart{}).
		Where("id = ? AND status = ? AND user_id IS NULL", cartID, enums.CartStatusActive).
		Updates(map[string]any{
			"user_id":     userID,
			"guest_token": freshToken,
		})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "claim cart")
	}
	return res.RowsAffected > 0, nil
}

// DeleteCart removes an active cart and all of its items. It reports false
// when the cart was no longer active, in which case nothing is touched.
func (r *Repository) DeleteCart(ctx context.Context, cartID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND status = ?", cartID, enums.CartStatusActive).
		Delete(&models.Cart{})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "delete cart")
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	err := r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Delete(&models.CartItem{}).Error
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart items")
	}
	return true, nil
}

// MarkConverted flags a cart as turned into an order. It reports false when
// the cart was no longer active.
func (r *Repository) MarkConverted(ctx context.Context, cartID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Cart{}).
		Where("id = ? AND status = ?", cartID, enums.CartStatusActive).
		Update("status", enums.CartStatusConverted)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "convert cart")
	}
	return res.RowsAffected > 0, nil
}

// UpsertItem sets the quantity for a cart line, inserting it when absent.
func (r *Repository) UpsertItem(ctx context.Context, item *models.CartItem) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cart_id"}, {Name: "variant_id"}},
		DoUpdates: clause.Assignments(map[string]any{"quantity": item.Quantity}),
	}).Create(item).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert cart item")
	}
	return nil
}

// DeleteItems removes every line from a cart.
func (r *Repository) DeleteItems(ctx context.Context, cartID uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Delete(&models.CartItem{}).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart items")
	}
	return nil
}

// DeleteItem removes a cart line.
func (r *Repository) DeleteItem(ctx context.Context, cartID, variantID uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Where("cart_id = ? AND variant_id = ?", cartID, variantID).
		Delete(&models.CartItem{}).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart item")
	}
	return nil
}
