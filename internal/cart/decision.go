package cart

import (
	"github.com/shoplane/shoplane-backend/pkg/db/models"
)

// MergeAction names what sign-in consolidation should do with the pair of
// carts it found.
type MergeAction int

const (
	// ActionCreateUserCart means neither cart exists yet.
	ActionCreateUserCart MergeAction = iota
	// ActionUseUserCart means only the user cart exists.
	ActionUseUserCart
	// ActionAdoptGuestCart means only the guest cart exists and it becomes
	// the user's cart.
	ActionAdoptGuestCart
	// ActionDropGuestCart means both carts exist but the guest cart is
	// empty, so it is deleted untouched.
	ActionDropGuestCart
	// ActionMergeCarts means guest items fold into the user cart and the
	// guest cart is deleted.
	ActionMergeCarts
)

// Decide maps the guest/user cart pair onto a merge action. Either argument
// may be nil when that cart does not exist.
func Decide(guest, user *models.Cart) MergeAction {
	switch {
	case guest == nil && user == nil:
		return ActionCreateUserCart
	case guest == nil:
		return ActionUseUserCart
	case user == nil:
		return ActionAdoptGuestCart
	case len(guest.Items) == 0:
		return ActionDropGuestCart
	default:
		return ActionMergeCarts
	}
}

// mergedQuantity combines an existing cart line with an incoming one, capped
// at the variant's current stock. A zero result means the line is dropped.
func mergedQuantity(existing, incoming, stock int) int {
	if stock <= 0 {
		return 0
	}
	total := existing + incoming
	if total > stock {
		return stock
	}
	return total
}
