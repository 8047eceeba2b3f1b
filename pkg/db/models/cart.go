package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/shoplane/shoplane-backend/pkg/enums"
)

// Cart is a mutable bag of items owned by a signed-in user, by a guest
// session token, or both. A guest cart carries only a token; adopting it on
// sign-in sets UserID and rebinds it to a fresh token, so an adopted cart
// holds both.
type Cart struct {
	ID         uuid.UUID        `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID     *uuid.UUID       `gorm:"column:user_id;type:uuid;index" json:"userId,omitempty"`
	GuestToken *string          `gorm:"column:guest_token;uniqueIndex" json:"guestToken,omitempty"`
	Status     enums.CartStatus `gorm:"column:status;not null;default:active" json:"status"`

	Items []CartItem `gorm:"foreignKey:CartID" json:"items,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// TableName overrides the default gorm table name.
func (Cart) TableName() string {
	return "carts"
}

// IsGuest reports whether the cart belongs to an anonymous session.
func (c *Cart) IsGuest() bool {
	return c.UserID == nil
}
