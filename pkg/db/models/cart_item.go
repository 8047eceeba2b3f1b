package models

import (
	"time"

	"github.com/google/uuid"
)

// CartItem is a single variant line inside a cart. A variant appears at most
// once per cart; quantity changes mutate the existing row. PriceCents is the
// variant price captured when the line was first added and never follows
// later catalog price changes.
type CartItem struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CartID     uuid.UUID `gorm:"column:cart_id;type:uuid;not null;uniqueIndex:idx_cart_items_cart_variant" json:"cartId"`
	VariantID  uuid.UUID `gorm:"column:variant_id;type:uuid;not null;uniqueIndex:idx_cart_items_cart_variant" json:"variantId"`
	Quantity   int       `gorm:"column:quantity;not null" json:"quantity"`
	PriceCents int64     `gorm:"column:price_cents;not null" json:"priceCents"`

	Variant *Variant `gorm:"foreignKey:VariantID" json:"variant,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// TableName overrides the default gorm table name.
func (CartItem) TableName() string {
	return "cart_items"
}
