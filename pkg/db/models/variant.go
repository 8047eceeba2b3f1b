package models

import (
	"time"

	"github.com/google/uuid"
)

// Variant is the purchasable unit. Stock is the quantity still available for
// sale; Reserved counts units held by orders that have not yet settled or
// been released. Both are only mutated through guarded single-row updates.
type Variant struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ProductID  uuid.UUID `gorm:"column:product_id;type:uuid;not null;index" json:"productId"`
	SKU        string    `gorm:"column:sku;not null;uniqueIndex" json:"sku"`
	Name       string    `gorm:"column:name;not null" json:"name"`
	PriceCents int64     `gorm:"column:price_cents;not null" json:"priceCents"`
	Currency   string    `gorm:"column:currency;not null;default:USD" json:"currency"`
	Stock      int       `gorm:"column:stock;not null;default:0" json:"stock"`
	Reserved   int       `gorm:"column:reserved;not null;default:0" json:"reserved"`

	Product *Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// TableName overrides the default gorm table name.
func (Variant) TableName() string {
	return "variants"
}
