package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderItem is a frozen line of an order. Product and variant names, SKU and
// unit price are denormalized copies taken when the order was assembled.
type OrderItem struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID   uuid.UUID `gorm:"column:order_id;type:uuid;not null;index" json:"orderId"`
	VariantID uuid.UUID `gorm:"column:variant_id;type:uuid;not null" json:"variantId"`

	ProductName    string `gorm:"column:product_name;not null" json:"productName"`
	VariantName    string `gorm:"column:variant_name;not null" json:"variantName"`
	SKU            string `gorm:"column:sku;not null" json:"sku"`
	UnitPriceCents int64  `gorm:"column:unit_price_cents;not null" json:"unitPriceCents"`
	Quantity       int    `gorm:"column:quantity;not null" json:"quantity"`
	LineTotalCents int64  `gorm:"column:line_total_cents;not null" json:"lineTotalCents"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

// TableName overrides the default gorm table name.
func (OrderItem) TableName() string {
	return "order_items"
}
