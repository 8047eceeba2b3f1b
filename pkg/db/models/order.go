package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/shoplane/shoplane-backend/pkg/enums"
	"github.com/shoplane/shoplane-backend/pkg/types"
)

// Order is an immutable snapshot of a checkout. Prices, names and addresses
// are copied at assembly time so later catalog or profile edits never change
// what the buyer agreed to pay.
type Order struct {
	ID     uuid.UUID         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Number string            `gorm:"column:number;not null;uniqueIndex" json:"number"`
	UserID uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index" json:"userId"`
	Status enums.OrderStatus `gorm:"column:status;not null;default:pending" json:"status"`

	SubtotalCents int64  `gorm:"column:subtotal_cents;not null" json:"subtotalCents"`
	ShippingCents int64  `gorm:"column:shipping_cents;not null" json:"shippingCents"`
	TaxCents      int64  `gorm:"column:tax_cents;not null" json:"taxCents"`
	TotalCents    int64  `gorm:"column:total_cents;not null" json:"totalCents"`
	Currency      string `gorm:"column:currency;not null;default:USD" json:"currency"`

	ShippingAddress types.Address         `gorm:"column:shipping_address;type:jsonb;serializer:json" json:"shippingAddress"`
	Billing         *types.BillingProfile `gorm:"column:billing;type:jsonb;serializer:json" json:"billing,omitempty"`

	Items    []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`
	Payments []Payment   `gorm:"foreignKey:OrderID" json:"payments,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// TableName overrides the default gorm table name.
func (Order) TableName() string {
	return "orders"
}
