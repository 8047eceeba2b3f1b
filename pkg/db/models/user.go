package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/shoplane/shoplane-backend/pkg/types"
)

// User is the account record checkout reads shipping and billing defaults
// from. Authentication lives upstream; this table only mirrors what orders
// need.
type User struct {
	ID    uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Email string    `gorm:"column:email;not null;uniqueIndex" json:"email"`
	Name  string    `gorm:"column:name;not null" json:"name"`

	DefaultAddress *types.Address        `gorm:"column:default_address;type:jsonb;serializer:json" json:"defaultAddress,omitempty"`
	Billing        *types.BillingProfile `gorm:"column:billing;type:jsonb;serializer:json" json:"billing,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// TableName overrides the default gorm table name.
func (User) TableName() string {
	return "users"
}
