package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/shoplane/shoplane-backend/pkg/enums"
)

// PaymentEvent is one row of the append-only payment audit trail. Rows are
// written in the same transaction as the status change and never updated.
type PaymentEvent struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	PaymentID uuid.UUID `gorm:"column:payment_id;type:uuid;not null;index" json:"paymentId"`

	FromStatus enums.PaymentStatus `gorm:"column:from_status;not null" json:"fromStatus"`
	ToStatus   enums.PaymentStatus `gorm:"column:to_status;not null" json:"toStatus"`
	Actor      enums.PaymentActor  `gorm:"column:actor;not null" json:"actor"`
	Reason     *string             `gorm:"column:reason" json:"reason,omitempty"`

	Metadata map[string]any `gorm:"column:metadata;type:jsonb;serializer:json" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

// TableName overrides the default gorm table name.
func (PaymentEvent) TableName() string {
	return "payment_events"
}
