package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/shoplane/shoplane-backend/pkg/enums"
)

// OutboxEvent is a domain event persisted in the same transaction as the
// state change that produced it. A background publisher drains pending rows
// to the message broker.
type OutboxEvent struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;not null;uniqueIndex:ux_outbox_events_event_aggregate" json:"aggregateType"`
	AggregateID   uuid.UUID                 `gorm:"column:aggregate_id;type:uuid;not null;uniqueIndex:ux_outbox_events_event_aggregate" json:"aggregateId"`
	EventType     enums.OutboxEventType     `gorm:"column:event_type;not null;uniqueIndex:ux_outbox_events_event_aggregate" json:"eventType"`
	Payload       json.RawMessage           `gorm:"column:payload;type:jsonb;not null" json:"payload"`

	PublishedAt *time.Time `gorm:"column:published_at;index" json:"publishedAt,omitempty"`
	Attempts    int        `gorm:"column:attempts;not null;default:0" json:"attempts"`
	LastError   *string    `gorm:"column:last_error" json:"lastError,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

// TableName overrides the default gorm table name.
func (OutboxEvent) TableName() string {
	return "outbox_events"
}
