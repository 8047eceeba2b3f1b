package enums

// OutboxEventType names a domain event queued through the outbox.
type OutboxEventType string

const (
	EventOrderConfirmed        OutboxEventType = "order.confirmed"
	EventTransferPendingReview OutboxEventType = "payment.transfer_pending_review"
	EventPaymentApproved       OutboxEventType = "payment.approved"
	EventOrderCanceled         OutboxEventType = "order.canceled"
)

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder   OutboxAggregateType = "order"
	AggregatePayment OutboxAggregateType = "payment"
)
