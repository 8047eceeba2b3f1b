package payments

import (
	"github.com/shoplane/shoplane-backend/pkg/enums"
)

// Trigger names the business event driving a payment transition. Every code
// path that moves a payment, buyer action, admin review, webhook or sweep,
// resolves its next status through the same table.
type Trigger string

const (
	TriggerConfirmTransfer Trigger = "confirm_transfer"
	TriggerApprove         Trigger = "approve"
	TriggerReject          Trigger = "reject"
	TriggerCancel          Trigger = "cancel"
	TriggerExpire          Trigger = "expire"
)

// transitions is the full payment state machine. Statuses absent from the
// outer map are terminal; triggers absent from an inner map are illegal from
// that status. Approve and reject are reachable straight from initiated
// because gateway webhooks can settle before any intermediate update arrives.
var transitions = map[enums.PaymentStatus]map[Trigger]enums.PaymentStatus{
	enums.PaymentStatusInitiated: {
		TriggerConfirmTransfer: enums.PaymentStatusPending,
		TriggerApprove:         enums.PaymentStatusApproved,
		TriggerReject:          enums.PaymentStatusRejected,
		TriggerCancel:          enums.PaymentStatusCanceled,
		TriggerExpire:          enums.PaymentStatusExpired,
	},
	enums.PaymentStatusPending: {
		TriggerApprove: enums.PaymentStatusApproved,
		TriggerReject:  enums.PaymentStatusRejected,
		TriggerCancel:  enums.PaymentStatusCanceled,
		TriggerExpire:  enums.PaymentStatusExpired,
	},
}

// Next resolves the status a trigger moves the payment to. The bool reports
// whether the transition is legal.
func Next(current enums.PaymentStatus, trigger Trigger) (enums.PaymentStatus, bool) {
	byTrigger, ok := transitions[current]
	if !ok {
		return "", false
	}
	next, ok := byTrigger[trigger]
	return next, ok
}

// triggerFor maps a target status to the trigger reaching it, used when a
// webhook hands us the desired status rather than an event name.
func triggerFor(target enums.PaymentStatus) (Trigger, bool) {
	switch target {
	case enums.PaymentStatusPending:
		return TriggerConfirmTransfer, true
	case enums.PaymentStatusApproved:
		return TriggerApprove, true
	case enums.PaymentStatusRejected:
		return TriggerReject, true
	case enums.PaymentStatusCanceled:
		return TriggerCancel, true
	case enums.PaymentStatusExpired:
		return TriggerExpire, true
	default:
		return "", false
	}
}
