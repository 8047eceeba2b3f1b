package payments

import (
	"testing"

	"github.com/shoplane/shoplane-backend/pkg/enums"
)

func TestNextAllowsDefinedTransitions(t *testing.T) {
	t.Parallel()
	cases := []struct {
		from    enums.PaymentStatus
		trigger Trigger
		want    enums.PaymentStatus
	}{
		{enums.PaymentStatusInitiated, TriggerConfirmTransfer, enums.PaymentStatusPending},
		{enums.PaymentStatusInitiated, TriggerApprove, enums.PaymentStatusApproved},
		{enums.PaymentStatusInitiated, TriggerReject, enums.PaymentStatusRejected},
		{enums.PaymentStatusInitiated, TriggerCancel, enums.PaymentStatusCanceled},
		{enums.PaymentStatusInitiated, TriggerExpire, enums.PaymentStatusExpired},
		{enums.PaymentStatusPending, TriggerApprove, enums.PaymentStatusApproved},
		{enums.PaymentStatusPending, TriggerReject, enums.PaymentStatusRejected},
		{enums.PaymentStatusPending, TriggerCancel, enums.PaymentStatusCanceled},
		{enums.PaymentStatusPending, TriggerExpire, enums.PaymentStatusExpired},
	}
	for _, tc := range cases {
		got, ok := Next(tc.from, tc.trigger)
		if !ok {
			t.Errorf("%s + %s: expected legal transition", tc.from, tc.trigger)
			continue
		}
		if got != tc.want {
			t.Errorf("%s + %s: got %s, want %s", tc.from, tc.trigger, got, tc.want)
		}
	}
}

func TestNextRejectsIllegalTransitions(t *testing.T) {
	t.Parallel()
	cases := []struct {
		from    enums.PaymentStatus
		trigger Trigger
	}{
		{enums.PaymentStatusPending, TriggerConfirmTransfer},
		{enums.PaymentStatusApproved, TriggerCancel},
		{enums.PaymentStatusApproved, TriggerExpire},
		{enums.PaymentStatusRejected, TriggerApprove},
		{enums.PaymentStatusCanceled, TriggerApprove},
		{enums.PaymentStatusExpired, TriggerConfirmTransfer},
	}
	for _, tc := range cases {
		if _, ok := Next(tc.from, tc.trigger); ok {
			t.Errorf("%s + %s: expected illegal transition", tc.from, tc.trigger)
		}
	}
}

func TestTriggerForCoversWebhookStatuses(t *testing.T) {
	t.Parallel()
	for _, status := range []enums.PaymentStatus{
		enums.PaymentStatusPending,
		enums.PaymentStatusApproved,
		enums.PaymentStatusRejected,
		enums.PaymentStatusCanceled,
		enums.PaymentStatusExpired,
	} {
		if _, ok := triggerFor(status); !ok {
			t.Errorf("expected trigger for %s", status)
		}
	}
	if _, ok := triggerFor(enums.PaymentStatusInitiated); ok {
		t.Error("initiated must not be a transition target")
	}
}
