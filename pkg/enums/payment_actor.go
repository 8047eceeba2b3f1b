package enums

import "fmt"

// PaymentActor identifies who triggered a payment transition.
type PaymentActor string

const (
	PaymentActorBuyer   PaymentActor = "buyer"
	PaymentActorAdmin   PaymentActor = "admin"
	PaymentActorGateway PaymentActor = "gateway"
	PaymentActorSweeper PaymentActor = "sweeper"
)

var validPaymentActors = []PaymentActor{
	PaymentActorBuyer,
	PaymentActorAdmin,
	PaymentActorGateway,
	PaymentActorSweeper,
}

// String implements fmt.Stringer.
func (p PaymentActor) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentActor.
func (p PaymentActor) IsValid() bool {
	for _, candidate := range validPaymentActors {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentActor converts raw input into a PaymentActor.
func ParsePaymentActor(value string) (PaymentActor, error) {
	for _, candidate := range validPaymentActors {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment actor %q", value)
}
