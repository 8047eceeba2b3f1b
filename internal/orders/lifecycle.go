package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shoplane/shoplane-backend/internal/inventory"
	"github.com/shoplane/shoplane-backend/pkg/db/models"
	"github.com/shoplane/shoplane-backend/pkg/enums"
	pkgerrors "github.com/shoplane/shoplane-backend/pkg/errors"
)

// Cancel moves an order to canceled, releases its reserved stock and cancels
// any open payments on it. The release rides on the same compare-and-swap
// transition as the status change, so a concurrent cancel can never give
// units back twice. The bool reports whether this call performed the
// cancellation.
func Cancel(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor enums.PaymentActor, reason string) (*models.Order, bool, error) {
	if tx == nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	repo := NewRepository(tx)
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, false, err
	}
	if order.Status == enums.OrderStatusCanceled {
		return order, false, nil
	}
	if !CanTransition(order.Status, enums.OrderStatusCanceled) {
		return nil, false, pkgerrors.New(pkgerrors.CodeStateConflict,
			"order cannot be canceled in status "+order.Status.String())
	}

	changed, err := repo.TransitionStatus(ctx, orderID, order.Status, enums.OrderStatusCanceled)
	if err != nil {
		return nil, false, err
	}
	if !changed {
		reloaded, err := repo.FindByID(ctx, orderID)
		return reloaded, false, err
	}

	if err := inventory.Release(ctx, tx, reservationRequests(order)); err != nil {
		return nil, false, err
	}
	if err := cancelOpenPayments(ctx, tx, order, actor, reason); err != nil {
		return nil, false, err
	}
	order.Status = enums.OrderStatusCanceled
	return order, true, nil
}

// cancelOpenPayments closes the order's non-terminal payments and appends the
// matching audit rows.
func cancelOpenPayments(ctx context.Context, tx *gorm.DB, order *models.Order, actor enums.PaymentActor, reason string) error {
	for _, payment := range order.Payments {
		if payment.Status.IsTerminal() {
			continue
		}
		res := tx.WithContext(ctx).Model(&models.Payment{}).
			Where("id = ? AND status = ?", payment.ID, payment.Status).
			Update("status", enums.PaymentStatusCanceled)
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "cancel payment")
		}
		if res.RowsAffected == 0 {
			continue
		}
		event := models.PaymentEvent{
			PaymentID:  payment.ID,
			FromStatus: payment.Status,
			ToStatus:   enums.PaymentStatusCanceled,
			Actor:      actor,
		}
		if reason != "" {
			event.Reason = &reason
		}
		if err := tx.WithContext(ctx).Create(&event).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment event")
		}
	}
	return nil
}

// MarkPaid moves a confirmed order to paid and consumes its reservation. The
// bool reports whether this call performed the transition.
func MarkPaid(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, bool, error) {
	if tx == nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	repo := NewRepository(tx)
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, false, err
	}
	if order.Status == enums.OrderStatusPaid {
		return order, false, nil
	}

	// A gateway can settle before the buyer-facing confirm step ran, so a
	// still-pending order is walked through confirmed first.
	if order.Status == enums.OrderStatusPending {
		changed, err := repo.TransitionStatus(ctx, orderID, enums.OrderStatusPending, enums.OrderStatusConfirmed)
		if err != nil {
			return nil, false, err
		}
		if changed {
			order.Status = enums.OrderStatusConfirmed
		} else if order, err = repo.FindByID(ctx, orderID); err != nil {
			return nil, false, err
		}
	}
	if !CanTransition(order.Status, enums.OrderStatusPaid) {
		return nil, false, pkgerrors.New(pkgerrors.CodeStateConflict,
			"order cannot be marked paid in status "+order.Status.String())
	}

	changed, err := repo.TransitionStatus(ctx, orderID, order.Status, enums.OrderStatusPaid)
	if err != nil {
		return nil, false, err
	}
	if !changed {
		reloaded, err := repo.FindByID(ctx, orderID)
		return reloaded, false, err
	}

	if err := inventory.Consume(ctx, tx, reservationRequests(order)); err != nil {
		return nil, false, err
	}
	order.Status = enums.OrderStatusPaid
	return order, true, nil
}

func reservationRequests(order *models.Order) []inventory.ReservationRequest {
	requests := make([]inventory.ReservationRequest, 0, len(order.Items))
	for _, item := range order.Items {
		requests = append(requests, inventory.ReservationRequest{
			VariantID: item.VariantID,
			Qty:       item.Quantity,
		})
	}
	return requests
}
