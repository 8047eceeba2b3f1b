package payments

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shoplane/shoplane-backend/internal/orders"
	"github.com/shoplane/shoplane-backend/pkg/config"
	"github.com/shoplane/shoplane-backend/pkg/db/models"
	"github.com/shoplane/shoplane-backend/pkg/enums"
	pkgerrors "github.com/shoplane/shoplane-backend/pkg/errors"
	"github.com/shoplane/shoplane-backend/pkg/gateway"
	"github.com/shoplane/shoplane-backend/pkg/logger"
	"github.com/shoplane/shoplane-backend/pkg/metrics"
	"github.com/shoplane/shoplane-backend/pkg/outbox"
	"github.com/shoplane/shoplane-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service drives every payment transition: buyer bank-transfer confirmation,
// admin review, gateway webhooks and sweeper expiry all resolve their moves
// through the same transition table and append to the same audit trail.
type Service interface {
	Get(ctx context.Context, userID, orderID uuid.UUID) (*models.Payment, error)
	Initiate(ctx context.Context, userID, orderID uuid.UUID, method enums.PaymentMethod) (*models.Payment, error)
	ConfirmBankTransfer(ctx context.Context, userID, orderID uuid.UUID, reference, receiptRef string) (*models.Payment, error)
	ReviewBankTransfer(ctx context.Context, paymentID uuid.UUID, approve bool, note string) (*models.Payment, error)
	HandleWebhook(ctx context.Context, update *gateway.WebhookUpdate) error
	Expire(ctx context.Context, paymentID uuid.UUID) (bool, error)
	ListEvents(ctx context.Context, userID, orderID uuid.UUID) ([]models.PaymentEvent, error)
}

type ServiceParams struct {
	Repo              *Repository
	OrderRepo         *orders.Repository
	TransactionRunner txRunner
	Outbox            outboxEmitter
	Gateway           gateway.Gateway
	Metrics           *metrics.PaymentMetrics
	Payments          config.PaymentsConfig
	Logger            *logger.Logger
}

type service struct {
	repo        *Repository
	orderRepo   *orders.Repository
	txRunner    txRunner
	outbox      outboxEmitter
	gateway     gateway.Gateway
	paymentsCfg config.PaymentsConfig
	metrics     *metrics.PaymentMetrics
	logg        *logger.Logger
	now         func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment repo required")
	}
	if params.OrderRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order repo required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	return &service{
		repo:        params.Repo,
		orderRepo:   params.OrderRepo,
		txRunner:    params.TransactionRunner,
		outbox:      params.Outbox,
		gateway:     params.Gateway,
		paymentsCfg: params.Payments,
		metrics:     params.Metrics,
		logg:        params.Logger,
		now:         time.Now,
	}, nil
}

func (s *service) Get(ctx context.Context, userID, orderID uuid.UUID) (*models.Payment, error) {
	if _, err := s.orderRepo.FindByIDForUser(ctx, orderID, userID); err != nil {
		return nil, err
	}
	return s.repo.FindByOrderID(ctx, orderID)
}

func (s *service) ListEvents(ctx context.Context, userID, orderID uuid.UUID) ([]models.PaymentEvent, error) {
	payment, err := s.Get(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListEvents(ctx, payment.ID)
}

// Initiate locks in the payment method and, for gateway methods, opens a
// hosted checkout session. Idempotent: while any non-canceled payment exists
// the call returns it unchanged, whatever state it settled in. The order
// moves to confirmed.
func (s *service) Initiate(ctx context.Context, userID, orderID uuid.UUID, method enums.PaymentMethod) (*models.Payment, error) {
	if !method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment method")
	}

	order, err := s.orderRepo.FindByIDForUser(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	payment, err := s.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if payment.Status != enums.PaymentStatusInitiated {
		if payment.Status == enums.PaymentStatusCanceled {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment is canceled")
		}
		return payment, nil
	}
	if payment.Method != method {
		if order.Status != enums.OrderStatusPending {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden,
				"payment method is locked once the order is confirmed")
		}
		changed, err := s.repo.UpdateMethod(ctx, payment.ID, method)
		if err != nil {
			return nil, err
		}
		if !changed {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment changed concurrently, retry")
		}
		payment.Method = method
	}

	var session *gateway.CheckoutSession
	if method.IsGateway() && payment.ProviderRef == nil {
		if s.gateway == nil {
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment gateway not configured")
		}
		gatewayCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout())
		defer cancel()
		session, err = s.gateway.CreateCheckout(gatewayCtx, gateway.CheckoutParams{
			PaymentID:      payment.ID,
			OrderNumber:    order.Number,
			AmountCents:    payment.AmountCents,
			Currency:       payment.Currency,
			IdempotencyKey: "checkout-" + payment.ID.String(),
		})
		if err != nil {
			return nil, err
		}
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if session != nil {
			if err := repo.SetProviderSession(ctx, payment.ID, session.Provider, session.Ref, session.URL); err != nil {
				return err
			}
			payment.Provider = &session.Provider
			payment.ProviderRef = &session.Ref
			if session.URL != "" {
				payment.CheckoutURL = &session.URL
			}
		}
		if order.Status == enums.OrderStatusPending {
			changed, err := s.orderRepo.WithTx(tx).TransitionStatus(ctx, orderID, enums.OrderStatusPending, enums.OrderStatusConfirmed)
			if err != nil {
				return err
			}
			if changed {
				err = s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
					EventType:     enums.EventOrderConfirmed,
					AggregateType: enums.AggregateOrder,
					AggregateID:   orderID,
					Actor:         &outbox.ActorRef{UserID: userID, Role: "buyer"},
					Data: payloads.OrderConfirmedEvent{
						OrderID:    orderID,
						UserID:     userID,
						Method:     method,
						TotalCents: order.TotalCents,
						Currency:   order.Currency,
					},
					Version: 1,
				})
				if err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithPaymentID(ctx, payment.ID.String()), "payment initiated")
	}
	return payment, nil
}

// ConfirmBankTransfer records that the buyer claims to have sent the
// transfer, with an optional receipt reference for the reviewer. Moves the
// payment to pending review; calling it again after that is a no-op.
func (s *service) ConfirmBankTransfer(ctx context.Context, userID, orderID uuid.UUID, reference, receiptRef string) (*models.Payment, error) {
	reference = strings.TrimSpace(reference)
	receiptRef = strings.TrimSpace(receiptRef)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transfer reference is required")
	}

	var result *models.Payment
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.orderRepo.WithTx(tx).FindByIDForUser(ctx, orderID, userID); err != nil {
			return err
		}
		repo := s.repo.WithTx(tx)
		payment, err := repo.FindByOrderID(ctx, orderID)
		if err != nil {
			return err
		}
		if payment.Method != enums.PaymentMethodBankTransfer {
			return pkgerrors.New(pkgerrors.CodeValidation, "payment is not a bank transfer")
		}
		if payment.Status != enums.PaymentStatusInitiated {
			result = payment
			return nil
		}
		if payment.ExpiresAt != nil && payment.ExpiresAt.Before(s.now()) {
			return pkgerrors.New(pkgerrors.CodeGone, "payment window has expired")
		}

		changed, err := repo.TransitionStatus(ctx, payment.ID, enums.PaymentStatusInitiated, enums.PaymentStatusPending)
		if err != nil {
			return err
		}
		if !changed {
			reloaded, err := repo.FindByID(ctx, payment.ID)
			if err != nil {
				return err
			}
			result = reloaded
			return nil
		}

		reviewDeadline := s.now().Add(s.paymentsCfg.ReviewWindow)
		if err := repo.SetTransferDetails(ctx, payment.ID, reference, receiptRef, reviewDeadline); err != nil {
			return err
		}
		metadata := map[string]any{"transfer_reference": reference}
		if receiptRef != "" {
			metadata["receipt_ref"] = receiptRef
		}
		err = repo.AppendEvent(ctx, &models.PaymentEvent{
			PaymentID:  payment.ID,
			FromStatus: enums.PaymentStatusInitiated,
			ToStatus:   enums.PaymentStatusPending,
			Actor:      enums.PaymentActorBuyer,
			Metadata:   metadata,
		})
		if err != nil {
			return err
		}
		s.recordTransition(enums.PaymentStatusInitiated, enums.PaymentStatusPending)

		// First buyer action on the order doubles as confirmation.
		if _, err := s.orderRepo.WithTx(tx).TransitionStatus(ctx, orderID, enums.OrderStatusPending, enums.OrderStatusConfirmed); err != nil {
			return err
		}

		err = s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTransferPendingReview,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Actor:         &outbox.ActorRef{UserID: userID, Role: "buyer"},
			Data: payloads.TransferPendingReviewEvent{
				PaymentID:         payment.ID,
				OrderID:           orderID,
				TransferReference: reference,
				ReceiptRef:        receiptRef,
				ReviewDeadline:    reviewDeadline,
			},
			Version: 1,
		})
		if err != nil {
			return err
		}

		payment.Status = enums.PaymentStatusPending
		payment.TransferReference = &reference
		if receiptRef != "" {
			payment.TransferReceiptRef = &receiptRef
		}
		payment.ReviewDeadline = &reviewDeadline
		result = payment
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithPaymentID(ctx, result.ID.String()), "bank transfer confirmed by buyer")
	}
	return result, nil
}

// ReviewBankTransfer settles a pending transfer. Approve marks the order
// paid; reject cancels it and releases stock. Reviewing a payment that is no
// longer pending is a no-op.
func (s *service) ReviewBankTransfer(ctx context.Context, paymentID uuid.UUID, approve bool, note string) (*models.Payment, error) {
	var result *models.Payment
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payment, err := repo.FindByID(ctx, paymentID)
		if err != nil {
			return err
		}
		if payment.Status != enums.PaymentStatusPending {
			result = payment
			return nil
		}

		trigger := TriggerReject
		if approve {
			trigger = TriggerApprove
		}
		next, ok := Next(payment.Status, trigger)
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "illegal payment transition")
		}

		applied, err := s.applyTransition(ctx, tx, payment, next, enums.PaymentActorAdmin, note, nil)
		if err != nil {
			return err
		}
		if !applied {
			reloaded, err := repo.FindByID(ctx, paymentID)
			if err != nil {
				return err
			}
			result = reloaded
			return nil
		}

		if approve {
			if err := s.settleOrder(ctx, tx, payment); err != nil {
				return err
			}
		} else {
			if err := s.cancelOrder(ctx, tx, payment, enums.PaymentActorAdmin, note); err != nil {
				return err
			}
		}
		result = payment
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithPaymentID(ctx, paymentID.String()), "bank transfer reviewed")
	}
	return result, nil
}

// HandleWebhook applies a normalized gateway update. Unknown references and
// stale or duplicate updates are acknowledged without effect so providers
// stop retrying.
func (s *service) HandleWebhook(ctx context.Context, update *gateway.WebhookUpdate) error {
	if update == nil {
		return nil
	}
	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payment, err := repo.FindByProviderRef(ctx, update.Provider, update.ProviderRef)
		if err != nil {
			return err
		}
		if payment == nil {
			if s.logg != nil {
				s.logg.Warn(s.logg.WithField(ctx, "provider_ref", update.ProviderRef),
					"webhook for unknown payment reference")
			}
			return nil
		}
		if payment.Status == update.Status {
			return nil
		}
		trigger, ok := triggerFor(update.Status)
		if !ok {
			return nil
		}
		next, ok := Next(payment.Status, trigger)
		if !ok {
			if s.logg != nil {
				s.logg.Warn(s.logg.WithPaymentID(ctx, payment.ID.String()),
					"webhook arrived after payment reached "+payment.Status.String())
			}
			return nil
		}

		metadata := map[string]any{
			"provider":     update.Provider.String(),
			"provider_ref": update.ProviderRef,
		}
		applied, err := s.applyTransition(ctx, tx, payment, next, enums.PaymentActorGateway, "", metadata)
		if err != nil {
			return err
		}
		if !applied {
			return nil
		}

		switch next {
		case enums.PaymentStatusApproved:
			return s.settleOrder(ctx, tx, payment)
		case enums.PaymentStatusRejected, enums.PaymentStatusCanceled, enums.PaymentStatusExpired:
			return s.cancelOrder(ctx, tx, payment, enums.PaymentActorGateway, "gateway reported "+next.String())
		case enums.PaymentStatusPending:
			_, err := s.orderRepo.WithTx(tx).TransitionStatus(ctx, payment.OrderID, enums.OrderStatusPending, enums.OrderStatusConfirmed)
			return err
		}
		return nil
	})
}

// Expire forces an overdue open payment into expired and cancels its order.
// Reports whether this call performed the transition.
func (s *service) Expire(ctx context.Context, paymentID uuid.UUID) (bool, error) {
	expired := false
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payment, err := repo.FindByID(ctx, paymentID)
		if err != nil {
			return err
		}
		next, ok := Next(payment.Status, TriggerExpire)
		if !ok {
			return nil
		}
		if payment.ExpiresAt == nil || payment.ExpiresAt.After(s.now()) {
			return nil
		}

		applied, err := s.applyTransition(ctx, tx, payment, next, enums.PaymentActorSweeper, "payment window elapsed", nil)
		if err != nil {
			return err
		}
		if !applied {
			return nil
		}
		if err := s.cancelOrder(ctx, tx, payment, enums.PaymentActorSweeper, "payment expired"); err != nil {
			return err
		}
		expired = true
		return nil
	})
	return expired, err
}

// applyTransition performs the compare-and-swap move and appends the audit
// row. Reports false when a concurrent transition won the race.
func (s *service) applyTransition(ctx context.Context, tx *gorm.DB, payment *models.Payment, next enums.PaymentStatus, actor enums.PaymentActor, reason string, metadata map[string]any) (bool, error) {
	repo := s.repo.WithTx(tx)
	changed, err := repo.TransitionStatus(ctx, payment.ID, payment.Status, next)
	if err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}
	event := &models.PaymentEvent{
		PaymentID:  payment.ID,
		FromStatus: payment.Status,
		ToStatus:   next,
		Actor:      actor,
		Metadata:   metadata,
	}
	if reason != "" {
		event.Reason = &reason
	}
	if err := repo.AppendEvent(ctx, event); err != nil {
		return false, err
	}
	s.recordTransition(payment.Status, next)
	payment.Status = next
	return true, nil
}

func (s *service) settleOrder(ctx context.Context, tx *gorm.DB, payment *models.Payment) error {
	if _, _, err := orders.MarkPaid(ctx, tx, payment.OrderID); err != nil {
		return err
	}
	return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentApproved,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Data: payloads.PaymentApprovedEvent{
			PaymentID:   payment.ID,
			OrderID:     payment.OrderID,
			Method:      payment.Method,
			AmountCents: payment.AmountCents,
			ApprovedAt:  s.now().UTC(),
		},
		Version: 1,
	})
}

func (s *service) cancelOrder(ctx context.Context, tx *gorm.DB, payment *models.Payment, actor enums.PaymentActor, reason string) error {
	order, changed, err := orders.Cancel(ctx, tx, payment.OrderID, actor, reason)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCanceled,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data: payloads.OrderCanceledEvent{
			OrderID:    order.ID,
			UserID:     order.UserID,
			CanceledAt: s.now().UTC(),
			Reason:     reason,
		},
		Version: 1,
	})
}

func (s *service) recordTransition(from, to enums.PaymentStatus) {
	if s.metrics != nil {
		s.metrics.IncTransition(from.String(), to.String())
	}
}

func (s *service) gatewayTimeout() time.Duration {
	if s.paymentsCfg.GatewayTimeout > 0 {
		return s.paymentsCfg.GatewayTimeout
	}
	return 10 * time.Second
}
