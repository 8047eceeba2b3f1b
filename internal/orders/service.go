package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shoplane/shoplane-backend/pkg/db/models"
	"github.com/shoplane/shoplane-backend/pkg/enums"
	pkgerrors "github.com/shoplane/shoplane-backend/pkg/errors"
	"github.com/shoplane/shoplane-backend/pkg/logger"
	"github.com/shoplane/shoplane-backend/pkg/outbox"
	"github.com/shoplane/shoplane-backend/pkg/outbox/payloads"
	"github.com/shoplane/shoplane-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service exposes buyer and back-office order operations.
type Service interface {
	Get(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error)
	List(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Order, string, error)
	Cancel(ctx context.Context, userID, orderID uuid.UUID, reason string) (*models.Order, error)
	Ship(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	Deliver(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

type ServiceParams struct {
	Repo              *Repository
	TransactionRunner txRunner
	Outbox            outboxEmitter
	Logger            *logger.Logger
}

type service struct {
	repo     *Repository
	txRunner txRunner
	outbox   outboxEmitter
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order repo required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	return &service{
		repo:     params.Repo,
		txRunner: params.TransactionRunner,
		outbox:   params.Outbox,
		logg:     params.Logger,
		now:      time.Now,
	}, nil
}

func (s *service) Get(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	return s.repo.FindByIDForUser(ctx, orderID, userID)
}

func (s *service) List(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Order, string, error) {
	if userID == uuid.Nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	return s.repo.ListByUser(ctx, userID, params)
}

// Cancel lets a buyer abandon an order before it is paid. Reserved stock goes
// back and open payments are closed.
func (s *service) Cancel(ctx context.Context, userID, orderID uuid.UUID, reason string) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	var result *models.Order
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.FindByIDForUser(ctx, orderID, userID); err != nil {
			return err
		}
		order, changed, err := Cancel(ctx, tx, orderID, enums.PaymentActorBuyer, reason)
		if err != nil {
			return err
		}
		if changed {
			err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderCanceled,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         &outbox.ActorRef{UserID: userID, Role: "buyer"},
				Data: payloads.OrderCanceledEvent{
					OrderID:    order.ID,
					UserID:     order.UserID,
					CanceledAt: s.now().UTC(),
					Reason:     reason,
				},
				Version: 1,
			})
			if err != nil {
				return err
			}
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithOrderID(ctx, orderID.String()), "order canceled")
	}
	return result, nil
}

// Ship marks a paid order as shipped.
func (s *service) Ship(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.transition(ctx, orderID, enums.OrderStatusPaid, enums.OrderStatusShipped)
}

// Deliver marks a shipped order as delivered.
func (s *service) Deliver(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.transition(ctx, orderID, enums.OrderStatusShipped, enums.OrderStatusDelivered)
}

func (s *service) transition(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	var result *models.Order
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != from {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				"order is "+order.Status.String()+", expected "+from.String())
		}
		changed, err := repo.TransitionStatus(ctx, orderID, from, to)
		if err != nil {
			return err
		}
		if !changed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently, retry")
		}
		order.Status = to
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
