package cron

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/shoplane/shoplane-backend/pkg/db/models"
	pkgerrors "github.com/shoplane/shoplane-backend/pkg/errors"
	"github.com/shoplane/shoplane-backend/pkg/logger"
)

const defaultExpiryBatchSize = 100

type paymentExpirer interface {
	Expire(ctx context.Context, paymentID uuid.UUID) (bool, error)
}

type expiredPaymentLister interface {
	FindExpired(ctx context.Context, now time.Time, limit int) ([]models.Payment, error)
}

// PaymentExpiryJobParams configure the expiry sweep.
type PaymentExpiryJobParams struct {
	Payments  paymentExpirer
	Repo      expiredPaymentLister
	Logger    *logger.Logger
	BatchSize int
}

// PaymentExpiryJob forces overdue open payments into expired, canceling their
// orders and releasing stock. Each payment is its own transaction, so one
// failure never blocks the rest of the batch.
type PaymentExpiryJob struct {
	payments  paymentExpirer
	repo      expiredPaymentLister
	logg      *logger.Logger
	batchSize int
	now       func() time.Time
}

func NewPaymentExpiryJob(params PaymentExpiryJobParams) (*PaymentExpiryJob, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment service required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment repo required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultExpiryBatchSize
	}
	return &PaymentExpiryJob{
		payments:  params.Payments,
		repo:      params.Repo,
		logg:      params.Logger,
		batchSize: batchSize,
		now:       time.Now,
	}, nil
}

func (j *PaymentExpiryJob) Name() string {
	return "payment-expiry"
}

// Run expires every overdue payment it can find. Candidates that left the
// open statuses between the listing and the expire call are skipped by the
// expire transition itself.
func (j *PaymentExpiryJob) Run(ctx context.Context) error {
	candidates, err := j.repo.FindExpired(ctx, j.now(), j.batchSize)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return nil
	}

	var errs error
	expired := 0
	for _, payment := range candidates {
		ok, err := j.payments.Expire(ctx, payment.ID)
		if err != nil {
			errs = multierr.Append(errs, err)
			if j.logg != nil {
				j.logg.Error(j.logg.WithPaymentID(ctx, payment.ID.String()), "expire payment", err)
			}
			continue
		}
		if ok {
			expired++
		}
	}

	if j.logg != nil {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"candidates": len(candidates),
			"expired":    expired,
		}), "payment expiry sweep finished")
	}
	return errs
}
