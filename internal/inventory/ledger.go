package inventory

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shoplane/shoplane-backend/pkg/db/models"
	pkgerrors "github.com/shoplane/shoplane-backend/pkg/errors"
)

// ReservationRequest asks for qty units of a variant to be held.
type ReservationRequest struct {
	VariantID uuid.UUID
	Qty       int
}

// ReservationResult reports the outcome for a single request. Reason is set
// only when Reserved is false.
type ReservationResult struct {
	VariantID uuid.UUID
	Reserved  bool
	Reason    string
}

// Reserve moves units from stock to reserved for each request. Every update
// is a single guarded statement, so concurrent checkouts can never take the
// same unit twice. Requests are processed in ascending variant id order to
// keep lock acquisition consistent across transactions. Callers run this
// inside a transaction and roll back when any result is not reserved.
func Reserve(ctx context.Context, tx *gorm.DB, requests []ReservationRequest) ([]ReservationResult, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if err := validateRequests(requests); err != nil {
		return nil, err
	}

	ordered := sortedCopy(requests)
	outcomes := make(map[uuid.UUID]ReservationResult, len(ordered))
	for _, req := range ordered {
		res := tx.WithContext(ctx).Model(&models.Variant{}).
			Where("id = ? AND stock >= ?", req.VariantID, req.Qty).
			Updates(map[string]any{
				"stock":    gorm.Expr("stock - ?", req.Qty),
				"reserved": gorm.Expr("reserved + ?", req.Qty),
			})
		if res.Error != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve stock")
		}
		if res.RowsAffected > 0 {
			outcomes[req.VariantID] = ReservationResult{VariantID: req.VariantID, Reserved: true}
			continue
		}
		reason, err := failureReason(ctx, tx, req)
		if err != nil {
			return nil, err
		}
		outcomes[req.VariantID] = ReservationResult{VariantID: req.VariantID, Reason: reason}
	}

	results := make([]ReservationResult, 0, len(requests))
	for _, req := range requests {
		results = append(results, outcomes[req.VariantID])
	}
	return results, nil
}

// Release returns reserved units to stock, e.g. when an order is canceled or
// its payment expires.
func Release(ctx context.Context, tx *gorm.DB, requests []ReservationRequest) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if err := validateRequests(requests); err != nil {
		return err
	}
	for _, req := range sortedCopy(requests) {
		res := tx.WithContext(ctx).Model(&models.Variant{}).
			Where("id = ? AND reserved >= ?", req.VariantID, req.Qty).
			Updates(map[string]any{
				"stock":    gorm.Expr("stock + ?", req.Qty),
				"reserved": gorm.Expr("reserved - ?", req.Qty),
			})
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release stock")
		}
		if res.RowsAffected == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("variant %s has fewer than %d units reserved", req.VariantID, req.Qty))
		}
	}
	return nil
}

// Consume drops reserved units once a payment settles. The units leave the
// ledger entirely; stock is untouched.
func Consume(ctx context.Context, tx *gorm.DB, requests []ReservationRequest) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if err := validateRequests(requests); err != nil {
		return err
	}
	for _, req := range sortedCopy(requests) {
		res := tx.WithContext(ctx).Model(&models.Variant{}).
			Where("id = ? AND reserved >= ?", req.VariantID, req.Qty).
			Update("reserved", gorm.Expr("reserved - ?", req.Qty))
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "consume reservation")
		}
		if res.RowsAffected == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("variant %s has fewer than %d units reserved", req.VariantID, req.Qty))
		}
	}
	return nil
}

func validateRequests(requests []ReservationRequest) error {
	if len(requests) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one reservation request is required")
	}
	seen := make(map[uuid.UUID]bool, len(requests))
	for _, req := range requests {
		if req.VariantID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "variant id is required")
		}
		if req.Qty <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}
		if seen[req.VariantID] {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("duplicate reservation for variant %s", req.VariantID))
		}
		seen[req.VariantID] = true
	}
	return nil
}

func sortedCopy(requests []ReservationRequest) []ReservationRequest {
	ordered := make([]ReservationRequest, len(requests))
	copy(ordered, requests)
	sort.Slice(ordered, func(i, j int) bool {
		return bytes.Compare(ordered[i].VariantID[:], ordered[j].VariantID[:]) < 0
	})
	return ordered
}

func failureReason(ctx context.Context, tx *gorm.DB, req ReservationRequest) (string, error) {
	var variant models.Variant
	err := tx.WithContext(ctx).First(&variant, "id = ?", req.VariantID).Error
	if err == gorm.ErrRecordNotFound {
		return "variant not found", nil
	}
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant")
	}
	return fmt.Sprintf("insufficient stock: requested %d, available %d", req.Qty, variant.Stock), nil
}
