// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the TaxCase
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a case is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// The status-mutation helpers (ApplyTrackStatus, CreateStatusHistory) are
// intended to be called together on a transaction-bound handle; the service
// layer owns that pairing.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cotte4/portal-jai1-backend-sub001/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for consistency across the service layer
// and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// GetCase fetches a single tax case by ID, or ErrNotFound if missing.
func GetCase(ctx context.Context, db *gorm.DB, id string) (*domain.TaxCase, error) {
	var c domain.TaxCase
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListEligibleCases returns all cases with monitoring enabled, oldest first,
// so batch runs touch long-waiting cases before recently added ones.
func ListEligibleCases(ctx context.Context, db *gorm.DB) ([]domain.TaxCase, error) {
	var out []domain.TaxCase
	err := db.WithContext(ctx).
		Where("monitoring_enabled = ?", true).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// CountEligibleCases returns the number of monitored cases, for pagination.
func CountEligibleCases(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.TaxCase{}).
		Where("monitoring_enabled = ?", true).
		Count(&total).Error
	return total, err
}

// ListEligibleCasesPage returns a paginated slice of monitored cases.
//
// The caller is responsible for computing offset and limit
// (e.g., (page-1)*pageSize).
func ListEligibleCasesPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.TaxCase, error) {
	var out []domain.TaxCase
	err := db.WithContext(ctx).
		Where("monitoring_enabled = ?", true).
		Order("created_at asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ApplyTrackStatus mutates the status fields of one track on a case: the
// canonical status, the changed-at timestamp, and the machine-generated
// last comment. It must be called on the same handle (transaction) as the
// paired CreateStatusHistory call.
//
// Returns ErrNotFound when the case does not exist.
func ApplyTrackStatus(db *gorm.DB, caseID string, track domain.Portal, newStatus domain.CanonicalStatus, comment string, at time.Time) error {
	cols := map[string]any{
		"federal_status":            newStatus,
		"federal_status_changed_at": at,
		"federal_last_comment":      comment,
	}
	if track == domain.PortalState {
		cols = map[string]any{
			"state_status":            newStatus,
			"state_status_changed_at": at,
			"state_last_comment":      comment,
		}
	}
	res := db.Model(&domain.TaxCase{}).Where("id = ?", caseID).Updates(cols)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CreateStatusHistory appends one audit row for a track status change.
// It is only ever called inside the transaction that applies the change.
func CreateStatusHistory(db *gorm.DB, caseID string, track domain.Portal, prev *domain.CanonicalStatus, next domain.CanonicalStatus, actor, comment string) (*domain.StatusHistory, error) {
	h := &domain.StatusHistory{
		ID:             uuid.NewString(),
		CaseID:         caseID,
		Track:          track,
		PreviousStatus: prev,
		NewStatus:      next,
		Actor:          actor,
		Comment:        comment,
		CreatedAt:      time.Now().UTC(),
	}
	if err := db.Create(h).Error; err != nil {
		return nil, err
	}
	return h, nil
}

// ListStatusHistory returns audit entries for a case, oldest first, so the
// trail reads in the order the transitions happened.
func ListStatusHistory(ctx context.Context, db *gorm.DB, caseID string) ([]domain.StatusHistory, error) {
	var out []domain.StatusHistory
	err := db.WithContext(ctx).
		Where("case_id = ?", caseID).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}
