// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the RefundCheck
// audit trail.
//
// RefundCheck rows are immutable once written, with a single exception: the
// state portal's human-in-the-loop gate may flip StatusChanged via
// SetCheckStatusChanged when a proposal is approved or dismissed.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cotte4/portal-jai1-backend-sub001/internal/domain"
)

// CheckFilter narrows check-history queries. Zero values mean "no filter".
type CheckFilter struct {
	CaseID string
	Portal domain.Portal
}

func (f CheckFilter) apply(q *gorm.DB) *gorm.DB {
	if f.CaseID != "" {
		q = q.Where("case_id = ?", f.CaseID)
	}
	if f.Portal != "" {
		q = q.Where("portal = ?", f.Portal)
	}
	return q
}

// CreateCheck inserts one RefundCheck row. The ID is generated here when the
// caller left it empty, and CreatedAt defaults to UTC now.
func CreateCheck(ctx context.Context, db *gorm.DB, chk *domain.RefundCheck) (*domain.RefundCheck, error) {
	if chk.ID == "" {
		chk.ID = uuid.NewString()
	}
	if chk.CreatedAt.IsZero() {
		chk.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(chk).Error; err != nil {
		return nil, err
	}
	return chk, nil
}

// GetCheck fetches a single check by ID, or ErrNotFound if missing.
func GetCheck(ctx context.Context, db *gorm.DB, id string) (*domain.RefundCheck, error) {
	var c domain.RefundCheck
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// CountChecks returns the total number of checks matching the filter.
func CountChecks(ctx context.Context, db *gorm.DB, f CheckFilter) (int64, error) {
	var total int64
	err := f.apply(db.WithContext(ctx).Model(&domain.RefundCheck{})).
		Count(&total).Error
	return total, err
}

// ListChecksPage returns a paginated slice of checks matching the filter,
// newest first. Use CountChecks for pagination metadata.
func ListChecksPage(ctx context.Context, db *gorm.DB, f CheckFilter, offset, limit int) ([]domain.RefundCheck, error) {
	var out []domain.RefundCheck
	err := f.apply(db.WithContext(ctx)).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListChecksForExport streams every check matching the filter, oldest first,
// for the CSV export endpoint.
func ListChecksForExport(ctx context.Context, db *gorm.DB, f CheckFilter) ([]domain.RefundCheck, error) {
	var out []domain.RefundCheck
	err := f.apply(db.WithContext(ctx)).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// SetCheckStatusChanged updates the StatusChanged flag on an existing check.
// This is the approve/dismiss mutation and the only permitted update to a
// persisted check. Returns ErrNotFound when no row matched.
func SetCheckStatusChanged(db *gorm.DB, id string, changed bool) error {
	res := db.Model(&domain.RefundCheck{}).
		Where("id = ?", id).
		Update("status_changed", changed)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
