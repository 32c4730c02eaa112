// Package services – CaseService
//
// Read-side operations over monitored cases. Cases are created and edited by
// the case-management collaborator; this service never writes them outside
// the transactional status apply in CheckService.
package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/cotte4/portal-jai1-backend-sub001/internal/domain"
	"github.com/cotte4/portal-jai1-backend-sub001/internal/repo"
)

// CaseService exposes the monitored-case read surface used by the admin API.
type CaseService struct {
	DB *gorm.DB
}

// NewCaseService constructs a CaseService.
func NewCaseService(db *gorm.DB) *CaseService {
	return &CaseService{DB: db}
}

// Get fetches one case by ID.
func (s *CaseService) Get(ctx context.Context, id string) (*domain.TaxCase, error) {
	c, err := repo.GetCase(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCaseNotFound
		}
		return nil, err
	}
	return c, nil
}

// ListPage returns a page of monitored cases with the total count.
func (s *CaseService) ListPage(ctx context.Context, page, pageSize int) ([]domain.TaxCase, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountEligibleCases(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.TaxCase{}, 0, nil
	}

	items, err := repo.ListEligibleCasesPage(ctx, s.DB, offset, pageSize)
	return items, total, err
}

// History returns a case's status-history audit trail, oldest first.
func (s *CaseService) History(ctx context.Context, caseID string) ([]domain.StatusHistory, error) {
	if _, err := s.Get(ctx, caseID); err != nil {
		return nil, err
	}
	return repo.ListStatusHistory(ctx, s.DB, caseID)
}

// Stats returns the monitored-case count and latest update time, used for
// cache validators on the list endpoint.
func (s *CaseService) Stats(ctx context.Context) (int64, *time.Time, error) {
	return repo.CasesStats(ctx, s.DB)
}
