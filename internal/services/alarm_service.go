// Package services – AlarmService
//
// Staleness alarms are pure derivations from current case state; this
// service only loads cases and feeds them through the alarm engine with the
// configured default thresholds.
package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/cotte4/portal-jai1-backend-sub001/internal/alarm"
	"github.com/cotte4/portal-jai1-backend-sub001/internal/domain"
	"github.com/cotte4/portal-jai1-backend-sub001/internal/repo"
)

// CaseAlarms is the alarm report for one case.
type CaseAlarms struct {
	CaseID     string            `json:"case_id"`
	ClientSlug string            `json:"client_slug"`
	Level      domain.AlarmLevel `json:"level"`
	Alarms     []domain.Alarm    `json:"alarms"`
}

// AlarmService evaluates staleness alarms over monitored cases.
type AlarmService struct {
	DB *gorm.DB
	// Defaults apply wherever a case carries no per-case override.
	Defaults alarm.Thresholds
}

// NewAlarmService constructs an AlarmService with the standard thresholds.
func NewAlarmService(db *gorm.DB) *AlarmService {
	return &AlarmService{DB: db, Defaults: alarm.DefaultThresholds()}
}

// ForCase evaluates one case's alarms as of now.
func (s *AlarmService) ForCase(ctx context.Context, caseID string) (*CaseAlarms, error) {
	c, err := repo.GetCase(ctx, s.DB, caseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCaseNotFound
		}
		return nil, err
	}
	return s.evaluate(c, time.Now().UTC()), nil
}

// Active evaluates every monitored case and returns only those with at least
// one alarm.
func (s *AlarmService) Active(ctx context.Context) ([]CaseAlarms, error) {
	cases, err := repo.ListEligibleCases(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	out := []CaseAlarms{}
	now := time.Now().UTC()
	for i := range cases {
		if ca := s.evaluate(&cases[i], now); len(ca.Alarms) > 0 {
			out = append(out, *ca)
		}
	}
	return out, nil
}

func (s *AlarmService) evaluate(c *domain.TaxCase, now time.Time) *CaseAlarms {
	th := alarm.ForCase(c, s.Defaults)
	alarms := alarm.Evaluate(alarm.InputForCase(c, now), th)
	return &CaseAlarms{
		CaseID:     c.ID,
		ClientSlug: c.ClientSlug,
		Level:      alarm.AggregateLevel(alarms),
		Alarms:     alarms,
	}
}
