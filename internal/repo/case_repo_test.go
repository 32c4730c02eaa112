package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cotte4/portal-jai1-backend-sub001/internal/domain"
)

func TestGetCase_NotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := GetCase(context.Background(), db, uuid.NewString())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListEligibleCases_SkipsDisabled(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	seedCase(t, db, uuid.NewString())
	disabled := seedCase(t, db, uuid.NewString())
	if err := db.Model(disabled).Update("monitoring_enabled", false).Error; err != nil {
		t.Fatalf("disable case: %v", err)
	}

	out, err := ListEligibleCases(ctx, db)
	if err != nil {
		t.Fatalf("ListEligibleCases: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("eligible = %d; want 1", len(out))
	}

	total, err := CountEligibleCases(ctx, db)
	if err != nil || total != 1 {
		t.Fatalf("CountEligibleCases = %d, %v; want 1", total, err)
	}
}

func TestApplyTrackStatus_UpdatesOnlyThatTrack(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	c := seedCase(t, db, uuid.NewString())

	at := time.Now().UTC().Truncate(time.Second)
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := ApplyTrackStatus(tx, c.ID, domain.PortalFederal, domain.StatusInProcess, "auto: portal reported Return Received", at); err != nil {
			return err
		}
		_, err := CreateStatusHistory(tx, c.ID, domain.PortalFederal, nil, domain.StatusInProcess, "system", "auto: portal reported Return Received")
		return err
	})
	if err != nil {
		t.Fatalf("apply transaction: %v", err)
	}

	got, err := GetCase(ctx, db, c.ID)
	if err != nil {
		t.Fatalf("GetCase: %v", err)
	}
	if got.FederalStatus == nil || *got.FederalStatus != domain.StatusInProcess {
		t.Fatalf("federal status = %v; want in_process", got.FederalStatus)
	}
	if got.FederalStatusChangedAt == nil || !got.FederalStatusChangedAt.Equal(at) {
		t.Fatalf("federal changed-at = %v; want %v", got.FederalStatusChangedAt, at)
	}
	if got.StateStatus != nil || got.StateStatusChangedAt != nil {
		t.Fatal("state track must be untouched")
	}

	hist, err := ListStatusHistory(ctx, db, c.ID)
	if err != nil {
		t.Fatalf("ListStatusHistory: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("history rows = %d; want 1", len(hist))
	}
	if hist[0].PreviousStatus != nil || hist[0].NewStatus != domain.StatusInProcess || hist[0].Actor != "system" {
		t.Fatalf("unexpected history row: %+v", hist[0])
	}
}

func TestListStatusHistory_OldestFirst(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	c := seedCase(t, db, uuid.NewString())

	inProc := domain.StatusInProcess
	base := time.Now().UTC().Add(-time.Hour)
	rows := []domain.StatusHistory{
		{ID: uuid.NewString(), CaseID: c.ID, Track: domain.PortalFederal, NewStatus: domain.StatusInProcess, Actor: "system", CreatedAt: base},
		{ID: uuid.NewString(), CaseID: c.ID, Track: domain.PortalFederal, PreviousStatus: &inProc, NewStatus: domain.StatusDepositInTransit, Actor: "system", CreatedAt: base.Add(time.Minute)},
	}
	// Insert newest first to prove ordering comes from the query.
	for i := len(rows) - 1; i >= 0; i-- {
		if err := db.Create(&rows[i]).Error; err != nil {
			t.Fatalf("seed history: %v", err)
		}
	}

	hist, err := ListStatusHistory(ctx, db, c.ID)
	if err != nil {
		t.Fatalf("ListStatusHistory: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("history rows = %d; want 2", len(hist))
	}
	if hist[0].NewStatus != domain.StatusInProcess || hist[1].NewStatus != domain.StatusDepositInTransit {
		t.Fatalf("unexpected order: %s then %s", hist[0].NewStatus, hist[1].NewStatus)
	}
}

func TestApplyTrackStatus_MissingCase(t *testing.T) {
	db := openTestDB(t)

	err := ApplyTrackStatus(db, uuid.NewString(), domain.PortalState, domain.StatusIssues, "", time.Now().UTC())
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestCasesStats_And_ChecksStats(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	count, maxTS, err := CasesStats(ctx, db)
	if err != nil || count != 0 || maxTS != nil {
		t.Fatalf("empty stats = %d/%v/%v", count, maxTS, err)
	}

	c := seedCase(t, db, uuid.NewString())
	count, maxTS, err = CasesStats(ctx, db)
	if err != nil || count != 1 || maxTS == nil {
		t.Fatalf("stats after seed = %d/%v/%v", count, maxTS, err)
	}

	if _, err := CreateCheck(ctx, db, newCheck(c.ID, domain.PortalFederal, domain.ResultSuccess)); err != nil {
		t.Fatalf("CreateCheck: %v", err)
	}
	n, latest, err := ChecksStats(ctx, db, c.ID)
	if err != nil || n != 1 || latest == nil {
		t.Fatalf("ChecksStats = %d/%v/%v", n, latest, err)
	}
}
