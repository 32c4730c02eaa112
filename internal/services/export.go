// Package services – check-history CSV export.
package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/cotte4/portal-jai1-backend-sub001/internal/domain"
	"github.com/cotte4/portal-jai1-backend-sub001/internal/repo"
)

// exportHeader lists the audit fields, in column order.
var exportHeader = []string{
	"created_at", "case_id", "portal", "result", "raw_status", "details",
	"mapped_status", "previous_status", "status_changed",
	"triggered_by", "triggered_by_user_id", "screenshot_path", "error_message",
}

// ExportChecks streams the matching check history as CSV, oldest first.
func (s *CheckService) ExportChecks(ctx context.Context, w io.Writer, f repo.CheckFilter) error {
	checks, err := repo.ListChecksForExport(ctx, s.DB, f)
	if err != nil {
		return fmt.Errorf("export checks: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("export checks: write header: %w", err)
	}
	for i := range checks {
		if err := cw.Write(exportRow(&checks[i])); err != nil {
			return fmt.Errorf("export checks: write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func exportRow(chk *domain.RefundCheck) []string {
	return []string{
		chk.CreatedAt.UTC().Format(time.RFC3339),
		chk.CaseID,
		string(chk.Portal),
		string(chk.Result),
		chk.RawStatus,
		chk.Details,
		statusStr(chk.MappedStatus),
		statusStr(chk.PreviousStatus),
		fmt.Sprintf("%t", chk.StatusChanged),
		string(chk.TriggeredBy),
		chk.TriggeredByUserID,
		strOrEmpty(chk.ScreenshotPath),
		strOrEmpty(chk.ErrorMessage),
	}
}

func statusStr(s *domain.CanonicalStatus) string {
	if s == nil {
		return ""
	}
	return string(*s)
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
