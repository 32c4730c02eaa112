// Check HTTP handlers.
//
// This file exposes REST endpoints for the refund-check pipeline:
//   - POST /cases/{id}/checks      (trigger one check)
//   - POST /checks/run             (trigger a batch run over all monitored cases)
//   - GET  /checks                 (check history, paginated, filterable)
//   - GET  /checks/export          (check history as CSV)
//   - GET  /checks/{id}/screenshot (time-limited screenshot URL)
//   - POST /checks/{id}/approve    (apply a state-portal status proposal)
//   - POST /checks/{id}/dismiss    (reject a state-portal status proposal)
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cotte4/portal-jai1-backend-sub001/internal/domain"
	"github.com/cotte4/portal-jai1-backend-sub001/internal/repo"
	"github.com/cotte4/portal-jai1-backend-sub001/internal/services"
)

// CheckService defines the check orchestration operations consumed by HTTP
// handlers. Implementations must honor the provided context.
type CheckService interface {
	// RunCheck runs one check for a case track and returns the persisted row.
	RunCheck(ctx context.Context, caseID string, p domain.Portal, trigger domain.TriggerSource, userID string) (*domain.RefundCheck, error)
	// RunAllChecks runs both tracks over all monitored cases sequentially.
	RunAllChecks(ctx context.Context, trigger domain.TriggerSource, userID string) (services.BatchResult, error)
	// ListChecks returns a page of check history, newest first.
	ListChecks(ctx context.Context, f repo.CheckFilter, page, pageSize int) ([]domain.RefundCheck, int64, error)
	// ExportChecks streams the matching check history as CSV.
	ExportChecks(ctx context.Context, w io.Writer, f repo.CheckFilter) error
	// ScreenshotURL mints a time-limited download URL for a check screenshot.
	ScreenshotURL(ctx context.Context, checkID string, ttl time.Duration) (string, error)
	// ApproveCheck applies a pending state-portal status proposal.
	ApproveCheck(ctx context.Context, checkID, actorUserID string) error
	// DismissCheck rejects a pending proposal without touching the case.
	DismissCheck(ctx context.Context, checkID string) error
}

//
// Handler wiring
//

// Handlers groups the admin API endpoints for cases, checks, and alarms.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	caseSvc  CaseService
	checkSvc CheckService
	alarmSvc AlarmService
}

// New constructs a Handlers instance bound to the given services.
func New(caseSvc CaseService, checkSvc CheckService, alarmSvc AlarmService) *Handlers {
	return &Handlers{caseSvc: caseSvc, checkSvc: checkSvc, alarmSvc: alarmSvc}
}

// screenshotURLTTL bounds how long a minted screenshot link stays valid.
const screenshotURLTTL = 15 * time.Minute

//
// DTOs
//

// TriggerCheckRequest selects the track for a manual check.
type TriggerCheckRequest struct {
	// Portal is "federal" or "state".
	Portal string `json:"portal" binding:"required" example:"federal"`
}

// ListChecksResponse wraps a page of checks and pagination information.
type ListChecksResponse struct {
	Checks     []domain.RefundCheck `json:"checks"`
	Pagination Pagination           `json:"pagination"`
}

// checkFilter builds the repository filter from query params.
func checkFilter(c *gin.Context) (repo.CheckFilter, bool) {
	f := repo.CheckFilter{}
	if v := c.Query("case_id"); v != "" {
		if _, err := uuid.Parse(v); err != nil {
			return f, false
		}
		f.CaseID = v
	}
	if v := c.Query("portal"); v != "" {
		p := domain.Portal(v)
		if !p.Valid() {
			return f, false
		}
		f.Portal = p
	}
	return f, true
}

//
// Handlers
//

// TriggerCheck godoc
// @ID          triggerCheck
// @Summary     Run one refund check for a case
// @Description Drives the portal lookup for the requested track and returns
//              the persisted check record. Precondition failures (missing
//              identifier or amount) return 422 with the persisted error row.
// @Tags        Checks
// @Accept      json
// @Produce     json
// @Router      /cases/{id}/checks [post]
func (h *Handlers) TriggerCheck(c *gin.Context) {
	caseID := c.Param("id")
	if _, err := uuid.Parse(caseID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "case id must be a UUID")
		return
	}
	var req TriggerCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	p := domain.Portal(req.Portal)
	if !p.Valid() {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "portal must be federal or state")
		return
	}

	chk, err := h.checkSvc.RunCheck(c.Request.Context(), caseID, p, domain.TriggerManual, userID(c))
	switch {
	case err == nil:
		ok(c, http.StatusCreated, chk)
	case errors.Is(err, services.ErrCaseNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "case not found")
	case errors.Is(err, services.ErrMissingIdentifier), errors.Is(err, services.ErrMissingAmount):
		// The precondition failure is already persisted as an error check;
		// surface it with the reason.
		c.JSON(http.StatusUnprocessableEntity, gin.H{"code": ErrCodePrecondition, "message": err.Error(), "check": chk})
	default:
		fail(c, http.StatusInternalServerError, ErrCodeCheckFailed, err.Error())
	}
}

// RunAllChecks godoc
// @ID          runAllChecks
// @Summary     Run checks for every monitored case
// @Description Runs both tracks for all monitored cases, strictly
//              sequentially. If a batch run is already active the call
//              returns zero counts immediately.
// @Tags        Checks
// @Produce     json
// @Router      /checks/run [post]
func (h *Handlers) RunAllChecks(c *gin.Context) {
	res, err := h.checkSvc.RunAllChecks(c.Request.Context(), domain.TriggerManual, userID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeCheckFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, res)
}

// ListChecks godoc
// @ID          listChecks
// @Summary     Check history (paginated)
// @Description Returns check history, newest first. Filterable by case_id
//              and portal query params.
// @Tags        Checks
// @Produce     json
// @Router      /checks [get]
func (h *Handlers) ListChecks(c *gin.Context) {
	f, valid := checkFilter(c)
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid case_id or portal filter")
		return
	}
	page, pageSize := clampPagination(c)

	items, total, err := h.checkSvc.ListChecks(c.Request.Context(), f, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListChecksResponse{
		Checks:     items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// ExportChecks godoc
// @ID          exportChecks
// @Summary     Check history as CSV
// @Tags        Checks
// @Produce     text/csv
// @Router      /checks/export [get]
func (h *Handlers) ExportChecks(c *gin.Context) {
	f, valid := checkFilter(c)
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid case_id or portal filter")
		return
	}
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="refund-checks.csv"`)
	if err := h.checkSvc.ExportChecks(c.Request.Context(), c.Writer, f); err != nil {
		// Headers may already be out; best effort.
		fail(c, http.StatusInternalServerError, ErrCodeExportFailed, err.Error())
	}
}

// Screenshot godoc
// @ID          checkScreenshot
// @Summary     Time-limited screenshot URL for a check
// @Tags        Checks
// @Produce     json
// @Router      /checks/{id}/screenshot [get]
func (h *Handlers) Screenshot(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "check id must be a UUID")
		return
	}
	url, err := h.checkSvc.ScreenshotURL(c.Request.Context(), id, screenshotURLTTL)
	switch {
	case err == nil:
		ok(c, http.StatusOK, gin.H{"url": url, "expires_in_seconds": int(screenshotURLTTL.Seconds())})
	case errors.Is(err, services.ErrCheckNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "check not found")
	case errors.Is(err, services.ErrNoScreenshot):
		fail(c, http.StatusNotFound, ErrCodeNoScreenshot, "check has no screenshot")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// ApproveCheck godoc
// @ID          approveCheck
// @Summary     Apply a state-portal status proposal
// @Tags        Checks
// @Produce     json
// @Router      /checks/{id}/approve [post]
func (h *Handlers) ApproveCheck(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "check id must be a UUID")
		return
	}
	err := h.checkSvc.ApproveCheck(c.Request.Context(), id, userID(c))
	switch {
	case err == nil:
		noContent(c)
	case errors.Is(err, services.ErrCheckNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "check not found")
	case errors.Is(err, services.ErrNotAwaitingReview):
		fail(c, http.StatusConflict, ErrCodeConflict, "check has no pending status proposal")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// DismissCheck godoc
// @ID          dismissCheck
// @Summary     Reject a state-portal status proposal
// @Tags        Checks
// @Produce     json
// @Router      /checks/{id}/dismiss [post]
func (h *Handlers) DismissCheck(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "check id must be a UUID")
		return
	}
	err := h.checkSvc.DismissCheck(c.Request.Context(), id)
	switch {
	case err == nil:
		noContent(c)
	case errors.Is(err, services.ErrCheckNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "check not found")
	case errors.Is(err, services.ErrNotAwaitingReview):
		fail(c, http.StatusConflict, ErrCodeConflict, "check has no pending status proposal")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
