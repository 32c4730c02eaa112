// Case HTTP handlers.
//
// This file exposes REST endpoints for monitored tax cases:
//   - GET /cases              (list, paginated, ETag support)
//   - GET /cases/{id}         (fetch one case)
//   - GET /cases/{id}/history (status-change audit trail)
//   - GET /cases/{id}/alarms  (staleness alarms for one case)
//   - GET /alarms             (all cases with active alarms)
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cotte4/portal-jai1-backend-sub001/internal/domain"
	"github.com/cotte4/portal-jai1-backend-sub001/internal/services"
	"github.com/cotte4/portal-jai1-backend-sub001/internal/utils"
)

//
// Service contracts (context-aware)
//

// CaseService defines the monitored-case read operations consumed by HTTP
// handlers. Implementations must honor the provided context.
type CaseService interface {
	// Get fetches one case by ID.
	Get(ctx context.Context, id string) (*domain.TaxCase, error)
	// ListPage returns a page of monitored cases and the total count.
	ListPage(ctx context.Context, page, pageSize int) ([]domain.TaxCase, int64, error)
	// History returns a case's status-history audit trail, oldest first.
	History(ctx context.Context, caseID string) ([]domain.StatusHistory, error)
	// Stats returns the monitored-case count and latest update time.
	Stats(ctx context.Context) (int64, *time.Time, error)
}

// AlarmService evaluates staleness alarms from current case state.
type AlarmService interface {
	// ForCase evaluates one case's alarms as of now.
	ForCase(ctx context.Context, caseID string) (*services.CaseAlarms, error)
	// Active returns every monitored case carrying at least one alarm.
	Active(ctx context.Context) ([]services.CaseAlarms, error)
}

// userID extracts the acting admin's user id from Gin context (set by
// upstream middleware). If absent, it falls back to the "X-User-ID" header
// (tests use it), and finally to "demo-admin".
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := c.GetHeader("X-User-ID"); h != "" {
			return h
		}
	}
	return "demo-admin"
}

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListCasesResponse wraps a page of cases and pagination information.
type ListCasesResponse struct {
	Cases      []domain.TaxCase `json:"cases"`
	Pagination Pagination       `json:"pagination"`
}

// newPagination derives the pagination envelope for a page of results.
func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

//
// Handlers
//

// ListCases godoc
// @ID          listCases
// @Summary     List monitored cases (paginated)
// @Description Returns a page of cases eligible for refund monitoring.
//              Supports weak ETag via If-None-Match and may return 304.
// @Tags        Cases
// @Produce     json
// @Router      /cases [get]
func (h *Handlers) ListCases(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if count, maxTS, err := h.caseSvc.Stats(ctx); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.Unix()
		}
		etag := fmt.Sprintf(`W/"cases:%d:%d"`, count, ts)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.caseSvc.ListPage(ctx, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListCasesResponse{
		Cases:      items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// GetCase godoc
// @ID          getCase
// @Summary     Fetch one case
// @Tags        Cases
// @Produce     json
// @Router      /cases/{id} [get]
func (h *Handlers) GetCase(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "case id must be a UUID")
		return
	}
	cs, err := h.caseSvc.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrCaseNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "case not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, cs)
}

// CaseHistory godoc
// @ID          caseHistory
// @Summary     Status-change audit trail for a case
// @Tags        Cases
// @Produce     json
// @Router      /cases/{id}/history [get]
func (h *Handlers) CaseHistory(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "case id must be a UUID")
		return
	}
	hist, err := h.caseSvc.History(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrCaseNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "case not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"history": hist})
}

// CaseAlarms godoc
// @ID          caseAlarms
// @Summary     Staleness alarms for one case
// @Tags        Alarms
// @Produce     json
// @Router      /cases/{id}/alarms [get]
func (h *Handlers) CaseAlarms(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "case id must be a UUID")
		return
	}
	report, err := h.alarmSvc.ForCase(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrCaseNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "case not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, report)
}

// ActiveAlarms godoc
// @ID          activeAlarms
// @Summary     All cases with active staleness alarms
// @Tags        Alarms
// @Produce     json
// @Router      /alarms [get]
func (h *Handlers) ActiveAlarms(c *gin.Context) {
	reports, err := h.alarmSvc.Active(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"alarms": reports})
}
