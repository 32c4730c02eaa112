// Package services – CheckService
//
// This file implements the CheckService, the orchestrator for refund-portal
// checks. One invocation validates portal-specific preconditions, drives the
// browser automator, extracts and maps the result, persists exactly one
// RefundCheck row, and conditionally applies the mapped status to the case in
// a single transaction paired with a StatusHistory entry.
//
// The federal track auto-applies status changes; the state track records a
// proposal that an admin must approve or dismiss. Batch runs are guarded by
// an in-process mutex and process cases strictly sequentially: parallel
// browser sessions against the same portal raise the detection risk. The
// guard is process-local, so a multi-instance deployment needs a distributed
// lock (e.g. a database lease) in its place.
//
// Observability: public methods are OpenTelemetry-instrumented; spans carry
// case/portal attributes, never the identifier plaintext.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/cotte4/portal-jai1-backend-sub001/internal/domain"
	"github.com/cotte4/portal-jai1-backend-sub001/internal/extract"
	"github.com/cotte4/portal-jai1-backend-sub001/internal/notify"
	"github.com/cotte4/portal-jai1-backend-sub001/internal/portal"
	"github.com/cotte4/portal-jai1-backend-sub001/internal/repo"
	"github.com/cotte4/portal-jai1-backend-sub001/internal/status"
	"github.com/cotte4/portal-jai1-backend-sub001/internal/storage"
)

// Automator drives one browser session against a lookup portal.
// Implemented by *portal.Automator; faked in tests.
type Automator interface {
	Run(ctx context.Context, req portal.Request) portal.Result
}

// Extractor turns a captured result page into (rawStatus, details, result).
// Implemented by *extract.Extractor.
type Extractor interface {
	Extract(ctx context.Context, p domain.Portal, screenshot []byte, pageText string) extract.Extraction
}

// Decrypter opens the case's identifier ciphertext. Implemented by
// *secrets.Box.
type Decrypter interface {
	Decrypt(sealed string) (string, error)
}

// BatchResult aggregates one batch run. Individual case faults are logged,
// not surfaced.
type BatchResult struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// CheckService orchestrates refund checks end to end.
type CheckService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB

	Automator Automator
	Extractor Extractor
	Notifier  notify.Notifier
	Secrets   Decrypter
	// Store mints signed screenshot URLs; optional.
	Store storage.ScreenshotStore

	// FederalAutoApply and StateAutoApply select per track whether a
	// mapped status change is applied immediately or recorded as a
	// proposal for human review.
	FederalAutoApply bool
	StateAutoApply   bool

	// RetryDelay separates the two attempts after an error/timeout
	// classification.
	RetryDelay time.Duration

	Log zerolog.Logger

	mu      sync.Mutex
	running bool
}

// NewCheckService constructs a CheckService with the production defaults:
// federal changes auto-apply, state changes wait for approval.
func NewCheckService(db *gorm.DB, a Automator, e Extractor, n notify.Notifier, d Decrypter, store storage.ScreenshotStore) *CheckService {
	return &CheckService{
		DB:               db,
		Automator:        a,
		Extractor:        e,
		Notifier:         n,
		Secrets:          d,
		Store:            store,
		FederalAutoApply: true,
		StateAutoApply:   false,
		RetryDelay:       5 * time.Second,
	}
}

func (s *CheckService) autoApply(p domain.Portal) bool {
	if p == domain.PortalState {
		return s.StateAutoApply
	}
	return s.FederalAutoApply
}

// attempt is the outcome of one automator+extractor pass.
type attempt struct {
	result     domain.CheckResult
	rawStatus  string
	details    string
	screenshot *string
	errMsg     *string
}

// RunCheck runs one check for a case track. Exactly one RefundCheck row is
// written per invocation, whatever the outcome. Precondition failures
// (missing identifier, missing amount) persist an error row without invoking
// the automator and are also returned to the caller.
func (s *CheckService) RunCheck(ctx context.Context, caseID string, p domain.Portal, trigger domain.TriggerSource, userID string) (*domain.RefundCheck, error) {
	tr := otel.Tracer("services/CheckService")
	ctx, span := tr.Start(ctx, "RunCheck",
		trace.WithAttributes(
			attribute.String("case.id", caseID),
			attribute.String("portal", string(p)),
			attribute.String("trigger", string(trigger)),
		))
	defer span.End()

	if !p.Valid() {
		return nil, ErrInvalidPortal
	}
	c, err := repo.GetCase(ctx, s.DB, caseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCaseNotFound
		}
		return nil, err
	}

	req, precondErr := s.buildRequest(c, p)
	var att attempt
	if precondErr != nil {
		msg := precondErr.Error()
		att = attempt{result: domain.ResultError, errMsg: &msg}
	} else {
		att = s.attemptWithRetry(ctx, req)
	}

	prev := c.TrackStatus(p)
	var mapped *domain.CanonicalStatus
	if att.result == domain.ResultSuccess {
		mapped = status.Map(att.rawStatus, c.PaymentMethod)
	}
	changed := mapped != nil && (prev == nil || *mapped != *prev)

	chk := &domain.RefundCheck{
		CaseID:            c.ID,
		Portal:            p,
		RawStatus:         att.rawStatus,
		Details:           att.details,
		ScreenshotPath:    att.screenshot,
		MappedStatus:      mapped,
		PreviousStatus:    prev,
		StatusChanged:     changed,
		Result:            att.result,
		TriggeredBy:       trigger,
		TriggeredByUserID: userID,
		ErrorMessage:      att.errMsg,
	}
	chk, err = repo.CreateCheck(ctx, s.DB, chk)
	if err != nil {
		return nil, err
	}
	checkRuns.WithLabelValues(string(p), string(att.result)).Inc()
	if changed {
		checkStatusChanges.WithLabelValues(string(p)).Inc()
	}

	if changed && s.autoApply(p) {
		actor := "system"
		if trigger == domain.TriggerManual && userID != "" {
			actor = userID
		}
		comment := fmt.Sprintf("Automated check: portal reported %q", att.rawStatus)
		if err := s.applyStatus(ctx, c, p, *mapped, actor, comment); err != nil {
			return chk, err
		}
	}

	if precondErr != nil {
		return chk, precondErr
	}
	return chk, nil
}

// buildRequest validates the case against the portal's own rules and
// assembles the lookup request. The federal portal accepts the filed amount
// or, failing that, the pre-filing estimate; the state portal strictly
// requires the filed amount.
func (s *CheckService) buildRequest(c *domain.TaxCase, p domain.Portal) (portal.Request, error) {
	if c.EncryptedSSN == "" {
		return portal.Request{}, ErrMissingIdentifier
	}
	id, err := s.Secrets.Decrypt(c.EncryptedSSN)
	if err != nil || id == "" {
		return portal.Request{}, ErrMissingIdentifier
	}

	var amount *int64
	switch p {
	case domain.PortalFederal:
		amount = c.FederalRefundCents
		if amount == nil {
			amount = c.FederalEstimatedCents
		}
	case domain.PortalState:
		// Estimates are refused here: the state portal rejects
		// near-miss amounts and burned attempts feed its bot scoring.
		amount = c.StateRefundCents
	}
	if amount == nil {
		return portal.Request{}, ErrMissingAmount
	}

	return portal.Request{
		Portal:       p,
		Identifier:   id,
		FilingStatus: c.FilingStatus,
		TaxYear:      c.TaxYear,
		AmountCents:  *amount,
		ClientSlug:   c.ClientSlug,
	}, nil
}

// attemptWithRetry runs the automator+extractor pass, retrying the full
// sequence exactly once after an error or timeout. A not_found answer is a
// valid result and is never retried.
func (s *CheckService) attemptWithRetry(ctx context.Context, req portal.Request) attempt {
	att := s.attemptOnce(ctx, req)
	if att.result != domain.ResultError && att.result != domain.ResultTimeout {
		return att
	}

	s.Log.Warn().
		Str("portal", string(req.Portal)).
		Str("result", string(att.result)).
		Msg("check attempt failed, retrying once")
	select {
	case <-time.After(s.RetryDelay):
	case <-ctx.Done():
		return att
	}
	return s.attemptOnce(ctx, req)
}

func (s *CheckService) attemptOnce(ctx context.Context, req portal.Request) attempt {
	res := s.Automator.Run(ctx, req)
	if res.Fault != "" {
		msg := res.Message
		return attempt{result: res.Fault, errMsg: &msg}
	}
	ext := s.Extractor.Extract(ctx, req.Portal, res.Screenshot, res.PageText)
	return attempt{
		result:     ext.Result,
		rawStatus:  ext.RawStatus,
		details:    ext.Details,
		screenshot: res.ScreenshotPath,
	}
}

// applyStatus updates the track's status fields and appends the paired
// StatusHistory row in one transaction, then fires a best-effort owner
// notification. The notification runs after commit: its failure must not
// roll back an applied change.
func (s *CheckService) applyStatus(ctx context.Context, c *domain.TaxCase, track domain.Portal, next domain.CanonicalStatus, actor, comment string) error {
	prev := c.TrackStatus(track)
	now := time.Now().UTC()

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.ApplyTrackStatus(tx, c.ID, track, next, comment, now); err != nil {
			return err
		}
		_, err := repo.CreateStatusHistory(tx, c.ID, track, prev, next, actor, comment)
		return err
	})
	if err != nil {
		return fmt.Errorf("apply %s status: %w", track, err)
	}

	if s.Notifier != nil {
		title := "Refund status updated"
		body := fmt.Sprintf("Your %s refund status is now %q.", track, next)
		if nerr := s.Notifier.Notify(ctx, c.OwnerUserID, "status_change", title, body); nerr != nil {
			s.Log.Warn().
				Str("case_id", c.ID).
				Str("owner_user_id", c.OwnerUserID).
				Err(nerr).
				Msg("status notification failed")
		}
	}
	return nil
}

// RunAllChecks runs both tracks for every monitored case, strictly
// sequentially. A concurrent call while a run is active returns a zero
// BatchResult immediately instead of queueing; the guard is released even
// when an individual case check panics.
func (s *CheckService) RunAllChecks(ctx context.Context, trigger domain.TriggerSource, userID string) (BatchResult, error) {
	tr := otel.Tracer("services/CheckService")
	ctx, span := tr.Start(ctx, "RunAllChecks",
		trace.WithAttributes(attribute.String("trigger", string(trigger))))
	defer span.End()

	if !s.tryLock() {
		s.Log.Info().Msg("batch run already active, skipping")
		return BatchResult{}, nil
	}
	defer s.unlock()

	cases, err := repo.ListEligibleCases(ctx, s.DB)
	if err != nil {
		return BatchResult{}, err
	}

	var out BatchResult
	for i := range cases {
		c := &cases[i]
		for _, p := range []domain.Portal{domain.PortalFederal, domain.PortalState} {
			out.Total++
			if s.runCaseCheck(ctx, c.ID, p, trigger, userID) {
				out.Succeeded++
			} else {
				out.Failed++
			}
		}
	}
	s.Log.Info().
		Int("total", out.Total).
		Int("succeeded", out.Succeeded).
		Int("failed", out.Failed).
		Msg("batch run finished")
	return out, nil
}

// runCaseCheck wraps one check so a panic or error is contained to that
// case and the batch advances.
func (s *CheckService) runCaseCheck(ctx context.Context, caseID string, p domain.Portal, trigger domain.TriggerSource, userID string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.Log.Error().
				Str("case_id", caseID).
				Str("portal", string(p)).
				Interface("panic", r).
				Msg("check panicked, skipping case")
			ok = false
		}
	}()

	chk, err := s.RunCheck(ctx, caseID, p, trigger, userID)
	if err != nil {
		s.Log.Warn().
			Str("case_id", caseID).
			Str("portal", string(p)).
			Err(err).
			Msg("check failed")
		return false
	}
	return chk.Result == domain.ResultSuccess || chk.Result == domain.ResultNotFound
}

func (s *CheckService) tryLock() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *CheckService) unlock() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// ApproveCheck applies a state-portal status proposal: the same transactional
// update an auto-applied federal change gets, with the approving admin as
// actor. The proposal must still be applicable against the case's current
// status.
func (s *CheckService) ApproveCheck(ctx context.Context, checkID, actorUserID string) error {
	tr := otel.Tracer("services/CheckService")
	ctx, span := tr.Start(ctx, "ApproveCheck",
		trace.WithAttributes(attribute.String("check.id", checkID)))
	defer span.End()

	chk, err := repo.GetCheck(ctx, s.DB, checkID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCheckNotFound
		}
		return err
	}
	if !chk.StatusChanged || chk.MappedStatus == nil {
		return ErrNotAwaitingReview
	}
	c, err := repo.GetCase(ctx, s.DB, chk.CaseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCaseNotFound
		}
		return err
	}
	current := c.TrackStatus(chk.Portal)
	if current != nil && *current == *chk.MappedStatus {
		return ErrNotAwaitingReview
	}

	comment := fmt.Sprintf("Approved check result: portal reported %q", chk.RawStatus)
	return s.applyStatus(ctx, c, chk.Portal, *chk.MappedStatus, actorUserID, comment)
}

// DismissCheck rejects a status proposal: the StatusChanged flag is cleared
// and the case is left untouched.
func (s *CheckService) DismissCheck(ctx context.Context, checkID string) error {
	chk, err := repo.GetCheck(ctx, s.DB, checkID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCheckNotFound
		}
		return err
	}
	if !chk.StatusChanged {
		return ErrNotAwaitingReview
	}
	return repo.SetCheckStatusChanged(s.DB.WithContext(ctx), chk.ID, false)
}

// GetCheck fetches one check by ID.
func (s *CheckService) GetCheck(ctx context.Context, checkID string) (*domain.RefundCheck, error) {
	chk, err := repo.GetCheck(ctx, s.DB, checkID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCheckNotFound
		}
		return nil, err
	}
	return chk, nil
}

// ListChecks returns a page of check history, newest first, with the total
// count for pagination.
func (s *CheckService) ListChecks(ctx context.Context, f repo.CheckFilter, page, pageSize int) ([]domain.RefundCheck, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountChecks(ctx, s.DB, f)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.RefundCheck{}, 0, nil
	}

	items, err := repo.ListChecksPage(ctx, s.DB, f, offset, pageSize)
	return items, total, err
}

// ScreenshotURL mints a time-limited download URL for a check's screenshot.
func (s *CheckService) ScreenshotURL(ctx context.Context, checkID string, ttl time.Duration) (string, error) {
	chk, err := s.GetCheck(ctx, checkID)
	if err != nil {
		return "", err
	}
	if chk.ScreenshotPath == nil || *chk.ScreenshotPath == "" || s.Store == nil {
		return "", ErrNoScreenshot
	}
	return s.Store.SignedURL(ctx, *chk.ScreenshotPath, ttl)
}
