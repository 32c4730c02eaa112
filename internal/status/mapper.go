// Package status maps raw refund-portal phrases into the canonical status
// taxonomy. Mapping is a pure function over an ordered keyword table: no I/O,
// no shared state, identical inputs always produce identical outputs.
package status

import (
	"strings"

	"github.com/cotte4/portal-jai1-backend-sub001/internal/domain"
)

// depositPending is a sentinel for the "approved/sent" phrase family whose
// concrete status depends on the client's payment method.
const depositPending domain.CanonicalStatus = "deposit_pending"

// keywordGroup pairs a set of trigger keywords with the status they map to.
// Matching is case-insensitive substring; within the table, the first group
// with any matching keyword wins, so broader phrases must come earlier.
type keywordGroup struct {
	keywords []string
	to       domain.CanonicalStatus
}

// groups is ordered deliberately: "received/still processing" precedes the
// "approved/sent" family so that phrases like "Return Received" are not
// swallowed by looser keywords further down.
var groups = []keywordGroup{
	{
		keywords: []string{"received", "still being processed", "still processing", "is being processed", "processing your return"},
		to:       domain.StatusInProcess,
	},
	{
		keywords: []string{"approved", "sent", "deposited", "mailed", "issued"},
		to:       depositPending,
	},
	{
		keywords: []string{"identity", "verification", "under review"},
		to:       domain.StatusInVerification,
	},
	{
		keywords: []string{"cannot process", "contact us", "more information", "action required"},
		to:       domain.StatusIssues,
	},
}

// Map resolves rawStatus to a canonical status, or nil when no keyword group
// matches. Callers must never infer a status change from a nil result: an
// unrecognized phrase is not evidence of anything.
//
// The deposit-pending family is resolved by payment method into either the
// direct-deposit or the paper-check in-transit status.
func Map(rawStatus string, method domain.PaymentMethod) *domain.CanonicalStatus {
	raw := strings.ToLower(strings.TrimSpace(rawStatus))
	if raw == "" {
		return nil
	}

	for _, g := range groups {
		for _, kw := range g.keywords {
			if !strings.Contains(raw, kw) {
				continue
			}
			mapped := g.to
			if mapped == depositPending {
				mapped = resolveDeposit(method)
			}
			return &mapped
		}
	}
	return nil
}

func resolveDeposit(method domain.PaymentMethod) domain.CanonicalStatus {
	if method == domain.PaymentCheck {
		return domain.StatusCheckInTransit
	}
	return domain.StatusDepositInTransit
}
