// Package extract turns a captured result page into (rawStatus, details,
// classification). The primary path asks a vision model to read the
// screenshot; this file is the deterministic fallback that scans the page's
// rendered text against ordered phrase groups. The fallback needs no network
// and always produces an answer.
package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/cotte4/portal-jai1-backend-sub001/internal/domain"
)

// phraseGroup maps page phrases to a raw status label. Literal phrases are
// matched case-insensitively as substrings; Pattern, when set, is tried as
// well. First group with any hit wins, so order encodes precedence.
type phraseGroup struct {
	label    string
	phrases  []string
	pattern  *regexp.Regexp
	notFound bool
}

// notFoundGroups come first: an explicit "no record" banner must never be
// misread as a status phrase further down the table.
var federalGroups = []phraseGroup{
	{
		label:    "Not Found",
		notFound: true,
		phrases: []string{
			"we cannot provide any information about your refund",
			"you may not have entered your information correctly",
			"information does not match our records",
		},
	},
	{label: "Refund Sent", phrases: []string{"refund sent", "refund was sent", "sent to your bank", "check was mailed"}},
	{label: "Refund Approved", phrases: []string{"refund approved", "has been approved"}},
	{label: "Return Received", phrases: []string{"return received", "we have received your", "still being processed", "is being processed"}},
	{label: "Identity Verification", phrases: []string{"verify your identity", "identity verification", "letter 5071c"}},
	{label: "Action Required", phrases: []string{"cannot process", "contact us", "more information"}},
}

var stateGroups = []phraseGroup{
	{
		label:    "Not Found",
		notFound: true,
		phrases: []string{
			"no record of your return",
			"unable to locate your refund",
			"check back later",
			"not yet available",
		},
	},
	{label: "Refund Issued", phrases: []string{"refund has been issued", "refund issued", "direct deposit was sent", "check has been mailed"}},
	{label: "Refund Approved", phrases: []string{"approved for payment", "has been approved"}},
	{
		label:   "Return Received",
		phrases: []string{"return has been received", "received your return", "currently being processed"},
		pattern: regexp.MustCompile(`(?i)processing\s+stage\s+\d`),
	},
	{label: "Under Review", phrases: []string{"under review", "additional review", "verify your identity"}},
	{label: "Action Required", phrases: []string{"cannot process", "contact the department", "additional information is required"}},
}

// fallbackExtract scans pageText against the portal's phrase table.
// Unmatched pages degrade to an "Unrecognized" label with the page text as
// details; the mapper treats that as no evidence, so nothing downstream can
// misfire on it.
func fallbackExtract(portal domain.Portal, pageText string) Extraction {
	groups := federalGroups
	if portal == domain.PortalState {
		groups = stateGroups
	}
	lower := strings.ToLower(pageText)

	for _, g := range groups {
		if !groupMatches(g, lower) {
			continue
		}
		if g.notFound {
			return Extraction{
				RawStatus: g.label,
				Details:   firstLine(pageText),
				Result:    domain.ResultNotFound,
			}
		}
		return Extraction{
			RawStatus: g.label,
			Details:   firstLine(pageText),
			Result:    domain.ResultSuccess,
		}
	}

	return Extraction{
		RawStatus: "Unrecognized",
		Details:   truncate(strings.TrimSpace(pageText), 500),
		Result:    domain.ResultSuccess,
	}
}

func groupMatches(g phraseGroup, lowerText string) bool {
	for _, p := range g.phrases {
		if strings.Contains(lowerText, p) {
			return true
		}
	}
	return g.pattern != nil && g.pattern.MatchString(lowerText)
}

// firstLine returns the first non-empty line of s, truncated for storage.
func firstLine(s string) string {
	for _, ln := range strings.Split(s, "\n") {
		if t := strings.TrimSpace(ln); t != "" {
			return truncate(t, 500)
		}
	}
	return ""
}

// truncate caps s at max bytes without splitting a multi-byte rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
