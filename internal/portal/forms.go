package portal

import (
	"fmt"

	"github.com/cotte4/portal-jai1-backend-sub001/internal/domain"
)

// Request carries everything one lookup needs. Identifier is the decrypted
// SSN-equivalent; it must never appear in logs or error messages.
type Request struct {
	Portal       domain.Portal
	Identifier   string
	FilingStatus string
	TaxYear      int
	AmountCents  int64
	ClientSlug   string
}

// formField is one input on a lookup form. value renders the submitted
// string; name is the label used in verification diagnostics, never the
// value itself.
type formField struct {
	name     string
	selector string
	value    func(Request) string
}

// formSpec describes one portal's lookup form and result page.
type formSpec struct {
	fields       []formField
	submitSel    string
	resultSel    string
	resultRegion string
}

// wholeDollars renders the refund amount the way both portals expect:
// dollars only, no separators, cents truncated.
func wholeDollars(cents int64) string {
	return fmt.Sprintf("%d", cents/100)
}

var federalForm = formSpec{
	fields: []formField{
		{name: "identifier", selector: `input[name="ssn"]`, value: func(r Request) string { return r.Identifier }},
		{name: "tax year", selector: `select[name="taxYear"]`, value: func(r Request) string { return fmt.Sprintf("%d", r.TaxYear) }},
		{name: "filing status", selector: `select[name="filingStatus"]`, value: func(r Request) string { return r.FilingStatus }},
		{name: "refund amount", selector: `input[name="refundAmount"]`, value: func(r Request) string { return wholeDollars(r.AmountCents) }},
	},
	submitSel:    `button[type="submit"]`,
	resultSel:    `#refund-status-section`,
	resultRegion: `#refund-status-section`,
}

var stateForm = formSpec{
	fields: []formField{
		{name: "identifier", selector: `input[name="taxpayerId"]`, value: func(r Request) string { return r.Identifier }},
		{name: "tax year", selector: `select[name="year"]`, value: func(r Request) string { return fmt.Sprintf("%d", r.TaxYear) }},
		{name: "refund amount", selector: `input[name="amount"]`, value: func(r Request) string { return wholeDollars(r.AmountCents) }},
	},
	submitSel:    `#check-status-btn`,
	resultSel:    `.refund-result`,
	resultRegion: `.refund-result`,
}

func formFor(p domain.Portal) (formSpec, error) {
	switch p {
	case domain.PortalFederal:
		return federalForm, nil
	case domain.PortalState:
		return stateForm, nil
	default:
		return formSpec{}, fmt.Errorf("portal: unknown portal %q", p)
	}
}
