package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cotte4/portal-jai1-backend-sub001/internal/domain"
	"github.com/cotte4/portal-jai1-backend-sub001/internal/vision"
)

// Extraction is the outcome of reading one result page.
type Extraction struct {
	RawStatus string
	Details   string
	Result    domain.CheckResult
}

// VisionModel is the collaborator that reads a screenshot. Satisfied by
// *vision.Client; faked in tests.
type VisionModel interface {
	Describe(ctx context.Context, png []byte, system, user string) (string, error)
}

// Extractor coordinates the two extraction paths. The vision path is best
// effort: any failure there (transport, malformed answer, missing fields) is
// logged as a warning and demoted to the deterministic text fallback.
// Extract never returns an error.
type Extractor struct {
	// Vision is nil when no vision model is configured; extraction then
	// goes straight to the text fallback.
	Vision VisionModel

	// Timeout bounds the single vision call, independent of the caller's
	// deadline. Zero means 30s.
	Timeout time.Duration

	Log zerolog.Logger
}

// Per-portal label sets the model must choose from. Constraining the answer
// keeps the downstream keyword mapping deterministic.
var visionLabels = map[domain.Portal][]string{
	domain.PortalFederal: {"Return Received", "Refund Approved", "Refund Sent", "Identity Verification", "Action Required"},
	domain.PortalState:   {"Return Received", "Refund Approved", "Refund Issued", "Under Review", "Action Required"},
}

const visionSystemPrompt = `You read screenshots of government tax-refund lookup pages.
Answer with exactly one JSON object and nothing else:
{"status": "<label>", "details": "<short free text from the page>", "found": <bool>}
Set "found" to false and "status" to "" when the page says there is no matching record.
Otherwise "status" MUST be one of the allowed labels.`

// Extract reads one captured result page. screenshot may be nil (pre-capture
// failure); pageText is the rendered text of the result region.
func (e *Extractor) Extract(ctx context.Context, portal domain.Portal, screenshot []byte, pageText string) Extraction {
	if e.Vision != nil && len(screenshot) > 0 {
		if out, err := e.visionExtract(ctx, portal, screenshot); err == nil {
			return out
		} else {
			e.Log.Warn().
				Str("portal", string(portal)).
				Err(err).
				Msg("vision extraction failed, using text fallback")
		}
	}
	return fallbackExtract(portal, pageText)
}

func (e *Extractor) visionExtract(ctx context.Context, portal domain.Portal, screenshot []byte) (Extraction, error) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	user := fmt.Sprintf("Portal: %s. Allowed labels: %s.",
		portal, strings.Join(visionLabels[portal], ", "))

	answer, err := e.Vision.Describe(ctx, screenshot, visionSystemPrompt, user)
	if err != nil {
		return Extraction{}, err
	}

	read, err := vision.ParseStatusRead(answer)
	if err != nil {
		return Extraction{}, err
	}

	if !*read.Found {
		return Extraction{
			RawStatus: "Not Found",
			Details:   read.Details,
			Result:    domain.ResultNotFound,
		}, nil
	}
	if !allowedLabel(portal, read.Status) {
		return Extraction{}, fmt.Errorf("label %q not in portal set", read.Status)
	}
	return Extraction{
		RawStatus: read.Status,
		Details:   read.Details,
		Result:    domain.ResultSuccess,
	}, nil
}

func allowedLabel(portal domain.Portal, label string) bool {
	for _, l := range visionLabels[portal] {
		if strings.EqualFold(l, label) {
			return true
		}
	}
	return false
}
