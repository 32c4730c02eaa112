package portal

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"github.com/cotte4/portal-jai1-backend-sub001/internal/domain"
	"github.com/cotte4/portal-jai1-backend-sub001/internal/storage"
)

// Result is the raw outcome of one browser session. Fault is empty when the
// session reached a result page; otherwise it is ResultError or
// ResultTimeout and Message says what broke. Deciding between success and
// not_found is the extractor's job, not ours.
type Result struct {
	PageText       string
	Screenshot     []byte
	ScreenshotPath *string
	Fault          domain.CheckResult
	Message        string
}

// Automator runs one lookup per call. Run never returns an error: every
// fault is folded into the Result so the orchestrator can classify and retry.
type Automator struct {
	Engine Engine
	// Store is optional; without it screenshots stay in memory only.
	Store storage.ScreenshotStore

	FederalURL string
	StateURL   string

	// NavTimeout bounds each navigation/wait step; CheckTimeout bounds the
	// whole session. Zeroes get conservative defaults.
	NavTimeout   time.Duration
	CheckTimeout time.Duration

	Log zerolog.Logger
}

func (a *Automator) navTimeout() time.Duration {
	if a.NavTimeout > 0 {
		return a.NavTimeout
	}
	return 30 * time.Second
}

func (a *Automator) checkTimeout() time.Duration {
	if a.CheckTimeout > 0 {
		return a.CheckTimeout
	}
	return 120 * time.Second
}

func (a *Automator) urlFor(p domain.Portal) string {
	if p == domain.PortalState {
		return a.StateURL
	}
	return a.FederalURL
}

// Run drives the portal's lookup form and returns the captured result page.
// The browser is torn down on every exit path.
func (a *Automator) Run(ctx context.Context, req Request) Result {
	spec, err := formFor(req.Portal)
	if err != nil {
		return Result{Fault: domain.ResultError, Message: err.Error()}
	}
	url := a.urlFor(req.Portal)
	if url == "" {
		return Result{Fault: domain.ResultError, Message: fmt.Sprintf("no lookup URL configured for %s portal", req.Portal)}
	}

	ctx, cancel := context.WithTimeout(ctx, a.checkTimeout())
	defer cancel()

	bctx, bcancel := a.Engine.NewBrowser(ctx)
	defer bcancel()

	if err := a.Engine.Prepare(bctx); err != nil {
		return a.fault(ctx, fmt.Errorf("prepare session: %w", err))
	}

	if err := a.step(bctx, chromedp.Navigate(url)); err != nil {
		return a.fault(ctx, fmt.Errorf("navigate: %w", err))
	}
	if err := a.warmUp(bctx); err != nil {
		return a.fault(ctx, fmt.Errorf("warm up: %w", err))
	}

	for _, f := range spec.fields {
		if err := a.fillField(bctx, f, req); err != nil {
			return a.fault(ctx, fmt.Errorf("fill %s: %w", f.name, err))
		}
	}
	if err := a.verifyFields(bctx, spec, req); err != nil {
		return a.fault(ctx, err)
	}

	if err := a.humanClick(bctx, spec.submitSel); err != nil {
		return a.fault(ctx, fmt.Errorf("submit: %w", err))
	}
	if err := a.step(bctx, chromedp.WaitVisible(spec.resultSel, chromedp.ByQuery)); err != nil {
		return a.fault(ctx, fmt.Errorf("wait for result: %w", err))
	}

	var pageText string
	var shot []byte
	if err := a.step(bctx,
		chromedp.Text(spec.resultRegion, &pageText, chromedp.ByQuery),
		chromedp.CaptureScreenshot(&shot),
	); err != nil {
		return a.fault(ctx, fmt.Errorf("capture result: %w", err))
	}

	res := Result{PageText: pageText, Screenshot: shot}
	res.ScreenshotPath = a.upload(req, shot)
	return res
}

// upload is best effort: a storage fault costs the screenshot reference,
// never the check. It runs on a fresh context so a nearly exhausted check
// deadline cannot starve it; the store applies its own timeout.
func (a *Automator) upload(req Request, shot []byte) *string {
	if a.Store == nil || len(shot) == 0 {
		return nil
	}
	path := storage.ObjectPath(req.ClientSlug, time.Now())
	stored, err := a.Store.Save(context.Background(), path, shot)
	if err != nil {
		a.Log.Warn().
			Str("portal", string(req.Portal)).
			Str("path", path).
			Err(err).
			Msg("screenshot upload failed, continuing without reference")
		return nil
	}
	return &stored
}

// step runs actions under the per-step navigation timeout.
func (a *Automator) step(bctx context.Context, actions ...chromedp.Action) error {
	ctx, cancel := context.WithTimeout(bctx, a.navTimeout())
	defer cancel()
	return chromedp.Run(ctx, actions...)
}

// fault converts an automation error into a classified Result. A deadline
// hit anywhere in the session reports as timeout, everything else as error.
func (a *Automator) fault(ctx context.Context, err error) Result {
	class := domain.ResultError
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		class = domain.ResultTimeout
	}
	a.Log.Warn().Str("class", string(class)).Err(err).Msg("automation fault")
	return Result{Fault: class, Message: err.Error()}
}

// warmUp performs randomized scroll and pointer motion before the first
// real interaction.
func (a *Automator) warmUp(bctx context.Context) error {
	acts := []chromedp.Action{
		chromedp.Sleep(jitter(400*time.Millisecond, 1200*time.Millisecond)),
	}
	for i := 0; i < 2+rand.Intn(3); i++ {
		x := 100 + rand.Float64()*float64(viewportWidth-200)
		y := 100 + rand.Float64()*float64(viewportHeight-200)
		acts = append(acts,
			mouseMove(x, y),
			chromedp.Sleep(jitter(80*time.Millisecond, 250*time.Millisecond)),
		)
	}
	acts = append(acts,
		chromedp.Evaluate(fmt.Sprintf("window.scrollBy(0, %d)", 120+rand.Intn(240)), nil),
		chromedp.Sleep(jitter(200*time.Millisecond, 600*time.Millisecond)),
		chromedp.Evaluate("window.scrollTo(0, 0)", nil),
		chromedp.Sleep(jitter(150*time.Millisecond, 400*time.Millisecond)),
	)
	return a.step(bctx, acts...)
}

// fillField clicks into the field like a user would, then enters the value.
// Selects are set directly since typing into them is not meaningful.
func (a *Automator) fillField(bctx context.Context, f formField, req Request) error {
	v := f.value(req)
	if strings.HasPrefix(f.selector, "select") {
		if err := a.step(bctx, chromedp.SetValue(f.selector, v, chromedp.ByQuery)); err != nil {
			return err
		}
		return a.step(bctx, chromedp.Evaluate(fmt.Sprintf(
			`document.querySelector(%q).dispatchEvent(new Event('change', {bubbles: true}))`, f.selector), nil))
	}

	if err := a.humanClick(bctx, f.selector); err != nil {
		return err
	}
	for _, ch := range v {
		if err := a.step(bctx,
			chromedp.SendKeys(f.selector, string(ch), chromedp.ByQuery),
			chromedp.Sleep(jitter(40*time.Millisecond, 140*time.Millisecond)),
		); err != nil {
			return err
		}
	}
	return nil
}

// verifyFields re-reads every field's live value and refuses to submit on
// any mismatch. Diagnostics name the field; the identifier's values are
// never included.
func (a *Automator) verifyFields(bctx context.Context, spec formSpec, req Request) error {
	for _, f := range spec.fields {
		want := f.value(req)
		var live string
		if err := a.step(bctx, chromedp.Value(f.selector, &live, chromedp.ByQuery)); err != nil {
			return fmt.Errorf("verify %s: %w", f.name, err)
		}
		if live != want {
			if f.name == "identifier" {
				return fmt.Errorf("verification failed: field %s does not match intended input (lengths %d vs %d)",
					f.name, len(live), len(want))
			}
			return fmt.Errorf("verification failed: field %s has %q, intended %q", f.name, live, want)
		}
	}
	return nil
}

// humanClick moves the pointer to a randomized interior point of the element
// and clicks there.
func (a *Automator) humanClick(bctx context.Context, sel string) error {
	var box []float64 // [x, y, width, height]
	js := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return null;
		const r = el.getBoundingClientRect();
		return [r.x, r.y, r.width, r.height];
	})()`, sel)
	if err := a.step(bctx, chromedp.Evaluate(js, &box)); err != nil {
		return err
	}
	if len(box) != 4 || box[2] <= 0 || box[3] <= 0 {
		return fmt.Errorf("element %s not found or not visible", sel)
	}
	x, y := interiorPoint(box[0], box[1], box[2], box[3])

	acts := []chromedp.Action{}
	for _, p := range pointerPath(float64(viewportWidth)/2, float64(viewportHeight)/2, x, y) {
		acts = append(acts,
			mouseMove(p[0], p[1]),
			chromedp.Sleep(jitter(15*time.Millisecond, 45*time.Millisecond)),
		)
	}
	acts = append(acts,
		chromedp.MouseClickXY(x, y),
		chromedp.Sleep(jitter(60*time.Millisecond, 180*time.Millisecond)),
	)
	return a.step(bctx, acts...)
}

func mouseMove(x, y float64) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx)
	})
}

// jitter returns a random duration in [min, max).
func jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

// interiorPoint picks a random point inside the element's bounds, kept away
// from the edges and never the exact geometric center.
func interiorPoint(x, y, w, h float64) (float64, float64) {
	cx, cy := x+w/2, y+h/2
	for {
		px := x + w*(0.15+rand.Float64()*0.70)
		py := y + h*(0.15+rand.Float64()*0.70)
		if math.Abs(px-cx) > 0.5 || math.Abs(py-cy) > 0.5 {
			return px, py
		}
	}
}

// pointerPath interpolates intermediate pointer positions with perpendicular
// wobble so the motion is not a straight machine line.
func pointerPath(fromX, fromY, toX, toY float64) [][2]float64 {
	steps := 4 + rand.Intn(4)
	path := make([][2]float64, 0, steps)
	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		wobble := (1 - t) * (rand.Float64()*16 - 8)
		path = append(path, [2]float64{
			fromX + (toX-fromX)*t + wobble,
			fromY + (toY-fromY)*t + wobble,
		})
	}
	path[len(path)-1] = [2]float64{toX, toY}
	return path
}
