package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/emptor/internal/common"
)

// ElementState selects which selector state to wait for.
type ElementState string

const (
	ElementVisible ElementState = "visible"
	ElementHidden  ElementState = "hidden"
)

// LoadState selects which page lifecycle state to wait for.
type LoadState string

const (
	LoadStateLoad             LoadState = "load"
	LoadStateDOMContentLoaded LoadState = "domcontentloaded"
	LoadStateNetworkIdle      LoadState = "networkidle"
)

// ResponseInfo describes one observed network response.
type ResponseInfo struct {
	URL    string
	Status int64
}

// Capability is the narrow browser surface the wait/retry core and the
// page objects consume. Session is the chromedp-backed implementation;
// tests substitute fakes.
type Capability interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, selector string, timeout time.Duration) error
	ScriptClick(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string, timeout time.Duration) error
	Evaluate(ctx context.Context, expression string, out any) error
	WaitForSelector(ctx context.Context, selector string, state ElementState, timeout time.Duration) error
	WaitForFunction(ctx context.Context, expression string, timeout time.Duration) error
	ResponseMark() uint64
	WaitForResponse(ctx context.Context, urlSubstr string, since uint64, timeout time.Duration) (ResponseInfo, error)
	WaitForLoadState(ctx context.Context, state LoadState, timeout time.Duration) error
	ElementExists(ctx context.Context, selector string) (bool, error)
	CountElements(ctx context.Context, selector string) (int, error)
	IsVisible(ctx context.Context, selector string) (bool, error)
	ComputedOpacity(ctx context.Context, selector string) (float64, error)
	Text(ctx context.Context, selector string, timeout time.Duration) (string, error)
	Location(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
}

// Session drives one headless/headed Chrome page for one test. All calls
// are serialized by the single logical test flow; the session holds no
// cross-test state.
type Session struct {
	ctx     context.Context
	cleanup []func()
	logger  arbor.ILogger
	limiter *rate.Limiter

	mu        sync.Mutex
	inflight  map[network.RequestID]struct{}
	lastIdle  time.Time
	respSeq   uint64
	responses []responseRecord // small ring of recent responses
	watchers  []*responseWatcher
}

// responseRecord stamps each ring entry with a monotonic sequence number so
// waits can be scoped to responses observed after a given point.
type responseRecord struct {
	seq  uint64
	info ResponseInfo
}

type responseWatcher struct {
	substr string
	ch     chan ResponseInfo
}

const responseRingSize = 64

// NewSession launches a browser context per the configuration. Cleanup
// functions run LIFO via Close.
func NewSession(parent context.Context, config common.BrowserConfig, logger arbor.ILogger) (*Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", config.Headless),
		chromedp.Flag("disable-gpu", config.DisableGPU),
		chromedp.WindowSize(config.WindowWidth, config.WindowHeight),
	)
	if config.NoSandbox {
		opts = append(opts, chromedp.Flag("no-sandbox", true))
	}
	if config.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(config.UserAgent))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	s := &Session{
		ctx:      browserCtx,
		logger:   logger,
		inflight: make(map[network.RequestID]struct{}),
		lastIdle: time.Now(),
	}
	s.cleanup = append(s.cleanup, cancelAlloc, cancelBrowser, func() {
		if err := chromedp.Cancel(browserCtx); err != nil {
			logger.Warn().Err(err).Msg("Browser cancel returned error")
		}
	})

	if config.ActionsPerSec > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(config.ActionsPerSec), 1)
	}

	if err := chromedp.Run(browserCtx, network.Enable()); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to enable network domain: %w", err)
	}
	chromedp.ListenTarget(browserCtx, s.handleNetworkEvent)

	logger.Info().
		Bool("headless", config.Headless).
		Int("width", config.WindowWidth).
		Int("height", config.WindowHeight).
		Msg("Browser session started")

	return s, nil
}

// Close releases browser resources in reverse order of acquisition.
func (s *Session) Close() {
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		s.cleanup[i]()
	}
}

// handleNetworkEvent maintains the in-flight request set (for network-idle
// detection) and dispatches responses to any registered watchers.
func (s *Session) handleNetworkEvent(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		s.mu.Lock()
		s.inflight[e.RequestID] = struct{}{}
		s.mu.Unlock()
	case *network.EventLoadingFinished:
		s.requestDone(e.RequestID)
	case *network.EventLoadingFailed:
		s.requestDone(e.RequestID)
	case *network.EventResponseReceived:
		if e.Response == nil {
			return
		}
		info := ResponseInfo{URL: e.Response.URL, Status: int64(e.Response.Status)}
		s.mu.Lock()
		s.respSeq++
		s.responses = append(s.responses, responseRecord{seq: s.respSeq, info: info})
		if len(s.responses) > responseRingSize {
			s.responses = s.responses[len(s.responses)-responseRingSize:]
		}
		for _, w := range s.watchers {
			if strings.Contains(info.URL, w.substr) {
				select {
				case w.ch <- info:
				default:
				}
			}
		}
		s.mu.Unlock()
	}
}

func (s *Session) requestDone(id network.RequestID) {
	s.mu.Lock()
	delete(s.inflight, id)
	if len(s.inflight) == 0 {
		s.lastIdle = time.Now()
	}
	s.mu.Unlock()
}

// pace blocks per the configured action rate limit.
func (s *Session) pace(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

// run executes chromedp actions on the session's browser context, bounded
// by the caller's context deadline and cancellation. The derived context is
// always cancelled on return so no browser work outlives the call.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	var runCtx context.Context
	var cancel context.CancelFunc
	if deadline, ok := ctx.Deadline(); ok {
		runCtx, cancel = context.WithDeadline(s.ctx, deadline)
	} else {
		runCtx, cancel = context.WithCancel(s.ctx)
	}
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- chromedp.Run(runCtx, actions...) }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// Navigate loads url and waits for the document load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.pace(ctx); err != nil {
		return err
	}
	s.logger.Debug().Str("url", url).Msg("Navigating")
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		return &NavigationError{URL: url, Err: err}
	}
	return nil
}

// Click waits for the element to be visible, then clicks it. Failures are
// classified into the typed taxonomy (timeout vs intercepted).
func (s *Session) Click(ctx context.Context, selector string, timeout time.Duration) error {
	if err := s.pace(ctx); err != nil {
		return err
	}
	clickCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := s.run(clickCtx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
	return classifyClickError(selector, timeout, err)
}

// ScriptClick dispatches a click directly in page script. Last-resort
// fallback for elements a trusted click cannot reach.
func (s *Session) ScriptClick(ctx context.Context, selector string) error {
	if err := s.pace(ctx); err != nil {
		return err
	}
	var clicked bool
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return false;
		el.click();
		return true;
	})()`, selector)
	if err := s.run(ctx, chromedp.Evaluate(expr, &clicked)); err != nil {
		return fmt.Errorf("script click on %q failed: %w", selector, err)
	}
	if !clicked {
		return fmt.Errorf("script click on %q failed: element not found", selector)
	}
	return nil
}

// Fill clears the element and types value into it.
func (s *Session) Fill(ctx context.Context, selector, value string, timeout time.Duration) error {
	if err := s.pace(ctx); err != nil {
		return err
	}
	fillCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := s.run(fillCtx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, "", chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &TimeoutError{Op: "fill " + selector, Timeout: timeout, Err: err}
		}
		return fmt.Errorf("fill %q failed: %w", selector, err)
	}
	return nil
}

// Evaluate runs a page-script expression. out may be nil when the result
// is not needed.
func (s *Session) Evaluate(ctx context.Context, expression string, out any) error {
	return s.run(ctx, chromedp.Evaluate(expression, out))
}

// WaitForSelector waits for an element to reach the given state.
func (s *Session) WaitForSelector(ctx context.Context, selector string, state ElementState, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var action chromedp.Action
	switch state {
	case ElementHidden:
		action = chromedp.WaitNotVisible(selector, chromedp.ByQuery)
	default:
		action = chromedp.WaitVisible(selector, chromedp.ByQuery)
	}

	if err := s.run(waitCtx, action); err != nil {
		return &TimeoutError{
			Op:      fmt.Sprintf("wait for %q %s", selector, state),
			Timeout: timeout,
			Err:     err,
		}
	}
	return nil
}

// WaitForFunction polls a page-script predicate until it is truthy.
func (s *Session) WaitForFunction(ctx context.Context, expression string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var result bool
	err := s.run(waitCtx, chromedp.Poll(expression, &result,
		chromedp.WithPollingTimeout(timeout),
		chromedp.WithPollingInterval(100*time.Millisecond),
	))
	if err != nil {
		return &TimeoutError{Op: "wait for function", Timeout: timeout, Err: err}
	}
	return nil
}

// ResponseMark returns a marker for the current position in the response
// stream. Pass it to WaitForResponse to ignore every response that was
// already observed when the mark was taken, such as the page-load response
// left over from the preceding navigation.
func (s *Session) ResponseMark() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.respSeq
}

// WaitForResponse waits for a network response whose URL contains urlSubstr,
// observed after the since mark. Matching responses that arrived between the
// mark and this call are consulted first so a fast server does not race the
// wait; anything at or before the mark never matches.
func (s *Session) WaitForResponse(ctx context.Context, urlSubstr string, since uint64, timeout time.Duration) (ResponseInfo, error) {
	w := &responseWatcher{substr: urlSubstr, ch: make(chan ResponseInfo, 1)}

	s.mu.Lock()
	for i := len(s.responses) - 1; i >= 0; i-- {
		if s.responses[i].seq <= since {
			break
		}
		if strings.Contains(s.responses[i].info.URL, urlSubstr) {
			info := s.responses[i].info
			s.mu.Unlock()
			return info, nil
		}
	}
	s.watchers = append(s.watchers, w)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		for i, reg := range s.watchers {
			if reg == w {
				s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case info := <-w.ch:
		return info, nil
	case <-ctx.Done():
		return ResponseInfo{}, ctx.Err()
	case <-timer.C:
		return ResponseInfo{}, &TimeoutError{
			Op:      fmt.Sprintf("wait for response matching %q", urlSubstr),
			Timeout: timeout,
			Err:     context.DeadlineExceeded,
		}
	}
}

// WaitForLoadState waits for the page lifecycle to reach the given state.
// Network idle means no in-flight requests for half a second.
func (s *Session) WaitForLoadState(ctx context.Context, state LoadState, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch state {
	case LoadStateNetworkIdle:
		const idleWindow = 500 * time.Millisecond
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			s.mu.Lock()
			idle := len(s.inflight) == 0 && time.Since(s.lastIdle) >= idleWindow
			s.mu.Unlock()
			if idle {
				return nil
			}
			select {
			case <-waitCtx.Done():
				return &TimeoutError{Op: "wait for network idle", Timeout: timeout, Err: waitCtx.Err()}
			case <-ticker.C:
			}
		}
	case LoadStateDOMContentLoaded:
		return s.waitReadyState(waitCtx, timeout, `document.readyState === "interactive" || document.readyState === "complete"`)
	default:
		return s.waitReadyState(waitCtx, timeout, `document.readyState === "complete"`)
	}
}

func (s *Session) waitReadyState(ctx context.Context, timeout time.Duration, expr string) error {
	var ready bool
	err := s.run(ctx, chromedp.Poll(expr, &ready,
		chromedp.WithPollingTimeout(timeout),
		chromedp.WithPollingInterval(100*time.Millisecond),
	))
	if err != nil {
		return &TimeoutError{Op: "wait for load state", Timeout: timeout, Err: err}
	}
	return nil
}

// ElementExists reports whether the selector matches any element.
func (s *Session) ElementExists(ctx context.Context, selector string) (bool, error) {
	var exists bool
	expr := fmt.Sprintf(`document.querySelector(%q) !== null`, selector)
	if err := s.run(ctx, chromedp.Evaluate(expr, &exists)); err != nil {
		return false, fmt.Errorf("existence probe for %q failed: %w", selector, err)
	}
	return exists, nil
}

// CountElements returns the number of elements matching the selector.
func (s *Session) CountElements(ctx context.Context, selector string) (int, error) {
	var count int
	expr := fmt.Sprintf(`document.querySelectorAll(%q).length`, selector)
	if err := s.run(ctx, chromedp.Evaluate(expr, &count)); err != nil {
		return 0, fmt.Errorf("count probe for %q failed: %w", selector, err)
	}
	return count, nil
}

// IsVisible reports whether the element exists, has layout, and is not
// hidden via CSS.
func (s *Session) IsVisible(ctx context.Context, selector string) (bool, error) {
	var visible bool
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return false;
		const style = window.getComputedStyle(el);
		if (style.display === 'none' || style.visibility === 'hidden') return false;
		const rect = el.getBoundingClientRect();
		return rect.width > 0 && rect.height > 0;
	})()`, selector)
	if err := s.run(ctx, chromedp.Evaluate(expr, &visible)); err != nil {
		return false, fmt.Errorf("visibility probe for %q failed: %w", selector, err)
	}
	return visible, nil
}

// ComputedOpacity returns the computed opacity of the element. A missing
// element is an error, not opacity zero.
func (s *Session) ComputedOpacity(ctx context.Context, selector string) (float64, error) {
	var opacity float64
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return -1;
		return parseFloat(window.getComputedStyle(el).opacity);
	})()`, selector)
	if err := s.run(ctx, chromedp.Evaluate(expr, &opacity)); err != nil {
		return 0, fmt.Errorf("opacity probe for %q failed: %w", selector, err)
	}
	if opacity < 0 {
		return 0, fmt.Errorf("opacity probe for %q failed: element not found", selector)
	}
	return opacity, nil
}

// Text returns the visible text content of the element.
func (s *Session) Text(ctx context.Context, selector string, timeout time.Duration) (string, error) {
	textCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	var text string
	err := s.run(textCtx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Text(selector, &text, chromedp.ByQuery),
	)
	if err != nil {
		return "", &TimeoutError{Op: "text of " + selector, Timeout: timeout, Err: err}
	}
	return text, nil
}

// Location returns the current page URL.
func (s *Session) Location(ctx context.Context) (string, error) {
	var url string
	if err := s.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return url, nil
}

// Title returns the current page title.
func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	if err := s.run(ctx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("failed to read title: %w", err)
	}
	return title, nil
}

// Screenshot captures a full-page screenshot.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

