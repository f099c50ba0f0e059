package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestClassifyClickErrorDeadline(t *testing.T) {
	err := classifyClickError(".btn", time.Second, context.DeadlineExceeded)

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Contains(t, timeoutErr.Op, ".btn")
}

func TestClassifyClickErrorIntercepted(t *testing.T) {
	raw := errors.New("element .btn does not receive pointer events")
	err := classifyClickError(".btn", time.Second, raw)

	var intercepted *ClickInterceptedError
	require.ErrorAs(t, err, &intercepted)
	assert.Equal(t, ".btn", intercepted.Selector)
	assert.ErrorIs(t, err, raw)
}

func TestClassifyClickErrorPassThrough(t *testing.T) {
	raw := errors.New("target crashed")
	err := classifyClickError(".btn", time.Second, raw)

	var intercepted *ClickInterceptedError
	assert.False(t, errors.As(err, &intercepted))
	assert.ErrorIs(t, err, raw)
}

func TestClassifyClickErrorNil(t *testing.T) {
	assert.NoError(t, classifyClickError(".btn", time.Second, nil))
}

// newDetachedSession builds a session without a live browser, enough to
// exercise the network bookkeeping.
func newDetachedSession() *Session {
	return &Session{
		logger:   arbor.NewLogger(),
		inflight: make(map[network.RequestID]struct{}),
		lastIdle: time.Now().Add(-time.Second),
	}
}

func TestWaitForResponseMatchesRecentResponse(t *testing.T) {
	s := newDetachedSession()

	s.handleNetworkEvent(&network.EventResponseReceived{
		Response: &network.Response{URL: "https://demo.emptor.test/api/cart", Status: 200},
	})

	info, err := s.WaitForResponse(context.Background(), "/api/cart", 0, 50*time.Millisecond)
	require.NoError(t, err, "a response observed just before the wait must still match")
	assert.Equal(t, "https://demo.emptor.test/api/cart", info.URL)
	assert.Equal(t, int64(200), info.Status)
}

func TestWaitForResponseMatchesLaterResponse(t *testing.T) {
	s := newDetachedSession()

	go func() {
		time.Sleep(20 * time.Millisecond)
		s.handleNetworkEvent(&network.EventResponseReceived{
			Response: &network.Response{URL: "https://demo.emptor.test/api/cart/remove", Status: 204},
		})
	}()

	info, err := s.WaitForResponse(context.Background(), "cart/remove", 0, time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(204), info.Status)
}

func TestWaitForResponseTimesOut(t *testing.T) {
	s := newDetachedSession()

	_, err := s.WaitForResponse(context.Background(), "/never", 0, 30*time.Millisecond)

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)

	s.mu.Lock()
	watchers := len(s.watchers)
	s.mu.Unlock()
	assert.Zero(t, watchers, "the watcher must be deregistered on timeout")
}

func TestWaitForLoadStateNetworkIdle(t *testing.T) {
	s := newDetachedSession()

	err := s.WaitForLoadState(context.Background(), LoadStateNetworkIdle, time.Second)
	require.NoError(t, err, "no in-flight requests means idle")
}

func TestWaitForLoadStateNetworkIdleWaitsForInflight(t *testing.T) {
	s := newDetachedSession()
	s.handleNetworkEvent(&network.EventRequestWillBeSent{RequestID: "req-1"})

	err := s.WaitForLoadState(context.Background(), LoadStateNetworkIdle, 100*time.Millisecond)
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr, "an in-flight request must block network idle")

	s.handleNetworkEvent(&network.EventLoadingFinished{RequestID: "req-1"})
	// Idle only counts once the request set has been empty for the idle
	// window, so the successful wait takes at least that long.
	start := time.Now()
	err = s.WaitForLoadState(context.Background(), LoadStateNetworkIdle, 2*time.Second)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 400*time.Millisecond)
}

func TestWaitForResponseIgnoresResponsesBeforeMark(t *testing.T) {
	s := newDetachedSession()

	// The page-load response from navigating to the cart is already in
	// the ring when the wait starts.
	s.handleNetworkEvent(&network.EventResponseReceived{
		Response: &network.Response{URL: "https://demo.emptor.test/cart", Status: 200},
	})

	mark := s.ResponseMark()
	_, err := s.WaitForResponse(context.Background(), "/cart", mark, 30*time.Millisecond)

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr,
		"a response observed before the mark must never confirm anything")
}

func TestWaitForResponseMatchesOnlyPostMarkResponse(t *testing.T) {
	s := newDetachedSession()

	s.handleNetworkEvent(&network.EventResponseReceived{
		Response: &network.Response{URL: "https://demo.emptor.test/cart", Status: 200},
	})
	mark := s.ResponseMark()
	s.handleNetworkEvent(&network.EventResponseReceived{
		Response: &network.Response{URL: "https://demo.emptor.test/cart/remove", Status: 204},
	})

	info, err := s.WaitForResponse(context.Background(), "/cart", mark, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "https://demo.emptor.test/cart/remove", info.URL)
	assert.Equal(t, int64(204), info.Status)
}

func TestResponseRingIsBounded(t *testing.T) {
	s := newDetachedSession()
	for i := 0; i < responseRingSize*2; i++ {
		s.handleNetworkEvent(&network.EventResponseReceived{
			Response: &network.Response{URL: "https://demo.emptor.test/api/ping", Status: 200},
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.LessOrEqual(t, len(s.responses), responseRingSize)
}
