package browser

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
)

const idleCheckInterval = 100 * time.Millisecond

// idleTracker counts in-flight requests for one tab from CDP network events.
type idleTracker struct {
	mu       sync.Mutex
	inflight map[network.RequestID]struct{}
}

func newIdleTracker() *idleTracker {
	return &idleTracker{inflight: make(map[network.RequestID]struct{})}
}

// handle is registered as a chromedp target listener and must not block.
func (t *idleTracker) handle(ev interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		// Redirects reuse the request id, so the set absorbs them.
		t.inflight[e.RequestID] = struct{}{}
	case *network.EventLoadingFinished:
		delete(t.inflight, e.RequestID)
	case *network.EventLoadingFailed:
		delete(t.inflight, e.RequestID)
	}
}

func (t *idleTracker) active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight)
}

// reset forgets requests that will never report back, such as those of a
// document that was navigated away from.
func (t *idleTracker) reset() {
	t.mu.Lock()
	t.inflight = make(map[network.RequestID]struct{})
	t.mu.Unlock()
}

// wait blocks until no request has been in flight for quiet, or until ctx
// ends.
func (t *idleTracker) wait(ctx context.Context, quiet time.Duration) error {
	ticker := time.NewTicker(idleCheckInterval)
	defer ticker.Stop()

	var idleSince time.Time
	for {
		if t.active() == 0 {
			if idleSince.IsZero() {
				idleSince = time.Now()
			}
			if time.Since(idleSince) >= quiet {
				return nil
			}
		} else {
			idleSince = time.Time{}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
