package browser

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdleTracker_CountsRequests(t *testing.T) {
	tr := newIdleTracker()

	tr.handle(&network.EventRequestWillBeSent{RequestID: "1"})
	tr.handle(&network.EventRequestWillBeSent{RequestID: "2"})
	tr.handle(&network.EventRequestWillBeSent{RequestID: "2"}) // redirect
	assert.Equal(t, 2, tr.active())

	tr.handle(&network.EventLoadingFinished{RequestID: "1"})
	tr.handle(&network.EventLoadingFailed{RequestID: "2"})
	assert.Equal(t, 0, tr.active())

	tr.handle(&network.EventRequestWillBeSent{RequestID: "3"})
	tr.reset()
	assert.Equal(t, 0, tr.active())

	// Unrelated events are ignored.
	tr.handle("not an event")
	assert.Equal(t, 0, tr.active())
}

func TestIdleTracker_WaitReturnsWhenQuiet(t *testing.T) {
	tr := newIdleTracker()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, tr.wait(ctx, 150*time.Millisecond))
}

func TestIdleTracker_WaitTimesOutWhileBusy(t *testing.T) {
	tr := newIdleTracker()
	tr.handle(&network.EventRequestWillBeSent{RequestID: "long-poll"})

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, tr.wait(ctx, 100*time.Millisecond), context.DeadlineExceeded)
}

func TestAllocatorOptions(t *testing.T) {
	cfg := testBrowserConfig()
	cfg.Headless = true
	cfg.UserAgent = "wayfinder-test"
	cfg.Args = []string{"--lang=en-US", "--mute-audio", "--"}

	base := len(allocatorOptions(testBrowserConfig()))
	opts := allocatorOptions(cfg)
	// DisableGPU, UserAgent and two parsed args.
	assert.Equal(t, base+4, len(opts))
}
