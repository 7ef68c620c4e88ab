// internal/browser/context_utils.go
package browser

import (
	"context"
)

// CombineContext returns a context that carries the values of tabCtx (the
// chromedp target) and is canceled when either tabCtx or opCtx ends. opCtx
// usually carries the per-command deadline.
func CombineContext(tabCtx, opCtx context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(tabCtx)
	stop := context.AfterFunc(opCtx, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}
