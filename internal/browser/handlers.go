// File: internal/browser/handlers.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wayfinder-cli/api/schemas"
)

// -- Primitive handlers (worker goroutine only) --

func (w *Worker) navigate(ctx context.Context, url string) Result {
	if strings.TrimSpace(url) == "" {
		return failure(errors.New("navigate requires a url"))
	}
	if err := w.driver.Navigate(ctx, url); err != nil {
		return failure(describeTimeout(ctx, fmt.Errorf("navigation to %s failed: %w", url, err)))
	}
	// Slow pages still count as loaded; the planner sees their state next.
	w.settle(ctx)
	return success(nil)
}

func (w *Worker) screenshot(ctx context.Context) Result {
	shot, err := w.capture(ctx)
	if err != nil {
		return failure(err)
	}
	return success(shot)
}

// capture foregrounds the active tab before taking the screenshot, since a
// freshly opened tab can steal focus.
func (w *Worker) capture(ctx context.Context) ([]byte, error) {
	if err := w.driver.BringToFront(ctx); err != nil {
		w.logger.Debug("Could not bring page to front.", zap.Error(err))
	}
	shot, err := w.driver.Screenshot(ctx)
	if err != nil {
		return nil, describeTimeout(ctx, fmt.Errorf("screenshot failed: %w", err))
	}
	if len(shot) == 0 {
		return nil, errors.New("screenshot was empty")
	}
	return shot, nil
}

func (w *Worker) scroll(ctx context.Context, direction string) Result {
	var pages int
	switch strings.ToLower(strings.TrimSpace(direction)) {
	case "down":
		pages = 1
	case "up":
		pages = -1
	default:
		w.logger.Info("Ignoring scroll with unsupported direction.", zap.String("direction", direction))
		return success(nil)
	}
	if err := w.driver.ScrollBy(ctx, pages); err != nil {
		return failure(describeTimeout(ctx, fmt.Errorf("scroll %s failed: %w", direction, err)))
	}
	if err := w.sleep(ctx, w.cfg.SettleDelay); err != nil {
		return failure(err)
	}
	return success(nil)
}

func (w *Worker) click(ctx context.Context, element string) Result {
	if err := w.clickElement(ctx, element); err != nil {
		return failure(err)
	}
	w.settle(ctx)
	return success(nil)
}

// clickElement locates element on a fresh screenshot and clicks its center.
func (w *Worker) clickElement(ctx context.Context, element string) error {
	if strings.TrimSpace(element) == "" {
		return errors.New("click requires an element description")
	}
	shot, err := w.capture(ctx)
	if err != nil {
		return err
	}
	vp, err := w.viewport(ctx)
	if err != nil {
		return err
	}

	x, y, ok := w.locator.ResolvePoint(ctx, shot, element, vp)
	if !ok {
		return fmt.Errorf("could not find '%s' on the page", element)
	}
	if err := w.driver.ClickAt(ctx, x, y); err != nil {
		return describeTimeout(ctx, fmt.Errorf("click at (%d,%d) failed: %w", x, y, err))
	}
	return nil
}

func (w *Worker) typeText(ctx context.Context, text, element string) Result {
	if text == "" {
		return failure(errors.New("type requires text"))
	}
	if err := w.clear(ctx, element); err != nil {
		return failure(fmt.Errorf("could not clear '%s' before typing: %w", element, err))
	}
	if err := w.driver.TypeText(ctx, text); err != nil {
		return failure(describeTimeout(ctx, fmt.Errorf("typing failed: %w", err)))
	}
	if err := w.driver.PressKey(ctx, KeyEnter); err != nil {
		return failure(describeTimeout(ctx, fmt.Errorf("submitting with Enter failed: %w", err)))
	}
	w.settle(ctx)
	return success(nil)
}

func (w *Worker) clearInput(ctx context.Context, element string) Result {
	if err := w.clear(ctx, element); err != nil {
		return failure(err)
	}
	return success(nil)
}

// clear focuses the field with a click, then selects and deletes its content.
func (w *Worker) clear(ctx context.Context, element string) error {
	if err := w.clickElement(ctx, element); err != nil {
		return err
	}
	w.settle(ctx)
	if err := w.driver.SelectAll(ctx); err != nil {
		return describeTimeout(ctx, fmt.Errorf("select all failed: %w", err))
	}
	if err := w.driver.PressKey(ctx, KeyBackspace); err != nil {
		return describeTimeout(ctx, fmt.Errorf("delete failed: %w", err))
	}
	return w.sleep(ctx, w.cfg.ClearSettleDelay)
}

func (w *Worker) wait(ctx context.Context, seconds string) Result {
	d := w.waitDuration(seconds)
	if err := w.sleep(ctx, d); err != nil {
		return failure(fmt.Errorf("wait interrupted: %w", err))
	}
	return success(nil)
}

// waitDuration parses seconds, falling back to the configured default for
// anything that is not a non-negative number.
func (w *Worker) waitDuration(seconds string) time.Duration {
	fallback := w.cfg.WaitFallback
	if fallback <= 0 {
		fallback = defaultWaitFallback
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(seconds), 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		if seconds != "" {
			w.logger.Debug("Non-numeric wait, using fallback.", zap.String("seconds", seconds), zap.Duration("fallback", fallback))
		}
		return fallback
	}
	return time.Duration(v * float64(time.Second))
}

func (w *Worker) currentURL(ctx context.Context) Result {
	u, err := w.driver.CurrentURL(ctx)
	if err != nil {
		return failure(describeTimeout(ctx, fmt.Errorf("reading current url failed: %w", err)))
	}
	return success(u)
}

func (w *Worker) viewport(ctx context.Context) (schemas.Viewport, error) {
	vp, err := w.driver.Viewport(ctx)
	if err == nil && vp.Width > 0 && vp.Height > 0 {
		return vp, nil
	}
	if w.cfg.Viewport.Width > 0 && w.cfg.Viewport.Height > 0 {
		w.logger.Debug("Live viewport unavailable, using configured size.", zap.Error(err))
		return schemas.Viewport{Width: w.cfg.Viewport.Width, Height: w.cfg.Viewport.Height}, nil
	}
	if err == nil {
		err = errors.New("viewport has no size")
	}
	return schemas.Viewport{}, fmt.Errorf("could not read viewport size: %w", err)
}

// settle waits for the page to calm down. Failure to settle is logged but
// never fails the command that triggered it.
func (w *Worker) settle(ctx context.Context) {
	if err := w.driver.WaitSettled(ctx); err != nil {
		w.logger.Debug("Page did not fully settle.", zap.Error(err))
	}
}

// describeTimeout makes deadline failures read as timeouts.
func describeTimeout(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("timed out: %w", err)
	}
	return err
}
