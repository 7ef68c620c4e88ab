// File: internal/browser/worker.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wayfinder-cli/internal/config"
	"github.com/xkilldash9x/wayfinder-cli/internal/observability"
)

// ErrWorkerStopped is returned for commands submitted after Stop.
var ErrWorkerStopped = errors.New("navigation worker stopped")

const (
	defaultQueueSize    = 16
	retargetTimeout     = 15 * time.Second
	defaultWaitFallback = 2 * time.Second
)

type request struct {
	ctx   context.Context
	cmd   Command
	reply chan Result
}

// Worker is the only goroutine allowed to touch the Driver. Commands are
// queued on a channel and executed one at a time, in the order they were
// accepted.
type Worker struct {
	driver  Driver
	locator Locator
	cfg     config.BrowserConfig
	logger  *zap.Logger
	metrics *observability.Metrics

	requests chan request
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	started  sync.Once

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewWorker creates a worker that owns driver. Call Start before submitting.
func NewWorker(driver Driver, locator Locator, cfg config.BrowserConfig, logger *zap.Logger, metrics *observability.Metrics) *Worker {
	return &Worker{
		driver:   driver,
		locator:  locator,
		cfg:      cfg,
		logger:   logger.Named("navigator"),
		metrics:  metrics,
		requests: make(chan request, defaultQueueSize),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
		sleep:    sleepContext,
	}
}

// Start launches the worker goroutine. The worker also stops when ctx is done.
func (w *Worker) Start(ctx context.Context) {
	w.started.Do(func() {
		go w.run(ctx)
	})
}

// Stop requests termination and waits for the current command to finish and
// the driver to be released. Commands still queued are rejected.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	// A worker that was never started still owns the driver.
	w.started.Do(func() {
		w.release()
		close(w.done)
	})
	<-w.done
}

// Done is closed once the worker has exited and released the driver.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Submit queues cmd and returns a channel for its Result. Submission order is
// execution order. A request accepted while the worker is stopping may never
// be answered, so callers also watch Done; Do does this.
func (w *Worker) Submit(ctx context.Context, cmd Command) (<-chan Result, error) {
	select {
	case <-w.stopCh:
		return nil, ErrWorkerStopped
	default:
	}

	req := request{ctx: ctx, cmd: cmd, reply: make(chan Result, 1)}
	select {
	case w.requests <- req:
		return req.reply, nil
	case <-w.stopCh:
		return nil, ErrWorkerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Do submits cmd and waits for its result. If ctx ends first the command may
// still run to completion on the worker, but its result is discarded.
func (w *Worker) Do(ctx context.Context, cmd Command) Result {
	reply, err := w.Submit(ctx, cmd)
	if err != nil {
		return failure(err)
	}
	select {
	case res := <-reply:
		return res
	case <-w.done:
		// A result is always sent before done closes.
		select {
		case res := <-reply:
			return res
		default:
			return failure(ErrWorkerStopped)
		}
	case <-ctx.Done():
		return failure(ctx.Err())
	}
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	defer w.release()

	w.logger.Info("Navigation worker started.")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Navigation worker context done.", zap.Error(ctx.Err()))
			return
		case <-w.stopCh:
			w.logger.Info("Navigation worker stopping.")
			return
		case id := <-w.driver.NewTabs():
			w.retarget(ctx, id)
		case req := <-w.requests:
			// Tab events that raced with this command must be applied first,
			// so a screenshot after a tab-opening click sees the new tab.
			w.drainTabs(ctx)
			select {
			case <-w.stopCh:
				req.reply <- failure(ErrWorkerStopped)
				return
			default:
			}
			req.reply <- w.execute(req.ctx, req.cmd)
		}
	}
}

func (w *Worker) drainTabs(ctx context.Context) {
	for {
		select {
		case id := <-w.driver.NewTabs():
			w.retarget(ctx, id)
		default:
			return
		}
	}
}

func (w *Worker) retarget(ctx context.Context, id TabID) {
	switchCtx, cancel := context.WithTimeout(ctx, retargetTimeout)
	defer cancel()
	if err := w.driver.SwitchTo(switchCtx, id); err != nil {
		w.logger.Warn("Failed to switch to new tab.", zap.String("tab", string(id)), zap.Error(err))
		return
	}
	w.logger.Info("Switched to new tab.", zap.String("tab", string(id)))
}

func (w *Worker) release() {
	// Reject anything still queued so no caller waits forever.
	for {
		select {
		case req := <-w.requests:
			req.reply <- failure(ErrWorkerStopped)
		default:
			if err := w.driver.Close(); err != nil {
				w.logger.Warn("Error while closing browser.", zap.Error(err))
			}
			w.logger.Info("Navigation worker released the browser.")
			return
		}
	}
}

// execute runs one command. Panics and errors both come back as a failed
// Result; nothing escapes to the caller.
func (w *Worker) execute(ctx context.Context, cmd Command) (res Result) {
	start := time.Now()
	opCtx, cancel := w.commandContext(ctx)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Panic while executing browser command.", zap.Stringer("command", cmd), zap.Any("panic", r))
			res = failure(fmt.Errorf("internal error while executing %s: %v", cmd.Kind, r))
		}
		w.metrics.ObserveCommand(string(cmd.Kind), res.OK, time.Since(start))
		if res.OK {
			w.logger.Debug("Command complete.", zap.Stringer("command", cmd), zap.Duration("duration", time.Since(start)))
		} else {
			w.logger.Warn("Command failed.", zap.Stringer("command", cmd), zap.Duration("duration", time.Since(start)), zap.Error(res.Err))
		}
	}()

	switch cmd.Kind {
	case CmdNavigate:
		return w.navigate(opCtx, cmd.Payload.URL)
	case CmdScreenshot:
		return w.screenshot(opCtx)
	case CmdScroll:
		return w.scroll(opCtx, cmd.Payload.Direction)
	case CmdClick:
		return w.click(opCtx, cmd.Payload.ElementDescription)
	case CmdType:
		return w.typeText(opCtx, cmd.Payload.Text, cmd.Payload.ElementDescription)
	case CmdClearInput:
		return w.clearInput(opCtx, cmd.Payload.ElementDescription)
	case CmdWait:
		return w.wait(opCtx, cmd.Payload.Seconds)
	case CmdCurrentURL:
		return w.currentURL(opCtx)
	default:
		return failure(fmt.Errorf("unknown command kind %q", cmd.Kind))
	}
}

func (w *Worker) commandContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if w.cfg.CommandTimeout > 0 {
		return context.WithTimeout(ctx, w.cfg.CommandTimeout)
	}
	return context.WithCancel(ctx)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
