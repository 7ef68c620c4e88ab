// File: internal/browser/chrome.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wayfinder-cli/api/schemas"
	"github.com/xkilldash9x/wayfinder-cli/internal/config"
)

const (
	domReadyTimeout = 30 * time.Second
	newTabBuffer    = 8
)

// tab is one attached chromedp target.
type tab struct {
	id     target.ID
	ctx    context.Context
	cancel context.CancelFunc
	idle   *idleTracker
}

// ChromeDriver implements Driver on a locally launched Chrome via chromedp.
type ChromeDriver struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu     sync.Mutex
	active *tab
	tabs   map[target.ID]*tab
	// seen dedupes target events delivered to both browser and tab listeners.
	seen    map[target.ID]struct{}
	newTabs chan TabID

	closeOnce sync.Once
}

var _ Driver = (*ChromeDriver)(nil)

// NewChromeDriver launches Chrome and attaches to its first tab. The browser
// lives until Close is called or ctx is canceled.
func NewChromeDriver(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*ChromeDriver, error) {
	log := logger.Named("chrome")

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocatorOptions(cfg)...)
	sugar := log.Sugar()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Debugf),
	)

	d := &ChromeDriver{
		cfg:           cfg,
		logger:        log,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		tabs:          make(map[target.ID]*tab),
		seen:          make(map[target.ID]struct{}),
		newTabs:       make(chan TabID, newTabBuffer),
	}

	// The first Run launches the browser. It must use browserCtx itself, not a
	// derived context, or cancelling the derived one would kill the browser.
	idle := newIdleTracker()
	chromedp.ListenTarget(browserCtx, idle.handle)
	chromedp.ListenTarget(browserCtx, d.onTargetEvent)
	chromedp.ListenBrowser(browserCtx, d.onTargetEvent)
	if err := chromedp.Run(browserCtx,
		network.Enable(),
		chromedp.EmulateViewport(int64(cfg.Viewport.Width), int64(cfg.Viewport.Height)),
	); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	first := &tab{id: chromedp.FromContext(browserCtx).Target.TargetID, ctx: browserCtx, idle: idle}
	d.tabs[first.id] = first
	d.seen[first.id] = struct{}{}
	d.active = first

	log.Info("Browser launched.",
		zap.Bool("headless", cfg.Headless),
		zap.Int("width", cfg.Viewport.Width),
		zap.Int("height", cfg.Viewport.Height),
	)
	return d, nil
}

func allocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.WindowSize(cfg.Viewport.Width, cfg.Viewport.Height),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.DisableGPU)
	}
	if cfg.IgnoreTLSErrors {
		opts = append(opts, chromedp.IgnoreCertErrors)
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	for _, arg := range cfg.Args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if name == "" {
			continue
		}
		if hasValue {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}
	return opts
}

// onTargetEvent runs on chromedp's event goroutine; it only records and
// forwards, never blocks.
func (d *ChromeDriver) onTargetEvent(ev interface{}) {
	created, ok := ev.(*target.EventTargetCreated)
	if !ok || created.TargetInfo == nil {
		return
	}
	info := created.TargetInfo
	if info.Type != "page" || info.OpenerID == "" {
		return
	}

	d.mu.Lock()
	if _, dup := d.seen[info.TargetID]; dup {
		d.mu.Unlock()
		return
	}
	d.seen[info.TargetID] = struct{}{}
	d.mu.Unlock()

	select {
	case d.newTabs <- TabID(info.TargetID):
		d.logger.Debug("Page opened a new tab.", zap.String("tab", string(info.TargetID)), zap.String("opener", string(info.OpenerID)))
	default:
		d.logger.Warn("Dropping new tab notification; queue is full.", zap.String("tab", string(info.TargetID)))
	}
}

// abandonTab drops a tab that could not be attached so a later event for the
// same target can retry.
func (d *ChromeDriver) abandonTab(id target.ID, cancel context.CancelFunc) {
	cancel()
	d.mu.Lock()
	delete(d.seen, id)
	d.mu.Unlock()
}

// NewTabs implements Driver.
func (d *ChromeDriver) NewTabs() <-chan TabID {
	return d.newTabs
}

// SwitchTo attaches to the tab and makes it active.
func (d *ChromeDriver) SwitchTo(ctx context.Context, id TabID) error {
	tid := target.ID(id)

	d.mu.Lock()
	existing := d.tabs[tid]
	d.mu.Unlock()

	if existing == nil {
		tabCtx, cancel := chromedp.NewContext(d.browserCtx, chromedp.WithTargetID(tid))
		idle := newIdleTracker()
		chromedp.ListenTarget(tabCtx, idle.handle)
		chromedp.ListenTarget(tabCtx, d.onTargetEvent)

		// First Run attaches; it runs on tabCtx directly for the same reason
		// as at launch. The attach is raced against ctx instead.
		attached := make(chan error, 1)
		go func() { attached <- chromedp.Run(tabCtx, network.Enable()) }()
		select {
		case err := <-attached:
			if err != nil {
				d.abandonTab(tid, cancel)
				return fmt.Errorf("failed to attach to tab %s: %w", id, err)
			}
		case <-ctx.Done():
			d.abandonTab(tid, cancel)
			return fmt.Errorf("attaching to tab %s: %w", id, ctx.Err())
		}
		existing = &tab{id: tid, ctx: tabCtx, cancel: cancel, idle: idle}
	}

	d.mu.Lock()
	d.tabs[tid] = existing
	d.active = existing
	d.mu.Unlock()

	return d.BringToFront(ctx)
}

func (d *ChromeDriver) activeTab() *tab {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

func (d *ChromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	t := d.activeTab()
	if t == nil {
		return errors.New("no active tab")
	}
	runCtx, cancel := CombineContext(t.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Navigate implements Driver.
func (d *ChromeDriver) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, d.cfg.NavigationTimeout)
	defer cancel()
	if t := d.activeTab(); t != nil {
		t.idle.reset()
	}
	return d.run(navCtx, chromedp.Navigate(url))
}

// Screenshot implements Driver.
func (d *ChromeDriver) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := d.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

// BringToFront implements Driver.
func (d *ChromeDriver) BringToFront(ctx context.Context) error {
	return d.run(ctx, page.BringToFront())
}

// Viewport reads the live inner size of the window.
func (d *ChromeDriver) Viewport(ctx context.Context) (schemas.Viewport, error) {
	var vp schemas.Viewport
	err := d.run(ctx, chromedp.Evaluate(`({width: window.innerWidth, height: window.innerHeight})`, &vp))
	return vp, err
}

// ScrollBy implements Driver.
func (d *ChromeDriver) ScrollBy(ctx context.Context, pages int) error {
	return d.run(ctx, chromedp.Evaluate(fmt.Sprintf(`window.scrollBy(0, %d * window.innerHeight)`, pages), nil))
}

// ClickAt implements Driver.
func (d *ChromeDriver) ClickAt(ctx context.Context, x, y int) error {
	return d.run(ctx, chromedp.MouseClickXY(float64(x), float64(y)))
}

// TypeText sends text as individual key events to the focused element.
func (d *ChromeDriver) TypeText(ctx context.Context, text string) error {
	return d.run(ctx, chromedp.KeyEvent(text))
}

// PressKey implements Driver.
func (d *ChromeDriver) PressKey(ctx context.Context, key Key) error {
	switch key {
	case KeyEnter:
		return d.run(ctx, chromedp.KeyEvent(kb.Enter))
	case KeyBackspace:
		return d.run(ctx, chromedp.KeyEvent(kb.Backspace))
	default:
		return fmt.Errorf("unsupported key %q", key)
	}
}

// SelectAll presses the platform select-all shortcut.
func (d *ChromeDriver) SelectAll(ctx context.Context) error {
	modifier := input.ModifierCtrl
	if runtime.GOOS == "darwin" {
		modifier = input.ModifierMeta
	}
	return d.run(ctx, chromedp.KeyEvent("a", chromedp.KeyModifiers(modifier)))
}

// WaitSettled waits for the body to be ready, then for network idle, then
// for the configured settle delay.
func (d *ChromeDriver) WaitSettled(ctx context.Context) error {
	readyCtx, cancel := context.WithTimeout(ctx, domReadyTimeout)
	err := d.run(readyCtx, chromedp.WaitReady("body", chromedp.ByQuery))
	cancel()
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	var idleErr error
	if t := d.activeTab(); t != nil && d.cfg.NetworkIdleTimeout > 0 {
		idleCtx, cancel := context.WithTimeout(ctx, d.cfg.NetworkIdleTimeout)
		idleErr = t.idle.wait(idleCtx, d.cfg.IdleQuietPeriod)
		cancel()
		if idleErr != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if err := sleepContext(ctx, d.cfg.SettleDelay); err != nil {
		return err
	}
	if err != nil {
		return fmt.Errorf("document not ready: %w", err)
	}
	if idleErr != nil {
		return fmt.Errorf("network did not go idle: %w", idleErr)
	}
	return nil
}

// CurrentURL implements Driver.
func (d *ChromeDriver) CurrentURL(ctx context.Context) (string, error) {
	var u string
	err := d.run(ctx, chromedp.Location(&u))
	return u, err
}

// Close shuts down the browser process.
func (d *ChromeDriver) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.mu.Lock()
		tabs := make([]*tab, 0, len(d.tabs))
		for _, t := range d.tabs {
			tabs = append(tabs, t)
		}
		d.mu.Unlock()
		for _, t := range tabs {
			if t.cancel != nil {
				t.cancel()
			}
		}

		err = chromedp.Cancel(d.browserCtx)
		d.browserCancel()
		d.allocCancel()
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	})
	return err
}
