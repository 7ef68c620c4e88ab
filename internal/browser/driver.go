package browser

import (
	"context"

	"github.com/xkilldash9x/wayfinder-cli/api/schemas"
)

// TabID identifies a browser tab.
type TabID string

// Key is a named, non-printable key.
type Key string

const (
	KeyEnter     Key = "Enter"
	KeyBackspace Key = "Backspace"
)

// Driver is the set of low-level operations the worker composes into
// commands. Every method acts on the active tab. A Driver is not safe for
// concurrent use: only the worker goroutine calls it.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Screenshot(ctx context.Context) ([]byte, error)
	BringToFront(ctx context.Context) error
	Viewport(ctx context.Context) (schemas.Viewport, error)
	// ScrollBy scrolls by pages viewport heights; negative values scroll up.
	ScrollBy(ctx context.Context, pages int) error
	ClickAt(ctx context.Context, x, y int) error
	TypeText(ctx context.Context, text string) error
	PressKey(ctx context.Context, key Key) error
	SelectAll(ctx context.Context) error
	// WaitSettled blocks until the document is ready and the network has
	// gone quiet, then applies a fixed settle delay.
	WaitSettled(ctx context.Context) error
	CurrentURL(ctx context.Context) (string, error)

	// NewTabs delivers tabs opened by the page itself. Sends are
	// non-blocking from the driver's side.
	NewTabs() <-chan TabID
	// SwitchTo makes id the active tab and brings it to the front.
	SwitchTo(ctx context.Context, id TabID) error

	Close() error
}

// Locator finds the pixel center of a described element in a screenshot.
type Locator interface {
	ResolvePoint(ctx context.Context, screenshot []byte, description string, vp schemas.Viewport) (x, y int, ok bool)
}
