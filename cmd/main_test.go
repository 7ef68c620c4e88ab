// File: cmd/main_test.go
package cmd

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wayfinder-cli/api/schemas"
	"github.com/xkilldash9x/wayfinder-cli/internal/browser"
	"github.com/xkilldash9x/wayfinder-cli/internal/config"
	"github.com/xkilldash9x/wayfinder-cli/internal/observability"
)

// resetForTest restores package state and swaps the external collaborators
// for in-memory fakes.
func resetForTest(t *testing.T, llm *scriptedLLM) *stubDriver {
	t.Helper()

	cfgFile = ""
	observability.ResetForTest()

	driver := &stubDriver{}
	origDriver, origLLM, origVision := newDriver, newLLMClient, newVisionClient
	newDriver = func(context.Context, config.BrowserConfig, *zap.Logger) (browser.Driver, error) {
		return driver, nil
	}
	newLLMClient = func(context.Context, config.LLMRouterConfig, *zap.Logger) (schemas.LLMClient, error) {
		return llm, nil
	}
	newVisionClient = func(context.Context, config.LLMRouterConfig, string, *zap.Logger) (schemas.LLMClient, error) {
		return llm, nil
	}
	t.Cleanup(func() {
		newDriver, newLLMClient, newVisionClient = origDriver, origLLM, origVision
		cfgFile = ""
		observability.ResetForTest()
	})
	return driver
}

// writeConfig writes a config file that keeps logging quiet and routes
// vision through the LLM client.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "logger:\n  level: error\n" +
		"vision:\n  provider: llm\n" +
		"llm:\n  models:\n    gemini-flash:\n      api_key: test-key\n    gemini-pro:\n      api_key: test-key\n" +
		extra
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func executeCommand(t *testing.T, cmd *cobra.Command, stdin string, args ...string) (string, error) {
	t.Helper()
	out := &syncBuffer{}
	err := executeCommandIO(cmd, newStringReader(stdin), out, args...)
	return out.String(), err
}

func executeCommandIO(cmd *cobra.Command, in io.Reader, out io.Writer, args ...string) error {
	return executeCommandContext(context.Background(), cmd, in, out, args...)
}

func executeCommandContext(ctx context.Context, cmd *cobra.Command, in io.Reader, out io.Writer, args ...string) error {
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetIn(in)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

// -- Fakes --

// stubDriver answers every primitive successfully.
type stubDriver struct {
	mu     sync.Mutex
	calls  []string
	closed bool
}

func (d *stubDriver) record(name string) {
	d.mu.Lock()
	d.calls = append(d.calls, name)
	d.mu.Unlock()
}

func (d *stubDriver) Navigate(_ context.Context, url string) error { d.record("navigate:" + url); return nil }
func (d *stubDriver) Screenshot(context.Context) ([]byte, error) {
	d.record("screenshot")
	return []byte("\x89PNG\r\n\x1a\n"), nil
}
func (d *stubDriver) BringToFront(context.Context) error { return nil }
func (d *stubDriver) Viewport(context.Context) (schemas.Viewport, error) {
	return schemas.Viewport{Width: 1280, Height: 900}, nil
}
func (d *stubDriver) ScrollBy(context.Context, int) error { return nil }
func (d *stubDriver) ClickAt(context.Context, int, int) error { return nil }
func (d *stubDriver) TypeText(context.Context, string) error { return nil }
func (d *stubDriver) PressKey(context.Context, browser.Key) error { return nil }
func (d *stubDriver) SelectAll(context.Context) error { return nil }
func (d *stubDriver) WaitSettled(context.Context) error { return nil }
func (d *stubDriver) CurrentURL(context.Context) (string, error) { return "https://shop.test/", nil }
func (d *stubDriver) NewTabs() <-chan browser.TabID { return nil }
func (d *stubDriver) SwitchTo(context.Context, browser.TabID) error { return nil }

func (d *stubDriver) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func (d *stubDriver) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *stubDriver) navigations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, c := range d.calls {
		if len(c) > len("navigate:") && c[:len("navigate:")] == "navigate:" {
			out = append(out, c[len("navigate:"):])
		}
	}
	return out
}

// scriptedLLM answers image prompts with a page description and plays back
// planner decisions in order.
type scriptedLLM struct {
	mu        sync.Mutex
	decisions []string
	tiers     []schemas.ModelTier
	closed    int
}

func (l *scriptedLLM) Generate(_ context.Context, req schemas.GenerationRequest) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(req.Image) > 0 {
		return "A shop page with a search box.", nil
	}
	l.tiers = append(l.tiers, req.Tier)
	if len(l.decisions) == 0 {
		return `{"action":"FINISH","reason":"Nothing left to do."}`, nil
	}
	next := l.decisions[0]
	l.decisions = l.decisions[1:]
	return next, nil
}

func (l *scriptedLLM) Close() error {
	l.mu.Lock()
	l.closed++
	l.mu.Unlock()
	return nil
}
