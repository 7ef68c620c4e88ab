package agent

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/wayfinder-cli/api/schemas"
	"github.com/xkilldash9x/wayfinder-cli/internal/browser"
)

// -- Navigator fake --

// fakeNavigator records commands and answers from per-kind handlers.
type fakeNavigator struct {
	mu       sync.Mutex
	commands []browser.Command
	handlers map[browser.CommandKind]func(browser.Command) browser.Result
	url      string
}

func newFakeNavigator() *fakeNavigator {
	return &fakeNavigator{
		url:      "https://shop.test/",
		handlers: map[browser.CommandKind]func(browser.Command) browser.Result{},
	}
}

func (f *fakeNavigator) on(kind browser.CommandKind, h func(browser.Command) browser.Result) {
	f.mu.Lock()
	f.handlers[kind] = h
	f.mu.Unlock()
}

func (f *fakeNavigator) Do(ctx context.Context, cmd browser.Command) browser.Result {
	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	h := f.handlers[cmd.Kind]
	url := f.url
	f.mu.Unlock()

	if h != nil {
		return h(cmd)
	}
	switch cmd.Kind {
	case browser.CmdScreenshot:
		return browser.Result{OK: true, Value: []byte("png")}
	case browser.CmdCurrentURL:
		return browser.Result{OK: true, Value: url}
	default:
		return browser.Result{OK: true}
	}
}

// physical returns the commands other than screenshots and URL reads.
func (f *fakeNavigator) physical() []browser.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []browser.Command
	for _, c := range f.commands {
		if c.Kind != browser.CmdScreenshot && c.Kind != browser.CmdCurrentURL {
			out = append(out, c)
		}
	}
	return out
}

// -- Decision source fake --

type decision struct {
	action schemas.Action
	err    error
}

// scriptedDecider plays back decisions in order, then finishes.
type scriptedDecider struct {
	mu       sync.Mutex
	script   []decision
	requests []schemas.DecisionRequest
}

func newScriptedDecider(script ...decision) *scriptedDecider {
	return &scriptedDecider{script: script}
}

func act(a schemas.Action) decision { return decision{action: a} }

func (d *scriptedDecider) NextAction(ctx context.Context, req schemas.DecisionRequest) (schemas.Action, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, req)
	if len(d.script) == 0 {
		return schemas.Finish{Reason: "script exhausted"}, nil
	}
	next := d.script[0]
	d.script = d.script[1:]
	return next.action, next.err
}

func (d *scriptedDecider) calls() []schemas.DecisionRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]schemas.DecisionRequest(nil), d.requests...)
}

// -- Observation builder mock --

type mockObserver struct {
	mock.Mock
}

func (m *mockObserver) Observe(ctx context.Context, shot []byte, question string) (string, error) {
	args := m.Called(ctx, shot, question)
	return args.String(0), args.Error(1)
}

// -- Human channel fake --

// recordingChannel stores events and can answer questions on the task.
type recordingChannel struct {
	mu      sync.Mutex
	events  []schemas.Event
	task    *Task
	replies []string
}

func (c *recordingChannel) Emit(ctx context.Context, ev schemas.Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	var reply string
	answer := ev.Type == schemas.EventRequestInput && len(c.replies) > 0 && c.task != nil
	if answer {
		reply, c.replies = c.replies[0], c.replies[1:]
	}
	task := c.task
	c.mu.Unlock()

	if answer {
		// The slot is already open when the question is emitted.
		if err := task.Deliver(reply); err != nil {
			panic(err)
		}
	}
}

func (c *recordingChannel) ofType(t schemas.EventType) []schemas.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []schemas.Event
	for _, ev := range c.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// -- Narrator mock --

type mockNarrator struct {
	mock.Mock
}

func (m *mockNarrator) Narrate(ctx context.Context, history []schemas.ConversationTurn, status string) (string, error) {
	args := m.Called(ctx, history, status)
	return args.String(0), args.Error(1)
}

// -- LLM client mock --

type mockLLMClient struct {
	mock.Mock
}

func (m *mockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockLLMClient) Close() error { return nil }
