package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/wayfinder-cli/api/schemas"
	"github.com/xkilldash9x/wayfinder-cli/internal/browser"
	"github.com/xkilldash9x/wayfinder-cli/internal/config"
)

const pageDescription = "A shop landing page with a search box."

type harness struct {
	agent    *Agent
	nav      *fakeNavigator
	decider  *scriptedDecider
	observer *mockObserver
	channel  *recordingChannel
	task     *Task
}

func newHarness(t *testing.T, cfg config.AgentConfig, script ...decision) *harness {
	t.Helper()
	h := &harness{
		nav:      newFakeNavigator(),
		decider:  newScriptedDecider(script...),
		observer: new(mockObserver),
		channel:  &recordingChannel{},
		task:     NewTask("find running shoes"),
	}
	h.channel.task = h.task
	h.observer.On("Observe", mock.Anything, mock.Anything, "").Return(pageDescription, nil).Maybe()
	h.agent = New(Dependencies{
		Decider:  h.decider,
		Observer: h.observer,
		Browser:  h.nav,
		Channel:  h.channel,
	}, cfg, zaptest.NewLogger(t))
	return h
}

func (h *harness) run(t *testing.T) {
	t.Helper()
	require.NoError(t, h.agent.Run(context.Background(), h.task))
}

func (h *harness) assistantTurns() []string {
	var out []string
	for _, turn := range h.task.History.Turns() {
		if turn.Role == schemas.RoleAssistant {
			out = append(out, turn.Content)
		}
	}
	return out
}

func (h *harness) screenshots() int {
	h.nav.mu.Lock()
	defer h.nav.mu.Unlock()
	n := 0
	for _, c := range h.nav.commands {
		if c.Kind == browser.CmdScreenshot {
			n++
		}
	}
	return n
}

// -- Physical actions --

func TestRun_NavigateIssuesOneCommandAndRecordsStatus(t *testing.T) {
	h := newHarness(t, config.AgentConfig{},
		act(schemas.Navigate{URL: "https://example-shop.test"}),
		act(schemas.Finish{Reason: "done"}),
	)
	h.run(t)

	physical := h.nav.physical()
	require.Len(t, physical, 1)
	assert.Equal(t, browser.CmdNavigate, physical[0].Kind)
	assert.Equal(t, "https://example-shop.test", physical[0].Payload.URL)

	assert.Equal(t, []string{"I will navigate to https://example-shop.test."}, h.assistantTurns())
	responses := h.channel.ofType(schemas.EventResponse)
	require.NotEmpty(t, responses)
	assert.Equal(t, "I will navigate to https://example-shop.test.", responses[0].Text)
}

func TestRun_DecisionRequestCarriesGoalHistoryAndURL(t *testing.T) {
	h := newHarness(t, config.AgentConfig{},
		act(schemas.Scroll{Direction: "down"}),
		act(schemas.Finish{}),
	)
	h.run(t)

	calls := h.decider.calls()
	require.Len(t, calls, 2)
	first := calls[0]
	assert.Equal(t, "find running shoes", first.Goal)
	assert.Equal(t, "https://shop.test/", first.CurrentURL)
	assert.Equal(t, pageDescription, first.Observation)
	assert.Equal(t, []schemas.ConversationTurn{{Role: schemas.RoleUser, Content: "find running shoes"}}, first.History)

	second := calls[1]
	require.Len(t, second.History, 2)
	assert.Equal(t, "I will scroll down.", second.History[1].Content)
}

func TestRun_FailedClickIsReportedAndFedBack(t *testing.T) {
	h := newHarness(t, config.AgentConfig{},
		act(schemas.Click{ElementDescription: "Buy now"}),
		act(schemas.Finish{}),
	)
	h.nav.on(browser.CmdClick, func(browser.Command) browser.Result {
		return browser.Result{Err: errors.New("could not find 'Buy now' on the page")}
	})
	h.run(t)

	turns := h.assistantTurns()
	require.Len(t, turns, 1)
	assert.Equal(t, "I will click on 'Buy now'. (But I failed: could not find 'Buy now' on the page)", turns[0])

	calls := h.decider.calls()
	require.Len(t, calls, 2)
	assert.True(t, strings.HasPrefix(calls[1].Observation, "Previous action failed: could not find 'Buy now' on the page"))
	assert.Contains(t, calls[1].Observation, pageDescription)
}

func TestRun_MissingFieldNeverReachesBrowser(t *testing.T) {
	h := newHarness(t, config.AgentConfig{},
		act(schemas.Click{}),
		act(schemas.Finish{}),
	)
	h.run(t)

	assert.Empty(t, h.nav.physical())
	turns := h.assistantTurns()
	require.Len(t, turns, 1)
	assert.Contains(t, turns[0], "(But I failed:")
	assert.Contains(t, turns[0], "element_description")
}

func TestRun_DecodedClickWithoutTargetFailsLocally(t *testing.T) {
	incomplete := schemas.DecodeAction([]byte(`{"action":"CLICK"}`))
	h := newHarness(t, config.AgentConfig{MaxConsecutiveRetries: 3},
		act(incomplete),
		act(incomplete),
		act(incomplete),
		act(schemas.Finish{}),
	)
	h.run(t)

	assert.Empty(t, h.nav.physical())
	assert.Empty(t, h.channel.ofType(schemas.EventRequestInput), "missing fields must not count toward escalation")

	turns := h.assistantTurns()
	require.Len(t, turns, 3)
	for _, turn := range turns {
		assert.Contains(t, turn, "(But I failed:")
	}

	calls := h.decider.calls()
	require.Len(t, calls, 4)
	assert.True(t, strings.HasPrefix(calls[1].Observation, "Previous action failed:"))
}

func TestRun_NarratorRephrasesStatus(t *testing.T) {
	h := newHarness(t, config.AgentConfig{},
		act(schemas.Navigate{URL: "https://example-shop.test"}),
		act(schemas.Finish{Reason: "done"}),
	)
	narrator := new(mockNarrator)
	narrator.On("Narrate", mock.Anything, mock.Anything, "I will navigate to https://example-shop.test.").
		Return("Heading over to the shop now!", nil).Once()
	h.agent.narrator = narrator
	h.run(t)

	responses := h.channel.ofType(schemas.EventResponse)
	require.NotEmpty(t, responses)
	assert.Equal(t, "Heading over to the shop now!", responses[0].Text)
	// The transcript keeps the plain status sentence.
	assert.Equal(t, []string{"I will navigate to https://example-shop.test."}, h.assistantTurns())
	narrator.AssertExpectations(t)
}

func TestRun_NarratorFailureFallsBackToStatus(t *testing.T) {
	h := newHarness(t, config.AgentConfig{},
		act(schemas.Wait{Seconds: "2"}),
		act(schemas.Finish{Reason: "done"}),
	)
	narrator := new(mockNarrator)
	narrator.On("Narrate", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("quota exceeded"))
	h.agent.narrator = narrator
	h.run(t)

	responses := h.channel.ofType(schemas.EventResponse)
	require.NotEmpty(t, responses)
	assert.Equal(t, "I will wait for 2 seconds.", responses[0].Text)
}

// -- Conversational actions --

func TestRun_SummarizeOptionsAsksAndRecordsReply(t *testing.T) {
	h := newHarness(t, config.AgentConfig{},
		act(schemas.SummarizeOptions{Options: []schemas.Option{
			{Title: "Trail Runner", Price: "$89"},
			{Title: "Road Racer"},
		}}),
		act(schemas.Finish{Reason: "done"}),
	)
	h.channel.replies = []string{"2"}
	h.run(t)

	want := "1. Trail Runner - $89\n2. Road Racer\nWhich option would you like to choose?"
	questions := h.channel.ofType(schemas.EventRequestInput)
	require.Len(t, questions, 1)
	assert.Equal(t, want, questions[0].Text)

	turns := h.task.History.Turns()
	require.Len(t, turns, 3)
	assert.Equal(t, schemas.ConversationTurn{Role: schemas.RoleAssistant, Content: want}, turns[1])
	assert.Equal(t, schemas.ConversationTurn{Role: schemas.RoleUser, Content: "2"}, turns[2])
}

func TestRun_AskUserBlocksUntilReply(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t, config.AgentConfig{},
		act(schemas.AskUser{Question: "Which size?"}),
		act(schemas.Finish{Reason: "done"}),
	)
	errCh := make(chan error, 1)
	go func() { errCh <- h.agent.Run(context.Background(), h.task) }()

	require.Eventually(t, h.task.Awaiting, time.Second, 5*time.Millisecond)
	assert.Len(t, h.decider.calls(), 1, "no further decision while waiting for the user")
	assert.Equal(t, "Which size?", h.task.Snapshot().PendingQuestion)

	require.NoError(t, h.task.Deliver("size 10"))
	require.NoError(t, <-errCh)

	turns := h.task.History.Turns()
	require.Len(t, turns, 3)
	assert.Equal(t, "Which size?", turns[1].Content)
	assert.Equal(t, "size 10", turns[2].Content)
	assert.False(t, h.task.Awaiting())
}

func TestRun_ReplyTimeoutFinishesTask(t *testing.T) {
	h := newHarness(t, config.AgentConfig{HumanReplyTimeout: 20 * time.Millisecond},
		act(schemas.AskUser{Question: "Which size?"}),
	)
	h.run(t)

	assert.False(t, h.task.Running())
	assert.Equal(t, msgNoReply, h.task.Result())
	assert.Len(t, h.decider.calls(), 1)

	responses := h.channel.ofType(schemas.EventResponse)
	require.NotEmpty(t, responses)
	assert.Equal(t, msgNoReply, responses[len(responses)-1].Text)
	assert.Len(t, h.channel.ofType(schemas.EventTaskFinished), 1)
}

func TestRun_DecisionErrorBecomesClarification(t *testing.T) {
	h := newHarness(t, config.AgentConfig{},
		decision{err: errors.New("model unavailable")},
		act(schemas.Finish{Reason: "done"}),
	)
	h.channel.replies = []string{"look for trail shoes"}
	h.run(t)

	questions := h.channel.ofType(schemas.EventRequestInput)
	require.Len(t, questions, 1)
	assert.Equal(t, msgDecisionTrouble, questions[0].Text)

	turns := h.task.History.Turns()
	require.Len(t, turns, 3)
	assert.Equal(t, "look for trail shoes", turns[2].Content)
}

// -- Observation --

func TestRun_ObserveFeedsTargetedAnswerToNextDecision(t *testing.T) {
	h := newHarness(t, config.AgentConfig{},
		act(schemas.Observe{Question: "What is the cheapest price?"}),
		act(schemas.Finish{Reason: "done"}),
	)
	h.observer.On("Observe", mock.Anything, mock.Anything, "What is the cheapest price?").Return("The cheapest is $49.", nil).Once()
	h.run(t)

	calls := h.decider.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "The cheapest is $49.", calls[1].Observation)
	assert.Equal(t, 2, h.screenshots(), "the targeted answer replaces the next generic observation")
	assert.Empty(t, h.assistantTurns())
}

func TestRun_ScreenshotFailureBecomesObservationText(t *testing.T) {
	h := newHarness(t, config.AgentConfig{}, act(schemas.Finish{Reason: "done"}))
	h.nav.on(browser.CmdScreenshot, func(browser.Command) browser.Result {
		return browser.Result{Err: errors.New("tab crashed")}
	})
	h.run(t)

	calls := h.decider.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Could not capture the page: tab crashed", calls[0].Observation)
	h.observer.AssertNotCalled(t, "Observe", mock.Anything, mock.Anything, mock.Anything)
}

// -- Retry handling --

func TestRun_RepeatedRetriesEscalateOnce(t *testing.T) {
	h := newHarness(t, config.AgentConfig{MaxConsecutiveRetries: 3},
		act(schemas.Retry{Reason: "no JSON"}),
		act(schemas.Retry{Reason: "no JSON"}),
		act(schemas.Retry{Reason: "no JSON"}),
		act(schemas.Finish{Reason: "done"}),
	)
	h.channel.replies = []string{"use the search box"}
	h.run(t)

	questions := h.channel.ofType(schemas.EventRequestInput)
	require.Len(t, questions, 1)
	assert.Equal(t, msgEscalation, questions[0].Text)

	calls := h.decider.calls()
	require.Len(t, calls, 4)
	// Retries below the limit reuse the same observation.
	assert.Equal(t, 2, h.screenshots())

	turns := h.task.History.Turns()
	last := turns[len(turns)-1]
	assert.Equal(t, schemas.ConversationTurn{Role: schemas.RoleUser, Content: "use the search box"}, last)
	assert.Equal(t, "use the search box", calls[3].History[len(calls[3].History)-1].Content)
}

func TestRun_UsableDecisionResetsRetryCount(t *testing.T) {
	h := newHarness(t, config.AgentConfig{MaxConsecutiveRetries: 3},
		act(schemas.Retry{}),
		act(schemas.Retry{}),
		act(schemas.Scroll{Direction: "down"}),
		act(schemas.Retry{}),
		act(schemas.Retry{}),
		act(schemas.Finish{Reason: "done"}),
	)
	h.run(t)

	assert.Empty(t, h.channel.ofType(schemas.EventRequestInput))
	assert.Len(t, h.decider.calls(), 6)
}

// -- Termination --

func TestRun_FinishEndsTaskWithSingleEvent(t *testing.T) {
	h := newHarness(t, config.AgentConfig{}, act(schemas.Finish{Reason: "Found the shoes."}))
	h.run(t)

	assert.False(t, h.task.Running())
	assert.Equal(t, "Found the shoes.", h.task.Result())
	assert.Empty(t, h.nav.physical())

	finished := h.channel.ofType(schemas.EventTaskFinished)
	require.Len(t, finished, 1)
	assert.Equal(t, h.task.ID, finished[0].TaskID)

	responses := h.channel.ofType(schemas.EventResponse)
	require.Len(t, responses, 1)
	assert.Equal(t, "Found the shoes.", responses[0].Text)

	select {
	case <-h.task.Done():
	default:
		t.Fatal("Done channel should be closed")
	}
}

func TestRun_FinishWithoutReasonSaysComplete(t *testing.T) {
	h := newHarness(t, config.AgentConfig{}, act(schemas.Finish{}))
	h.run(t)

	responses := h.channel.ofType(schemas.EventResponse)
	require.Len(t, responses, 1)
	assert.Equal(t, msgTaskComplete, responses[0].Text)
}

func TestRun_ContextCancelAbandonsTask(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t, config.AgentConfig{},
		act(schemas.AskUser{Question: "Which size?"}),
	)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- h.agent.Run(ctx, h.task) }()

	require.Eventually(t, h.task.Awaiting, time.Second, 5*time.Millisecond)
	cancel()

	err := <-errCh
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, h.task.Running())
	assert.Len(t, h.channel.ofType(schemas.EventTaskFinished), 1)
}

func TestRun_CancelledContextStopsBeforeDeciding(t *testing.T) {
	h := newHarness(t, config.AgentConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.agent.Run(ctx, h.task)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.decider.calls())
	assert.Len(t, h.channel.ofType(schemas.EventTaskFinished), 1)
}

func TestRun_EmptyDecisionIsReported(t *testing.T) {
	h := newHarness(t, config.AgentConfig{},
		act(nil),
		act(schemas.Finish{Reason: "done"}),
	)
	h.run(t)

	turns := h.assistantTurns()
	require.Len(t, turns, 1)
	assert.Contains(t, turns[0], "I'm not sure how to do that yet")
}

func TestRun_PanicFailsTask(t *testing.T) {
	h := newHarness(t, config.AgentConfig{})
	h.observer.ExpectedCalls = nil
	h.observer.On("Observe", mock.Anything, mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		panic("vision exploded")
	})

	require.NoError(t, h.agent.Run(context.Background(), h.task))
	assert.False(t, h.task.Running())
	assert.Contains(t, h.task.Result(), "internal error")
	assert.Len(t, h.channel.ofType(schemas.EventTaskFinished), 1)
}

func TestRun_NilChannelIsAllowed(t *testing.T) {
	h := newHarness(t, config.AgentConfig{}, act(schemas.Finish{Reason: "done"}))
	h.agent.channel = nil
	h.run(t)
	assert.Equal(t, "done", h.task.Result())
}
