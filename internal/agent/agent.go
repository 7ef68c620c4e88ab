package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wayfinder-cli/api/schemas"
	"github.com/xkilldash9x/wayfinder-cli/internal/browser"
	"github.com/xkilldash9x/wayfinder-cli/internal/config"
	"github.com/xkilldash9x/wayfinder-cli/internal/observability"
)

const defaultMaxRetries = 3

// Dependencies are the collaborators of the agent loop. Narrator and Metrics
// are optional.
type Dependencies struct {
	Decider  schemas.DecisionSource
	Observer ObservationBuilder
	Browser  Navigator
	Channel  schemas.HumanChannel
	Narrator Narrator
	Metrics  *observability.Metrics
}

// Agent runs the observe, decide, execute loop for one task at a time.
type Agent struct {
	decider  schemas.DecisionSource
	observer ObservationBuilder
	nav      Navigator
	channel  schemas.HumanChannel
	narrator Narrator
	metrics  *observability.Metrics
	cfg      config.AgentConfig
	logger   *zap.Logger
}

// New creates an agent loop.
func New(deps Dependencies, cfg config.AgentConfig, logger *zap.Logger) *Agent {
	if cfg.MaxConsecutiveRetries <= 0 {
		cfg.MaxConsecutiveRetries = defaultMaxRetries
	}
	return &Agent{
		decider:  deps.Decider,
		observer: deps.Observer,
		nav:      deps.Browser,
		channel:  deps.Channel,
		narrator: deps.Narrator,
		metrics:  deps.Metrics,
		cfg:      cfg,
		logger:   logger.Named("agent"),
	}
}

// loopState is what survives between iterations besides the history.
type loopState struct {
	// cached holds an observation to use instead of a fresh one.
	cached    string
	hasCached bool
	retries   int
}

func (s *loopState) cache(obs string) {
	s.cached = obs
	s.hasCached = true
}

// Run drives task until FINISH, a human-wait timeout, or ctx ending. It always
// marks the task finished and emits exactly one task_finished event. The only
// error it returns is ctx's.
func (a *Agent) Run(ctx context.Context, task *Task) (err error) {
	logger := a.logger.With(zap.String("task_id", task.ID))
	logger.Info("Task started.", zap.String("goal", task.Goal))
	a.metrics.TaskStarted()

	outcome, reason := "finished", ""
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in agent loop.", zap.Any("panic", r))
			outcome, reason = "failed", fmt.Sprintf("internal error: %v", r)
			err = nil
		}
		if err != nil {
			outcome, reason = "abandoned", err.Error()
		}
		task.finish(reason)
		a.metrics.TaskEnded(outcome)
		a.emit(context.WithoutCancel(ctx), task, schemas.EventTaskFinished, reason)
		logger.Info("Task ended.", zap.String("outcome", outcome), zap.String("reason", reason))
	}()

	state := &loopState{}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		observation := state.cached
		if !state.hasCached {
			observation = a.observe(ctx, task, "")
		}
		state.hasCached = false

		action := a.decide(ctx, task, observation)
		if _, isRetry := action.(schemas.Retry); !isRetry {
			state.retries = 0
		}
		kind := "none"
		if action != nil {
			kind = string(action.Kind())
		}
		a.metrics.ObserveDecision(kind)

		switch act := action.(type) {
		case schemas.Retry:
			state.retries++
			logger.Warn("Unusable decision.", zap.String("reason", act.Reason), zap.Int("consecutive", state.retries))
			if state.retries < a.cfg.MaxConsecutiveRetries {
				state.cache(observation)
				continue
			}
			state.retries = 0
			a.metrics.IncEscalations()
			logger.Info("Escalating to the user after repeated unusable decisions.")
			reply, err := a.ask(ctx, task, msgEscalation)
			if done, r, err := a.handleWaitError(err); done {
				reason = r
				if err == nil {
					a.say(ctx, task, msgNoReply)
				}
				return err
			}
			task.History.Append(schemas.RoleUser, reply)

		case schemas.Observe:
			state.cache(a.observe(ctx, task, act.Question))

		case schemas.AskUser:
			if done, r, err := a.converse(ctx, task, act.Question); done {
				reason = r
				return err
			}

		case schemas.SummarizeOptions:
			if done, r, err := a.converse(ctx, task, formatOptions(act)); done {
				reason = r
				return err
			}

		case schemas.Finish:
			reason = act.Reason
			text := act.Reason
			if text == "" {
				text = msgTaskComplete
			}
			a.say(ctx, task, text)
			return nil

		case schemas.Navigate, schemas.Click, schemas.TypeText, schemas.ClearInput, schemas.Scroll, schemas.Wait:
			if failure, failed := a.execute(ctx, task, act); failed {
				state.cache(failedObservation(failure, a.observe(ctx, task, "")))
			}

		default:
			sentence := unknownActionSentence(action)
			logger.Warn("Decision has no handler.", zap.String("kind", kind))
			task.History.Append(schemas.RoleAssistant, sentence)
			a.say(ctx, task, sentence)
		}
	}
}

// observe captures the page and describes it. Failures become observation
// text so the planner can react to them.
func (a *Agent) observe(ctx context.Context, task *Task, question string) string {
	res := a.nav.Do(ctx, browser.Screenshot())
	var text string
	switch {
	case !res.OK:
		text = fmt.Sprintf("Could not capture the page: %s", res.Reason())
	default:
		desc, err := a.observer.Observe(ctx, res.Bytes(), question)
		if err != nil {
			a.logger.Warn("Observation failed.", zap.Error(err))
			text = fmt.Sprintf("Could not describe the page: %v", err)
		} else {
			text = desc
		}
	}
	a.emit(ctx, task, schemas.EventObservation, text)
	return text
}

// decide asks the decision source for one action. A source error becomes a
// clarification question.
func (a *Agent) decide(ctx context.Context, task *Task, observation string) schemas.Action {
	req := schemas.DecisionRequest{
		Goal:        task.Goal,
		History:     task.History.Turns(),
		Observation: observation,
		CurrentURL:  a.currentURL(ctx),
	}

	decideCtx := ctx
	if a.cfg.DecisionTimeout > 0 {
		var cancel context.CancelFunc
		decideCtx, cancel = context.WithTimeout(ctx, a.cfg.DecisionTimeout)
		defer cancel()
	}

	start := time.Now()
	action, err := a.decider.NextAction(decideCtx, req)
	if err != nil {
		a.logger.Warn("Decision source failed; asking the user for clarification.", zap.Error(err))
		return schemas.AskUser{Question: msgDecisionTrouble}
	}
	if action != nil {
		a.logger.Debug("Decision received.", zap.String("kind", string(action.Kind())), zap.Duration("duration", time.Since(start)))
	}
	return action
}

func (a *Agent) currentURL(ctx context.Context) string {
	res := a.nav.Do(ctx, browser.CurrentURL())
	if !res.OK {
		a.logger.Debug("Current URL unavailable.", zap.String("reason", res.Reason()))
		return ""
	}
	return res.String()
}

// execute runs one physical action and records its status line. It returns
// the failure reason when the action did not succeed.
func (a *Agent) execute(ctx context.Context, task *Task, action schemas.Action) (string, bool) {
	status := statusSentence(action)

	var res browser.Result
	if err := action.Validate(); err != nil {
		res = browser.Result{Err: err}
	} else if cmd, ok := commandFor(action); ok {
		res = a.nav.Do(ctx, cmd)
	} else {
		res = browser.Result{Err: fmt.Errorf("%s has no browser command", action.Kind())}
	}

	if !res.OK {
		status = withFailure(status, res.Reason())
		a.logger.Info("Action failed.", zap.String("kind", string(action.Kind())), zap.String("reason", res.Reason()))
	}
	task.History.Append(schemas.RoleAssistant, status)
	a.respond(ctx, task, status)

	if !res.OK {
		return res.Reason(), true
	}
	return "", false
}

// converse asks a question, then records it and the reply. done is true when
// the task must end.
func (a *Agent) converse(ctx context.Context, task *Task, question string) (bool, string, error) {
	reply, err := a.ask(ctx, task, question)
	if done, reason, err := a.handleWaitError(err); done {
		if err == nil {
			a.say(ctx, task, msgNoReply)
		}
		return true, reason, err
	}
	task.History.Append(schemas.RoleAssistant, question)
	task.History.Append(schemas.RoleUser, reply)
	return false, "", nil
}

func (a *Agent) ask(ctx context.Context, task *Task, question string) (string, error) {
	task.beginAwait(question)
	a.emit(ctx, task, schemas.EventRequestInput, question)
	a.logger.Debug("Waiting for the user.", zap.String("task_id", task.ID))
	reply, err := task.waitReply(ctx, a.cfg.HumanReplyTimeout)
	if err == nil {
		a.logger.Debug("User replied.", zap.String("task_id", task.ID))
	}
	return reply, err
}

// handleWaitError maps a human-wait error onto loop termination. A timeout
// finishes the task normally; a context error is returned as is.
func (a *Agent) handleWaitError(err error) (done bool, reason string, ret error) {
	switch {
	case err == nil:
		return false, "", nil
	case errors.Is(err, errReplyTimeout):
		a.logger.Info("No reply from the user; finishing the task.", zap.Duration("timeout", a.cfg.HumanReplyTimeout))
		return true, msgNoReply, nil
	default:
		return true, "", err
	}
}

// respond relays a status line, narrated when a narrator is configured.
func (a *Agent) respond(ctx context.Context, task *Task, status string) {
	text := status
	if a.narrator != nil {
		narrated, err := a.narrator.Narrate(ctx, task.History.Turns(), status)
		switch {
		case err != nil:
			a.logger.Debug("Narrator failed; using the status sentence.", zap.Error(err))
		case narrated != "":
			text = narrated
		}
	}
	a.say(ctx, task, text)
}

func (a *Agent) say(ctx context.Context, task *Task, text string) {
	a.emit(ctx, task, schemas.EventResponse, text)
}

func (a *Agent) emit(ctx context.Context, task *Task, typ schemas.EventType, text string) {
	if a.channel == nil {
		return
	}
	a.channel.Emit(ctx, schemas.Event{Type: typ, TaskID: task.ID, Text: text})
}
