// internal/agent/errors.go
package agent

import "errors"

var (
	// ErrTaskRunning rejects a start request while another task is active.
	ErrTaskRunning = errors.New("a task is already running")
	// ErrNoPendingQuestion rejects a reply when the task is not waiting for one.
	ErrNoPendingQuestion = errors.New("no question is awaiting a reply")
	// ErrReplyPending rejects a second reply before the first is consumed.
	ErrReplyPending = errors.New("a reply is already pending")
	// ErrNoTask is returned by Reply when no task was ever started.
	ErrNoTask = errors.New("no task has been started")

	// errReplyTimeout ends a human wait once agent.human_reply_timeout elapses.
	errReplyTimeout = errors.New("timed out waiting for a reply")
)

// User-facing messages.
const (
	// MsgTaskAlreadyRunning is sent to a client whose start request was rejected.
	MsgTaskAlreadyRunning = "A task is already running. Please wait for it to finish."

	msgDecisionTrouble = "I'm having trouble deciding what to do next. The page description might be unclear. Can you please clarify your goal?"
	msgEscalation      = "I'm stuck and keep producing decisions I can't act on. Could you tell me what I should do next?"
	msgNoReply         = "No reply from user"
	msgTaskComplete    = "Task complete."
)
