// File: internal/agent/task.go
package agent

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/xkilldash9x/wayfinder-cli/api/schemas"
)

var uuidNewString = uuid.NewString

// Task is the state bound to one user goal. The loop owns History and the
// lifecycle flags; the inbound reply handler only calls Deliver.
type Task struct {
	ID        string
	Goal      string
	History   *schemas.ConversationHistory
	StartedAt time.Time

	running  atomic.Bool
	awaiting atomic.Bool

	// reply is a single-slot rendezvous between Deliver and the loop.
	reply chan string

	mu       sync.Mutex
	question string
	result   string
	done     chan struct{}
	doneOnce sync.Once
}

// NewTask creates a running task whose history starts with goal.
func NewTask(goal string) *Task {
	t := &Task{
		ID:        uuidNewString(),
		Goal:      goal,
		History:   schemas.NewConversationHistory(goal),
		StartedAt: time.Now(),
		reply:     make(chan string, 1),
		done:      make(chan struct{}),
	}
	t.running.Store(true)
	return t
}

// Running reports whether the task has not yet finished.
func (t *Task) Running() bool { return t.running.Load() }

// Awaiting reports whether the task is blocked on a human reply.
func (t *Task) Awaiting() bool { return t.awaiting.Load() }

// Done is closed when the task finishes.
func (t *Task) Done() <-chan struct{} { return t.done }

// Result returns the finish reason once the task is done.
func (t *Task) Result() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

// Deliver hands a human reply to the waiting loop.
func (t *Task) Deliver(reply string) error {
	if !t.awaiting.Load() {
		return ErrNoPendingQuestion
	}
	select {
	case t.reply <- reply:
		return nil
	default:
		return ErrReplyPending
	}
}

// beginAwait opens the reply slot for question. It runs before the question
// is emitted so a fast reply is never rejected.
func (t *Task) beginAwait(question string) {
	// Drop a reply that arrived after the previous wait ended.
	select {
	case <-t.reply:
	default:
	}
	t.mu.Lock()
	t.question = question
	t.mu.Unlock()
	t.awaiting.Store(true)
}

// waitReply blocks until a reply arrives, ctx ends, or timeout elapses. A
// zero timeout waits forever.
func (t *Task) waitReply(ctx context.Context, timeout time.Duration) (string, error) {
	defer func() {
		t.awaiting.Store(false)
		t.mu.Lock()
		t.question = ""
		t.mu.Unlock()
	}()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case r := <-t.reply:
		return r, nil
	case <-expired:
		return "", errReplyTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// finish marks the task not running. Only the first call has an effect.
func (t *Task) finish(reason string) {
	t.doneOnce.Do(func() {
		t.mu.Lock()
		t.result = reason
		t.mu.Unlock()
		t.running.Store(false)
		close(t.done)
	})
}

// TaskSnapshot is a point-in-time copy of a task for status endpoints.
type TaskSnapshot struct {
	ID              string                     `json:"id"`
	Goal            string                     `json:"goal"`
	Running         bool                       `json:"running"`
	Awaiting        bool                       `json:"awaiting_user"`
	PendingQuestion string                     `json:"pending_question,omitempty"`
	Result          string                     `json:"result,omitempty"`
	StartedAt       time.Time                  `json:"started_at"`
	History         []schemas.ConversationTurn `json:"history"`
}

// Snapshot copies the current task state.
func (t *Task) Snapshot() TaskSnapshot {
	t.mu.Lock()
	question, result := t.question, t.result
	t.mu.Unlock()
	return TaskSnapshot{
		ID:              t.ID,
		Goal:            t.Goal,
		Running:         t.Running(),
		Awaiting:        t.Awaiting(),
		PendingQuestion: question,
		Result:          result,
		StartedAt:       t.StartedAt,
		History:         t.History.Turns(),
	}
}
