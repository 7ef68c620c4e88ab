// File: internal/agent/controller.go
package agent

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// TaskRunner runs one task to completion.
type TaskRunner interface {
	Run(ctx context.Context, task *Task) error
}

// Controller admits at most one running task and routes human replies to it.
type Controller struct {
	runner TaskRunner
	ctx    context.Context
	logger *zap.Logger

	mu      sync.Mutex
	current *Task
	wg      sync.WaitGroup
}

// NewController creates a controller. Tasks run under ctx, so canceling it
// abandons the running task.
func NewController(ctx context.Context, runner TaskRunner, logger *zap.Logger) *Controller {
	return &Controller{
		runner: runner,
		ctx:    ctx,
		logger: logger.Named("controller"),
	}
}

// StartTask launches goal in the background. It fails with ErrTaskRunning
// while another task is still running.
func (c *Controller) StartTask(goal string) (*Task, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return nil, errors.New("goal must not be empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil && c.current.Running() {
		c.logger.Info("Rejected start request; a task is already running.", zap.String("running_task", c.current.ID))
		return nil, ErrTaskRunning
	}
	if err := c.ctx.Err(); err != nil {
		return nil, err
	}

	task := NewTask(goal)
	c.current = task
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.runner.Run(c.ctx, task); err != nil {
			c.logger.Info("Task ended early.", zap.String("task_id", task.ID), zap.Error(err))
		}
		// Run normally finishes the task itself; this covers runners that
		// return without doing so.
		task.finish(task.Result())
	}()
	c.logger.Info("Task accepted.", zap.String("task_id", task.ID))
	return task, nil
}

// Reply delivers a human reply to the current task.
func (c *Controller) Reply(text string) error {
	task, ok := c.Current()
	if !ok {
		return ErrNoTask
	}
	return task.Deliver(text)
}

// Current returns the most recent task, running or not.
func (c *Controller) Current() (*Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, c.current != nil
}

// Wait blocks until every task goroutine has returned.
func (c *Controller) Wait() {
	c.wg.Wait()
}
