// File: internal/browser/commands.go
package browser

import (
	"errors"
	"fmt"
)

// CommandKind names a browser primitive.
type CommandKind string

const (
	CmdNavigate   CommandKind = "navigate"
	CmdScreenshot CommandKind = "take_screenshot"
	CmdScroll     CommandKind = "scroll"
	CmdClick      CommandKind = "click"
	CmdType       CommandKind = "type"
	CmdClearInput CommandKind = "clear_input"
	CmdWait       CommandKind = "wait"
	CmdCurrentURL CommandKind = "current_url"
)

// Payload carries the arguments of a command. Each kind reads only the
// fields it needs.
type Payload struct {
	URL                string
	Text               string
	ElementDescription string
	Direction          string
	Seconds            string
}

// Command is a request to the navigation worker.
type Command struct {
	Kind    CommandKind
	Payload Payload
}

func (c Command) String() string {
	switch c.Kind {
	case CmdNavigate:
		return fmt.Sprintf("%s(%s)", c.Kind, c.Payload.URL)
	case CmdClick, CmdClearInput:
		return fmt.Sprintf("%s(%q)", c.Kind, c.Payload.ElementDescription)
	case CmdType:
		return fmt.Sprintf("%s(%q -> %q)", c.Kind, c.Payload.Text, c.Payload.ElementDescription)
	case CmdScroll:
		return fmt.Sprintf("%s(%s)", c.Kind, c.Payload.Direction)
	case CmdWait:
		return fmt.Sprintf("%s(%s)", c.Kind, c.Payload.Seconds)
	default:
		return string(c.Kind)
	}
}

// Constructors for each primitive.

func Navigate(url string) Command { return Command{Kind: CmdNavigate, Payload: Payload{URL: url}} }
func Screenshot() Command         { return Command{Kind: CmdScreenshot} }
func Scroll(direction string) Command {
	return Command{Kind: CmdScroll, Payload: Payload{Direction: direction}}
}
func Click(element string) Command {
	return Command{Kind: CmdClick, Payload: Payload{ElementDescription: element}}
}
func Type(text, element string) Command {
	return Command{Kind: CmdType, Payload: Payload{Text: text, ElementDescription: element}}
}
func ClearInput(element string) Command {
	return Command{Kind: CmdClearInput, Payload: Payload{ElementDescription: element}}
}
func Wait(seconds string) Command { return Command{Kind: CmdWait, Payload: Payload{Seconds: seconds}} }
func CurrentURL() Command         { return Command{Kind: CmdCurrentURL} }

// Result is the worker's answer to a Command.
type Result struct {
	OK bool
	// Value holds screenshot bytes for CmdScreenshot and a string for
	// CmdCurrentURL; it is nil otherwise.
	Value interface{}
	Err   error
}

func success(value interface{}) Result { return Result{OK: true, Value: value} }

func failure(err error) Result {
	if err == nil {
		err = errors.New("command failed")
	}
	return Result{OK: false, Err: err}
}

// Bytes returns Value as a byte slice.
func (r Result) Bytes() []byte {
	b, _ := r.Value.([]byte)
	return b
}

// String returns Value as a string.
func (r Result) String() string {
	s, _ := r.Value.(string)
	return s
}

// Reason is a human-readable explanation of a failed result.
func (r Result) Reason() string {
	if r.OK {
		return ""
	}
	if r.Err == nil {
		return "unknown error"
	}
	return r.Err.Error()
}
