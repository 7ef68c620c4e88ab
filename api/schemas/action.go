package schemas

import (
	"fmt"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ActionKind is the discriminant of an Action.
type ActionKind string

const (
	KindNavigate         ActionKind = "NAVIGATE"
	KindClick            ActionKind = "CLICK"
	KindType             ActionKind = "TYPE"
	KindClearInput       ActionKind = "CLEAR_INPUT"
	KindScroll           ActionKind = "SCROLL"
	KindWait             ActionKind = "WAIT"
	KindObserve          ActionKind = "OBSERVE"
	KindAskUser          ActionKind = "ASK_USER"
	KindSummarizeOptions ActionKind = "SUMMARIZE_OPTIONS"
	KindFinish           ActionKind = "FINISH"
	KindRetry            ActionKind = "RETRY"
)

// Action is a planner decision. The set of variants is closed: only the types
// declared in this file implement it.
type Action interface {
	Kind() ActionKind
	// Validate reports a missing or empty required field.
	Validate() error

	sealed()
}

// Physical reports whether an action drives the browser.
func Physical(a Action) bool {
	switch a.(type) {
	case Navigate, Click, TypeText, ClearInput, Scroll, Wait:
		return true
	}
	return false
}

// -- Variants --

// Navigate loads a URL in the active page.
type Navigate struct {
	URL string `json:"url"`
}

// Click presses the element matching a natural-language description.
type Click struct {
	ElementDescription string `json:"element_description"`
}

// TypeText clears the described field, types Text, and submits with Enter.
type TypeText struct {
	Text               string `json:"text"`
	ElementDescription string `json:"element_description"`
}

// ClearInput empties the described field.
type ClearInput struct {
	ElementDescription string `json:"element_description"`
}

// Scroll moves the page one viewport height. Direction is "up" or "down";
// any other value is accepted and executes as a no-op.
type Scroll struct {
	Direction string `json:"direction"`
}

// Wait pauses for a number of seconds. Seconds is kept as received so that a
// non-numeric value can fall back to a default delay at execution time.
type Wait struct {
	Seconds string `json:"seconds,omitempty"`
}

// Observe asks the image-understanding service a targeted question about the
// current page. An empty Question produces a generic description.
type Observe struct {
	Question string `json:"question,omitempty"`
}

// AskUser hands a question to the human.
type AskUser struct {
	Question string `json:"question"`
}

// Option is one choice presented to the human by SummarizeOptions.
type Option struct {
	Title string `json:"title"`
	Price string `json:"price"`
}

// SummarizeOptions presents a numbered list of choices to the human.
type SummarizeOptions struct {
	Topic   string   `json:"topic,omitempty"`
	Options []Option `json:"options"`
}

// Finish ends the task.
type Finish struct {
	Reason string `json:"reason"`
}

// Retry stands in for a decision that could not be used. Reason explains why
// and is only ever logged.
type Retry struct {
	Reason string `json:"reason,omitempty"`
}

func (Navigate) Kind() ActionKind         { return KindNavigate }
func (Click) Kind() ActionKind            { return KindClick }
func (TypeText) Kind() ActionKind         { return KindType }
func (ClearInput) Kind() ActionKind       { return KindClearInput }
func (Scroll) Kind() ActionKind           { return KindScroll }
func (Wait) Kind() ActionKind             { return KindWait }
func (Observe) Kind() ActionKind          { return KindObserve }
func (AskUser) Kind() ActionKind          { return KindAskUser }
func (SummarizeOptions) Kind() ActionKind { return KindSummarizeOptions }
func (Finish) Kind() ActionKind           { return KindFinish }
func (Retry) Kind() ActionKind            { return KindRetry }

func (Navigate) sealed()         {}
func (Click) sealed()            {}
func (TypeText) sealed()         {}
func (ClearInput) sealed()       {}
func (Scroll) sealed()           {}
func (Wait) sealed()             {}
func (Observe) sealed()          {}
func (AskUser) sealed()          {}
func (SummarizeOptions) sealed() {}
func (Finish) sealed()           {}
func (Retry) sealed()            {}

// MissingFieldError names the required field an action lacks.
type MissingFieldError struct {
	Kind  ActionKind
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s action is missing required field '%s'", e.Kind, e.Field)
}

func requireField(kind ActionKind, field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &MissingFieldError{Kind: kind, Field: field}
	}
	return nil
}

func (a Navigate) Validate() error { return requireField(KindNavigate, "url", a.URL) }
func (a Click) Validate() error {
	return requireField(KindClick, "element_description", a.ElementDescription)
}
func (a TypeText) Validate() error {
	if err := requireField(KindType, "text", a.Text); err != nil {
		return err
	}
	return requireField(KindType, "element_description", a.ElementDescription)
}
func (a ClearInput) Validate() error {
	return requireField(KindClearInput, "element_description", a.ElementDescription)
}
func (a Scroll) Validate() error  { return requireField(KindScroll, "direction", a.Direction) }
func (Wait) Validate() error      { return nil }
func (Observe) Validate() error   { return nil }
func (a AskUser) Validate() error { return requireField(KindAskUser, "question", a.Question) }
func (a SummarizeOptions) Validate() error {
	if len(a.Options) == 0 {
		return &MissingFieldError{Kind: KindSummarizeOptions, Field: "options"}
	}
	for i, o := range a.Options {
		if strings.TrimSpace(o.Title) == "" {
			return &MissingFieldError{Kind: KindSummarizeOptions, Field: fmt.Sprintf("options[%d].title", i)}
		}
	}
	return nil
}
func (Finish) Validate() error { return nil }
func (Retry) Validate() error  { return nil }

// -- Decoding --

// wireAction is the flat JSON shape produced by the planner.
type wireAction struct {
	Action             string      `json:"action"`
	URL                string      `json:"url"`
	ElementDescription string      `json:"element_description"`
	Text               string      `json:"text"`
	Direction          string      `json:"direction"`
	Seconds            interface{} `json:"seconds"`
	Question           string      `json:"question"`
	Topic              string      `json:"topic"`
	Options            []Option    `json:"options"`
	Reason             string      `json:"reason"`
}

// DecodeAction turns a JSON object into an Action. It never fails: non-JSON
// input, unknown kinds and incomplete conversational actions come back as
// Retry. A physical action keeps its variant even when a field is missing so
// the caller can fail it locally.
func DecodeAction(data []byte) Action {
	var w wireAction
	if err := json.Unmarshal(data, &w); err != nil {
		return Retry{Reason: fmt.Sprintf("decision is not a valid JSON object: %v", err)}
	}

	var a Action
	switch ActionKind(strings.ToUpper(strings.TrimSpace(w.Action))) {
	case KindNavigate:
		a = Navigate{URL: strings.TrimSpace(w.URL)}
	case KindClick:
		a = Click{ElementDescription: w.ElementDescription}
	case KindType:
		a = TypeText{Text: w.Text, ElementDescription: w.ElementDescription}
	case KindClearInput:
		a = ClearInput{ElementDescription: w.ElementDescription}
	case KindScroll:
		a = Scroll{Direction: w.Direction}
	case KindWait:
		a = Wait{Seconds: secondsString(w.Seconds)}
	case KindObserve:
		a = Observe{Question: w.Question}
	case KindAskUser:
		a = AskUser{Question: w.Question}
	case KindSummarizeOptions:
		a = SummarizeOptions{Topic: w.Topic, Options: w.Options}
	case KindFinish:
		a = Finish{Reason: w.Reason}
	case KindRetry:
		return Retry{Reason: w.Reason}
	case "":
		return Retry{Reason: "decision has no 'action' field"}
	default:
		return Retry{Reason: fmt.Sprintf("unknown action kind %q", w.Action)}
	}

	if Physical(a) {
		return a
	}
	if err := a.Validate(); err != nil {
		return Retry{Reason: err.Error()}
	}
	return a
}

func secondsString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprint(s)
	}
}

// EncodeAction renders an action in the same flat shape DecodeAction accepts.
func EncodeAction(a Action) ([]byte, error) {
	fields := map[string]interface{}{}
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s action: %w", a.Kind(), err)
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to flatten %s action: %w", a.Kind(), err)
	}
	fields["action"] = string(a.Kind())
	return json.Marshal(fields)
}
