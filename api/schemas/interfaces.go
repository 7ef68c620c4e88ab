package schemas

import (
	"context"
)

// -- Decision Source --

// DecisionRequest carries everything the planner sees on one iteration.
type DecisionRequest struct {
	Goal        string             `json:"goal"`
	History     []ConversationTurn `json:"history"`
	Observation string             `json:"observation"`
	// CurrentURL lets the planner avoid repeating an action that just failed
	// on the same page. Empty when the page URL could not be read.
	CurrentURL string `json:"current_url,omitempty"`
}

// DecisionSource returns the next action for a task. Implementations should
// normalize unusable output to Retry themselves; a returned error means the
// source could not be reached at all.
type DecisionSource interface {
	NextAction(ctx context.Context, req DecisionRequest) (Action, error)
}

// -- Image Understanding --

// ImageUnderstanding answers questions about a screenshot.
type ImageUnderstanding interface {
	// Describe returns free text about the page. An empty question yields a
	// generic list of the actionable elements.
	Describe(ctx context.Context, image []byte, question string) (string, error)
	// Locate returns the normalized bounding box of the described element.
	Locate(ctx context.Context, image []byte, description string) (BoundingBox, error)
}

// VisionModel is a raw prompt-plus-image model endpoint.
type VisionModel interface {
	Infer(ctx context.Context, image []byte, prompt string) (string, error)
}

// -- Human Channel --

// EventType names an outbound event sent to the human.
type EventType string

const (
	EventObservation  EventType = "observation"
	EventResponse     EventType = "response"
	EventRequestInput EventType = "request_input"
	EventTaskFinished EventType = "task_finished"
)

// Event is one message to the human.
type Event struct {
	Type   EventType `json:"type"`
	TaskID string    `json:"task_id,omitempty"`
	Text   string    `json:"text,omitempty"`
}

// HumanChannel relays outbound events to whoever is supervising the task.
// Emit must not block on a slow reader.
type HumanChannel interface {
	Emit(ctx context.Context, ev Event)
}

// -- LLM Client Interface --

// ModelTier allows for selecting a large language model based on a preference
// for speed versus advanced capabilities.
type ModelTier string

const (
	TierFast     ModelTier = "fast"     // Prefers a faster, potentially less capable model.
	TierPowerful ModelTier = "powerful" // Prefers a more capable, potentially slower model.
)

// GenerationOptions controls sampling and output format.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`
	ForceJSONFormat bool    `json:"force_json_format"`
	TopP            float64 `json:"top_p"`
	TopK            int     `json:"top_k"`
}

// GenerationRequest is a complete request to the LLM. Image is optional and
// only honored by multimodal providers.
type GenerationRequest struct {
	SystemPrompt  string            `json:"system_prompt"`
	UserPrompt    string            `json:"user_prompt"`
	Tier          ModelTier         `json:"tier"`
	Options       GenerationOptions `json:"options"`
	Image         []byte            `json:"-"`
	ImageMIMEType string            `json:"-"`
}

// LLMClient is a provider-neutral text generation client.
type LLMClient interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	Close() error
}
