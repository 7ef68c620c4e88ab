package planner

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/wayfinder-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const systemPrompt = `You are a web agent's planner. Your role is to decide the next action to take to achieve the user's goal.
You will be given the conversation history, the user's goal, the current page URL and a description of the current web page.

You can perform the following actions:
- NAVIGATE(url): Go to a specific URL.
- CLICK(element_description): Click on a specific element on the page.
- TYPE(text, element_description): Clear an input field, type text into it and press Enter.
- CLEAR_INPUT(element_description): Empty an input field.
- SCROLL(direction): Scroll the page "up" or "down" by one screen.
- WAIT(seconds): Pause while the page loads.
- OBSERVE(question): Ask a specific question about the current page before acting.
- ASK_USER(question): Ask the user for clarification.
- SUMMARIZE_OPTIONS(topic, options): Present a list of {title, price} options to the user and ask them to choose.
- FINISH(reason): The task is complete.

Your thought process should be:
1. What is the user's ultimate goal?
2. Based on the description of the page, what is the most logical next step to get closer to that goal? If the description is unclear, OBSERVE or ask the user for help.
3. Formulate the action as a single, well-formed JSON object.

Rules:
- If the history shows that an action just failed on the current URL, do not repeat the same action. Try a different element, scroll, or ask the user.
- Element descriptions must describe what is visible, e.g. "the blue 'Add to Cart' button".

You must respond with a single JSON object representing the action to take. For example:
{"action": "NAVIGATE", "url": "https://www.google.com"}
{"action": "CLICK", "element_description": "the 'Add to Cart' button"}
{"action": "TYPE", "text": "laptops", "element_description": "the search bar"}
{"action": "CLEAR_INPUT", "element_description": "the quantity field"}
{"action": "SCROLL", "direction": "down"}
{"action": "WAIT", "seconds": 2}
{"action": "OBSERVE", "question": "What prices are shown for the first three results?"}
{"action": "ASK_USER", "question": "Which brand of laptop are you looking for?"}
{"action": "SUMMARIZE_OPTIONS", "topic": "laptops", "options": [{"title": "Laptop A", "price": "$899"}, {"title": "Laptop B", "price": "$999"}]}
{"action": "FINISH", "reason": "The user has found the laptop they were looking for."}`

// buildUserPrompt renders one planning request.
func buildUserPrompt(req schemas.DecisionRequest) (string, error) {
	history := req.History
	if history == nil {
		history = []schemas.ConversationTurn{}
	}
	historyJSON, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal conversation history: %w", err)
	}

	currentURL := strings.TrimSpace(req.CurrentURL)
	if currentURL == "" {
		currentURL = "(unknown)"
	}

	var b strings.Builder
	if req.Goal != "" {
		fmt.Fprintf(&b, "User Goal:\n%s\n\n", req.Goal)
	}
	fmt.Fprintf(&b, "Conversation History:\n%s\n\n", historyJSON)
	fmt.Fprintf(&b, "Current URL:\n%s\n\n", currentURL)
	fmt.Fprintf(&b, "Current Page Description:\n%s\n\n", req.Observation)
	b.WriteString("Based on the conversation and the page description, what is the next logical action to take to progress towards the user's goal? ")
	b.WriteString("Do not repeat an action that just failed on the same URL. Respond with a single JSON object.")
	return b.String(), nil
}
