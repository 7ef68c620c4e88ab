package vision

import (
	"fmt"
	"strings"
)

const describePrompt = "Describe the main elements on this webpage. Include buttons, input fields, and links. Be concise and use bullet points."

func locatePrompt(description string) string {
	return fmt.Sprintf("Give the exact bounding box of the %s with absolute pixel coordinates in the format [x1,y1,x2,y2].", description)
}

// assistantMarker precedes the model's answer in chat-templated output.
const assistantMarker = "assistant\n"

// stripChatTemplate drops any echoed prompt that precedes the final
// assistant turn.
func stripChatTemplate(raw string) string {
	if idx := strings.LastIndex(raw, assistantMarker); idx >= 0 {
		raw = raw[idx+len(assistantMarker):]
	}
	return strings.TrimSpace(raw)
}
