// internal/llmutil/parser.go
package llmutil

import (
	"regexp"
	"strings"
)

var (
	// Regex definitions use \x60 (hex representation) for backticks because Go raw strings cannot contain backticks.

	// jsonBlockRegex extracts the body of a fenced block, tagged json or untagged.
	jsonBlockRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json|JSON)?\\s*(.*?)\\s*\x60\x60\x60")
)

// ExtractJSONObject pulls a JSON object out of a model reply. A fenced
// code block that contains an object wins; otherwise the text from the first
// '{' to the last '}' is used. ok is false when the reply holds no braces.
func ExtractJSONObject(response string) (string, bool) {
	response = strings.TrimSpace(response)

	for _, m := range jsonBlockRegex.FindAllStringSubmatch(response, -1) {
		if obj, ok := braceSpan(m[1]); ok {
			return obj, true
		}
	}
	return braceSpan(response)
}

func braceSpan(s string) (string, bool) {
	first := strings.Index(s, "{")
	last := strings.LastIndex(s, "}")
	if first == -1 || last == -1 || last < first {
		return "", false
	}
	return s[first : last+1], true
}

// Truncate shortens s to at most maxLen runes for logging.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	n := 0
	for i := range s {
		if n == maxLen {
			return s[:i] + "..."
		}
		n++
	}
	return s
}
