package agent

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/wayfinder-cli/api/schemas"
	"github.com/xkilldash9x/wayfinder-cli/internal/browser"
)

// commandFor maps a physical action onto its worker command.
func commandFor(a schemas.Action) (browser.Command, bool) {
	switch act := a.(type) {
	case schemas.Navigate:
		return browser.Navigate(act.URL), true
	case schemas.Click:
		return browser.Click(act.ElementDescription), true
	case schemas.TypeText:
		return browser.Type(act.Text, act.ElementDescription), true
	case schemas.ClearInput:
		return browser.ClearInput(act.ElementDescription), true
	case schemas.Scroll:
		return browser.Scroll(act.Direction), true
	case schemas.Wait:
		return browser.Wait(act.Seconds), true
	}
	return browser.Command{}, false
}

// statusSentence describes a physical action in the first person.
func statusSentence(a schemas.Action) string {
	switch act := a.(type) {
	case schemas.Navigate:
		return fmt.Sprintf("I will navigate to %s.", act.URL)
	case schemas.Click:
		return fmt.Sprintf("I will click on '%s'.", act.ElementDescription)
	case schemas.TypeText:
		return fmt.Sprintf("I will type '%s' into '%s'.", act.Text, act.ElementDescription)
	case schemas.ClearInput:
		return fmt.Sprintf("I will clear '%s'.", act.ElementDescription)
	case schemas.Scroll:
		return fmt.Sprintf("I will scroll %s.", strings.ToLower(act.Direction))
	case schemas.Wait:
		if act.Seconds == "" {
			return "I will wait for the page."
		}
		return fmt.Sprintf("I will wait for %s seconds.", act.Seconds)
	case nil:
		return "I received no decision."
	default:
		return fmt.Sprintf("I will perform %s.", a.Kind())
	}
}

// withFailure annotates a status sentence with the reason a command failed.
func withFailure(status, reason string) string {
	return fmt.Sprintf("%s (But I failed: %s)", status, reason)
}

// failedObservation prefixes a fresh description with the failure so the
// next decision sees it.
func failedObservation(reason, observation string) string {
	return fmt.Sprintf("Previous action failed: %s\n\n%s", reason, observation)
}

// formatOptions renders choices as a numbered list with a closing prompt.
func formatOptions(s schemas.SummarizeOptions) string {
	var b strings.Builder
	if s.Topic != "" {
		fmt.Fprintf(&b, "Here are the options I found for %s:\n", s.Topic)
	}
	for i, o := range s.Options {
		if o.Price != "" {
			fmt.Fprintf(&b, "%d. %s - %s\n", i+1, o.Title, o.Price)
		} else {
			fmt.Fprintf(&b, "%d. %s\n", i+1, o.Title)
		}
	}
	b.WriteString("Which option would you like to choose?")
	return b.String()
}

func unknownActionSentence(a schemas.Action) string {
	if a == nil {
		return "I'm not sure how to do that yet: I received an empty decision."
	}
	return fmt.Sprintf("I'm not sure how to do that yet: %s is not an action I can perform.", a.Kind())
}
