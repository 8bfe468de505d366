package engine

import (
	"regexp"
	"strings"
)

// Exit keywords that clearly signal the candidate wants to stop match
// anywhere in the utterance on word boundaries. Generic words that
// easily appear inside a legitimate answer ("I use Redis until the job
// is done") only count when they make up the whole utterance.
var (
	exitAnywherePattern = regexp.MustCompile(`(?i)\b(bye|goodbye|exit|quit|end conversation)\b`)

	exitWholeUtterance = map[string]struct{}{
		"end":       {},
		"stop":      {},
		"done":      {},
		"finish":    {},
		"thanks":    {},
		"thank you": {},
	}

	punctuationPattern = regexp.MustCompile(`[.,!?;:]+`)
	spacesPattern      = regexp.MustCompile(`\s+`)
)

// ExitIntent reports whether the utterance asks to end the conversation.
func ExitIntent(text string) bool {
	if exitAnywherePattern.MatchString(text) {
		return true
	}

	normalized := strings.ToLower(text)
	normalized = punctuationPattern.ReplaceAllString(normalized, " ")
	normalized = strings.TrimSpace(spacesPattern.ReplaceAllString(normalized, " "))

	_, ok := exitWholeUtterance[normalized]
	return ok
}
