package generator

import (
	"unicode"

	"github.com/psu6810110402/gemini-foundry/pkg/types"
)

// EstimateTokens provides a rough token estimate.
// Han and Thai text is ~2 chars/token, others ~4 chars/token.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	var wide, other int
	for _, r := range text {
		if unicode.In(r, unicode.Han, unicode.Thai) {
			wide++
			continue
		}
		other++
	}
	return (wide+1)/2 + (other+3)/4
}

// TrimHistory keeps the newest turns whose estimated size fits maxTokens.
// The result always starts with a user turn. A non-positive budget keeps
// everything.
func TrimHistory(history []types.Turn, maxTokens int) []types.Turn {
	if maxTokens <= 0 || len(history) == 0 {
		return history
	}
	start := len(history)
	used := 0
	for i := len(history) - 1; i >= 0; i-- {
		n := EstimateTokens(history[i].Text())
		if used+n > maxTokens {
			break
		}
		used += n
		start = i
	}
	for start < len(history) && history[start].Role != types.RoleUser {
		start++
	}
	return history[start:]
}
