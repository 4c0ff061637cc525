package llm

import "strings"

// IsSilence reports whether a completion text is the reserved "model chose
// not to speak" marker. The prompt asks backends to answer with exactly
// "---" when no suggestion is warranted, but models vary the spelling, so any
// response composed solely of hyphen-minus, en-dash, em-dash and spaces
// counts. An empty (or whitespace-only) response is also silence.
func IsSilence(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return true
	}
	for _, r := range trimmed {
		switch r {
		case '-', '–', '—', ' ':
		default:
			return false
		}
	}
	return true
}

// StripCodeFence removes a Markdown code-fence wrapper from s when present.
// Some backend families wrap JSON-mode output in ```json fences even when
// structured output was requested, so callers strip defensively before
// parsing.
func StripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	// Drop the optional language tag on the opening fence line.
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		trimmed = trimmed[idx+1:]
	} else {
		return strings.TrimSpace(strings.TrimSuffix(trimmed, "```"))
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
