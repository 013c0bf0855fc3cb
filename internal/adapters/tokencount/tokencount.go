// Package tokencount provides a lightweight token estimator for the evidence
// budget (spec.md §4.5.2/§9). The pack has no Go tokenizer binding
// equivalent to the original's tiktoken cl100k_base encoder, and the
// original implementation itself notes a cheap heuristic is an acceptable
// substitute for budget accounting (vs. exact prompt-token counts), so this
// adapter is one of the few built on the standard library only (documented
// in DESIGN.md).
package tokencount

// Counter estimates token counts and truncates text to a token budget.
type Counter interface {
	Count(text string) int
	Truncate(text string, maxTokens int) string
}

// Heuristic approximates tokens as one per four bytes, the same rough ratio
// cl100k_base averages for English prose.
type Heuristic struct {
	BytesPerToken int
}

// New constructs a Heuristic with the default 4-bytes-per-token ratio.
func New() Heuristic {
	return Heuristic{BytesPerToken: 4}
}

// Count implements Counter.
func (h Heuristic) Count(text string) int {
	if text == "" {
		return 0
	}
	bpt := h.bytesPerToken()
	n := (len(text) + bpt - 1) / bpt
	if n == 0 {
		n = 1
	}
	return n
}

// Truncate implements Counter, cutting text to approximately maxTokens
// tokens by byte length. It never splits a rune.
func (h Heuristic) Truncate(text string, maxTokens int) string {
	if text == "" || maxTokens <= 0 {
		return ""
	}
	limit := maxTokens * h.bytesPerToken()
	if len(text) <= limit {
		return text
	}
	runes := []rune(text)
	budget := 0
	for i, r := range runes {
		budget += len(string(r))
		if budget > limit {
			return string(runes[:i])
		}
	}
	return text
}

func (h Heuristic) bytesPerToken() int {
	if h.BytesPerToken <= 0 {
		return 4
	}
	return h.BytesPerToken
}
