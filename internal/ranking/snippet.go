package ranking

import (
	"strings"
	"unicode"

	"github.com/newsdesk/search/internal/models"
)

// SummarySnippetRunes is the maximum length of a summary-derived snippet, excluding the ellipsis.
const SummarySnippetRunes = 200

const ellipsis = "…"

// snippetFor returns the highlighted excerpt for lexical matches and a truncated summary otherwise.
func snippetFor(c models.ArticleCandidate) string {
	if c.LexicalMatch && strings.TrimSpace(c.Snippet) != "" {
		return c.Snippet
	}

	return SummarySnippet(c.Summary, SummarySnippetRunes)
}

// SummarySnippet collapses whitespace in summary and truncates it to at most maxRunes runes, cutting at the
// last word boundary when one exists and appending an ellipsis when anything was removed.
func SummarySnippet(summary string, maxRunes int) string {
	text := strings.Join(strings.Fields(summary), " ")

	runes := []rune(text)
	if maxRunes <= 0 || len(runes) <= maxRunes {
		return text
	}

	cut := runes[:maxRunes]

	if !unicode.IsSpace(runes[maxRunes]) {
		if i := lastSpace(cut); i > 0 {
			cut = cut[:i]
		}
	}

	return strings.TrimRightFunc(string(cut), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	}) + ellipsis
}

func lastSpace(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}

	return -1
}
