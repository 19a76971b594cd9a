// Package snippet builds windowed, optionally highlighted excerpts of
// a chunk centered on the best query match.
package snippet

import (
	"regexp"
	"strings"
)

const maxSnippetLen = 200

// Build locates the best match for query in text, windows radius
// characters on either side, cleans and truncates it, and highlights
// query words unless exactMatch disables highlighting. Returned start
// and end positions refer to the original text.
func Build(text, query string, radius int, exactMatch bool) (snippetText string, start, end int) {
	lowerText := strings.ToLower(text)
	lowerQuery := strings.ToLower(strings.TrimSpace(query))

	pos := locateMatch(lowerText, lowerQuery)
	if pos < 0 {
		pos = 0
	}

	start = pos - radius
	if start < 0 {
		start = 0
	}
	// The window always spans the full query length past the match
	// position, even when only a single query word matched.
	end = pos + len(lowerQuery) + radius
	if end > len(text) {
		end = len(text)
	}

	raw := text[start:end]
	if start > 0 {
		raw = "..." + raw
	}
	if end < len(text) {
		raw = raw + "..."
	}

	cleaned := cleanWhitespace(raw)
	cleaned = truncate(cleaned, maxSnippetLen)

	if !exactMatch {
		cleaned = highlight(cleaned, query)
	}
	return cleaned, start, end
}

// locateMatch finds the exact lowercase phrase first; failing that,
// the earliest occurrence of any query word. Returns -1 if nothing
// matches.
func locateMatch(lowerText, lowerQuery string) int {
	if lowerQuery == "" {
		return -1
	}
	if i := strings.Index(lowerText, lowerQuery); i >= 0 {
		return i
	}

	best := -1
	for _, word := range strings.Fields(lowerQuery) {
		if word == "" {
			continue
		}
		if i := strings.Index(lowerText, word); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	return best
}

var whitespaceRe = regexp.MustCompile(`\s+`)

func cleanWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// truncate caps s at maxLen characters, preferring to break on a word
// boundary within the last 20% of the window.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	lastFifth := maxLen - maxLen/5
	if idx := strings.LastIndex(s[lastFifth:cut], " "); idx >= 0 {
		cut = lastFifth + idx
	}
	return strings.TrimRight(s[:cut], " ") + "..."
}

// highlight wraps each query word (case-insensitive, word-boundary
// matched) in the snippet with **…**.
func highlight(snippetText, query string) string {
	seen := make(map[string]bool)
	for _, word := range strings.Fields(query) {
		lower := strings.ToLower(word)
		if lower == "" || seen[lower] {
			continue
		}
		seen[lower] = true

		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
		if err != nil {
			continue
		}
		snippetText = re.ReplaceAllStringFunc(snippetText, func(m string) string {
			return "**" + m + "**"
		})
	}
	return snippetText
}
