// Package extractor defines the text-extraction collaborator boundary
// and ships one concrete, dependency-free default: plain UTF-8
// passthrough for text-like formats, with a minimal HTML tag strip.
package extractor

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/docseek/docseek/internal/errors"
)

// Extractor is the external collaborator contract: given a file path,
// return its UTF-8 text or report unsupported/failure.
type Extractor interface {
	Extract(ctx context.Context, path string) (text string, err error)
	SupportsExt(ext string) bool
}

// PlainTextExtractor handles plain-text and markup formats that need
// no external library: .txt/.md/.markdown and common source-text
// extensions verbatim, .html/.htm with tags stripped. PDF and DOCX
// need a dedicated extractor plugin this default does not provide, so
// SupportsExt reports false for them and the Indexer counts such files
// as skipped without attempting extraction.
type PlainTextExtractor struct {
	allowExts map[string]bool
}

var scriptStyleTagRe = regexp.MustCompile(`(?is)<(script|style)\b[^>]*>.*?</(script|style)>`)
var htmlTagRe = regexp.MustCompile(`(?s)<[^>]+>`)
var htmlWhitespaceRe = regexp.MustCompile(`[ \t]+`)

// NewPlainTextExtractor builds an extractor honoring the given
// allow-listed extensions, lower-cased and leading-dot-normalized.
func NewPlainTextExtractor(allowExts []string) *PlainTextExtractor {
	set := make(map[string]bool, len(allowExts))
	for _, ext := range allowExts {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = true
	}
	return &PlainTextExtractor{allowExts: set}
}

// SupportsExt implements Extractor. PDF and DOCX require a dedicated
// extractor plugin this default does not provide.
func (e *PlainTextExtractor) SupportsExt(ext string) bool {
	ext = strings.ToLower(ext)
	if ext == ".pdf" || ext == ".docx" {
		return false
	}
	return e.allowExts[ext]
}

// Extract implements Extractor.
func (e *PlainTextExtractor) Extract(ctx context.Context, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !e.SupportsExt(ext) {
		return "", errors.UnsupportedFormat("extension not supported by the plain-text extractor: " + ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.ExtractionFailed("read file for extraction", err).WithDetail("path", path)
	}

	if !utf8.Valid(data) {
		return "", errors.ExtractionFailed("file is not valid UTF-8", nil).WithDetail("path", path)
	}

	text := string(data)
	if ext == ".html" || ext == ".htm" {
		text = stripHTML(text)
	}
	return text, nil
}

// stripHTML removes script/style blocks and then all remaining tags,
// collapsing runs of horizontal whitespace left behind. nav/footer/
// header are ordinary tags here and fall out with the generic tag
// strip; there is no DOM parser to target them structurally.
func stripHTML(html string) string {
	html = scriptStyleTagRe.ReplaceAllString(html, "")
	text := htmlTagRe.ReplaceAllString(html, " ")
	text = htmlWhitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
