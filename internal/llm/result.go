package llm

import (
	"strings"

	"github.com/tidwall/gjson"
)

// resultPaths are tried in order against structured generation results.
var resultPaths = []string{
	"text",
	"output_text",
	"result",
	"content",
	"response",
	"choices.0.message.content",
	"choices.0.text",
	"message.content",
	"content.0.text",
}

// TextFromResult extracts generated text from a backend result. Plain text is
// returned as is; a JSON string is unquoted; a JSON object yields the first
// present string among the known result paths, or "" when none matches.
func TextFromResult(body string) string {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return ""
	}
	if !gjson.Valid(trimmed) {
		return body
	}

	doc := gjson.Parse(trimmed)
	switch doc.Type {
	case gjson.String:
		return doc.String()
	case gjson.JSON:
		if !doc.IsObject() {
			return ""
		}
	default:
		// Bare numbers, booleans and null are plain text replies.
		return body
	}

	for _, p := range resultPaths {
		v := doc.Get(p)
		if v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
