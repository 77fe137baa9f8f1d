package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ignite/autolink/internal/service/suggestion"
)

const systemPrompt = `You place affiliate links in editorial content. You receive a list of
keywords, each with a link_id, and the plain text of an article. Pick the
passages where a link to a keyword's destination reads naturally and helps
the reader. Prefer the first natural mention, avoid headings, and never
propose two links for the same passage.

Respond with ONLY a JSON array. Each element must be:
{"link_id": "<one of the given link ids>", "anchor_text": "<exact text copied from the article>",
 "position": <byte offset of anchor_text in the article>, "confidence": <0-100>,
 "reasoning": "<one short sentence>"}
Return [] when nothing fits.`

func buildUserMessage(req suggestion.GenerateRequest, max int) (string, error) {
	kw, err := json.Marshal(req.Keywords)
	if err != nil {
		return "", fmt.Errorf("marshal keywords: %w", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Keywords:\n%s\n\n", kw)
	fmt.Fprintf(&b, "Return at most %d suggestions.\n\n", max)
	b.WriteString("Article:\n")
	b.WriteString(req.Context)
	return b.String(), nil
}

// parseSuggestions extracts the JSON array from a model reply. Models
// sometimes wrap the array in prose or a fenced block.
func parseSuggestions(text string) ([]suggestion.Generated, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON array in model reply")
	}
	var items []suggestion.Generated
	if err := json.Unmarshal([]byte(text[start:end+1]), &items); err != nil {
		return nil, fmt.Errorf("decode suggestions: %w", err)
	}
	return items, nil
}
