package oracle

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/opensource-finance/harrier/internal/domain"
)

// envelope covers oracle services that wrap their verdict in a content
// field rather than replying with bare JSON.
type envelope struct {
	Content string `json:"content"`
}

// ParseVerdict extracts the structured verdict from an oracle reply.
// Replies may be bare JSON, JSON wrapped in a content envelope, or text
// carrying a fenced code block; fenced ```json blocks win over plain
// ``` fences.
func ParseVerdict(raw []byte) (*domain.OracleResponse, error) {
	text := string(raw)

	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Content != "" {
		text = env.Content
	}

	payload := extractJSON(text)

	var resp domain.OracleResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		return nil, fmt.Errorf("decode verdict: %w", err)
	}
	return &resp, nil
}

// extractJSON pulls the fenced block out of a text reply, if any.
func extractJSON(text string) string {
	if idx := strings.Index(text, "```json"); idx >= 0 {
		rest := text[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimSpace(rest)
	}
	if idx := strings.Index(text, "```"); idx >= 0 {
		rest := text[idx+3:]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(text)
}
