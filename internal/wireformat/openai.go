package wireformat

import (
	"encoding/json"
	"fmt"
	"strings"
)

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
	Stream   bool            `json:"stream,omitempty"`
}

// ParseOpenAI extracts (model, scannable text, stream flag) from an
// OpenAI-compatible chat completion request body. The scannable text is
// the concatenation of message contents with role separators, per the
// chat-style rule; completion-style requests arrive on the Ollama surface
// only in this gateway.
func ParseOpenAI(body []byte) (ParsedRequest, error) {
	var req openAIRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return ParsedRequest{}, fmt.Errorf("wireformat: invalid openai request body: %w", err)
	}

	parts := make([]string, 0, len(req.Messages))
	for _, m := range req.Messages {
		parts = append(parts, m.Role+": "+m.Content)
	}

	return ParsedRequest{
		Model:         req.Model,
		ScannableText: strings.Join(parts, "\n"),
		Stream:        req.Stream,
		Format:        FormatOpenAI,
	}, nil
}
