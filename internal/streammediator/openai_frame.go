package streammediator

import (
	"encoding/json"
	"fmt"
	"strings"

	apperr "github.com/sentrygate/gateway/pkg/errors"
)

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// openAIFrameParser decodes OpenAI-compatible "data: {...}" SSE lines.
type openAIFrameParser struct{}

// NewOpenAIFrameParser returns a FrameParser for OpenAI-compatible SSE
// chat-completion streams; only the chunk fields the mediator needs (the
// choices' delta content and finish reason) are decoded.
func NewOpenAIFrameParser() FrameParser {
	return openAIFrameParser{}
}

func (openAIFrameParser) Parse(line string) (Frame, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Frame{Raw: line}, nil
	}
	if !strings.HasPrefix(trimmed, "data:") {
		// SSE comment/keep-alive line; forward verbatim, nothing to scan.
		return Frame{Raw: line}, nil
	}

	data := strings.TrimSpace(strings.TrimPrefix(trimmed, "data:"))
	if data == "[DONE]" {
		return Frame{Done: true, Raw: line}, nil
	}

	var c openAIStreamChunk
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return Frame{}, fmt.Errorf("streammediator: invalid openai sse chunk: %w", err)
	}

	f := Frame{Raw: line}
	if len(c.Choices) > 0 {
		f.ContentDelta = c.Choices[0].Delta.Content
		if c.Choices[0].FinishReason != nil {
			f.Done = true
		}
	}
	return f, nil
}

func (openAIFrameParser) TerminalErrorFrame(kind, message string, failedScanners []string, scanners map[string]apperr.ScannerSummary) string {
	payload := map[string]any{
		"id":     "blocked",
		"object": "chat.completion.chunk",
		"choices": []map[string]any{
			{
				"index":         0,
				"delta":         map[string]any{},
				"finish_reason": "content_filter",
			},
		},
		"error": map[string]any{
			"type":            kind,
			"message":         message,
			"scanners":        scanners,
			"failed_scanners": failedScanners,
		},
	}
	b, _ := json.Marshal(payload)
	return "data: " + string(b) + "\n\ndata: [DONE]"
}
