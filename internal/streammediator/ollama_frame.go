package streammediator

import (
	"encoding/json"
	"fmt"
	"strings"

	apperr "github.com/sentrygate/gateway/pkg/errors"
)

// ollamaChunk covers both /api/generate and /api/chat chunk shapes; only
// the fields the mediator needs to decide on a Frame are declared.
type ollamaChunk struct {
	Response string `json:"response"`
	Message  *struct {
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// ollamaFrameParser decodes Ollama's newline-delimited JSON chunks.
type ollamaFrameParser struct{}

// NewOllamaFrameParser returns a FrameParser for Ollama's ndjson wire
// format; only the chunk fields the mediator needs are decoded.
func NewOllamaFrameParser() FrameParser {
	return ollamaFrameParser{}
}

func (ollamaFrameParser) Parse(line string) (Frame, error) {
	if strings.TrimSpace(line) == "" {
		return Frame{Raw: line}, nil
	}

	var c ollamaChunk
	if err := json.Unmarshal([]byte(line), &c); err != nil {
		return Frame{}, fmt.Errorf("streammediator: invalid ollama chunk: %w", err)
	}

	content := c.Response
	if c.Message != nil {
		content += c.Message.Content
	}
	return Frame{ContentDelta: content, Done: c.Done, Raw: line}, nil
}

func (ollamaFrameParser) TerminalErrorFrame(kind, message string, failedScanners []string, scanners map[string]apperr.ScannerSummary) string {
	payload := map[string]any{
		"response":        "",
		"done":            true,
		"error":           kind,
		"message":         message,
		"scanners":        scanners,
		"failed_scanners": failedScanners,
	}
	b, _ := json.Marshal(payload)
	return string(b)
}
