package wireformat

import (
	"encoding/json"
	"fmt"
)

type ollamaResponseBody struct {
	Response string `json:"response"`
	Message  *struct {
		Content string `json:"content"`
	} `json:"message"`
}

type openAIResponseBody struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ExtractResponseText pulls the scannable text out of a non-streaming
// backend reply, in the same format the request arrived on.
func ExtractResponseText(format Format, body []byte) (string, error) {
	switch format {
	case FormatOllama:
		var r ollamaResponseBody
		if err := json.Unmarshal(body, &r); err != nil {
			return "", fmt.Errorf("wireformat: invalid ollama response body: %w", err)
		}
		if r.Message != nil {
			return r.Message.Content, nil
		}
		return r.Response, nil
	case FormatOpenAI:
		var r openAIResponseBody
		if err := json.Unmarshal(body, &r); err != nil {
			return "", fmt.Errorf("wireformat: invalid openai response body: %w", err)
		}
		if len(r.Choices) == 0 {
			return "", nil
		}
		return r.Choices[0].Message.Content, nil
	default:
		return "", fmt.Errorf("wireformat: unknown format %q", format)
	}
}
