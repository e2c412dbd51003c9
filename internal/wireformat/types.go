// Package wireformat extracts the admission/scan-relevant fields out of
// both wire formats the gateway accepts — Ollama-native JSON and the
// OpenAI-compatible chat API — without otherwise touching the request
// body. The backend itself understands both formats natively, so nothing
// here translates one into the other; the original bytes are forwarded to
// the backend unchanged.
package wireformat

import "encoding/json"

// Format names which wire API a request arrived on.
type Format string

const (
	FormatOllama Format = "ollama"
	FormatOpenAI Format = "openai"
)

// ParsedRequest is the subset of a request body RequestRouter needs for
// admission and scanning: which model, what text to scan, and whether the
// response should stream.
type ParsedRequest struct {
	Model         string
	ScannableText string
	Stream        bool
	Format        Format
}

// OllamaErrorBody renders a blocked/rejected response in Ollama's native
// error envelope: {"error": "..."}.
func OllamaErrorBody(message string) []byte {
	b, _ := json.Marshal(map[string]string{"error": message})
	return b
}

// OpenAIErrorBody renders a blocked/rejected response in the OpenAI error
// envelope shape: {"error": {"message", "type", "code"}}.
func OpenAIErrorBody(message, errType string) []byte {
	b, _ := json.Marshal(map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    errType,
			"code":    nil,
		},
	})
	return b
}
