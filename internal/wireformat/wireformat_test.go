package wireformat

import "testing"

func TestParseOllamaChatRequest(t *testing.T) {
	body := []byte(`{"model":"llama3","messages":[{"role":"user","content":"hello there"}]}`)
	got, err := ParseOllama(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Model != "llama3" || got.Format != FormatOllama {
		t.Fatalf("unexpected parse: %+v", got)
	}
	if !got.Stream {
		t.Fatal("expected stream to default true when omitted")
	}
	if got.ScannableText != "user: hello there" {
		t.Fatalf("unexpected scannable text: %q", got.ScannableText)
	}
}

func TestParseOllamaGenerateRequestRespectsExplicitStreamFalse(t *testing.T) {
	body := []byte(`{"model":"llama3","prompt":"summarize this","stream":false}`)
	got, err := ParseOllama(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Stream {
		t.Fatal("expected explicit stream=false to be respected")
	}
	if got.ScannableText != "summarize this" {
		t.Fatalf("expected prompt field used as scannable text, got %q", got.ScannableText)
	}
}

func TestParseOpenAIChatRequest(t *testing.T) {
	body := []byte(`{"model":"gpt-4","messages":[{"role":"system","content":"be nice"},{"role":"user","content":"hi"}],"stream":true}`)
	got, err := ParseOpenAI(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Model != "gpt-4" || got.Format != FormatOpenAI || !got.Stream {
		t.Fatalf("unexpected parse: %+v", got)
	}
	want := "system: be nice\nuser: hi"
	if got.ScannableText != want {
		t.Fatalf("expected %q, got %q", want, got.ScannableText)
	}
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	if _, err := ParseOllama([]byte("not json")); err == nil {
		t.Fatal("expected error for malformed ollama body")
	}
	if _, err := ParseOpenAI([]byte("not json")); err == nil {
		t.Fatal("expected error for malformed openai body")
	}
}
