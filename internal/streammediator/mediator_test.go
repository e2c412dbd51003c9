package streammediator

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/sentrygate/gateway/internal/backend"
	"github.com/sentrygate/gateway/internal/scan"
	"github.com/sentrygate/gateway/internal/scan/builtin"
	apperr "github.com/sentrygate/gateway/pkg/errors"
)

func handleFromLines(lines []string) *backend.StreamHandle {
	body := strings.Join(lines, "\n") + "\n"
	resp := &http.Response{Body: io.NopCloser(strings.NewReader(body))}
	return backend.NewStreamHandle(resp, 5*time.Second)
}

func noopLocalize(kind apperr.Kind, reason string) string {
	return "Model output was blocked because of: " + reason
}

// TestOutputBlockMidStreamOllama covers a streaming /api/generate response
// whose rolling buffer crosses stream_scan_bytes on the third chunk, with
// a NoCode scanner failing the accumulated text.
func TestOutputBlockMidStreamOllama(t *testing.T) {
	lines := []string{
		`{"response":"Here is","done":false}`,
		`{"response":" a Python","done":false}`,
		`{"response":" snippet: a working example below:\ndef foo():\n    pass","done":false}`,
	}
	handle := handleFromLines(lines)

	pipeline := scan.NewPipeline(scan.PolicyFailFast, []scan.Scanner{builtin.NewNoCodeScanner()})
	mediator := New(pipeline, Config{ScanBytes: 64, ScanInterval: time.Hour})

	var written []string
	write := func(line string) error {
		written = append(written, line)
		return nil
	}

	start := time.Now()
	result, err := mediator.Mediate(context.Background(), handle, NewOllamaFrameParser(), scan.Context{Model: "llama3", Direction: scan.DirectionOutput}, noopLocalize, write)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.State != StateBlocked {
		t.Fatalf("expected StateBlocked, got %s", result.State)
	}
	if elapsed > 100*time.Millisecond {
		t.Fatalf("expected backend handle to close within 100ms, took %s", elapsed)
	}

	if len(written) != 3 {
		t.Fatalf("expected 2 forwarded chunks + 1 terminal chunk, got %d: %v", len(written), written)
	}
	if written[0] != lines[0] || written[1] != lines[1] {
		t.Fatalf("expected first two chunks forwarded verbatim, got %v", written[:2])
	}

	terminal := written[2]
	if !strings.Contains(terminal, `"done":true`) {
		t.Fatalf("expected terminal chunk to carry done:true, got %s", terminal)
	}
	if !strings.Contains(terminal, `"error":"response_blocked"`) {
		t.Fatalf("expected terminal chunk to carry response_blocked, got %s", terminal)
	}
	if !strings.Contains(terminal, `"failed_scanners":["NoCode"]`) {
		t.Fatalf("expected terminal chunk to name NoCode, got %s", terminal)
	}
	if !strings.Contains(terminal, `"scanners":{"NoCode":{`) {
		t.Fatalf("expected terminal chunk to carry a per-scanner scanners object, got %s", terminal)
	}
	if !strings.Contains(terminal, `"passed":false`) {
		t.Fatalf("expected NoCode's scanners entry to report passed:false, got %s", terminal)
	}
	if strings.Contains(terminal, "def foo") {
		t.Fatalf("terminal chunk must not leak the blocked content, got %s", terminal)
	}
}

func TestStreamFlushesCleanlyWhenNeverTriggered(t *testing.T) {
	lines := []string{
		`{"response":"all","done":false}`,
		`{"response":" good","done":true}`,
	}
	handle := handleFromLines(lines)

	pipeline := scan.NewPipeline(scan.PolicyFailFast, []scan.Scanner{builtin.NewNoCodeScanner()})
	mediator := New(pipeline, Config{ScanBytes: 4096, ScanInterval: time.Hour})

	var written []string
	write := func(line string) error {
		written = append(written, line)
		return nil
	}

	result, err := mediator.Mediate(context.Background(), handle, NewOllamaFrameParser(), scan.Context{Model: "llama3"}, noopLocalize, write)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.State != StateFlushed {
		t.Fatalf("expected StateFlushed, got %s", result.State)
	}
	if len(written) != 2 {
		t.Fatalf("expected both chunks forwarded by the end of the stream, got %v", written)
	}
}

func TestDisabledPipelineForwardsEverythingUnscanned(t *testing.T) {
	lines := []string{
		`{"response":"def foo(): pass","done":false}`,
		`{"response":"","done":true}`,
	}
	handle := handleFromLines(lines)

	mediator := New(scan.Disabled(), Config{ScanBytes: 8})

	var written []string
	write := func(line string) error {
		written = append(written, line)
		return nil
	}

	result, err := mediator.Mediate(context.Background(), handle, NewOllamaFrameParser(), scan.Context{}, noopLocalize, write)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.State != StateFlushed {
		t.Fatalf("expected StateFlushed for a disabled pipeline, got %s", result.State)
	}
	if len(written) != 2 {
		t.Fatalf("expected every chunk forwarded when scanning is disabled, got %v", written)
	}
}
