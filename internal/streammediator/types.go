package streammediator

import apperr "github.com/sentrygate/gateway/pkg/errors"

// Frame is one backend chunk, decoded just enough to drive the mediator's
// trigger logic: the scannable text it adds, whether it marks the
// stream's natural end, and its original bytes for verbatim forwarding.
type Frame struct {
	ContentDelta string
	Done         bool
	Raw          string
}

// FrameParser understands one wire format's chunk shape well enough to
// extract scannable content and to construct the single terminal chunk a
// blocked or errored stream ends with.
type FrameParser interface {
	// Parse decodes one line read from a StreamHandle into a Frame.
	Parse(line string) (Frame, error)

	// TerminalErrorFrame builds the wire-format-appropriate final chunk
	// for a blocked or errored stream. kind is an apperr.Kind string
	// value (e.g. "response_blocked", "upstream_error"). scanners is the
	// same per-scanner "scanners" object the non-streaming blocked
	// envelope carries; nil for a transport/upstream error, where there
	// is no scan report to summarize.
	TerminalErrorFrame(kind, message string, failedScanners []string, scanners map[string]apperr.ScannerSummary) string
}
