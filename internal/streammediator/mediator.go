// Package streammediator enforces output scan policy over a live backend
// stream without buffering the full response: it watches a rolling window
// of content deltas, triggers a scan at a byte threshold or end-of-stream,
// and either flushes the window to the client or substitutes a single
// terminal blocked/error chunk and closes the backend connection.
package streammediator

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/sentrygate/gateway/internal/backend"
	"github.com/sentrygate/gateway/internal/scan"
	apperr "github.com/sentrygate/gateway/pkg/errors"
)

// State names a point in the per-stream state machine described in the
// design notes: Reading -> Scanning (on trigger) -> Reading | Blocked;
// Reading -> Flushed on natural end-of-stream; any state -> Aborted on
// disconnect or transport error.
type State string

const (
	StateReading  State = "reading"
	StateBlocked  State = "blocked"
	StateFlushed  State = "flushed"
	StateAborted  State = "aborted"
)

// Config holds the trigger thresholds. Zero values fall back to the
// documented defaults.
type Config struct {
	ScanBytes      int
	ScanInterval   time.Duration
	MaxBufferBytes int
}

// Result is the terminal outcome of one Mediate call.
type Result struct {
	State  State
	Report scan.Report
}

// Mediator drives one stream to completion.
type Mediator struct {
	pipeline *scan.Pipeline
	cfg      Config
}

// New builds a Mediator over pipeline with the given thresholds.
func New(pipeline *scan.Pipeline, cfg Config) *Mediator {
	if cfg.ScanBytes <= 0 {
		cfg.ScanBytes = 256
	}
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = 750 * time.Millisecond
	}
	if cfg.MaxBufferBytes <= 0 {
		cfg.MaxBufferBytes = 8192
	}
	return &Mediator{pipeline: pipeline, cfg: cfg}
}

// Localizer renders a human-facing message for a blocked or errored
// stream. The router supplies this (backed by errcatalog) so this package
// stays free of language/localization concerns.
type Localizer func(kind apperr.Kind, reason string) string

// Mediate consumes handle line by line via parser, calling write for every
// line the client should see. It returns once the stream is blocked,
// flushed at natural end-of-stream, or aborted by ctx cancellation or a
// transport error. handle is always closed on return.
func (m *Mediator) Mediate(
	ctx context.Context,
	handle *backend.StreamHandle,
	parser FrameParser,
	sctx scan.Context,
	localize Localizer,
	write func(line string) error,
) (Result, error) {
	defer handle.Close()

	type lineResult struct {
		line string
		err  error
	}
	// Buffered by one so the reader goroutine can hand off a result
	// without waiting; done is closed when Mediate returns, so a reader
	// whose result is never received (typically the one produced by
	// Close() unblocking a pending Next()) exits instead of leaking.
	lines := make(chan lineResult, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			line, err := handle.Next()
			select {
			case lines <- lineResult{line, err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(m.cfg.ScanInterval)
	defer ticker.Stop()

	// buf holds scannable text accumulated since the last scan actually
	// ran; it only resets when a scan executes. pending holds raw lines
	// not yet forwarded to the client. Below the scan-bytes threshold,
	// pending is flushed immediately without scanning (the rolling
	// buffer keeps growing regardless, so the threshold is still judged
	// against everything accumulated since the last scan); once the
	// threshold (or end-of-stream) is reached, the pending tail is held
	// back until the scan's verdict is known.
	var buf strings.Builder
	var pending []string

	flushPending := func() error {
		for _, l := range pending {
			if err := write(l); err != nil {
				return err
			}
		}
		pending = pending[:0]
		return nil
	}

	runScan := func() (scan.Report, error) {
		report, err := m.pipeline.Scan(ctx, buf.String(), sctx)
		if err != nil {
			return scan.Report{}, err
		}
		buf.Reset()
		if report.Allowed {
			if err := flushPending(); err != nil {
				return report, err
			}
		} else {
			pending = pending[:0]
		}
		return report, nil
	}

	for {
		select {
		case <-ctx.Done():
			return Result{State: StateAborted}, ctx.Err()

		case <-ticker.C:
			if buf.Len() == 0 {
				continue
			}
			report, err := runScan()
			if err != nil {
				return Result{State: StateAborted}, err
			}
			if !report.Allowed {
				m.block(parser, report, localize, write)
				return Result{State: StateBlocked, Report: report}, nil
			}

		case lr := <-lines:
			if lr.err != nil {
				if errors.Is(lr.err, io.EOF) {
					if buf.Len() == 0 {
						return Result{State: StateFlushed, Report: scan.Report{Allowed: true}}, nil
					}
					report, err := runScan()
					if err != nil {
						return Result{State: StateAborted}, err
					}
					if !report.Allowed {
						m.block(parser, report, localize, write)
						return Result{State: StateBlocked, Report: report}, nil
					}
					return Result{State: StateFlushed, Report: report}, nil
				}
				m.terminalError(parser, lr.err, localize, write)
				return Result{State: StateAborted}, lr.err
			}

			frame, ferr := parser.Parse(lr.line)
			if ferr != nil {
				continue // unparseable chunk: skip it, nothing to forward
			}

			if frame.ContentDelta == "" && !frame.Done {
				// Keep-alives and role markers carry no scannable content
				// and are forwarded immediately without scanning.
				if werr := write(frame.Raw); werr != nil {
					return Result{State: StateAborted}, werr
				}
				continue
			}

			if frame.ContentDelta != "" {
				buf.WriteString(frame.ContentDelta)
			}
			pending = append(pending, frame.Raw)

			if frame.Done || buf.Len() >= m.cfg.ScanBytes || buf.Len() >= m.cfg.MaxBufferBytes {
				report, err := runScan()
				if err != nil {
					return Result{State: StateAborted}, err
				}
				if !report.Allowed {
					m.block(parser, report, localize, write)
					return Result{State: StateBlocked, Report: report}, nil
				}
				if frame.Done {
					return Result{State: StateFlushed, Report: report}, nil
				}
				continue
			}

			if err := flushPending(); err != nil {
				return Result{State: StateAborted}, err
			}
		}
	}
}

func (m *Mediator) block(parser FrameParser, report scan.Report, localize Localizer, write func(string) error) {
	blocked := apperr.NewBlocked(apperr.KindResponseBlocked, "", toVerdicts(report.Passed), toVerdicts(report.Failed))
	message := localize(apperr.KindResponseBlocked, blocked.FailedReason())
	line := parser.TerminalErrorFrame(string(apperr.KindResponseBlocked), message, report.FailedNames(), blocked.ScannerSummaries())
	_ = write(line)
}

func (m *Mediator) terminalError(parser FrameParser, err error, localize Localizer, write func(string) error) {
	kind := apperr.KindOf(err)
	if kind == "" {
		kind = apperr.KindUpstreamError
	}
	message := localize(kind, err.Error())
	line := parser.TerminalErrorFrame(string(kind), message, nil, nil)
	_ = write(line)
}

// toVerdicts adapts scan.Verdict (internal/scan's result type) to
// apperr.ScannerVerdict (pkg/errors' transport-agnostic shape) — kept
// local rather than added to pkg/errors so that package stays free of any
// dependency on internal/scan.
func toVerdicts(vs []scan.Verdict) []apperr.ScannerVerdict {
	out := make([]apperr.ScannerVerdict, 0, len(vs))
	for _, v := range vs {
		out = append(out, apperr.ScannerVerdict{Name: v.ScannerName, Passed: v.Passed, RiskScore: v.RiskScore, Reason: v.Reason})
	}
	return out
}
