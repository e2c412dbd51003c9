package scan

import (
	"context"
	"fmt"
	"time"
)

// Policy controls how a Pipeline aggregates multiple scanners.
type Policy string

const (
	// PolicyRunAll executes every scanner and reports allowed = (all passed).
	PolicyRunAll Policy = "run_all"
	// PolicyFailFast stops at the first failing scanner.
	PolicyFailFast Policy = "fail_fast"
)

// Pipeline runs an ordered set of scanners over a text and aggregates their
// verdicts into a Report. A Pipeline with zero scanners is the identity
// pipeline: it always returns Allowed=true without invoking anything.
type Pipeline struct {
	scanners         []Scanner
	policy           Policy
	blockOnScanError bool
	scanTimeout      time.Duration
}

// Option configures a Pipeline at construction.
type Option func(*Pipeline)

// WithBlockOnScanError makes a scanner error (including a soft-timeout)
// fail closed: the scanner is recorded as a failed verdict with
// reason="scanner_timeout", whether it timed out or returned some other
// error (the error text is not recorded). When false (the default),
// an erroring scanner fails open and is skipped.
func WithBlockOnScanError(block bool) Option {
	return func(p *Pipeline) { p.blockOnScanError = block }
}

// WithScanTimeout bounds each individual scanner call. Zero disables the
// per-scan timeout.
func WithScanTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.scanTimeout = d }
}

// NewPipeline constructs a Pipeline over scanners with the given policy.
func NewPipeline(policy Policy, scanners []Scanner, opts ...Option) *Pipeline {
	p := &Pipeline{scanners: scanners, policy: policy}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Disabled returns the identity pipeline: Scan always returns
// allowed=true, failed=[], passed=[] without touching any scanner or the
// cache.
func Disabled() *Pipeline {
	return &Pipeline{scanners: nil}
}

// Enabled reports whether this pipeline would run any scanner.
func (p *Pipeline) Enabled() bool {
	return len(p.scanners) > 0
}

// Scan runs the configured scanners over text in order, per the
// configured policy. It never touches the cache directly — callers that
// want memoization go through ScanCache.GetOrCompute with this method as
// the compute function.
func (p *Pipeline) Scan(ctx context.Context, text string, sctx Context) (Report, error) {
	if !p.Enabled() {
		return Report{Allowed: true}, nil
	}

	var passed, failed []Verdict

	for _, scanner := range p.scanners {
		verdict, err := p.runOne(ctx, scanner, text, sctx)
		if err != nil {
			if !p.blockOnScanError {
				continue // fail open: skip this scanner's contribution entirely
			}
			verdict = Verdict{
				ScannerName: scanner.Name(),
				Passed:      false,
				RiskScore:   1,
				Reason:      "scanner_timeout",
			}
		}

		if verdict.Passed {
			passed = append(passed, verdict)
			continue
		}

		failed = append(failed, verdict)
		if p.policy == PolicyFailFast {
			return Report{Allowed: false, Passed: passed, Failed: failed}, nil
		}
	}

	return Report{Allowed: len(failed) == 0, Passed: passed, Failed: failed}, nil
}

// runOne invokes a single scanner, applying the soft per-scan timeout if
// configured. On timeout runOne returns an error right away; the scanner
// call itself is not interrupted, keeps running in its own goroutine, and
// its eventual result is discarded.
func (p *Pipeline) runOne(ctx context.Context, scanner Scanner, text string, sctx Context) (Verdict, error) {
	if p.scanTimeout <= 0 {
		return scanner.Scan(ctx, text, sctx)
	}

	type result struct {
		verdict Verdict
		err     error
	}
	done := make(chan result, 1)
	go func() {
		v, err := scanner.Scan(ctx, text, sctx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.verdict, r.err
	case <-time.After(p.scanTimeout):
		return Verdict{}, fmt.Errorf("scan: %s exceeded soft timeout %s", scanner.Name(), p.scanTimeout)
	}
}
