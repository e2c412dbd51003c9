package scan

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeScanner struct {
	name    string
	verdict Verdict
	err     error
	delay   time.Duration
	calls   int
}

func (f *fakeScanner) Name() string { return f.name }

func (f *fakeScanner) Scan(ctx context.Context, text string, sctx Context) (Verdict, error) {
	f.calls++
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return Verdict{}, f.err
	}
	v := f.verdict
	v.ScannerName = f.name
	return v, nil
}

func TestDisabledPipelineIsIdentity(t *testing.T) {
	p := Disabled()
	if p.Enabled() {
		t.Fatal("disabled pipeline should report Enabled()==false")
	}
	report, err := p.Scan(context.Background(), "anything", Context{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Allowed || len(report.Passed) != 0 || len(report.Failed) != 0 {
		t.Fatalf("expected empty allowed report, got %+v", report)
	}
}

func TestRunAllAggregatesAllVerdicts(t *testing.T) {
	a := &fakeScanner{name: "A", verdict: Verdict{Passed: true}}
	b := &fakeScanner{name: "B", verdict: Verdict{Passed: false, Reason: "bad"}}
	c := &fakeScanner{name: "C", verdict: Verdict{Passed: true}}

	p := NewPipeline(PolicyRunAll, []Scanner{a, b, c})
	report, err := p.Scan(context.Background(), "text", Context{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Allowed {
		t.Fatal("expected allowed=false")
	}
	if len(report.Passed) != 2 || len(report.Failed) != 1 {
		t.Fatalf("expected 2 passed/1 failed, got %+v", report)
	}
	if a.calls != 1 || b.calls != 1 || c.calls != 1 {
		t.Fatal("run_all must invoke every scanner exactly once")
	}
}

func TestFailFastStopsAtFirstFailure(t *testing.T) {
	a := &fakeScanner{name: "A", verdict: Verdict{Passed: true}}
	b := &fakeScanner{name: "B", verdict: Verdict{Passed: false, Reason: "bad"}}
	c := &fakeScanner{name: "C", verdict: Verdict{Passed: true}}

	p := NewPipeline(PolicyFailFast, []Scanner{a, b, c})
	report, err := p.Scan(context.Background(), "text", Context{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Allowed {
		t.Fatal("expected allowed=false")
	}
	if len(report.Passed) != 1 || len(report.Failed) != 1 {
		t.Fatalf("expected 1 passed/1 failed, got %+v", report)
	}
	if c.calls != 0 {
		t.Fatal("fail_fast must not invoke scanners after the first failure")
	}
}

func TestScannerErrorBlockOnErrorFailsClosed(t *testing.T) {
	a := &fakeScanner{name: "A", err: errors.New("boom")}
	p := NewPipeline(PolicyRunAll, []Scanner{a}, WithBlockOnScanError(true))

	report, err := p.Scan(context.Background(), "text", Context{})
	if err != nil {
		t.Fatalf("pipeline-level error unexpected: %v", err)
	}
	if report.Allowed {
		t.Fatal("expected allowed=false when blocking on scanner error")
	}
	if len(report.Failed) != 1 || report.Failed[0].Reason != "scanner_timeout" {
		t.Fatalf("expected synthesized failing verdict, got %+v", report.Failed)
	}
}

func TestScannerErrorFailOpenSkipsScanner(t *testing.T) {
	a := &fakeScanner{name: "A", err: errors.New("boom")}
	p := NewPipeline(PolicyRunAll, []Scanner{a}, WithBlockOnScanError(false))

	report, err := p.Scan(context.Background(), "text", Context{})
	if err != nil {
		t.Fatalf("pipeline-level error unexpected: %v", err)
	}
	if !report.Allowed {
		t.Fatal("expected allowed=true when failing open")
	}
}

func TestScanTimeoutTreatsSlowScannerAsFailure(t *testing.T) {
	a := &fakeScanner{name: "slow", verdict: Verdict{Passed: true}, delay: 50 * time.Millisecond}
	p := NewPipeline(PolicyRunAll, []Scanner{a}, WithScanTimeout(5*time.Millisecond), WithBlockOnScanError(true))

	report, err := p.Scan(context.Background(), "text", Context{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Allowed {
		t.Fatal("expected timeout to fail closed")
	}
}
