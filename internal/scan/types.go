// Package scan defines the Scanner contract and the ScanPipeline that runs
// an ordered set of scanners over a text blob. Scanner internals (the ML
// inference behind a real check) are out of scope here — Scanner is a
// capability interface any black-box check can satisfy.
package scan

import "context"

// Verdict is the immutable result of one scanner on one text.
type Verdict struct {
	ScannerName string  `json:"scanner_name"`
	Passed      bool    `json:"passed"`
	RiskScore   float64 `json:"risk_score"`
	Reason      string  `json:"reason"`
}

// Report is the aggregate of verdicts produced by a pipeline over one text.
// Invariant: Allowed == (len(Failed) == 0) under run_all, or under
// fail_fast, Allowed == (no verdict has failed yet when the pipeline
// stopped).
type Report struct {
	Allowed bool      `json:"allowed"`
	Passed  []Verdict `json:"passed"`
	Failed  []Verdict `json:"failed"`
}

// FailedNames returns the scanner names that failed, in pipeline order.
func (r Report) FailedNames() []string {
	names := make([]string, 0, len(r.Failed))
	for _, v := range r.Failed {
		names = append(names, v.ScannerName)
	}
	return names
}

// Context carries read-only request metadata a Scanner may use (e.g. the
// detected language, to phrase a heuristic reason in the caller's
// language). It deliberately exposes no mutation — scanners are pure per
// call and share no state across calls.
type Context struct {
	RequestID string
	ClientID  string
	Model     string
	Language  string
	Direction Direction
}

// Direction distinguishes input (prompt) scanning from output (response)
// scanning; a handful of scanners (e.g. NoCode) only make sense in one
// direction.
type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// Scanner is a named check over text. Implementations must be safe for
// concurrent use: scan is pure per call and holds no shared mutable state
// across calls, though it may be slow (backed by ML inference).
type Scanner interface {
	Name() string
	Scan(ctx context.Context, text string, sctx Context) (Verdict, error)
}
