// Package builtin provides concrete Scanner implementations that stand in
// for the ML-backed checks a production deployment would call out to. Each
// implements the same scan.Scanner contract a real model-based scanner
// would, so the pipeline, cache, and router are exercised end to end
// without a dependency on an external inference service.
package builtin

import (
	"context"
	"fmt"
	"regexp"

	"github.com/sentrygate/gateway/internal/scan"
)

// RegexScanner fails any text matching one of a fixed set of patterns. It is
// the simplest possible Scanner and is useful for denylisting known bad
// strings (leaked credentials, banned phrases) without any heuristics.
type RegexScanner struct {
	name     string
	patterns []*regexp.Regexp
	reason   string
}

// NewRegexScanner compiles patterns eagerly; a bad pattern is a
// configuration error and is returned immediately rather than surfacing on
// the first scan call.
func NewRegexScanner(name string, patterns []string, reason string) (*RegexScanner, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("builtin: regex scanner %q: invalid pattern %q: %w", name, p, err)
		}
		compiled = append(compiled, re)
	}
	return &RegexScanner{name: name, patterns: compiled, reason: reason}, nil
}

func (s *RegexScanner) Name() string { return s.name }

func (s *RegexScanner) Scan(ctx context.Context, text string, sctx scan.Context) (scan.Verdict, error) {
	for _, re := range s.patterns {
		if re.MatchString(text) {
			return scan.Verdict{
				ScannerName: s.name,
				Passed:      false,
				RiskScore:   1,
				Reason:      s.reason,
			}, nil
		}
	}
	return scan.Verdict{ScannerName: s.name, Passed: true}, nil
}
