package builtin

import (
	"context"
	"regexp"

	"github.com/sentrygate/gateway/internal/scan"
)

// NoCodeScanner fails text containing a fenced code block or other strong
// code signals. It stands in for the spec's NoCode scanner used in
// end-to-end scenario S3, where a deployment wants a model to answer in
// prose only.
type NoCodeScanner struct {
	fencedBlock *regexp.Regexp
	codeTokens  *regexp.Regexp
}

func NewNoCodeScanner() *NoCodeScanner {
	return &NoCodeScanner{
		fencedBlock: regexp.MustCompile("```"),
		codeTokens:  regexp.MustCompile(`(?m)^\s*(def |class |function |import |#include|public static|SELECT .* FROM)`),
	}
}

func (s *NoCodeScanner) Name() string { return "NoCode" }

func (s *NoCodeScanner) Scan(ctx context.Context, text string, sctx scan.Context) (scan.Verdict, error) {
	if s.fencedBlock.MatchString(text) {
		return scan.Verdict{ScannerName: s.Name(), Passed: false, RiskScore: 1, Reason: "contains a fenced code block"}, nil
	}
	if s.codeTokens.MatchString(text) {
		return scan.Verdict{ScannerName: s.Name(), Passed: false, RiskScore: 0.8, Reason: "contains code-like tokens"}, nil
	}
	return scan.Verdict{ScannerName: s.Name(), Passed: true}, nil
}
