package builtin

import (
	"context"
	"strings"

	"github.com/sentrygate/gateway/internal/scan"
)

// ToxicityHeuristicScanner scores text by counting hits against a fixed
// wordlist, normalized by text length. It stands in for a real toxicity
// classifier in end-to-end scenario S1, sharing the same Scanner contract.
type ToxicityHeuristicScanner struct {
	threshold float64
	wordlist  []string
}

var defaultToxicWords = []string{
	"idiot", "moron", "stupid", "worthless", "kill yourself", "hate you",
}

// NewToxicityHeuristicScanner builds the scanner with the default wordlist.
// threshold is the minimum RiskScore that fails the verdict.
func NewToxicityHeuristicScanner(threshold float64) *ToxicityHeuristicScanner {
	if threshold <= 0 {
		threshold = 0.3
	}
	return &ToxicityHeuristicScanner{threshold: threshold, wordlist: defaultToxicWords}
}

func (s *ToxicityHeuristicScanner) Name() string { return "Toxicity" }

func (s *ToxicityHeuristicScanner) Scan(ctx context.Context, text string, sctx scan.Context) (scan.Verdict, error) {
	lower := strings.ToLower(text)
	hits := 0
	var matched []string
	for _, w := range s.wordlist {
		if strings.Contains(lower, w) {
			hits++
			matched = append(matched, w)
		}
	}

	words := len(strings.Fields(text))
	if words == 0 {
		words = 1
	}
	score := float64(hits) / float64(words) * 10
	if score > 1 {
		score = 1
	}

	if hits > 0 && score >= s.threshold {
		return scan.Verdict{
			ScannerName: s.Name(),
			Passed:      false,
			RiskScore:   score,
			Reason:      "matched " + strings.Join(matched, ", "),
		}, nil
	}
	return scan.Verdict{ScannerName: s.Name(), Passed: true, RiskScore: score}, nil
}
