package builtin

import (
	"context"
	"regexp"
	"strings"

	"github.com/sentrygate/gateway/internal/scan"
)

// PromptInjectionHeuristicScanner flags phrasing commonly used to override
// a system prompt or exfiltrate hidden instructions. It stands in for the
// prompt-injection scanner used in end-to-end scenario S1; a real
// deployment would swap this for a classifier without touching the
// pipeline or router.
type PromptInjectionHeuristicScanner struct {
	threshold float64
	phrases   []*regexp.Regexp
}

var defaultInjectionPhrases = []string{
	`(?i)ignore (all|any|the) (previous|prior|above) instructions`,
	`(?i)disregard (your|all|the) (system prompt|instructions)`,
	`(?i)you are now (in )?(developer|dan|jailbreak) mode`,
	`(?i)reveal (your|the) (system prompt|hidden instructions)`,
	`(?i)act as if you have no (restrictions|rules|guidelines)`,
	`(?i)pretend (you are|to be) an ai (with no|without) (restrictions|filters)`,
}

// NewPromptInjectionHeuristicScanner builds the scanner with the default
// phrase set. threshold is the minimum RiskScore (0..1) that fails the
// verdict; each matched phrase contributes 0.5 to the score, so a single
// strong match already exceeds the default 0.4 threshold.
func NewPromptInjectionHeuristicScanner(threshold float64) *PromptInjectionHeuristicScanner {
	if threshold <= 0 {
		threshold = 0.4
	}
	phrases := make([]*regexp.Regexp, len(defaultInjectionPhrases))
	for i, p := range defaultInjectionPhrases {
		phrases[i] = regexp.MustCompile(p)
	}
	return &PromptInjectionHeuristicScanner{threshold: threshold, phrases: phrases}
}

func (s *PromptInjectionHeuristicScanner) Name() string { return "PromptInjection" }

func (s *PromptInjectionHeuristicScanner) Scan(ctx context.Context, text string, sctx scan.Context) (scan.Verdict, error) {
	var hits []string
	score := 0.0
	for _, re := range s.phrases {
		if re.MatchString(text) {
			score += 0.5
			hits = append(hits, re.String())
		}
	}
	if score > 1 {
		score = 1
	}

	if score >= s.threshold {
		return scan.Verdict{
			ScannerName: s.Name(),
			Passed:      false,
			RiskScore:   score,
			Reason:      "matched " + strings.Join(hits, ", "),
		}, nil
	}
	return scan.Verdict{ScannerName: s.Name(), Passed: true, RiskScore: score}, nil
}
