package app

import (
	"fmt"

	"github.com/sentrygate/gateway/internal/config"
	"github.com/sentrygate/gateway/internal/scan"
	"github.com/sentrygate/gateway/internal/scan/builtin"
)

// buildScanners resolves a stage's configured scanner names into concrete
// Scanner instances. Params are scanner-specific: "threshold" for the
// heuristic scanners, "patterns" and "reason" for regex.
func buildScanners(entries []config.ScannerConfig) ([]scan.Scanner, error) {
	out := make([]scan.Scanner, 0, len(entries))
	for _, e := range entries {
		s, err := buildScanner(e)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func buildScanner(e config.ScannerConfig) (scan.Scanner, error) {
	switch e.Name {
	case "prompt_injection":
		return builtin.NewPromptInjectionHeuristicScanner(floatParam(e.Params, "threshold", 0.5)), nil
	case "toxicity":
		return builtin.NewToxicityHeuristicScanner(floatParam(e.Params, "threshold", 0.5)), nil
	case "no_code":
		return builtin.NewNoCodeScanner(), nil
	case "regex":
		patterns, _ := e.Params["patterns"].([]interface{})
		strPatterns := make([]string, 0, len(patterns))
		for _, p := range patterns {
			if s, ok := p.(string); ok {
				strPatterns = append(strPatterns, s)
			}
		}
		reason, _ := e.Params["reason"].(string)
		return builtin.NewRegexScanner(scannerInstanceName(e), strPatterns, reason)
	default:
		return nil, fmt.Errorf("app: unknown scanner %q", e.Name)
	}
}

// scannerInstanceName lets a deployment run more than one regex scanner
// under distinct names (e.g. "regex:credentials", "regex:banned-phrases").
func scannerInstanceName(e config.ScannerConfig) string {
	if label, ok := e.Params["label"].(string); ok && label != "" {
		return label
	}
	return e.Name
}

func floatParam(params map[string]interface{}, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		}
	}
	return def
}

func pipelineFor(stage config.ScanStageConfig) (*scan.Pipeline, error) {
	if !stage.Enabled {
		return scan.Disabled(), nil
	}
	scanners, err := buildScanners(stage.Scanners)
	if err != nil {
		return nil, err
	}
	policy := scan.PolicyFailFast
	if stage.Policy == string(scan.PolicyRunAll) {
		policy = scan.PolicyRunAll
	}
	return scan.NewPipeline(policy, scanners, scan.WithBlockOnScanError(stage.BlockOnScanError)), nil
}
