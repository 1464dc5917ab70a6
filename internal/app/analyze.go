package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"risk-sentinel/internal/registry"
	"risk-sentinel/internal/risk"
)

// AnalyzeOptions configure a one-shot analysis.
type AnalyzeOptions struct {
	Address string
	AsJSON  bool
	// ScoresFile switches to offline mode: sub-analyzer results are
	// read from this JSON document and aggregated locally instead of
	// calling the scoring backend.
	ScoresFile string
}

// Analyze scores a single address through the scoring interface and
// prints the assessment. No chain writes.
func (a *App) Analyze(ctx context.Context, opts AnalyzeOptions) error {
	address := strings.TrimSpace(opts.Address)
	if address == "" {
		return fmt.Errorf("an address is required")
	}

	if opts.ScoresFile != "" {
		return a.analyzeOffline(address, opts)
	}

	scorer := a.newScorer()
	result, err := scorer.Score(ctx, address)
	if err != nil {
		return err
	}

	if opts.AsJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	}

	ordinal := registry.OrdinalForScore(result.RiskScore)
	fmt.Fprintf(os.Stdout, "Address:     %s\n", result.Address)
	fmt.Fprintf(os.Stdout, "Risk score:  %d/100 (%s)\n", result.RiskScore, risk.LevelForScore(result.RiskScore))
	fmt.Fprintf(os.Stdout, "On-chain:    %s (%d)\n", ordinal.Label(), int(ordinal))
	fmt.Fprintf(os.Stdout, "Breakdown:   contract %d, behavior %d, reputation %d\n",
		result.Breakdown.ContractRisk, result.Breakdown.BehaviorRisk, result.Breakdown.ReputationRisk)
	if result.Summary != "" {
		fmt.Fprintf(os.Stdout, "Summary:     %s\n", result.Summary)
	}
	for _, finding := range result.KeyFindings {
		fmt.Fprintf(os.Stdout, "  - %s\n", finding)
	}

	a.printSubmitVerdict(result.RiskScore)
	return nil
}

// offlineScores is the on-disk shape of captured sub-analyzer results.
type offlineScores struct {
	IsContract       bool            `json:"isContract"`
	HasLiquidityPair bool            `json:"hasLiquidityPair"`
	SubScores        []risk.SubScore `json:"subScores"`
}

// staticAnalyzer replays one captured sub-score through the analyzer
// boundary.
type staticAnalyzer struct {
	sub risk.SubScore
}

func (s staticAnalyzer) Name() string { return string(s.sub.Dimension) }

func (s staticAnalyzer) Analyze(address string) (risk.SubScore, error) {
	return s.sub, nil
}

// analyzeOffline aggregates captured sub-analyzer results into a
// composite assessment without touching the scoring backend. It exists
// to recompute and explain a score from raw sub-scores.
func (a *App) analyzeOffline(address string, opts AnalyzeOptions) error {
	payload, err := os.ReadFile(opts.ScoresFile)
	if err != nil {
		return fmt.Errorf("read sub-analyzer scores: %w", err)
	}

	var scores offlineScores
	if err := json.Unmarshal(payload, &scores); err != nil {
		return fmt.Errorf("parse sub-analyzer scores: %w", err)
	}
	if len(scores.SubScores) == 0 {
		return fmt.Errorf("%s contains no sub-analyzer scores", opts.ScoresFile)
	}

	analyzers := make([]risk.Analyzer, 0, len(scores.SubScores))
	for _, sub := range scores.SubScores {
		analyzers = append(analyzers, staticAnalyzer{sub: sub})
	}

	assessment := risk.Compose(address, scores.IsContract, scores.HasLiquidityPair, analyzers)

	if opts.AsJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(assessment)
	}

	ordinal := registry.OrdinalForScore(assessment.OverallScore)
	fmt.Fprintf(os.Stdout, "Address:     %s (%s)\n", assessment.Address, assessment.AddressType)
	fmt.Fprintf(os.Stdout, "Risk score:  %d/100 (%s)\n", assessment.OverallScore, risk.LevelForScore(assessment.OverallScore))
	fmt.Fprintf(os.Stdout, "On-chain:    %s (%d)\n", ordinal.Label(), int(ordinal))
	fmt.Fprintf(os.Stdout, "Dimensions:  transaction %d, contract %d, liquidity %d, behavioral %d\n",
		assessment.TransactionRisk, assessment.ContractRisk, assessment.LiquidityRisk, assessment.BehavioralRisk)
	for _, flag := range assessment.Flags {
		fmt.Fprintf(os.Stdout, "  - %s\n", flag)
	}

	a.printSubmitVerdict(assessment.OverallScore)
	return nil
}

func (a *App) printSubmitVerdict(score int) {
	threshold := a.Config.Scoring.SubmissionThreshold
	if score >= threshold {
		fmt.Fprintf(os.Stdout, "Would submit: yes (score >= threshold %d)\n", threshold)
	} else {
		fmt.Fprintf(os.Stdout, "Would submit: no (score < threshold %d)\n", threshold)
	}
}
