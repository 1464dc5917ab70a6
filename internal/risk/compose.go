package risk

import "fmt"

// Compose runs every sub-analyzer against the address, routes the
// sub-scores into their dimensions, and aggregates the composite
// assessment. It never fails: an unreachable analyzer contributes a
// zero sub-score, and the outage is surfaced as a flag on the
// assessment without inflating its score.
func Compose(address string, isContract, hasLiquidityPair bool, analyzers []Analyzer) Assessment {
	in := Inputs{
		Address:          address,
		IsContract:       isContract,
		HasLiquidityPair: hasLiquidityPair,
	}
	var notes []string

	for _, analyzer := range analyzers {
		sub, err := analyzer.Analyze(address)
		if err != nil {
			notes = append(notes, fmt.Sprintf("%s analyzer unavailable: %v", analyzer.Name(), err))
			continue
		}
		switch sub.Dimension {
		case DimensionTransaction:
			in.TransactionRisk = maxInt(in.TransactionRisk, sub.Value)
			in.SuspiciousFlags = append(in.SuspiciousFlags, sub.Flags...)
		case DimensionContract:
			in.ContractRisk = maxInt(in.ContractRisk, sub.Value)
			in.ContractRiskFlags = append(in.ContractRiskFlags, sub.Flags...)
		case DimensionLiquidity:
			in.LiquidityRisk = maxInt(in.LiquidityRisk, sub.Value)
			in.LiquidityAnomalies = append(in.LiquidityAnomalies, sub.Flags...)
		case DimensionBehavioral:
			// Behavioral is derived from flag counts, not a raw value.
			in.SuspiciousFlags = append(in.SuspiciousFlags, sub.Flags...)
		default:
			notes = append(notes, fmt.Sprintf("%s analyzer returned unknown dimension %q", analyzer.Name(), sub.Dimension))
		}
	}

	assessment := Aggregate(in)
	assessment.Flags = append(assessment.Flags, notes...)
	return assessment
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
