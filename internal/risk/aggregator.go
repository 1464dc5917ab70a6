package risk

import (
	"math"
	"strings"
	"time"
)

// Weights of the linear combination. Transaction behaviour dominates,
// contract security and liquidity moderate, behavioural anomalies top up.
const (
	weightTransaction = 0.45
	weightContract    = 0.25
	weightLiquidity   = 0.20
	weightBehavioral  = 0.10
)

// componentFloor raises the running score when the worst major component
// reaches a severity band. Floors only ever raise, never lower.
type componentFloor struct {
	threshold int
	floor     int
}

var componentFloors = []componentFloor{
	{40, 38},
	{50, 42},
	{60, 50},
	{75, 65},
	{85, 80},
}

var flagCountFloors = []componentFloor{
	{3, 45},
	{5, 60},
	{7, 75},
}

// Inputs carries everything the aggregator needs for one address.
// Sub-scores come from external analyzers; flag slices keep discovery
// order and may contain duplicates.
type Inputs struct {
	Address            string
	TransactionRisk    int
	ContractRisk       int
	LiquidityRisk      int
	SuspiciousFlags    []string
	LiquidityAnomalies []string
	ContractRiskFlags  []string
	IsContract         bool
	HasLiquidityPair   bool
}

// Aggregate combines sub-scores into a composite assessment. It never
// fails: every input maps to a score in [0,100], and raising any single
// sub-score can never lower the composite.
func Aggregate(in Inputs) Assessment {
	behavioral := behavioralScore(len(in.SuspiciousFlags), len(in.LiquidityAnomalies))

	score := int(math.Round(
		float64(in.TransactionRisk)*weightTransaction +
			float64(in.ContractRisk)*weightContract +
			float64(in.LiquidityRisk)*weightLiquidity +
			float64(behavioral)*weightBehavioral,
	))

	// One severely risky dimension must not be diluted by the other
	// weights into a falsely low composite.
	maxComponent := in.TransactionRisk
	if in.ContractRisk > maxComponent {
		maxComponent = in.ContractRisk
	}
	if in.LiquidityRisk > maxComponent {
		maxComponent = in.LiquidityRisk
	}
	for _, f := range componentFloors {
		if maxComponent >= f.threshold && score < f.floor {
			score = f.floor
		}
	}

	flags := make([]string, 0, len(in.SuspiciousFlags)+len(in.LiquidityAnomalies)+len(in.ContractRiskFlags))
	flags = append(flags, in.SuspiciousFlags...)
	flags = append(flags, in.LiquidityAnomalies...)
	flags = append(flags, in.ContractRiskFlags...)

	// Many independent weak signals are themselves a strong signal.
	for _, f := range flagCountFloors {
		if len(flags) >= f.threshold && score < f.floor {
			score = f.floor
		}
	}

	if score > 100 {
		score = 100
	}

	return Assessment{
		Address:         strings.ToLower(in.Address),
		TransactionRisk: in.TransactionRisk,
		ContractRisk:    in.ContractRisk,
		LiquidityRisk:   in.LiquidityRisk,
		BehavioralRisk:  behavioral,
		OverallScore:    score,
		AddressType:     classifyAddress(in),
		Flags:           flags,
		CreatedAt:       time.Now().UTC(),
	}
}

// behavioralScore derives the fourth dimension from flag counts rather
// than a raw sub-analyzer: suspicious activity contributes up to 60,
// liquidity anomalies up to 40.
func behavioralScore(suspicious, anomalies int) int {
	score := 0
	if suspicious > 0 {
		score = minInt(suspicious*15, 60)
	}
	if anomalies > 0 {
		score += minInt(anomalies*10, 40)
	}
	return minInt(score, 100)
}

func classifyAddress(in Inputs) AddressType {
	if !in.IsContract {
		return AddressWallet
	}
	if in.HasLiquidityPair {
		return AddressToken
	}
	return AddressContract
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
