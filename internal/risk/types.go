package risk

import "time"

// Dimension identifies a risk scoring dimension produced by a sub-analyzer.
type Dimension string

const (
	DimensionTransaction Dimension = "transaction"
	DimensionContract    Dimension = "contract"
	DimensionLiquidity   Dimension = "liquidity"
	DimensionBehavioral  Dimension = "behavioral"
)

// AddressType classifies the analyzed address.
type AddressType string

const (
	AddressWallet   AddressType = "wallet"
	AddressContract AddressType = "contract"
	AddressToken    AddressType = "token"
)

// SubScore is a single sub-analyzer result. Immutable once produced.
type SubScore struct {
	Dimension Dimension `json:"dimension"`
	Value     int       `json:"value"`
	Flags     []string  `json:"flags"`
}

// Analyzer is the boundary to an external sub-analyzer. Implementations
// live outside this module; unreachable analyzers are represented by the
// caller as a zero sub-score with an explanatory flag.
type Analyzer interface {
	Name() string
	Analyze(address string) (SubScore, error)
}

// Assessment is the composite result of aggregating all sub-scores.
type Assessment struct {
	Address         string      `json:"address"`
	TransactionRisk int         `json:"transactionRisk"`
	ContractRisk    int         `json:"contractRisk"`
	LiquidityRisk   int         `json:"liquidityRisk"`
	BehavioralRisk  int         `json:"behavioralRisk"`
	OverallScore    int         `json:"overallScore"`
	AddressType     AddressType `json:"addressType"`
	Flags           []string    `json:"flags"`
	CreatedAt       time.Time   `json:"createdAt"`
}

// Level is the five-bucket human readable risk label.
type Level string

const (
	LevelVeryLow  Level = "Very Low"
	LevelLow      Level = "Low"
	LevelMedium   Level = "Medium"
	LevelHigh     Level = "High"
	LevelVeryHigh Level = "Very High"
)

// LevelForScore maps a 0-100 composite score to its label.
func LevelForScore(score int) Level {
	switch {
	case score < 20:
		return LevelVeryLow
	case score < 40:
		return LevelLow
	case score < 60:
		return LevelMedium
	case score < 80:
		return LevelHigh
	default:
		return LevelVeryHigh
	}
}
