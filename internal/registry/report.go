package registry

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"risk-sentinel/internal/scoring"
)

// SchemaVersion pins the canonical report layout. Bumping it changes
// every report hash, so it moves only with the scoring backend schema.
const SchemaVersion = "2.0"

// OrdinalLevel is the compact three-bucket severity stored on-chain.
type OrdinalLevel uint8

const (
	OrdinalLow    OrdinalLevel = 0
	OrdinalMedium OrdinalLevel = 1
	OrdinalHigh   OrdinalLevel = 2
)

var ordinalLabels = [...]string{"LOW", "MEDIUM", "HIGH"}

// OrdinalForScore buckets a 0-100 score: [0,33] LOW, [34,66] MEDIUM,
// [67,100] HIGH.
func OrdinalForScore(score int) OrdinalLevel {
	switch {
	case score <= 33:
		return OrdinalLow
	case score <= 66:
		return OrdinalMedium
	default:
		return OrdinalHigh
	}
}

// Label returns the human readable form of the ordinal.
func (l OrdinalLevel) Label() string {
	if int(l) < len(ordinalLabels) {
		return ordinalLabels[l]
	}
	return "UNKNOWN"
}

// CanonicalReport is the exact hashing input committed on-chain. Field
// order, key names, and number formatting are load-bearing: two
// processes given the same logical report must serialize byte-identical
// JSON, because the proof hash is taken over that serialization.
type CanonicalReport struct {
	Address       string            `json:"address"`
	RiskScore     int               `json:"riskScore"`
	RiskLevel     string            `json:"riskLevel"`
	Breakdown     scoring.Breakdown `json:"breakdown"`
	Timestamp     string            `json:"timestamp"`
	SchemaVersion string            `json:"schemaVersion"`
}

// NewCanonicalReport builds the canonical form of a scoring result.
func NewCanonicalReport(result scoring.Result, at time.Time) CanonicalReport {
	return CanonicalReport{
		Address:       strings.ToLower(result.Address),
		RiskScore:     result.RiskScore,
		RiskLevel:     result.RiskLevel,
		Breakdown:     result.Breakdown,
		Timestamp:     at.UTC().Format(time.RFC3339),
		SchemaVersion: SchemaVersion,
	}
}

// Serialize produces the canonical byte form of the report.
// encoding/json emits struct fields in declaration order with no
// insignificant whitespace, which makes the output deterministic.
func (r CanonicalReport) Serialize() ([]byte, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("serialize canonical report: %w", err)
	}
	return payload, nil
}

// Hash computes the keccak256 content hash of the canonical form.
func (r CanonicalReport) Hash() (common.Hash, error) {
	payload, err := r.Serialize()
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(payload), nil
}

// Proof records a confirmed on-chain submission.
type Proof struct {
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`
	ReportHash  string `json:"reportHash"`
	GasUsed     uint64 `json:"gasUsed"`
}

// Report is a registry entry read back from chain.
type Report struct {
	Target     string
	Score      int
	Level      OrdinalLevel
	ReportHash common.Hash
	Timestamp  time.Time
	Submitter  string
}
