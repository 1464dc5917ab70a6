package registry

import (
	"strings"
	"testing"
	"time"

	"risk-sentinel/internal/scoring"
)

func sampleResult() scoring.Result {
	return scoring.Result{
		Address:   "0xAbC0000000000000000000000000000000000001",
		RiskScore: 72,
		RiskLevel: "High",
		Breakdown: scoring.Breakdown{ContractRisk: 80, BehaviorRisk: 65, ReputationRisk: 40},
	}
}

func TestCanonicalReportDeterministic(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	a, err := NewCanonicalReport(sampleResult(), at).Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	b, err := NewCanonicalReport(sampleResult(), at).Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if string(a) != string(b) {
		t.Fatalf("serialization not deterministic:\n%s\n%s", a, b)
	}

	want := `{"address":"0xabc0000000000000000000000000000000000001","riskScore":72,"riskLevel":"High","breakdown":{"contract_risk":80,"behavior_risk":65,"reputation_risk":40},"timestamp":"2026-03-14T09:26:53Z","schemaVersion":"2.0"}`
	if string(a) != want {
		t.Fatalf("canonical layout drifted:\n got %s\nwant %s", a, want)
	}
}

func TestCanonicalReportHashChangesWithAnyField(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	base := NewCanonicalReport(sampleResult(), at)
	baseHash, err := base.Hash()
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	mutations := []func(*CanonicalReport){
		func(r *CanonicalReport) { r.Address = strings.Replace(r.Address, "1", "2", 1) },
		func(r *CanonicalReport) { r.RiskScore++ },
		func(r *CanonicalReport) { r.RiskLevel = "Medium" },
		func(r *CanonicalReport) { r.Breakdown.BehaviorRisk++ },
		func(r *CanonicalReport) { r.Timestamp = at.Add(time.Second).Format(time.RFC3339) },
		func(r *CanonicalReport) { r.SchemaVersion = "2.1" },
	}
	for i, mutate := range mutations {
		mutated := base
		mutate(&mutated)
		hash, err := mutated.Hash()
		if err != nil {
			t.Fatalf("hash mutation %d: %v", i, err)
		}
		if hash == baseHash {
			t.Fatalf("mutation %d did not change the hash", i)
		}
	}
}

func TestOrdinalForScoreBoundaries(t *testing.T) {
	cases := map[int]OrdinalLevel{
		0:   OrdinalLow,
		33:  OrdinalLow,
		34:  OrdinalMedium,
		66:  OrdinalMedium,
		67:  OrdinalHigh,
		100: OrdinalHigh,
	}
	for score, want := range cases {
		if got := OrdinalForScore(score); got != want {
			t.Fatalf("score %d: expected %s, got %s", score, want.Label(), got.Label())
		}
	}
}

func TestOrdinalLabels(t *testing.T) {
	if OrdinalLow.Label() != "LOW" || OrdinalMedium.Label() != "MEDIUM" || OrdinalHigh.Label() != "HIGH" {
		t.Fatal("unexpected ordinal labels")
	}
	if OrdinalLevel(9).Label() != "UNKNOWN" {
		t.Fatal("out-of-range ordinal should label UNKNOWN")
	}
}
