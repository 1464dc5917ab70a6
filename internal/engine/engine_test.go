package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"risk-sentinel/internal/registry"
	"risk-sentinel/internal/scanner"
	"risk-sentinel/internal/scoring"
)

type fakeRegistry struct {
	reports map[string]registry.Report
}

func (f *fakeRegistry) LatestReport(ctx context.Context, target string) (registry.Report, error) {
	report, ok := f.reports[target]
	if !ok {
		return registry.Report{}, registry.ErrNoReport
	}
	return report, nil
}

func (f *fakeRegistry) ReportCount(ctx context.Context, target string) (uint64, error) {
	if _, ok := f.reports[target]; ok {
		return 1, nil
	}
	return 0, nil
}

type fakeScorer struct {
	mu     sync.Mutex
	scores map[string]int
	err    error
	calls  int
}

func (f *fakeScorer) Score(ctx context.Context, address string) (scoring.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return scoring.Result{}, f.err
	}
	score := f.scores[address]
	return scoring.Result{Address: address, RiskScore: score, RiskLevel: "High"}, nil
}

func target(addr string) scanner.Target {
	return scanner.Target{Address: addr, Reason: scanner.ReasonContractDeployment}
}

func TestDecideCooldownSkipsScoring(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	reg := &fakeRegistry{reports: map[string]registry.Report{
		"0xaa": {Score: 81, Level: registry.OrdinalHigh, Timestamp: now.Add(-2 * time.Minute)},
	}}
	scorer := &fakeScorer{}

	e := New(reg, scorer, Options{Threshold: 50, Cooldown: 5 * time.Minute, SigningConfigured: true}, zerolog.Nop())
	e.now = func() time.Time { return now }

	decisions := e.Decide(context.Background(), []scanner.Target{target("0xaa")})
	if len(decisions) != 1 {
		t.Fatalf("expected one decision, got %d", len(decisions))
	}
	d := decisions[0]
	if d.ShouldSubmit {
		t.Fatal("cooled-down target must not submit")
	}
	if d.SkipReason != SkipRecentlyAnalyzed {
		t.Fatalf("expected %s, got %s", SkipRecentlyAnalyzed, d.SkipReason)
	}
	if scorer.calls != 0 {
		t.Fatal("scorer must not be invoked inside the cooldown window")
	}
	if d.Result.RiskScore != 81 {
		t.Fatalf("cooldown decision should carry the on-chain score, got %d", d.Result.RiskScore)
	}
}

func TestDecideExpiredCooldownScoresAgain(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	reg := &fakeRegistry{reports: map[string]registry.Report{
		"0xaa": {Score: 81, Timestamp: now.Add(-10 * time.Minute)},
	}}
	scorer := &fakeScorer{scores: map[string]int{"0xaa": 90}}

	e := New(reg, scorer, Options{Threshold: 50, Cooldown: 5 * time.Minute, SigningConfigured: true}, zerolog.Nop())
	e.now = func() time.Time { return now }

	decisions := e.Decide(context.Background(), []scanner.Target{target("0xaa")})
	if len(decisions) != 1 || !decisions[0].ShouldSubmit {
		t.Fatalf("expired cooldown should allow a fresh submission: %+v", decisions)
	}
	if scorer.calls != 1 {
		t.Fatalf("expected one scoring call, got %d", scorer.calls)
	}
}

func TestDecideNoSigningKey(t *testing.T) {
	reg := &fakeRegistry{reports: map[string]registry.Report{}}
	scorer := &fakeScorer{scores: map[string]int{"0xbb": 99}}

	e := New(reg, scorer, Options{Threshold: 50, SigningConfigured: false}, zerolog.Nop())
	decisions := e.Decide(context.Background(), []scanner.Target{target("0xbb")})

	if len(decisions) != 1 {
		t.Fatalf("expected one decision, got %d", len(decisions))
	}
	if decisions[0].ShouldSubmit {
		t.Fatal("shouldSubmit must be false without a signing key, regardless of score")
	}
	if decisions[0].SkipReason != SkipNoSigningKey {
		t.Fatalf("expected %s, got %s", SkipNoSigningKey, decisions[0].SkipReason)
	}
}

func TestDecideThreshold(t *testing.T) {
	reg := &fakeRegistry{reports: map[string]registry.Report{}}
	scorer := &fakeScorer{scores: map[string]int{"0xcc": 49, "0xdd": 50}}

	e := New(reg, scorer, Options{Threshold: 50, SigningConfigured: true, Fanout: 2}, zerolog.Nop())
	decisions := e.Decide(context.Background(), []scanner.Target{target("0xcc"), target("0xdd")})

	if len(decisions) != 2 {
		t.Fatalf("expected two decisions, got %d", len(decisions))
	}
	if decisions[0].Target.Address != "0xcc" || decisions[1].Target.Address != "0xdd" {
		t.Fatal("decisions must preserve input order")
	}
	if decisions[0].ShouldSubmit || decisions[0].SkipReason != SkipBelowThreshold {
		t.Fatalf("below-threshold target mishandled: %+v", decisions[0])
	}
	if !decisions[1].ShouldSubmit {
		t.Fatal("at-threshold target should submit")
	}
}

func TestDecideDropsFailedScoring(t *testing.T) {
	reg := &fakeRegistry{reports: map[string]registry.Report{}}
	scorer := &fakeScorer{err: errors.New("backend down")}

	e := New(reg, scorer, Options{Threshold: 0, SigningConfigured: true}, zerolog.Nop())
	decisions := e.Decide(context.Background(), []scanner.Target{target("0xee")})

	if len(decisions) != 0 {
		t.Fatalf("failed scoring should drop the target, got %d decisions", len(decisions))
	}
}
