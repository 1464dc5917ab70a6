package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"risk-sentinel/internal/alerting"
	"risk-sentinel/internal/disclosure"
	"risk-sentinel/internal/engine"
	"risk-sentinel/internal/registry"
	"risk-sentinel/internal/scanner"
	"risk-sentinel/internal/scoring"
	"risk-sentinel/internal/storage"
)

type fakeObserver struct {
	cursor  uint64
	targets []scanner.Target
	err     error
	block   chan struct{}
	calls   atomic.Int32
}

func (f *fakeObserver) Scan(ctx context.Context, cursor uint64, maxBlocks int) (uint64, []scanner.Target, error) {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return cursor, nil, f.err
	}
	return f.cursor, f.targets, nil
}

type fakeDecider struct {
	decisions []engine.Decision
}

func (f *fakeDecider) Decide(ctx context.Context, targets []scanner.Target) []engine.Decision {
	return f.decisions
}

type fakeSubmitter struct {
	err   error
	calls int
}

func (f *fakeSubmitter) Submit(ctx context.Context, result scoring.Result) (registry.CanonicalReport, registry.Proof, error) {
	f.calls++
	if f.err != nil {
		return registry.CanonicalReport{}, registry.Proof{}, f.err
	}
	report := registry.NewCanonicalReport(result, time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	return report, registry.Proof{TxHash: "0xtx1", BlockNumber: 77, ReportHash: "0xhash1", GasUsed: 52000}, nil
}

type fakeVerifier struct {
	verified bool
	calls    int
}

func (f *fakeVerifier) Verify(ctx context.Context, address string, report registry.CanonicalReport, onChainHint string) (registry.VerificationResult, error) {
	f.calls++
	return registry.VerificationResult{Address: address, Verified: f.verified}, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	alerts []alerting.Alert
}

func (f *fakeNotifier) Notify(ctx context.Context, alert alerting.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert)
	return nil
}

type fakeMirror struct {
	err     error
	records []storage.AlertRecord
}

func (f *fakeMirror) InsertAlert(ctx context.Context, rec storage.AlertRecord) (storage.AlertRecord, error) {
	if f.err != nil {
		return storage.AlertRecord{}, f.err
	}
	f.records = append(f.records, rec)
	return rec, nil
}

func decision(addr string, score int, submit bool, skip string) engine.Decision {
	return engine.Decision{
		Target:       scanner.Target{Address: addr, Reason: scanner.ReasonLargeValueTransfer},
		Result:       scoring.Result{Address: addr, RiskScore: score, RiskLevel: "High"},
		ShouldSubmit: submit,
		SkipReason:   skip,
	}
}

func newTestRuntime(t *testing.T, observer Observer, decider Decider, submitter Submitter, verifier Verifier) (*Runtime, *alerting.Store, *disclosure.Log) {
	t.Helper()
	log, err := disclosure.Open("", zerolog.Nop())
	if err != nil {
		t.Fatalf("open disclosure log: %v", err)
	}
	t.Cleanup(func() { log.Close() })
	alerts := alerting.NewStore()
	rt := New(observer, decider, submitter, verifier, log, alerts,
		Options{BlocksPerCycle: 40, ExplorerBaseURL: "https://testnet.bscscan.com"}, zerolog.Nop())
	return rt, alerts, log
}

func TestRunCycleSubmitsAndDiscloses(t *testing.T) {
	observer := &fakeObserver{cursor: 140, targets: []scanner.Target{{Address: "0xaa"}, {Address: "0xbb"}, {Address: "0xcc"}}}
	decider := &fakeDecider{decisions: []engine.Decision{
		decision("0xaa", 85, true, ""),
		decision("0xbb", 20, false, engine.SkipBelowThreshold),
		decision("0xcc", 70, false, engine.SkipRecentlyAnalyzed),
	}}
	submitter := &fakeSubmitter{}
	verifier := &fakeVerifier{verified: true}
	notifier := &fakeNotifier{}

	rt, alerts, log := newTestRuntime(t, observer, decider, submitter, verifier)
	rt.WithNotifier(notifier)

	if err := rt.RunCycle(context.Background(), time.Now()); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	if rt.Cursor() != 140 {
		t.Fatalf("cursor should advance to 140, got %d", rt.Cursor())
	}
	if rt.CycleCount() != 1 {
		t.Fatalf("expected one completed cycle, got %d", rt.CycleCount())
	}
	if submitter.calls != 1 {
		t.Fatalf("expected one submission, got %d", submitter.calls)
	}
	if observer.calls.Load() != 1 {
		t.Fatalf("expected one observation, got %d", observer.calls.Load())
	}
	if verifier.calls != 1 {
		t.Fatal("every submission must be verified")
	}

	entries := log.Recent(0)
	if len(entries) != 3 {
		t.Fatalf("expected one disclosure per decision, got %d", len(entries))
	}
	actions := map[string]disclosure.Action{}
	for _, e := range entries {
		actions[e.Address] = e.Action
	}
	if actions["0xaa"] != disclosure.ActionOnChainSubmission {
		t.Fatalf("submission should disclose onchain_submission, got %s", actions["0xaa"])
	}
	if actions["0xbb"] != disclosure.ActionSkipThreshold {
		t.Fatalf("low score should disclose skip_threshold, got %s", actions["0xbb"])
	}
	if actions["0xcc"] != disclosure.ActionSkipDuplicate {
		t.Fatalf("cooled-down target should disclose skip_duplicate, got %s", actions["0xcc"])
	}

	stored := alerts.Recent(0)
	if len(stored) != 1 {
		t.Fatalf("only the submitted target should alert, got %d", len(stored))
	}
	if stored[0].TxHash != "0xtx1" {
		t.Fatalf("alert should carry the submission tx, got %q", stored[0].TxHash)
	}
	if stored[0].ExplorerURL != "https://testnet.bscscan.com/tx/0xtx1" {
		t.Fatalf("unexpected explorer url: %s", stored[0].ExplorerURL)
	}
	if len(notifier.alerts) != 1 {
		t.Fatalf("notifier should see the alert, got %d", len(notifier.alerts))
	}
}

func TestRunCycleReadOnlyStillAlerts(t *testing.T) {
	observer := &fakeObserver{cursor: 10, targets: []scanner.Target{{Address: "0xaa"}}}
	decider := &fakeDecider{decisions: []engine.Decision{
		decision("0xaa", 92, false, engine.SkipNoSigningKey),
	}}
	submitter := &fakeSubmitter{}

	rt, alerts, log := newTestRuntime(t, observer, decider, submitter, &fakeVerifier{})
	if err := rt.RunCycle(context.Background(), time.Now()); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	if submitter.calls != 0 {
		t.Fatal("read-only mode must never submit")
	}
	entries := log.Recent(0)
	if len(entries) != 1 || entries[0].Action != disclosure.ActionAlertGenerated {
		t.Fatalf("expected alert_generated disclosure, got %+v", entries)
	}
	stored := alerts.Recent(0)
	if len(stored) != 1 || stored[0].TxHash != "" {
		t.Fatalf("read-only alert must have no tx hash: %+v", stored)
	}
	if stored[0].ExplorerURL != "https://testnet.bscscan.com/address/0xaa" {
		t.Fatalf("read-only alert should link the address page: %s", stored[0].ExplorerURL)
	}
}

func TestRunCycleSubmissionFailure(t *testing.T) {
	observer := &fakeObserver{cursor: 10, targets: []scanner.Target{{Address: "0xaa"}}}
	decider := &fakeDecider{decisions: []engine.Decision{
		decision("0xaa", 85, true, ""),
	}}
	submitter := &fakeSubmitter{err: errors.New("execution reverted")}
	verifier := &fakeVerifier{}

	rt, alerts, log := newTestRuntime(t, observer, decider, submitter, verifier)
	if err := rt.RunCycle(context.Background(), time.Now()); err != nil {
		t.Fatalf("a failed submission must not fail the cycle: %v", err)
	}

	entries := log.Recent(0)
	if len(entries) != 1 || entries[0].Action != disclosure.ActionSubmissionFailed {
		t.Fatalf("expected submission_failed disclosure, got %+v", entries)
	}
	if verifier.calls != 0 {
		t.Fatal("failed submissions must not be verified")
	}
	if len(alerts.Recent(0)) != 0 {
		t.Fatal("failed submissions must not alert")
	}
}

func TestRunCycleMirrorsAlertsToStore(t *testing.T) {
	observer := &fakeObserver{cursor: 10, targets: []scanner.Target{{Address: "0xAA"}}}
	decider := &fakeDecider{decisions: []engine.Decision{
		decision("0xAA", 85, true, ""),
	}}
	mirror := &fakeMirror{}

	rt, alerts, _ := newTestRuntime(t, observer, decider, &fakeSubmitter{}, &fakeVerifier{verified: true})
	rt.WithPersistence(nil, nil, mirror)

	if err := rt.RunCycle(context.Background(), time.Now()); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	if len(mirror.records) != 1 {
		t.Fatalf("every generated alert must reach the mirror, got %d", len(mirror.records))
	}
	rec := mirror.records[0]
	if rec.Address != "0xaa" {
		t.Fatalf("mirrored address should be lowercased, got %q", rec.Address)
	}
	if rec.TxHash == nil || *rec.TxHash != "0xtx1" {
		t.Fatalf("mirrored alert should carry the submission tx: %+v", rec.TxHash)
	}
	if rec.ReportHash == nil || *rec.ReportHash != "0xhash1" {
		t.Fatalf("mirrored alert should carry the report hash: %+v", rec.ReportHash)
	}
	if rec.Confidence != alerts.Recent(0)[0].Confidence {
		t.Fatal("mirrored confidence should match the stored alert")
	}
}

func TestRunCycleMirrorFailureDoesNotFailCycle(t *testing.T) {
	observer := &fakeObserver{cursor: 10, targets: []scanner.Target{{Address: "0xaa"}}}
	decider := &fakeDecider{decisions: []engine.Decision{
		decision("0xaa", 85, true, ""),
	}}
	mirror := &fakeMirror{err: errors.New("connection refused")}

	rt, alerts, _ := newTestRuntime(t, observer, decider, &fakeSubmitter{}, &fakeVerifier{verified: true})
	rt.WithPersistence(nil, nil, mirror)

	if err := rt.RunCycle(context.Background(), time.Now()); err != nil {
		t.Fatalf("a mirror outage must not fail the cycle: %v", err)
	}
	if len(alerts.Recent(0)) != 1 {
		t.Fatal("the in-memory alert must survive a mirror outage")
	}
}

func TestRunCycleObserveErrorPropagates(t *testing.T) {
	observer := &fakeObserver{err: errors.New("rpc down")}
	rt, _, _ := newTestRuntime(t, observer, &fakeDecider{}, &fakeSubmitter{}, &fakeVerifier{})

	if err := rt.RunCycle(context.Background(), time.Now()); err == nil {
		t.Fatal("observation failure should surface to the scheduler")
	}
}

func TestRunCycleDropsOverlappingTick(t *testing.T) {
	observer := &fakeObserver{block: make(chan struct{})}
	rt, _, _ := newTestRuntime(t, observer, &fakeDecider{}, &fakeSubmitter{}, &fakeVerifier{})

	done := make(chan struct{})
	go func() {
		_ = rt.RunCycle(context.Background(), time.Now())
		close(done)
	}()

	// Wait for the first cycle to enter its blocking observation.
	for i := 0; i < 100 && observer.calls.Load() == 0; i++ {
		time.Sleep(time.Millisecond)
	}

	if err := rt.RunCycle(context.Background(), time.Now()); err != nil {
		t.Fatalf("overlapping tick should be dropped silently: %v", err)
	}
	if got := observer.calls.Load(); got != 1 {
		t.Fatalf("second tick must not observe, saw %d calls", got)
	}

	close(observer.block)
	<-done
}
