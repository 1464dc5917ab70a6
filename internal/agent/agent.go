package agent

import (
	"context"
	"fmt"
	"sync/atomic"
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

const (
	modelIdentifier = "risk-sentinel/heuristic-v2"
	scoringFormula  = "weighted composite: transaction 45%, contract 25%, liquidity 20%, behavioral 10%, with severity and flag-count floors"
)

var analyzersUsed = []string{"transaction", "contract", "liquidity", "behavioral"}

// Observer discovers candidate addresses in a block range.
type Observer interface {
	Scan(ctx context.Context, cursor uint64, maxBlocks int) (uint64, []scanner.Target, error)
}

// Decider turns observed targets into submit-or-skip decisions.
type Decider interface {
	Decide(ctx context.Context, targets []scanner.Target) []engine.Decision
}

// Submitter commits one canonical report on chain.
type Submitter interface {
	Submit(ctx context.Context, result scoring.Result) (registry.CanonicalReport, registry.Proof, error)
}

// Verifier checks a local report against the on-chain record.
type Verifier interface {
	Verify(ctx context.Context, address string, report registry.CanonicalReport, onChainHint string) (registry.VerificationResult, error)
}

// AlertMirror persists generated alerts outside the process.
type AlertMirror interface {
	InsertAlert(ctx context.Context, alert storage.AlertRecord) (storage.AlertRecord, error)
}

// Options tune the agent runtime.
type Options struct {
	BlocksPerCycle  int
	ExplorerBaseURL string
	// AdvisoryLockKey guards cycles across instances sharing a database.
	// Zero disables the cross-instance guard.
	AdvisoryLockKey int64
}

// CycleSummary reports the outcome of one observe-decide-act pass.
type CycleSummary struct {
	CycleID     uint64
	FromCursor  uint64
	ToCursor    uint64
	Observed    int
	Decided     int
	Submitted   int
	Skipped     int
	Failed      int
	Alerts      int
	Elapsed     time.Duration
	SkippedBusy bool
}

// Runtime orchestrates the autonomous loop. One instance owns the scan
// cursor; cycles never overlap.
type Runtime struct {
	observer    Observer
	decider     Decider
	submitter   Submitter
	verifier    Verifier
	disclosures *disclosure.Log
	alerts      *alerting.Store
	notifier    alerting.Notifier
	locker      storage.AdvisoryLocker
	audit       storage.SubmissionStore
	mirror      AlertMirror
	opts        Options
	logger      zerolog.Logger

	running    atomic.Bool
	cursor     uint64
	cycleCount atomic.Uint64
}

// New constructs a Runtime. Notifier, locker, and audit store are
// optional.
func New(observer Observer, decider Decider, submitter Submitter, verifier Verifier, disclosures *disclosure.Log, alerts *alerting.Store, opts Options, logger zerolog.Logger) *Runtime {
	if opts.BlocksPerCycle <= 0 {
		opts.BlocksPerCycle = 40
	}
	return &Runtime{
		observer:    observer,
		decider:     decider,
		submitter:   submitter,
		verifier:    verifier,
		disclosures: disclosures,
		alerts:      alerts,
		opts:        opts,
		logger:      logger.With().Str("component", "agent").Logger(),
	}
}

// WithNotifier attaches an outbound alert channel.
func (r *Runtime) WithNotifier(n alerting.Notifier) *Runtime {
	r.notifier = n
	return r
}

// WithPersistence attaches the optional database-backed guard, audit,
// and alert mirror.
func (r *Runtime) WithPersistence(locker storage.AdvisoryLocker, audit storage.SubmissionStore, mirror AlertMirror) *Runtime {
	r.locker = locker
	r.audit = audit
	r.mirror = mirror
	return r
}

// CycleCount returns the number of completed cycles.
func (r *Runtime) CycleCount() uint64 {
	return r.cycleCount.Load()
}

// Cursor returns the next block the observer will scan from.
func (r *Runtime) Cursor() uint64 {
	return r.cursor
}

// RunCycle executes one observe-decide-act pass. A cycle that is still
// running when the next tick fires wins; the tick is dropped, not queued.
func (r *Runtime) RunCycle(ctx context.Context, at time.Time) error {
	if !r.running.CompareAndSwap(false, true) {
		r.logger.Warn().Msg("previous cycle still running, tick dropped")
		return nil
	}
	defer r.running.Store(false)

	if r.locker != nil && r.opts.AdvisoryLockKey != 0 {
		unlock, acquired, err := r.locker.TryAdvisoryLock(ctx, r.opts.AdvisoryLockKey)
		if err != nil {
			return fmt.Errorf("advisory lock: %w", err)
		}
		if !acquired {
			r.logger.Info().Msg("another instance holds the cycle lock, tick dropped")
			return nil
		}
		defer unlock()
	}

	cycleID := r.cycleCount.Add(1)
	started := time.Now()
	summary := CycleSummary{CycleID: cycleID, FromCursor: r.cursor}

	cursor, targets, err := r.observer.Scan(ctx, r.cursor, r.opts.BlocksPerCycle)
	if err != nil {
		return fmt.Errorf("observe: %w", err)
	}
	r.cursor = cursor
	summary.ToCursor = cursor
	summary.Observed = len(targets)

	decisions := r.decider.Decide(ctx, targets)
	summary.Decided = len(decisions)

	for _, decision := range decisions {
		r.act(ctx, cycleID, decision, &summary)
	}

	summary.Elapsed = time.Since(started)
	r.logCycle(summary)
	return nil
}

// act handles one decision: submissions are sequential so a failure on
// one target cannot interleave nonces with the next.
func (r *Runtime) act(ctx context.Context, cycleID uint64, decision engine.Decision, summary *CycleSummary) {
	result := decision.Result
	level := registry.OrdinalForScore(result.RiskScore)

	entry := disclosure.Entry{
		CycleID:        cycleID,
		Address:        result.Address,
		RiskScore:      result.RiskScore,
		RiskLevel:      level.Label(),
		Model:          modelIdentifier,
		AnalyzersUsed:  analyzersUsed,
		ScoringFormula: scoringFormula,
		Autonomous:     true,
	}

	if !decision.ShouldSubmit {
		summary.Skipped++
		switch decision.SkipReason {
		case engine.SkipRecentlyAnalyzed:
			entry.Action = disclosure.ActionSkipDuplicate
		case engine.SkipNoSigningKey:
			// Read-only mode still surfaces the finding as an alert.
			entry.Action = disclosure.ActionAlertGenerated
			r.emitAlert(ctx, decision, "", "", summary)
		default:
			entry.Action = disclosure.ActionSkipThreshold
		}
		r.disclosures.Append(entry)
		return
	}

	report, proof, err := r.submitter.Submit(ctx, result)
	if err != nil {
		summary.Failed++
		r.logger.Error().Err(err).Str("address", result.Address).Msg("submission failed")
		entry.Action = disclosure.ActionSubmissionFailed
		r.disclosures.Append(entry)
		return
	}
	summary.Submitted++

	entry.Action = disclosure.ActionOnChainSubmission
	entry.TxHash = &proof.TxHash
	entry.ReportHash = proof.ReportHash
	r.disclosures.Append(entry)

	if r.verifier != nil {
		verification, verr := r.verifier.Verify(ctx, report.Address, report, "")
		if verr != nil {
			r.logger.Warn().Err(verr).Str("address", report.Address).Msg("post-submit verification errored")
		} else if !verification.Verified {
			r.logger.Error().
				Str("address", report.Address).
				Str("localHash", verification.LocalHash).
				Msg("post-submit verification mismatch")
		}
	}

	if r.audit != nil {
		_, auditErr := r.audit.InsertSubmission(ctx, storage.SubmissionRecord{
			CycleID:     int64(cycleID),
			Address:     report.Address,
			RiskScore:   report.RiskScore,
			RiskLevel:   report.RiskLevel,
			ReportHash:  proof.ReportHash,
			TxHash:      proof.TxHash,
			BlockNumber: int64(proof.BlockNumber),
			GasUsed:     int64(proof.GasUsed),
		})
		if auditErr != nil {
			r.logger.Warn().Err(auditErr).Msg("submission audit write failed")
		}
	}

	r.emitAlert(ctx, decision, proof.TxHash, proof.ReportHash, summary)
}

func (r *Runtime) emitAlert(ctx context.Context, decision engine.Decision, txHash, reportHash string, summary *CycleSummary) {
	result := decision.Result
	alert := alerting.Alert{
		Address:     result.Address,
		RiskScore:   result.RiskScore,
		RiskLevel:   result.RiskLevel,
		Reason:      string(decision.Target.Reason),
		KeyFindings: result.KeyFindings,
		TxHash:      txHash,
		ReportHash:  reportHash,
	}
	if r.opts.ExplorerBaseURL != "" {
		if txHash != "" {
			alert.ExplorerURL = fmt.Sprintf("%s/tx/%s", r.opts.ExplorerBaseURL, txHash)
		} else {
			alert.ExplorerURL = fmt.Sprintf("%s/address/%s", r.opts.ExplorerBaseURL, result.Address)
		}
	}

	stored := r.alerts.Add(alert)
	summary.Alerts++

	if r.mirror != nil {
		record := storage.AlertRecord{
			Address:     stored.Address,
			RiskScore:   stored.RiskScore,
			RiskLevel:   stored.RiskLevel,
			Confidence:  stored.Confidence,
			Reason:      stored.Reason,
			KeyFindings: stored.KeyFindings,
		}
		if stored.TxHash != "" {
			record.TxHash = &stored.TxHash
		}
		if stored.ReportHash != "" {
			record.ReportHash = &stored.ReportHash
		}
		if stored.ExplorerURL != "" {
			record.ExplorerURL = &stored.ExplorerURL
		}
		if _, err := r.mirror.InsertAlert(ctx, record); err != nil {
			r.logger.Warn().Err(err).Str("address", stored.Address).Msg("alert mirror write failed")
		}
	}

	if r.notifier != nil {
		if err := r.notifier.Notify(ctx, stored); err != nil {
			r.logger.Warn().Err(err).Str("address", stored.Address).Msg("alert delivery failed")
		}
	}
}

func (r *Runtime) logCycle(summary CycleSummary) {
	r.logger.Info().
		Uint64("cycle", summary.CycleID).
		Uint64("fromBlock", summary.FromCursor).
		Uint64("toBlock", summary.ToCursor).
		Int("observed", summary.Observed).
		Int("decided", summary.Decided).
		Int("submitted", summary.Submitted).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Int("alerts", summary.Alerts).
		Dur("elapsed", summary.Elapsed).
		Msg("cycle complete")
}
