package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"risk-sentinel/internal/registry"
	"risk-sentinel/internal/scanner"
	"risk-sentinel/internal/scoring"
)

// Skip reasons recorded on decisions that do not submit.
const (
	SkipRecentlyAnalyzed = "recently_analyzed"
	SkipNoSigningKey     = "no_signing_key"
	SkipBelowThreshold   = "score_below_threshold"
)

// Decision is the engine's verdict for one observed target.
type Decision struct {
	Target       scanner.Target
	Result       scoring.Result
	ShouldSubmit bool
	SkipReason   string
}

// Options tune the decision engine.
type Options struct {
	// Threshold is the minimum composite score that warrants an
	// on-chain record.
	Threshold int
	// Cooldown is the minimum age of an existing report before the
	// address is analyzed again.
	Cooldown time.Duration
	// Fanout bounds concurrent scoring calls.
	Fanout int
	// SigningConfigured gates submission; without a key every decision
	// is a skip regardless of score.
	SigningConfigured bool
}

// Engine deduplicates work against the registry, invokes the scoring
// interface, and decides submit-vs-skip per target.
type Engine struct {
	reader registry.Reader
	scorer scoring.Scorer
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
}

// New constructs an Engine.
func New(reader registry.Reader, scorer scoring.Scorer, opts Options, logger zerolog.Logger) *Engine {
	if opts.Cooldown <= 0 {
		opts.Cooldown = 5 * time.Minute
	}
	if opts.Fanout <= 0 {
		opts.Fanout = 1
	}
	return &Engine{
		reader: reader,
		scorer: scorer,
		opts:   opts,
		logger: logger.With().Str("component", "engine").Logger(),
		now:    time.Now,
	}
}

// Decide evaluates every target. Targets whose scoring call fails are
// dropped from the cycle (logged, not retried); everything else yields
// exactly one decision, in input order.
func (e *Engine) Decide(ctx context.Context, targets []scanner.Target) []Decision {
	slots := make([]*Decision, len(targets))

	sem := make(chan struct{}, e.opts.Fanout)
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target scanner.Target) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			decision, ok := e.decideOne(ctx, target)
			if ok {
				slots[i] = &decision
			}
		}(i, target)
	}
	wg.Wait()

	decisions := make([]Decision, 0, len(targets))
	for _, slot := range slots {
		if slot != nil {
			decisions = append(decisions, *slot)
		}
	}
	return decisions
}

func (e *Engine) decideOne(ctx context.Context, target scanner.Target) (Decision, bool) {
	if decision, cooled := e.cooldownDecision(ctx, target); cooled {
		return decision, true
	}

	result, err := e.scorer.Score(ctx, target.Address)
	if err != nil {
		// Data or transport error: the target drops out of this cycle
		// and is only reconsidered if rediscovered later.
		e.logger.Error().Err(err).Str("address", target.Address).Msg("scoring failed, target dropped")
		return Decision{}, false
	}

	decision := Decision{Target: target, Result: result}
	switch {
	case !e.opts.SigningConfigured:
		decision.SkipReason = SkipNoSigningKey
	case result.RiskScore >= e.opts.Threshold:
		decision.ShouldSubmit = true
	default:
		decision.SkipReason = SkipBelowThreshold
	}

	e.logger.Info().
		Str("address", target.Address).
		Int("score", result.RiskScore).
		Str("level", result.RiskLevel).
		Bool("submit", decision.ShouldSubmit).
		Msg("target decided")

	return decision, true
}

// cooldownDecision checks whether a fresh report already exists. Inside
// the cooldown window the scorer is not invoked at all: re-scoring a
// just-analyzed address wastes backend calls and risks duplicate
// on-chain writes.
func (e *Engine) cooldownDecision(ctx context.Context, target scanner.Target) (Decision, bool) {
	count, err := e.reader.ReportCount(ctx, target.Address)
	if err != nil || count == 0 {
		return Decision{}, false
	}

	latest, err := e.reader.LatestReport(ctx, target.Address)
	if err != nil {
		if !errors.Is(err, registry.ErrNoReport) {
			e.logger.Warn().Err(err).Str("address", target.Address).Msg("cooldown lookup failed")
		}
		return Decision{}, false
	}

	age := e.now().Sub(latest.Timestamp)
	if age >= e.opts.Cooldown {
		return Decision{}, false
	}

	e.logger.Info().
		Str("address", target.Address).
		Dur("age", age).
		Msg("skip: recently analyzed")

	return Decision{
		Target: target,
		Result: scoring.Result{
			Address:   target.Address,
			RiskScore: latest.Score,
			RiskLevel: latest.Level.Label(),
		},
		SkipReason: SkipRecentlyAnalyzed,
	}, true
}
