package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"risk-sentinel/internal/engine"
	"risk-sentinel/internal/scanner"
)

// ScanOptions configure a one-shot historical scan.
type ScanOptions struct {
	// FromBlock is the cursor to scan from; zero starts maxBlocks behind
	// the chain head.
	FromBlock uint64
	Blocks    int
	// Decide additionally runs the decision engine in dry-run mode.
	Decide bool
	// Watch streams targets continuously instead of a single pass.
	Watch bool
}

// Watch follows the chain head and prints targets as they are
// discovered, preferring a push subscription with polling fallback.
func (a *App) Watch(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reader := a.newChainReader()
	defer reader.Close()

	watcher := scanner.NewWatcher(
		a.newScanner(reader),
		reader,
		a.Config.Ethereum.PollInterval,
		a.Logger,
	)

	err := watcher.Watch(ctx, func(target scanner.Target) {
		fmt.Fprintf(os.Stdout, "%s  %-22s  block %d  origin %s\n",
			time.Now().UTC().Format(time.RFC3339), target.Reason, target.BlockNumber, target.Origin)
		fmt.Fprintf(os.Stdout, "  %s\n", target.Address)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Scan performs a single observation pass and prints the discovered
// targets. Nothing is submitted.
func (a *App) Scan(ctx context.Context, opts ScanOptions) error {
	if opts.Watch {
		return a.Watch(ctx)
	}
	if opts.Blocks <= 0 {
		opts.Blocks = a.Config.Agent.BlocksPerCycle
	}

	reader := a.newChainReader()
	defer reader.Close()

	cursor, targets, err := a.newScanner(reader).Scan(ctx, opts.FromBlock, opts.Blocks)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "scanned up to block %d, %d candidate(s)\n", cursor, len(targets))
	if len(targets) == 0 {
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Address\tReason\tBlock\tOrigin\tSeen (UTC)")
	for _, target := range targets {
		fmt.Fprintf(writer, "%s\t%s\t%d\t%s\t%s\n",
			target.Address,
			target.Reason,
			target.BlockNumber,
			target.Origin,
			time.Unix(int64(target.BlockTimestamp), 0).UTC().Format(time.RFC3339),
		)
	}
	writer.Flush()

	if !opts.Decide {
		return nil
	}

	registryClient, err := a.newRegistryClient()
	if err != nil {
		return err
	}
	defer registryClient.Close()

	// Dry run: signing is reported unconfigured so no decision can submit.
	decider := engine.New(registryClient, a.newScorer(), engine.Options{
		Threshold:         a.Config.Scoring.SubmissionThreshold,
		Cooldown:          a.Config.Scoring.Cooldown,
		Fanout:            a.Config.Agent.ScoreFanout,
		SigningConfigured: false,
	}, a.Logger)

	decisions := decider.Decide(ctx, targets)
	fmt.Fprintf(os.Stdout, "\n%d decision(s):\n", len(decisions))

	writer = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Address\tScore\tLevel\tWould submit")
	for _, decision := range decisions {
		wouldSubmit := "no"
		if decision.SkipReason == engine.SkipNoSigningKey &&
			decision.Result.RiskScore >= a.Config.Scoring.SubmissionThreshold {
			wouldSubmit = "yes (dry run)"
		}
		fmt.Fprintf(writer, "%s\t%d\t%s\t%s\n",
			decision.Result.Address,
			decision.Result.RiskScore,
			decision.Result.RiskLevel,
			wouldSubmit,
		)
	}
	writer.Flush()
	return nil
}
