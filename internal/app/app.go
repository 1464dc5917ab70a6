package app

import (
	"context"
	"errors"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"risk-sentinel/internal/agent"
	"risk-sentinel/internal/alerting"
	"risk-sentinel/internal/api"
	"risk-sentinel/internal/config"
	"risk-sentinel/internal/disclosure"
	"risk-sentinel/internal/engine"
	"risk-sentinel/internal/registry"
	"risk-sentinel/internal/scanner"
	"risk-sentinel/internal/scheduler"
	"risk-sentinel/internal/scoring"
	"risk-sentinel/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newChainReader() *scanner.EthReader {
	return scanner.NewEthReader(scanner.EthOptions{
		RPCURL:  a.Config.Ethereum.RPCURL,
		WSURL:   a.Config.Ethereum.WSURL,
		Timeout: a.Config.Ethereum.RequestTimeout,
	}, a.Logger)
}

func (a *App) newScanner(reader scanner.ChainReader) *scanner.Scanner {
	return scanner.New(reader, scanner.Options{
		LargeTransferETH: a.Config.Ethereum.LargeTransferETH,
	}, a.Logger)
}

func (a *App) newScorer() *scoring.Client {
	return scoring.NewClient(scoring.Options{
		BaseURL:   a.Config.Scoring.BaseURL,
		Timeout:   a.Config.Scoring.RequestTimeout,
		UserAgent: a.Config.Scoring.UserAgent,
	}, a.Logger)
}

func (a *App) newRegistryClient() (*registry.Client, error) {
	return registry.NewClient(registry.Options{
		RPCURL:          a.Config.Ethereum.RPCURL,
		ContractAddress: a.Config.Registry.ContractAddress,
		PrivateKey:      a.Config.Registry.PrivateKey,
		Timeout:         a.Config.Ethereum.RequestTimeout,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running autonomous agent.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	disclosures, err := disclosure.Open(a.Config.Disclosure.Path, a.Logger)
	if err != nil {
		return err
	}
	defer disclosures.Close()

	registryClient, err := a.newRegistryClient()
	if err != nil {
		return err
	}
	defer registryClient.Close()

	if registryClient.CanSign() {
		a.Logger.Info().Str("analyzer", registryClient.SignerAddress()).Msg("signing identity configured")
	} else {
		a.Logger.Warn().Msg("no signing key configured; running read-only, no reports will be submitted")
	}

	reader := a.newChainReader()
	defer reader.Close()

	scorer := a.newScorer()
	alerts := alerting.NewStore()

	decider := engine.New(registryClient, scorer, engine.Options{
		Threshold:         a.Config.Scoring.SubmissionThreshold,
		Cooldown:          a.Config.Scoring.Cooldown,
		Fanout:            a.Config.Agent.ScoreFanout,
		SigningConfigured: registryClient.CanSign(),
	}, a.Logger)

	submitter := registry.NewSubmitter(registryClient, a.Logger)
	verifier := registry.NewVerifier(registryClient, a.Logger)

	runtime := agent.New(
		a.newScanner(reader),
		decider,
		submitter,
		verifier,
		disclosures,
		alerts,
		agent.Options{
			BlocksPerCycle:  a.Config.Agent.BlocksPerCycle,
			ExplorerBaseURL: a.Config.Ethereum.ExplorerBaseURL,
			AdvisoryLockKey: a.Config.Agent.AdvisoryLockKey,
		},
		a.Logger,
	)
	if notifier := a.newNotifier(); notifier != nil {
		runtime.WithNotifier(notifier)
	}
	if store != nil {
		runtime.WithPersistence(store, store, store)
		if retention := a.Config.Database.AlertRetention; retention > 0 {
			cutoff := time.Now().Add(-retention)
			if pruneErr := store.DeleteAlertsBefore(ctx, cutoff); pruneErr != nil {
				a.Logger.Warn().Err(pruneErr).Msg("alert retention prune failed")
			} else {
				a.Logger.Info().Time("cutoff", cutoff).Msg("pruned alerts past retention")
			}
		}
	}

	sched := scheduler.New(scheduler.Options{
		Interval:       a.Config.Agent.CycleInterval,
		StartupDelay:   a.Config.Agent.StartupDelay,
		RunImmediately: true,
	}, a.Logger)

	group, ctx := errgroup.WithContext(ctx)

	if a.Config.API.Enabled {
		status := func() api.Status {
			signingMode := "read-only"
			if registryClient.CanSign() {
				signingMode = "signing"
			}
			return api.Status{
				Status:      "ok",
				CycleCount:  runtime.CycleCount(),
				AlertCount:  alerts.GetStats().Total,
				Disclosures: disclosures.Count(),
				SigningMode: signingMode,
			}
		}
		verify := func(ctx context.Context, address string) (registry.VerificationResult, error) {
			return a.verifyRecorded(ctx, verifier, registryClient, alerts, disclosures, address)
		}
		server := api.NewServer(a.Config.API.Listen, alerts, disclosures, verify, status, a.Logger)
		group.Go(func() error {
			return server.Start(ctx)
		})
	}

	group.Go(func() error {
		a.Logger.Info().
			Dur("interval", a.Config.Agent.CycleInterval).
			Int("blocksPerCycle", a.Config.Agent.BlocksPerCycle).
			Msg("starting autonomous agent")
		return sched.Run(ctx, runtime.RunCycle)
	})

	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("agent terminated with error")
		return err
	}

	a.Logger.Info().Msg("agent stopped")
	return nil
}

// verifyRecorded compares the locally recorded proof hash for an
// address against the registry. The local hash comes from the alert
// store when available, falling back to the disclosure history, which
// survives restarts.
func (a *App) verifyRecorded(ctx context.Context, verifier *registry.Verifier, reader registry.Reader, alerts *alerting.Store, disclosures *disclosure.Log, address string) (registry.VerificationResult, error) {
	if hash := recordedHash(alerts, disclosures, address); hash != "" {
		return verifier.Verify(ctx, address, registry.CanonicalReport{}, hash)
	}

	result := registry.VerificationResult{
		Address: strings.ToLower(address),
		Error:   "no locally recorded report hash for this address",
	}
	onChain, err := reader.LatestReport(ctx, address)
	if err != nil {
		if errors.Is(err, registry.ErrNoReport) {
			return result, nil
		}
		return result, err
	}
	chainHash := onChain.ReportHash.Hex()
	chainScore := onChain.Score
	chainTime := onChain.Timestamp
	result.OnChainHash = &chainHash
	result.OnChainScore = &chainScore
	result.OnChainTimestamp = &chainTime
	return result, nil
}

// recordedHash finds the newest report hash this agent produced for the
// address.
func recordedHash(alerts *alerting.Store, disclosures *disclosure.Log, address string) string {
	if alerts != nil {
		for _, alert := range alerts.ByAddress(address) {
			if alert.ReportHash != "" {
				return alert.ReportHash
			}
		}
	}
	if disclosures != nil {
		history, err := disclosures.History()
		if err != nil {
			return ""
		}
		address = strings.ToLower(address)
		for i := len(history) - 1; i >= 0; i-- {
			entry := history[i]
			if strings.ToLower(entry.Address) == address && entry.ReportHash != "" {
				return entry.ReportHash
			}
		}
	}
	return ""
}
