package scanner

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
)

// TargetFunc receives discovered targets from a continuous watch.
type TargetFunc func(Target)

// WatchState names the watcher transport states.
type WatchState string

const (
	StateDisconnected    WatchState = "disconnected"
	StateConnectingPush  WatchState = "connecting_push"
	StateConnectedPush   WatchState = "connected_push"
	StatePollingFallback WatchState = "polling_fallback"
)

// Watcher is the continuous variant of the scanner. It prefers a push
// head subscription and falls back to fixed-period polling when the
// subscription cannot be established. The fallback is one-way: a watcher
// that entered polling mode never attempts to reconnect push.
type Watcher struct {
	scanner      *Scanner
	subscriber   HeadSubscriber
	logger       zerolog.Logger
	pollInterval time.Duration

	state  WatchState
	cursor uint64
}

// NewWatcher constructs a Watcher around an existing scanner.
func NewWatcher(scanner *Scanner, subscriber HeadSubscriber, pollInterval time.Duration, logger zerolog.Logger) *Watcher {
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	return &Watcher{
		scanner:      scanner,
		subscriber:   subscriber,
		logger:       logger.With().Str("component", "watcher").Logger(),
		pollInterval: pollInterval,
		state:        StateDisconnected,
	}
}

// State reports the current transport state.
func (w *Watcher) State() WatchState {
	return w.state
}

// Watch blocks until ctx is cancelled, delivering each discovered target
// to onTarget exactly once per block batch.
func (w *Watcher) Watch(ctx context.Context, onTarget TargetFunc) error {
	w.state = StateConnectingPush

	if w.subscriber != nil {
		heads := make(chan *types.Header, 16)
		sub, err := w.subscriber.SubscribeNewHead(ctx, heads)
		if err == nil {
			w.state = StateConnectedPush
			w.logger.Info().Msg("watching via push subscription")
			return w.watchPush(ctx, sub, heads, onTarget)
		}
		w.logger.Warn().Err(err).Msg("push subscription unavailable, falling back to polling")
	}

	w.state = StatePollingFallback
	w.logger.Info().Dur("interval", w.pollInterval).Msg("watching via polling")
	return w.watchPoll(ctx, onTarget)
}

func (w *Watcher) watchPush(ctx context.Context, sub subscription, heads <-chan *types.Header, onTarget TargetFunc) error {
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			// Subscription died mid-stream; polling takes over for the
			// remainder of this watcher's life.
			w.logger.Warn().Err(err).Msg("push subscription lost, switching to polling")
			w.state = StatePollingFallback
			return w.watchPoll(ctx, onTarget)
		case head := <-heads:
			if head == nil {
				continue
			}
			w.deliverBlock(ctx, head.Number.Uint64(), onTarget)
		}
	}
}

func (w *Watcher) watchPoll(ctx context.Context, onTarget TargetFunc) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cursor, targets, err := w.scanner.Scan(ctx, w.cursor, 16)
			if err != nil {
				w.logger.Warn().Err(err).Msg("poll scan failed")
				continue
			}
			w.cursor = cursor
			for _, t := range targets {
				onTarget(t)
			}
		}
	}
}

func (w *Watcher) deliverBlock(ctx context.Context, number uint64, onTarget TargetFunc) {
	if number <= w.cursor {
		return
	}
	w.cursor = number

	targets, err := w.scanner.scanBlock(ctx, number)
	if err != nil {
		w.logger.Warn().Err(err).Uint64("block", number).Msg("block skipped")
		return
	}
	for _, t := range dedupe(targets) {
		onTarget(t)
	}
}

// subscription is the subset of ethereum.Subscription the watcher uses.
type subscription interface {
	Unsubscribe()
	Err() <-chan error
}
