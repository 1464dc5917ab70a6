package scanner

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var dec1e18 = decimal.NewFromInt(1_000_000_000_000_000_000)

// Options tune candidate discovery.
type Options struct {
	// LargeTransferETH is the ether value above which a transfer to a
	// contract becomes a candidate.
	LargeTransferETH float64
}

// Scanner discovers analysis candidates from blocks: freshly deployed
// contracts and large-value transfers into contracts.
type Scanner struct {
	reader    ChainReader
	logger    zerolog.Logger
	threshold *big.Int
	signer    types.Signer
}

// New constructs a Scanner.
func New(reader ChainReader, opts Options, logger zerolog.Logger) *Scanner {
	eth := opts.LargeTransferETH
	if eth <= 0 {
		eth = 100
	}
	threshold := decimal.NewFromFloat(eth).Mul(dec1e18).BigInt()

	return &Scanner{
		reader:    reader,
		logger:    logger.With().Str("component", "scanner").Logger(),
		threshold: threshold,
	}
}

// Scan processes up to maxBlocks beyond cursor and returns discovered
// targets. A zero cursor initialises to head minus maxBlocks. The
// returned cursor always advances to the last block attempted: failed
// blocks are logged and skipped, never retried, so one stuck block
// cannot stall discovery.
func (s *Scanner) Scan(ctx context.Context, cursor uint64, maxBlocks int) (uint64, []Target, error) {
	head, err := s.reader.BlockNumber(ctx)
	if err != nil {
		return cursor, nil, err
	}

	if cursor == 0 {
		if head > uint64(maxBlocks) {
			cursor = head - uint64(maxBlocks)
		}
	}

	from := cursor + 1
	to := from + uint64(maxBlocks) - 1
	if to > head {
		to = head
	}
	if from > head {
		return cursor, nil, nil
	}

	s.logger.Info().Uint64("from", from).Uint64("to", to).Msg("scanning block range")

	var raw []Target
	for n := from; n <= to; n++ {
		targets, err := s.scanBlock(ctx, n)
		if err != nil {
			s.logger.Warn().Err(err).Uint64("block", n).Msg("block skipped")
			continue
		}
		raw = append(raw, targets...)
	}

	unique := dedupe(raw)
	s.logger.Info().Int("raw", len(raw)).Int("unique", len(unique)).Msg("scan complete")

	return to, unique, nil
}

// scanBlock classifies every transaction in one block.
func (s *Scanner) scanBlock(ctx context.Context, number uint64) ([]Target, error) {
	block, err := s.reader.BlockByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return nil, err
	}

	var targets []Target
	for _, tx := range block.Transactions() {
		if tx.To() == nil {
			target, ok, err := s.deploymentTarget(ctx, block, tx)
			if err != nil {
				return nil, err
			}
			if ok {
				targets = append(targets, target)
			}
			continue
		}

		if tx.Value().Cmp(s.threshold) > 0 {
			target, ok, err := s.transferTarget(ctx, block, tx)
			if err != nil {
				return nil, err
			}
			if ok {
				targets = append(targets, target)
			}
		}
	}
	return targets, nil
}

func (s *Scanner) deploymentTarget(ctx context.Context, block *types.Block, tx *types.Transaction) (Target, bool, error) {
	receipt, err := s.reader.TransactionReceipt(ctx, tx.Hash())
	if err != nil {
		return Target{}, false, err
	}
	if receipt.ContractAddress == (common.Address{}) {
		return Target{}, false, nil
	}

	origin, err := s.senderOf(ctx, tx)
	if err != nil {
		return Target{}, false, err
	}

	return Target{
		Address:        strings.ToLower(receipt.ContractAddress.Hex()),
		Origin:         origin,
		TxHash:         tx.Hash().Hex(),
		BlockNumber:    block.NumberU64(),
		BlockTimestamp: block.Time(),
		Reason:         ReasonContractDeployment,
	}, true, nil
}

func (s *Scanner) transferTarget(ctx context.Context, block *types.Block, tx *types.Transaction) (Target, bool, error) {
	code, err := s.reader.CodeAt(ctx, *tx.To(), nil)
	if err != nil {
		return Target{}, false, err
	}
	if len(code) == 0 {
		// Plain EOA recipient; large transfers between wallets are routine.
		return Target{}, false, nil
	}

	origin, err := s.senderOf(ctx, tx)
	if err != nil {
		return Target{}, false, err
	}

	return Target{
		Address:        strings.ToLower(tx.To().Hex()),
		Origin:         origin,
		TxHash:         tx.Hash().Hex(),
		BlockNumber:    block.NumberU64(),
		BlockTimestamp: block.Time(),
		Reason:         ReasonLargeValueTransfer,
	}, true, nil
}

func (s *Scanner) senderOf(ctx context.Context, tx *types.Transaction) (string, error) {
	if s.signer == nil {
		chainID, err := s.reader.ChainID(ctx)
		if err != nil {
			return "", err
		}
		s.signer = types.LatestSignerForChainID(chainID)
	}
	from, err := types.Sender(s.signer, tx)
	if err != nil {
		return "", err
	}
	return strings.ToLower(from.Hex()), nil
}

// dedupe merges multiple events for the same address into a single
// target, keeping the first-seen event. Input arrives in block order,
// then transaction order within a block, so the result is deterministic.
func dedupe(targets []Target) []Target {
	seen := make(map[string]struct{}, len(targets))
	unique := make([]Target, 0, len(targets))
	for _, t := range targets {
		key := strings.ToLower(t.Address)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, t)
	}
	return unique
}
