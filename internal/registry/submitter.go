package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"risk-sentinel/internal/scoring"
)

// SubmissionError wraps a failed on-chain submission with an optional
// operator hint for known causes.
type SubmissionError struct {
	Address string
	Err     error
	Hint    string
}

func (e *SubmissionError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("submit report for %s: %v (%s)", e.Address, e.Err, e.Hint)
	}
	return fmt.Sprintf("submit report for %s: %v", e.Address, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// Submitter commits report proofs to the registry. One signing identity
// issues every submission, so Submit serializes callers behind a mutex:
// two in-flight transactions from the same key race on the nonce.
type Submitter struct {
	writer Writer
	logger zerolog.Logger
	mu     sync.Mutex
	now    func() time.Time
}

// NewSubmitter constructs a Submitter.
func NewSubmitter(writer Writer, logger zerolog.Logger) *Submitter {
	return &Submitter{
		writer: writer,
		logger: logger.With().Str("component", "submitter").Logger(),
		now:    time.Now,
	}
}

// Submit canonicalizes the scoring result, hashes it, and commits
// {address, score, level, hash} to the registry. It returns the
// canonical report alongside the proof so callers can verify and
// archive the exact bytes that were hashed.
func (s *Submitter) Submit(ctx context.Context, result scoring.Result) (CanonicalReport, Proof, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := NewCanonicalReport(result, s.now().UTC())
	hash, err := report.Hash()
	if err != nil {
		return report, Proof{}, &SubmissionError{Address: report.Address, Err: err}
	}

	level := OrdinalForScore(report.RiskScore)

	s.logger.Info().
		Str("address", report.Address).
		Int("score", report.RiskScore).
		Str("level", level.Label()).
		Msg("submitting risk report")

	tx, err := s.writer.SubmitRiskReport(ctx, common.HexToAddress(report.Address), uint8(report.RiskScore), uint8(level), hash)
	if err != nil {
		return report, Proof{}, s.wrapSubmitError(report.Address, err)
	}

	receipt, err := s.writer.WaitMined(ctx, tx)
	if err != nil {
		return report, Proof{}, s.wrapSubmitError(report.Address, err)
	}

	proof := Proof{
		TxHash:      receipt.TxHash.Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		ReportHash:  hash.Hex(),
		GasUsed:     receipt.GasUsed,
	}

	s.logger.Info().
		Str("address", report.Address).
		Str("tx", proof.TxHash).
		Uint64("block", proof.BlockNumber).
		Uint64("gas", proof.GasUsed).
		Msg("report submitted")

	return report, proof, nil
}

func (s *Submitter) wrapSubmitError(address string, err error) error {
	subErr := &SubmissionError{Address: address, Err: err}
	msg := err.Error()
	if strings.Contains(msg, "NotAnalyzer") || strings.Contains(strings.ToLower(msg), "not an approved analyzer") {
		// Keep the chain's own revert message alongside the sentinel.
		subErr.Err = fmt.Errorf("%w: %v", ErrNotAuthorized, err)
		subErr.Hint = "the signing wallet is not approved on the registry; the contract owner must call approveAnalyzer()"
	}
	return subErr
}
