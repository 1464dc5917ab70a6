package registry

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// VerificationResult distinguishes three terminal states: a match, a
// mismatch (possible tampering or a stale local copy), and no on-chain
// report at all. The last two both report verified=false but must not
// be conflated.
type VerificationResult struct {
	Address          string     `json:"address"`
	Verified         bool       `json:"verified"`
	LocalHash        string     `json:"localHash"`
	OnChainHash      *string    `json:"onChainHash"`
	OnChainScore     *int       `json:"onChainScore"`
	OnChainTimestamp *time.Time `json:"onChainTimestamp"`
	Error            string     `json:"error,omitempty"`
}

// Verifier recomputes report hashes and compares them against the
// registry.
type Verifier struct {
	reader Reader
	logger zerolog.Logger
}

// NewVerifier constructs a Verifier.
func NewVerifier(reader Reader, logger zerolog.Logger) *Verifier {
	return &Verifier{reader: reader, logger: logger.With().Str("component", "verifier").Logger()}
}

// Verify hashes the canonical report (or trusts expectedHash when
// supplied) and compares it byte-for-byte, case-insensitively, with the
// registry's latest entry for the address.
func (v *Verifier) Verify(ctx context.Context, address string, report CanonicalReport, expectedHash string) (VerificationResult, error) {
	localHash := expectedHash
	if localHash == "" {
		hash, err := report.Hash()
		if err != nil {
			return VerificationResult{Address: address}, err
		}
		localHash = hash.Hex()
	}

	result := VerificationResult{
		Address:   strings.ToLower(address),
		LocalHash: localHash,
	}

	onChain, err := v.reader.LatestReport(ctx, address)
	if err != nil {
		if errors.Is(err, ErrNoReport) {
			result.Error = "no on-chain report found for this address"
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
	result.Verified = strings.EqualFold(localHash, chainHash)

	if !result.Verified {
		result.Error = "local hash does not match on-chain hash"
		v.logger.Warn().
			Str("address", result.Address).
			Str("local", localHash).
			Str("onchain", chainHash).
			Msg("proof hash mismatch")
	}

	return result, nil
}
