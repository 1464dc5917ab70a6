package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"risk-sentinel/internal/disclosure"
	"risk-sentinel/internal/registry"
)

// VerifyOptions configure a one-shot verification.
type VerifyOptions struct {
	Address string
	// Hash overrides the locally recorded proof hash.
	Hash string
}

// Verify compares a recorded proof hash against the registry's latest
// entry for the address and prints the outcome.
func (a *App) Verify(ctx context.Context, opts VerifyOptions) error {
	address := strings.TrimSpace(opts.Address)
	if address == "" {
		return fmt.Errorf("an address is required")
	}

	registryClient, err := a.newRegistryClient()
	if err != nil {
		return err
	}
	defer registryClient.Close()

	verifier := registry.NewVerifier(registryClient, a.Logger)

	hash := strings.TrimSpace(opts.Hash)
	if hash == "" {
		disclosures, openErr := disclosure.Open(a.Config.Disclosure.Path, a.Logger)
		if openErr != nil {
			return openErr
		}
		defer disclosures.Close()
		hash = recordedHash(nil, disclosures, address)
	}

	var result registry.VerificationResult
	if hash != "" {
		result, err = verifier.Verify(ctx, address, registry.CanonicalReport{}, hash)
	} else {
		result, err = a.verifyRecorded(ctx, verifier, registryClient, nil, nil, address)
	}
	if err != nil {
		return err
	}

	printVerification(result)
	return nil
}

func printVerification(result registry.VerificationResult) {
	fmt.Fprintf(os.Stdout, "Address:    %s\n", result.Address)
	if result.LocalHash != "" {
		fmt.Fprintf(os.Stdout, "Local hash: %s\n", result.LocalHash)
	}
	if result.OnChainHash != nil {
		fmt.Fprintf(os.Stdout, "On-chain:   %s\n", *result.OnChainHash)
	}
	if result.OnChainScore != nil {
		fmt.Fprintf(os.Stdout, "Score:      %d\n", *result.OnChainScore)
	}
	if result.OnChainTimestamp != nil {
		fmt.Fprintf(os.Stdout, "Recorded:   %s\n", result.OnChainTimestamp.UTC().Format(time.RFC3339))
	}
	if result.Verified {
		fmt.Fprintln(os.Stdout, "Verified:   yes")
	} else {
		fmt.Fprintln(os.Stdout, "Verified:   no")
		if result.Error != "" {
			fmt.Fprintf(os.Stdout, "Reason:     %s\n", result.Error)
		}
	}
}
