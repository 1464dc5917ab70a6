package registry

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
)

type fakeWriter struct {
	mu       sync.Mutex
	inFlight int
	maxSeen  int
	calls    int
	fail     error
}

func (f *fakeWriter) SubmitRiskReport(ctx context.Context, target common.Address, score uint8, level uint8, reportHash [32]byte) (*types.Transaction, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	f.calls++
	fail := f.fail
	f.mu.Unlock()

	time.Sleep(2 * time.Millisecond)

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if fail != nil {
		return nil, fail
	}
	return types.NewTx(&types.LegacyTx{Nonce: 1, Gas: 21000, GasPrice: big.NewInt(1)}), nil
}

func (f *fakeWriter) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	return &types.Receipt{
		TxHash:      tx.Hash(),
		BlockNumber: big.NewInt(1234),
		GasUsed:     52341,
	}, nil
}

func TestSubmitReturnsProof(t *testing.T) {
	writer := &fakeWriter{}
	s := NewSubmitter(writer, zerolog.Nop())
	s.now = func() time.Time { return time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC) }

	report, proof, err := s.Submit(context.Background(), sampleResult())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if proof.BlockNumber != 1234 || proof.GasUsed != 52341 {
		t.Fatalf("unexpected proof: %+v", proof)
	}

	wantHash, err := report.Hash()
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if proof.ReportHash != wantHash.Hex() {
		t.Fatalf("proof hash must match the canonical report hash")
	}
}

func TestSubmitSerializesConcurrentCallers(t *testing.T) {
	writer := &fakeWriter{}
	s := NewSubmitter(writer, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = s.Submit(context.Background(), sampleResult())
		}()
	}
	wg.Wait()

	if writer.calls != 8 {
		t.Fatalf("expected 8 submissions, got %d", writer.calls)
	}
	if writer.maxSeen != 1 {
		t.Fatalf("submissions must never overlap, saw %d in flight", writer.maxSeen)
	}
}

func TestSubmitAuthorizationHint(t *testing.T) {
	writer := &fakeWriter{fail: errors.New("execution reverted: NotAnalyzer")}
	s := NewSubmitter(writer, zerolog.Nop())

	_, _, err := s.Submit(context.Background(), sampleResult())
	if err == nil {
		t.Fatal("expected submission error")
	}
	var subErr *SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("expected SubmissionError, got %T", err)
	}
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatal("authorization reverts should map to ErrNotAuthorized")
	}
	if subErr.Hint == "" {
		t.Fatal("authorization errors should carry an operator hint")
	}
	if !strings.Contains(err.Error(), "execution reverted: NotAnalyzer") {
		t.Fatalf("the chain revert message must survive the sentinel mapping: %v", err)
	}
}
