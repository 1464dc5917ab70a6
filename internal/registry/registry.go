package registry

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

const registryABIJSON = `[
  {"type":"function","name":"submitRiskReport","stateMutability":"nonpayable","inputs":[{"name":"targetAddress","type":"address"},{"name":"riskScore","type":"uint8"},{"name":"riskLevel","type":"uint8"},{"name":"reportHash","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"getLatestReportForTarget","stateMutability":"view","inputs":[{"name":"targetAddress","type":"address"}],"outputs":[{"name":"","type":"tuple","components":[{"name":"targetAddress","type":"address"},{"name":"riskScore","type":"uint8"},{"name":"riskLevel","type":"uint8"},{"name":"reportHash","type":"bytes32"},{"name":"timestamp","type":"uint256"},{"name":"analyzer","type":"address"}]}]},
  {"type":"function","name":"getReportCountForTarget","stateMutability":"view","inputs":[{"name":"targetAddress","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getTotalReports","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"approvedAnalyzers","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"","type":"bool"}]}
]`

var registryABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(registryABIJSON))
	if err != nil {
		panic("failed to parse registry ABI: " + err.Error())
	}
	registryABI = parsed
}

var (
	// ErrNoReport marks an address with no registry entry. Callers must
	// not conflate this with a hash mismatch.
	ErrNoReport = errors.New("registry: no report found for target")
	// ErrNotAuthorized marks a submission rejected because the signing
	// identity is not an approved analyzer.
	ErrNotAuthorized = errors.New("registry: signer is not an approved analyzer")
)

// Reader exposes registry read operations.
type Reader interface {
	LatestReport(ctx context.Context, target string) (Report, error)
	ReportCount(ctx context.Context, target string) (uint64, error)
}

// Writer sends signed report submissions.
type Writer interface {
	SubmitRiskReport(ctx context.Context, target common.Address, score uint8, level uint8, reportHash [32]byte) (*types.Transaction, error)
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// Options parameterise the registry client.
type Options struct {
	RPCURL          string
	ContractAddress string
	// PrivateKey is the hex-encoded analyzer key. Empty disables the
	// write path; reads still work.
	PrivateKey string
	Timeout    time.Duration
}

// Client talks to the on-chain risk report registry.
type Client struct {
	opts      Options
	logger    zerolog.Logger
	address   common.Address
	keyedAuth *ecdsa.PrivateKey
	auth      *bind.TransactOpts
	signerAt  string

	clientMux sync.Mutex
	eth       *ethclient.Client
	bound     *bind.BoundContract
}

// NewClient constructs a registry client. The RPC connection is dialed
// lazily on first use.
func NewClient(opts Options, logger zerolog.Logger) (*Client, error) {
	if opts.ContractAddress == "" {
		return nil, errors.New("registry contract address not configured")
	}

	c := &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "registry").Logger(),
		address: common.HexToAddress(opts.ContractAddress),
	}

	if opts.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(opts.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("parse analyzer private key: %w", err)
		}
		c.signerAt = strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())
		// The keyed transactor is completed with the chain ID on first dial.
		c.keyedAuth = key
	}

	return c, nil
}

// CanSign reports whether a signing identity is configured.
func (c *Client) CanSign() bool {
	return c != nil && c.signerAt != ""
}

// SignerAddress returns the configured analyzer address, if any.
func (c *Client) SignerAddress() string {
	return c.signerAt
}

func (c *Client) getBound(ctx context.Context) (*bind.BoundContract, *ethclient.Client, error) {
	c.clientMux.Lock()
	defer c.clientMux.Unlock()

	if c.bound != nil {
		return c.bound, c.eth, nil
	}
	if c.opts.RPCURL == "" {
		return nil, nil, errors.New("ethereum rpc url not configured")
	}

	eth, err := ethclient.DialContext(ctx, c.opts.RPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial registry rpc: %w", err)
	}

	if c.keyedAuth != nil {
		chainID, err := eth.ChainID(ctx)
		if err != nil {
			eth.Close()
			return nil, nil, fmt.Errorf("resolve chain id: %w", err)
		}
		auth, err := bind.NewKeyedTransactorWithChainID(c.keyedAuth, chainID)
		if err != nil {
			eth.Close()
			return nil, nil, fmt.Errorf("build transactor: %w", err)
		}
		c.auth = auth
	}

	c.eth = eth
	c.bound = bind.NewBoundContract(c.address, registryABI, eth, eth, eth)
	return c.bound, c.eth, nil
}

func (c *Client) callTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

// singleOutput guards the unpacked call result before callers index
// into it. An empty unpack would otherwise panic.
func singleOutput(method string, out []interface{}) (interface{}, error) {
	if len(out) != 1 {
		return nil, fmt.Errorf("unexpected %s response", method)
	}
	return out[0], nil
}

type reportTuple struct {
	TargetAddress common.Address
	RiskScore     uint8
	RiskLevel     uint8
	ReportHash    [32]byte
	Timestamp     *big.Int
	Analyzer      common.Address
}

// LatestReport fetches the most recent registry entry for a target.
// Returns ErrNoReport when the registry holds nothing for it.
func (c *Client) LatestReport(ctx context.Context, target string) (Report, error) {
	ctx, cancel := c.callTimeout(ctx)
	defer cancel()

	bound, _, err := c.getBound(ctx)
	if err != nil {
		return Report{}, err
	}

	var out []interface{}
	callErr := bound.Call(&bind.CallOpts{Context: ctx}, &out, "getLatestReportForTarget", common.HexToAddress(target))
	if callErr != nil {
		// The contract reverts for unknown targets.
		return Report{}, ErrNoReport
	}
	value, err := singleOutput("getLatestReportForTarget", out)
	if err != nil {
		return Report{}, err
	}

	raw := *abi.ConvertType(value, new(reportTuple)).(*reportTuple)

	return Report{
		Target:     strings.ToLower(raw.TargetAddress.Hex()),
		Score:      int(raw.RiskScore),
		Level:      OrdinalLevel(raw.RiskLevel),
		ReportHash: common.Hash(raw.ReportHash),
		Timestamp:  time.Unix(raw.Timestamp.Int64(), 0).UTC(),
		Submitter:  strings.ToLower(raw.Analyzer.Hex()),
	}, nil
}

// ReportCount returns how many reports exist for a target.
func (c *Client) ReportCount(ctx context.Context, target string) (uint64, error) {
	ctx, cancel := c.callTimeout(ctx)
	defer cancel()

	bound, _, err := c.getBound(ctx)
	if err != nil {
		return 0, err
	}

	var out []interface{}
	if err := bound.Call(&bind.CallOpts{Context: ctx}, &out, "getReportCountForTarget", common.HexToAddress(target)); err != nil {
		return 0, fmt.Errorf("get report count: %w", err)
	}
	value, err := singleOutput("getReportCountForTarget", out)
	if err != nil {
		return 0, err
	}
	count, ok := value.(*big.Int)
	if !ok {
		return 0, errors.New("failed to decode report count")
	}
	return count.Uint64(), nil
}

// TotalReports returns the registry-wide entry count.
func (c *Client) TotalReports(ctx context.Context) (uint64, error) {
	ctx, cancel := c.callTimeout(ctx)
	defer cancel()

	bound, _, err := c.getBound(ctx)
	if err != nil {
		return 0, err
	}

	var out []interface{}
	if err := bound.Call(&bind.CallOpts{Context: ctx}, &out, "getTotalReports"); err != nil {
		return 0, fmt.Errorf("get total reports: %w", err)
	}
	value, err := singleOutput("getTotalReports", out)
	if err != nil {
		return 0, err
	}
	count, ok := value.(*big.Int)
	if !ok {
		return 0, errors.New("failed to decode total reports")
	}
	return count.Uint64(), nil
}

// IsAuthorizedSubmitter checks analyzer approval for an identity.
func (c *Client) IsAuthorizedSubmitter(ctx context.Context, identity string) (bool, error) {
	ctx, cancel := c.callTimeout(ctx)
	defer cancel()

	bound, _, err := c.getBound(ctx)
	if err != nil {
		return false, err
	}

	var out []interface{}
	if err := bound.Call(&bind.CallOpts{Context: ctx}, &out, "approvedAnalyzers", common.HexToAddress(identity)); err != nil {
		return false, fmt.Errorf("check analyzer approval: %w", err)
	}
	value, err := singleOutput("approvedAnalyzers", out)
	if err != nil {
		return false, err
	}
	approved, ok := value.(bool)
	if !ok {
		return false, errors.New("failed to decode analyzer approval")
	}
	return approved, nil
}

// SubmitRiskReport sends a signed submission transaction.
func (c *Client) SubmitRiskReport(ctx context.Context, target common.Address, score uint8, level uint8, reportHash [32]byte) (*types.Transaction, error) {
	if !c.CanSign() {
		return nil, errors.New("registry: no signing identity configured")
	}

	bound, _, err := c.getBound(ctx)
	if err != nil {
		return nil, err
	}

	opts := *c.auth
	opts.Context = ctx
	return bound.Transact(&opts, "submitRiskReport", target, score, level, reportHash)
}

// WaitMined blocks until the transaction is confirmed.
func (c *Client) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	_, eth, err := c.getBound(ctx)
	if err != nil {
		return nil, err
	}
	return bind.WaitMined(ctx, eth, tx)
}

// Close releases the RPC connection.
func (c *Client) Close() {
	c.clientMux.Lock()
	defer c.clientMux.Unlock()
	if c.eth != nil {
		c.eth.Close()
		c.eth = nil
		c.bound = nil
	}
}

var (
	_ Reader = (*Client)(nil)
	_ Writer = (*Client)(nil)
)
