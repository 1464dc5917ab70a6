package scanner

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

// ChainReader is the read-only chain access the scanner needs. The
// production implementation wraps ethclient; tests supply fakes.
type ChainReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// HeadSubscriber is the optional push transport. Readers that cannot
// subscribe force the watcher into polling mode.
type HeadSubscriber interface {
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
}

// EthOptions parameterise the RPC-backed chain reader.
type EthOptions struct {
	RPCURL  string
	WSURL   string
	Timeout time.Duration
}

// EthReader lazily dials an Ethereum RPC endpoint and serves chain reads.
type EthReader struct {
	opts      EthOptions
	logger    zerolog.Logger
	client    *ethclient.Client
	wsClient  *ethclient.Client
	clientMux sync.Mutex
}

// NewEthReader builds an RPC chain reader.
func NewEthReader(opts EthOptions, logger zerolog.Logger) *EthReader {
	return &EthReader{opts: opts, logger: logger.With().Str("component", "chain_reader").Logger()}
}

func (r *EthReader) getClient(ctx context.Context) (*ethclient.Client, error) {
	r.clientMux.Lock()
	defer r.clientMux.Unlock()

	if r.client != nil {
		return r.client, nil
	}
	if r.opts.RPCURL == "" {
		return nil, errors.New("ethereum rpc url not configured")
	}

	client, err := ethclient.DialContext(ctx, r.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	r.client = client
	return client, nil
}

func (r *EthReader) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := r.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

// BlockNumber returns the current chain head.
func (r *EthReader) BlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	client, err := r.getClient(ctx)
	if err != nil {
		return 0, err
	}
	return client.BlockNumber(ctx)
}

// BlockByNumber fetches a full block including transactions.
func (r *EthReader) BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	client, err := r.getClient(ctx)
	if err != nil {
		return nil, err
	}
	return client.BlockByNumber(ctx, number)
}

// TransactionReceipt fetches a transaction receipt.
func (r *EthReader) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	client, err := r.getClient(ctx)
	if err != nil {
		return nil, err
	}
	return client.TransactionReceipt(ctx, txHash)
}

// CodeAt fetches the code deployed at an account, if any.
func (r *EthReader) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	client, err := r.getClient(ctx)
	if err != nil {
		return nil, err
	}
	return client.CodeAt(ctx, account, blockNumber)
}

// ChainID returns the chain identifier used for sender recovery.
func (r *EthReader) ChainID(ctx context.Context) (*big.Int, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	client, err := r.getClient(ctx)
	if err != nil {
		return nil, err
	}
	return client.ChainID(ctx)
}

// SubscribeNewHead subscribes to new block headers over the websocket
// endpoint. Fails when no websocket URL is configured, which sends the
// watcher into polling fallback.
func (r *EthReader) SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	r.clientMux.Lock()
	defer r.clientMux.Unlock()

	if r.wsClient == nil {
		if r.opts.WSURL == "" {
			return nil, errors.New("ethereum websocket url not configured")
		}
		wsClient, err := ethclient.DialContext(ctx, r.opts.WSURL)
		if err != nil {
			return nil, err
		}
		r.wsClient = wsClient
	}
	return r.wsClient.SubscribeNewHead(ctx, ch)
}

// Close releases held connections.
func (r *EthReader) Close() {
	r.clientMux.Lock()
	defer r.clientMux.Unlock()

	if r.client != nil {
		r.client.Close()
		r.client = nil
	}
	if r.wsClient != nil {
		r.wsClient.Close()
		r.wsClient = nil
	}
}

var (
	_ ChainReader    = (*EthReader)(nil)
	_ HeadSubscriber = (*EthReader)(nil)
)
