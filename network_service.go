package main

import (
	"context"
	"encoding/json"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ipfs/go-log/v2"
	"github.com/layer-3/clearsync/pkg/debounce"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/ratelimit"
)

var networkLogger = log.Logger("network-service")

const (
	defaultNetworkCallTimeout    = 15 * time.Second
	defaultNetworkCallsPerSecond = 10
	gweiExponent                 = -9
)

// NetworkFee is a gas price snapshot in wei.
type NetworkFee struct {
	Low    *big.Int `json:"-"`
	Medium *big.Int `json:"-"`
	High   *big.Int `json:"-"`
}

// MarshalJSON renders the fee in gwei for the approval prompt.
func (f NetworkFee) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Low    string `json:"low"`
		Medium string `json:"medium"`
		High   string `json:"high"`
		Unit   string `json:"unit"`
	}{
		Low:    weiToGwei(f.Low),
		Medium: weiToGwei(f.Medium),
		High:   weiToGwei(f.High),
		Unit:   "gwei",
	})
}

func weiToGwei(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, gweiExponent).String()
}

// FormatTokenAmount renders a base-unit amount with the token's decimals.
func FormatTokenAmount(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).String()
}

// NetworkService talks to the RPC nodes of the wallet networks.
type NetworkService interface {
	GetNetworkFee(ctx context.Context, network Network) (NetworkFee, error)
	GetChainID(ctx context.Context, rpcURL string) (uint64, error)
	PendingNonce(ctx context.Context, network Network, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, network Network, tx *types.Transaction) (string, error)
}

// EthClient is the subset of ethclient.Client used by EthNetworkService.
type EthClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	Close()
}

// EthDialer opens a client for an RPC url.
type EthDialer func(ctx context.Context, rpcURL string) (EthClient, error)

func dialEthClient(ctx context.Context, rpcURL string) (EthClient, error) {
	c, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// EthNetworkService caches one client per RPC url and paces calls to each url.
// Rate limited calls are retried with back-off.
type EthNetworkService struct {
	dial           EthDialer
	callsPerSecond int
	callTimeout    time.Duration

	mu       sync.Mutex
	clients  map[string]EthClient
	limiters map[string]ratelimit.Limiter
}

func NewEthNetworkService(dial EthDialer, callsPerSecond int) *EthNetworkService {
	if dial == nil {
		dial = dialEthClient
	}
	if callsPerSecond <= 0 {
		callsPerSecond = defaultNetworkCallsPerSecond
	}
	return &EthNetworkService{
		dial:           dial,
		callsPerSecond: callsPerSecond,
		callTimeout:    defaultNetworkCallTimeout,
		clients:        make(map[string]EthClient),
		limiters:       make(map[string]ratelimit.Limiter),
	}
}

// client returns the cached client of rpcURL, dialing it on first use. The
// dial runs without the lock so a slow url does not hold up the others.
func (s *EthNetworkService) client(ctx context.Context, rpcURL string) (EthClient, ratelimit.Limiter, error) {
	s.mu.Lock()
	limiter, ok := s.limiters[rpcURL]
	if !ok {
		limiter = ratelimit.New(s.callsPerSecond, ratelimit.Per(time.Second))
		s.limiters[rpcURL] = limiter
	}
	c, ok := s.clients[rpcURL]
	s.mu.Unlock()
	if ok {
		return c, limiter, nil
	}

	dialed, err := s.dial(ctx, rpcURL)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "dial %s", rpcURL)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[rpcURL]; ok {
		// A concurrent call dialed first; keep its client.
		dialed.Close()
		return c, limiter, nil
	}
	s.clients[rpcURL] = dialed
	return dialed, limiter, nil
}

// call runs fn against the client of rpcURL within the call timeout.
func (s *EthNetworkService) call(ctx context.Context, rpcURL string, fn func(ctx context.Context, c EthClient) error) error {
	c, limiter, err := s.client(ctx, rpcURL)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	return debounce.Debounce(ctx, networkLogger, func(ctx context.Context) error {
		limiter.Take()
		return fn(ctx, c)
	})
}

func (s *EthNetworkService) GetNetworkFee(ctx context.Context, network Network) (NetworkFee, error) {
	var gasPrice *big.Int
	err := s.call(ctx, network.RPCURL, func(ctx context.Context, c EthClient) error {
		var err error
		gasPrice, err = c.SuggestGasPrice(ctx)
		return err
	})
	if err != nil {
		return NetworkFee{}, errors.Wrapf(err, "suggest gas price on chain %d", network.ChainID)
	}

	base := decimal.NewFromBigInt(gasPrice, 0)
	return NetworkFee{
		Low:    gasPrice,
		Medium: base.Mul(decimal.NewFromFloat(1.2)).Ceil().BigInt(),
		High:   base.Mul(decimal.NewFromFloat(1.5)).Ceil().BigInt(),
	}, nil
}

// GetChainID asks an arbitrary RPC url for its chain id. The client is not
// cached since the url usually comes from a dApp.
func (s *EthNetworkService) GetChainID(ctx context.Context, rpcURL string) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, checkChainIdCallTimeout)
	defer cancel()

	c, err := s.dial(ctx, rpcURL)
	if err != nil {
		return 0, errors.Wrapf(err, "dial %s", rpcURL)
	}
	defer c.Close()

	var chainID *big.Int
	err = debounce.Debounce(ctx, networkLogger, func(ctx context.Context) error {
		var err error
		chainID, err = c.ChainID(ctx)
		return err
	})
	if err != nil {
		return 0, errors.Wrap(err, "get chain id")
	}
	return chainID.Uint64(), nil
}

func (s *EthNetworkService) PendingNonce(ctx context.Context, network Network, account common.Address) (uint64, error) {
	var nonce uint64
	err := s.call(ctx, network.RPCURL, func(ctx context.Context, c EthClient) error {
		var err error
		nonce, err = c.PendingNonceAt(ctx, account)
		return err
	})
	if err != nil {
		return 0, errors.Wrapf(err, "get pending nonce of %s on chain %d", account.Hex(), network.ChainID)
	}
	return nonce, nil
}

// SendTransaction broadcasts a signed transaction and returns its hash.
func (s *EthNetworkService) SendTransaction(ctx context.Context, network Network, tx *types.Transaction) (string, error) {
	err := s.call(ctx, network.RPCURL, func(ctx context.Context, c EthClient) error {
		return c.SendTransaction(ctx, tx)
	})
	if err != nil {
		return "", errors.Wrapf(err, "send transaction on chain %d", network.ChainID)
	}
	return tx.Hash().Hex(), nil
}

// Close releases every cached client.
func (s *EthNetworkService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for url, c := range s.clients {
		c.Close()
		delete(s.clients, url)
	}
}
