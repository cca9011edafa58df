package main

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEthClient struct {
	mu       sync.Mutex
	chainID  *big.Int
	nonce    uint64
	gasPrice *big.Int
	sendErr  error
	sent     []*types.Transaction
	closed   bool
}

func (c *fakeEthClient) ChainID(context.Context) (*big.Int, error) { return c.chainID, nil }

func (c *fakeEthClient) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return c.nonce, nil
}

func (c *fakeEthClient) SuggestGasPrice(context.Context) (*big.Int, error) {
	if c.gasPrice == nil {
		return nil, errors.New("method not found")
	}
	return c.gasPrice, nil
}

func (c *fakeEthClient) SendTransaction(_ context.Context, tx *types.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, tx)
	return nil
}

func (c *fakeEthClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

type fakeDialer struct {
	mu      sync.Mutex
	clients map[string]*fakeEthClient
	dials   map[string]int
}

func (d *fakeDialer) dial(_ context.Context, rpcURL string) (EthClient, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.clients[rpcURL]
	if !ok {
		return nil, errors.New("connection refused")
	}
	d.dials[rpcURL]++
	return c, nil
}

func TestEthNetworkService(t *testing.T) {
	network := testNetworks()[43114]
	client := &fakeEthClient{chainID: big.NewInt(43114), nonce: 12, gasPrice: big.NewInt(25_000_000_000)}
	dialer := &fakeDialer{
		clients: map[string]*fakeEthClient{network.RPCURL: client},
		dials:   map[string]int{},
	}
	service := NewEthNetworkService(dialer.dial, 100)
	ctx := context.Background()

	fee, err := service.GetNetworkFee(ctx, network)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(25_000_000_000), fee.Low)
	assert.Equal(t, big.NewInt(30_000_000_000), fee.Medium)
	assert.Equal(t, big.NewInt(37_500_000_000), fee.High)

	nonce, err := service.PendingNonce(ctx, network, common.HexToAddress(testAccount0))
	require.NoError(t, err)
	assert.Equal(t, uint64(12), nonce)

	tx := types.NewTx(&types.LegacyTx{Nonce: 12, GasPrice: fee.Low, Gas: 21000})
	hash, err := service.SendTransaction(ctx, network, tx)
	require.NoError(t, err)
	assert.Equal(t, tx.Hash().Hex(), hash)
	assert.Len(t, client.sent, 1)

	// One cached client serves every call to the url.
	assert.Equal(t, 1, dialer.dials[network.RPCURL])

	chainID, err := service.GetChainID(ctx, network.RPCURL)
	require.NoError(t, err)
	assert.Equal(t, uint64(43114), chainID)
	assert.Equal(t, 2, dialer.dials[network.RPCURL])

	_, err = service.GetChainID(ctx, "https://unknown.example.org")
	assert.Error(t, err)

	service.Close()
	assert.True(t, client.closed)
}

func TestEthNetworkService_Errors(t *testing.T) {
	network := testNetworks()[43114]
	client := &fakeEthClient{chainID: big.NewInt(43114), sendErr: errors.New("nonce too low")}
	dialer := &fakeDialer{
		clients: map[string]*fakeEthClient{network.RPCURL: client},
		dials:   map[string]int{},
	}
	service := NewEthNetworkService(dialer.dial, 0)
	defer service.Close()
	ctx := context.Background()

	_, err := service.GetNetworkFee(ctx, network)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "suggest gas price on chain 43114")

	_, err = service.SendTransaction(ctx, network, types.NewTx(&types.LegacyTx{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nonce too low")

	_, err = service.PendingNonce(ctx, Network{ChainID: 1, RPCURL: "https://down.example.org"}, common.Address{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial https://down.example.org")
}

func TestEthNetworkService_SlowDialDoesNotBlockOtherURLs(t *testing.T) {
	fast := testNetworks()[43114]
	slow := Network{ChainID: 1, RPCURL: "https://slow.example.org"}
	fastClient := &fakeEthClient{chainID: big.NewInt(43114), gasPrice: big.NewInt(25_000_000_000)}

	dialing := make(chan struct{})
	release := make(chan struct{})
	dial := func(ctx context.Context, rpcURL string) (EthClient, error) {
		if rpcURL == slow.RPCURL {
			close(dialing)
			<-release
			return &fakeEthClient{chainID: big.NewInt(1), nonce: 4}, nil
		}
		return fastClient, nil
	}
	service := NewEthNetworkService(dial, 100)
	defer service.Close()
	ctx := context.Background()

	slowDone := make(chan error, 1)
	go func() {
		_, err := service.PendingNonce(ctx, slow, common.Address{})
		slowDone <- err
	}()
	<-dialing

	feeDone := make(chan error, 1)
	go func() {
		_, err := service.GetNetworkFee(ctx, fast)
		feeDone <- err
	}()
	select {
	case err := <-feeDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("fee lookup waited for an unrelated dial")
	}

	close(release)
	require.NoError(t, <-slowDone)
}

func TestEthNetworkService_ConcurrentDialKeepsOneClient(t *testing.T) {
	network := testNetworks()[43114]

	var (
		mu      sync.Mutex
		clients []*fakeEthClient
	)
	arrived := make(chan struct{}, 2)
	release := make(chan struct{})
	dial := func(context.Context, string) (EthClient, error) {
		c := &fakeEthClient{chainID: big.NewInt(43114), nonce: 9}
		mu.Lock()
		clients = append(clients, c)
		mu.Unlock()
		arrived <- struct{}{}
		<-release
		return c, nil
	}
	service := NewEthNetworkService(dial, 100)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			nonce, err := service.PendingNonce(ctx, network, common.Address{})
			assert.NoError(t, err)
			assert.Equal(t, uint64(9), nonce)
		}()
	}
	<-arrived
	<-arrived
	close(release)
	wg.Wait()

	require.Len(t, clients, 2)
	closed := 0
	for _, c := range clients {
		c.mu.Lock()
		if c.closed {
			closed++
		}
		c.mu.Unlock()
	}
	assert.Equal(t, 1, closed, "the losing dial is closed")

	service.Close()
	for _, c := range clients {
		assert.True(t, c.closed)
	}
}

func TestNetworkFee_MarshalJSON(t *testing.T) {
	fee := NetworkFee{Low: big.NewInt(25_000_000_000), Medium: big.NewInt(30_500_000_000)}

	raw, err := fee.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"low":"25","medium":"30.5","high":"0","unit":"gwei"}`, string(raw))
}

func TestFormatTokenAmount(t *testing.T) {
	oneAndHalf, _ := new(big.Int).SetString("1500000000000000000", 10)

	assert.Equal(t, "1.5", FormatTokenAmount(oneAndHalf, 18))
	assert.Equal(t, "0.00000001", FormatTokenAmount(big.NewInt(1), 8))
	assert.Equal(t, "0", FormatTokenAmount(nil, 18))
}
