package main

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/corewallet/wcnode/pkg/rpc"
	"github.com/corewallet/wcnode/pkg/sign"
)

// Well known development keys.
var testAccountKeys = []string{
	"0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80",
	"0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d",
}

const (
	testAccount0 = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	testAccount1 = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
)

func testNetworks() map[uint64]Network {
	token := NetworkToken{Name: "Avalanche", Symbol: "AVAX", Decimals: 18}
	return map[uint64]Network{
		43114: {ChainID: 43114, ChainName: "Avalanche C-Chain", Name: "avalanche_c", VMName: VMNameEVM, RPCURL: "https://api.avax.network/ext/bc/C/rpc", NetworkToken: token},
		43113: {ChainID: 43113, ChainName: "Avalanche Fuji", Name: "avalanche_fuji", VMName: VMNameEVM, RPCURL: "https://api.avax-test.network/ext/bc/C/rpc", IsTestnet: true, NetworkToken: token},
		1:     {ChainID: 1, ChainName: "Ethereum", Name: "ethereum", VMName: VMNameEVM, RPCURL: "https://eth.example.org", NetworkToken: NetworkToken{Name: "Ether", Symbol: "ETH", Decimals: 18}},
		4200:  {ChainID: 4200, ChainName: "Bitcoin", Name: "bitcoin", VMName: "BITCOIN", NetworkToken: NetworkToken{Name: "Bitcoin", Symbol: "BTC", Decimals: 8}},
	}
}

// walletFixture is a wallet backed by a fresh database.
type walletFixture struct {
	db       *gorm.DB
	networks *NetworkStore
	state    *WalletState
	prompter *mockPrompter
}

func newWalletFixture(t *testing.T) *walletFixture {
	t.Helper()

	db, cleanup := setupTestDB(t)
	t.Cleanup(cleanup)

	keyring, err := sign.NewKeyring(testAccountKeys)
	require.NoError(t, err)

	state, err := NewWalletState(db, keyring, WalletSettings{ActiveChainID: 43114})
	require.NoError(t, err)

	return &walletFixture{
		db:       db,
		networks: NewNetworkStore(db, testNetworks()),
		state:    state,
		prompter: &mockPrompter{},
	}
}

func testSession(topic string, accounts ...string) *Session {
	return &Session{
		Topic: topic,
		Peer:  PeerMetadata{Name: "Test dApp", URL: "https://dapp.example.org"},
		Namespaces: Namespaces{
			NamespaceEIP155: {
				Chains:   []string{"eip155:43114"},
				Methods:  []string{"eth_sendTransaction", "personal_sign"},
				Events:   defaultSessionEvents,
				Accounts: accounts,
			},
		},
	}
}

func mustJSON(t testing.TB, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

type mockPrompter struct {
	mu      sync.Mutex
	prompts []Prompt
	err     error
	shown   chan Prompt
}

func (m *mockPrompter) ShowPrompt(_ context.Context, p Prompt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.prompts = append(m.prompts, p)
	if m.shown != nil {
		m.shown <- p
	}
	return nil
}

func (m *mockPrompter) Prompts() []Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Prompt(nil), m.prompts...)
}

type mockToaster struct {
	mu     sync.Mutex
	toasts []Toast
}

func (m *mockToaster) ShowToast(_ context.Context, t Toast) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toasts = append(m.toasts, t)
}

func (m *mockToaster) Toasts() []Toast {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Toast(nil), m.toasts...)
}

// transportCall records one Transport invocation.
type transportCall struct {
	Method     string
	ID         uint64
	Topic      string
	Namespaces Namespaces
	Result     json.RawMessage
	Err        rpc.Error
	Topics     []string
	URI        string
}

type mockTransport struct {
	mu    sync.Mutex
	calls []transportCall
	err   error
}

func (m *mockTransport) record(call transportCall) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	return m.err
}

func (m *mockTransport) Calls() []transportCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]transportCall(nil), m.calls...)
}

func (m *mockTransport) ApproveSession(_ context.Context, proposalID uint64, _ string, namespaces Namespaces) error {
	return m.record(transportCall{Method: RelayApproveSessionMethod, ID: proposalID, Namespaces: namespaces})
}

func (m *mockTransport) RejectSession(_ context.Context, proposalID uint64, rpcErr rpc.Error) error {
	return m.record(transportCall{Method: RelayRejectSessionMethod, ID: proposalID, Err: rpcErr})
}

func (m *mockTransport) ApproveRequest(_ context.Context, topic string, requestID uint64, result json.RawMessage) error {
	return m.record(transportCall{Method: RelayApproveRequestMethod, ID: requestID, Topic: topic, Result: result})
}

func (m *mockTransport) RejectRequest(_ context.Context, topic string, requestID uint64, rpcErr rpc.Error) error {
	return m.record(transportCall{Method: RelayRejectRequestMethod, ID: requestID, Topic: topic, Err: rpcErr})
}

func (m *mockTransport) KillSessions(_ context.Context, topics []string) error {
	return m.record(transportCall{Method: RelayKillSessionsMethod, Topics: topics})
}

func (m *mockTransport) Pair(_ context.Context, uri string) error {
	return m.record(transportCall{Method: RelayPairMethod, URI: uri})
}

type mockNetworkService struct {
	mu       sync.Mutex
	fee      NetworkFee
	feeErr   error
	chainIDs map[string]uint64
	nonce    uint64
	txHash   string
	sendErr  error
	sent     []*types.Transaction
}

func (m *mockNetworkService) GetNetworkFee(context.Context, Network) (NetworkFee, error) {
	return m.fee, m.feeErr
}

func (m *mockNetworkService) GetChainID(_ context.Context, rpcURL string) (uint64, error) {
	id, ok := m.chainIDs[rpcURL]
	if !ok {
		return 0, errors.New("dial failed")
	}
	return id, nil
}

func (m *mockNetworkService) PendingNonce(context.Context, Network, common.Address) (uint64, error) {
	return m.nonce, nil
}

func (m *mockNetworkService) SendTransaction(_ context.Context, _ Network, tx *types.Transaction) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return "", m.sendErr
	}
	m.sent = append(m.sent, tx)
	return m.txHash, nil
}

type countingReporter struct {
	mu      sync.Mutex
	reports []error
	tags    [][]string
}

func (r *countingReporter) Report(err error, tags ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, err)
	r.tags = append(r.tags, tags)
}

func (r *countingReporter) Flush() {}

func (r *countingReporter) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}

// waitFor polls cond until it holds or the timeout elapses.
func waitFor(t testing.TB, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}
