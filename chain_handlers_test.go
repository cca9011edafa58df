package main

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corewallet/wcnode/pkg/rpc"
)

const testCustomRPC = "https://rpc.custom.example.org"

func addChainRequest(t *testing.T, params map[string]any) Request {
	return Request{
		ID:      1,
		Method:  MethodAddEthereumChain,
		Params:  mustJSON(t, []any{params}),
		ChainID: "eip155:43114",
		Topic:   "topic-1",
		Session: testSession("topic-1"),
	}
}

func customChainParams() map[string]any {
	return map[string]any{
		"chainId":           "0x7a69",
		"chainName":         "Custom Chain",
		"rpcUrls":           []string{testCustomRPC},
		"nativeCurrency":    map[string]any{"name": "Custom", "symbol": "CST"},
		"blockExplorerUrls": []string{"https://explorer.custom.example.org"},
	}
}

func TestAddChainHandler_Handle(t *testing.T) {
	newHandler := func(t *testing.T) (*AddChainHandler, *walletFixture, *mockNetworkService) {
		fx := newWalletFixture(t)
		service := &mockNetworkService{chainIDs: map[string]uint64{testCustomRPC: 31337}}
		return NewAddChainHandler(fx.networks, fx.state, service, fx.prompter), fx, service
	}

	t.Run("active chain succeeds without prompt", func(t *testing.T) {
		h, fx, _ := newHandler(t)
		result := h.Handle(context.Background(), addChainRequest(t, map[string]any{"chainId": "0xa86a", "chainName": "Avalanche"}))

		assert.Equal(t, Success(nil), result)
		assert.Empty(t, fx.prompter.Prompts())
	})

	tests := []struct {
		name    string
		mutate  func(p map[string]any)
		wantErr rpc.Error
	}{
		{"missing chain id", func(p map[string]any) { delete(p, "chainId") }, rpc.InvalidParams(errMsgInvalidChainInfo)},
		{"decimal chain id", func(p map[string]any) { p["chainId"] = "31337" }, rpc.InvalidParams(errMsgInvalidChainInfo)},
		{"missing rpc urls", func(p map[string]any) { delete(p, "rpcUrls") }, rpc.InvalidParams(errMsgMissingRPCURL)},
		{"missing native currency", func(p map[string]any) { delete(p, "nativeCurrency") }, rpc.InvalidParams(errMsgMissingNativeCurrency)},
		{"rpc serves another chain", func(p map[string]any) { p["chainId"] = "0x7a6a" }, rpc.InvalidParams(errMsgChainIDMismatch)},
		{"rpc unreachable", func(p map[string]any) { p["rpcUrls"] = []string{"https://down.example.org"} }, rpc.InvalidParams(errMsgChainIDMismatch)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, fx, _ := newHandler(t)
			params := customChainParams()
			tt.mutate(params)

			result := h.Handle(context.Background(), addChainRequest(t, params))

			require.Equal(t, ResultFailure, result.Kind)
			assert.Equal(t, tt.wantErr, result.Err)
			assert.Empty(t, fx.prompter.Prompts())
		})
	}

	t.Run("existing network", func(t *testing.T) {
		h, fx, _ := newHandler(t)
		params := customChainParams()
		params["chainId"] = "0x1"

		result := h.Handle(context.Background(), addChainRequest(t, params))

		require.Equal(t, ResultDeferred, result.Kind)
		data := fx.prompter.Prompts()[0].Data.(ChainApproveData)
		assert.True(t, data.IsExisting)
		assert.Equal(t, "Ethereum", data.Network.ChainName)
	})

	t.Run("new network", func(t *testing.T) {
		h, fx, _ := newHandler(t)
		result := h.Handle(context.Background(), addChainRequest(t, customChainParams()))

		require.Equal(t, ResultDeferred, result.Kind)
		prompt := fx.prompter.Prompts()[0]
		assert.Equal(t, PromptAddChain, prompt.Kind)

		data := prompt.Data.(ChainApproveData)
		assert.False(t, data.IsExisting)
		assert.Equal(t, Network{
			ChainID:      31337,
			ChainName:    "Custom Chain",
			VMName:       VMNameEVM,
			RPCURL:       testCustomRPC,
			ExplorerURL:  "https://explorer.custom.example.org",
			NetworkToken: NetworkToken{Name: "Custom", Symbol: "CST", Decimals: 18},
			IsCustom:     true,
		}, data.Network)
	})
}

func TestAddChainHandler_Approve(t *testing.T) {
	fx := newWalletFixture(t)
	h := NewAddChainHandler(fx.networks, fx.state, &mockNetworkService{}, fx.prompter)

	network := Network{
		ChainID:      31337,
		ChainName:    "Custom Chain",
		RPCURL:       testCustomRPC,
		IsTestnet:    true,
		NetworkToken: NetworkToken{Name: "Custom", Symbol: "CST", Decimals: 18},
	}
	result := h.Approve(context.Background(), addChainRequest(t, customChainParams()), mustJSON(t, ChainApproveData{Network: network}))

	require.Equal(t, Success(nil), result)
	assert.Equal(t, uint64(31337), fx.state.ActiveChainID())
	assert.True(t, fx.state.DeveloperMode())

	stored, ok, err := fx.networks.Get(31337)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, stored.IsCustom)
	assert.Equal(t, VMNameEVM, stored.VMName)
	assert.Equal(t, "CST", stored.NetworkToken.Symbol)

	result = h.Approve(context.Background(), addChainRequest(t, customChainParams()), mustJSON(t, map[string]any{"isExisting": true}))
	require.Equal(t, ResultFailure, result.Kind)
	assert.Equal(t, rpc.Internal(errMsgInvalidApproveData), result.Err)
}

func switchChainRequest(t *testing.T, chainID string) Request {
	return Request{
		ID:      2,
		Method:  MethodSwitchEthereumChain,
		Params:  mustJSON(t, []any{map[string]string{"chainId": chainID}}),
		ChainID: "eip155:43114",
		Topic:   "topic-1",
		Session: testSession("topic-1"),
	}
}

func TestSwitchChainHandler(t *testing.T) {
	t.Run("invalid chain id", func(t *testing.T) {
		fx := newWalletFixture(t)
		h := NewSwitchChainHandler(fx.networks, fx.state, fx.prompter)

		result := h.Handle(context.Background(), switchChainRequest(t, "avalanche"))
		assert.Equal(t, Failure(rpc.InvalidParams(errMsgInvalidChainID)), result)
	})

	t.Run("active chain", func(t *testing.T) {
		fx := newWalletFixture(t)
		h := NewSwitchChainHandler(fx.networks, fx.state, fx.prompter)

		result := h.Handle(context.Background(), switchChainRequest(t, "0xa86a"))
		assert.Equal(t, Success(nil), result)
		assert.Empty(t, fx.prompter.Prompts())
	})

	t.Run("unknown chain", func(t *testing.T) {
		fx := newWalletFixture(t)
		h := NewSwitchChainHandler(fx.networks, fx.state, fx.prompter)

		result := h.Handle(context.Background(), switchChainRequest(t, "0x7a69"))
		require.Equal(t, ResultFailure, result.Kind)
		assert.Equal(t, rpc.CodeUnrecognizedChain, result.Err.Code)
		assert.Equal(t, fmt.Sprintf("Unrecognized chain ID \"31337\". Try adding the chain using %s first.", MethodAddEthereumChain), result.Err.Message)
	})

	t.Run("prompt and approve testnet", func(t *testing.T) {
		fx := newWalletFixture(t)
		h := NewSwitchChainHandler(fx.networks, fx.state, fx.prompter)

		result := h.Handle(context.Background(), switchChainRequest(t, "0xa869"))
		require.Equal(t, ResultDeferred, result.Kind)
		prompt := fx.prompter.Prompts()[0]
		assert.Equal(t, PromptSwitchChain, prompt.Kind)

		result = h.Approve(context.Background(), switchChainRequest(t, "0xa869"), mustJSON(t, prompt.Data))
		require.Equal(t, Success(nil), result)
		assert.Equal(t, uint64(43113), fx.state.ActiveChainID())
		assert.True(t, fx.state.DeveloperMode())

		// Persisted for the next start.
		var settings WalletSettings
		require.NoError(t, fx.db.First(&settings).Error)
		assert.Equal(t, uint64(43113), settings.ActiveChainID)
		assert.True(t, settings.DeveloperMode)
	})
}
