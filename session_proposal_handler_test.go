package main

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corewallet/wcnode/pkg/rpc"
)

func newProposalHandler(t *testing.T) (*SessionProposalHandler, *walletFixture) {
	fx := newWalletFixture(t)
	return NewSessionProposalHandler(fx.networks, fx.state, NewOriginPolicy(), fx.prompter), fx
}

func proposalRequest(id uint64, url string, required, optional Namespaces) Request {
	return NewSessionProposalRequest(SessionProposal{
		ID:                 id,
		Proposer:           PeerMetadata{Name: "Test dApp", URL: url},
		RequiredNamespaces: required,
		OptionalNamespaces: optional,
	})
}

func TestSessionProposalHandler_Handle(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		required   Namespaces
		optional   Namespaces
		wantErr    *rpc.Error
		wantChains []uint64
		wantCore   bool
	}{
		{
			name:     "non eip155 namespace",
			url:      "https://dapp.example.org",
			required: Namespaces{"cosmos": {Chains: []string{"cosmos:cosmoshub-4"}}},
			wantErr:  &rpc.Error{Code: rpc.CodeInvalidParams, Message: errMsgOnlyEIP155},
		},
		{
			name: "multiple namespaces",
			url:  "https://dapp.example.org",
			required: Namespaces{
				NamespaceEIP155: {Chains: []string{"eip155:43114"}},
				"solana":        {Chains: []string{"solana:mainnet"}},
			},
			wantErr: &rpc.Error{Code: rpc.CodeInvalidParams, Message: errMsgOnlyEIP155},
		},
		{
			name:     "zero chains",
			url:      "https://dapp.example.org",
			required: Namespaces{NamespaceEIP155: {Methods: []string{MethodPersonalSign}}},
			wantErr:  &rpc.Error{Code: rpc.CodeInvalidParams, Message: errMsgNetworksUnspecified},
		},
		{
			name:     "unknown chain",
			url:      "https://dapp.example.org",
			required: Namespaces{NamespaceEIP155: {Chains: []string{"eip155:999999"}}},
			wantErr:  &rpc.Error{Code: rpc.CodeInvalidParams, Message: "Requested network eip155:999999 is not supported"},
		},
		{
			name:     "non EVM chain",
			url:      "https://dapp.example.org",
			required: Namespaces{NamespaceEIP155: {Chains: []string{"eip155:4200"}}},
			wantErr:  &rpc.Error{Code: rpc.CodeInvalidParams, Message: "Requested network eip155:4200 is not supported"},
		},
		{
			name: "core only method from untrusted origin",
			url:  "https://evil.example.org",
			required: Namespaces{NamespaceEIP155: {
				Chains:  []string{"eip155:43114"},
				Methods: []string{"avalanche_getAccounts"},
			}},
			wantErr: &rpc.Error{Code: rpc.CodeInvalidParams, Message: errMsgMethodUnauthorized},
		},
		{
			name: "unserved core method from untrusted origin",
			url:  "https://evil.example.org",
			required: Namespaces{NamespaceEIP155: {
				Chains:  []string{"eip155:43114"},
				Methods: []string{"avalanche_bridgeAsset"},
			}},
			wantErr: &rpc.Error{Code: rpc.CodeInvalidParams, Message: errMsgMethodUnauthorized},
		},
		{
			name: "core only method from core origin",
			url:  "https://core.app",
			required: Namespaces{NamespaceEIP155: {
				Chains:  []string{"eip155:43114"},
				Methods: []string{"avalanche_getAccounts"},
			}},
			wantChains: []uint64{43114},
			wantCore:   true,
		},
		{
			name:       "empty required namespaces default to active chain",
			url:        "https://dapp.example.org",
			wantChains: []uint64{43114},
		},
		{
			name:       "supported optional chains are appended",
			url:        "https://dapp.example.org",
			required:   Namespaces{NamespaceEIP155: {Chains: []string{"eip155:1"}}},
			optional:   Namespaces{NamespaceEIP155: {Chains: []string{"eip155:43114", "eip155:1", "eip155:777", "eip155:4200"}}},
			wantChains: []uint64{1, 43114},
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, fx := newProposalHandler(t)
			req := proposalRequest(uint64(i+1), tt.url, tt.required, tt.optional)

			result := h.Handle(context.Background(), req)

			if tt.wantErr != nil {
				require.Equal(t, ResultFailure, result.Kind)
				assert.Equal(t, *tt.wantErr, result.Err)
				assert.Empty(t, fx.prompter.Prompts())
				return
			}

			require.Equal(t, ResultDeferred, result.Kind)
			prompts := fx.prompter.Prompts()
			require.Len(t, prompts, 1)
			assert.Equal(t, PromptSessionProposal, prompts[0].Kind)
			assert.Equal(t, req.ID, prompts[0].RequestID)

			data, ok := prompts[0].Data.(sessionProposalPrompt)
			require.True(t, ok)
			var chains []uint64
			for _, n := range data.Chains {
				chains = append(chains, n.ChainID)
			}
			assert.Equal(t, tt.wantChains, chains)
			assert.Equal(t, tt.wantCore, data.IsCoreDApp)
			assert.Len(t, data.Accounts, len(testAccountKeys))
		})
	}
}

func TestSessionProposalHandler_PromptFailure(t *testing.T) {
	h, fx := newProposalHandler(t)
	fx.prompter.err = fmt.Errorf("no ui connected")

	result := h.Handle(context.Background(), proposalRequest(1, "https://dapp.example.org", nil, nil))

	require.Equal(t, ResultFailure, result.Kind)
	assert.Equal(t, rpc.Internal(errMsgPromptFailed), result.Err)
}

func TestSessionProposalHandler_Approve(t *testing.T) {
	t.Run("N accounts x M chains", func(t *testing.T) {
		h, _ := newProposalHandler(t)
		req := proposalRequest(1, "https://dapp.example.org", Namespaces{NamespaceEIP155: {
			Chains: []string{"eip155:43114"},
			Events: []string{"accountsChanged", "message"},
		}}, Namespaces{NamespaceEIP155: {
			Chains: []string{"eip155:1"},
			Events: []string{"message", "session_ping"},
		}})

		data := mustJSON(t, SessionProposalApproveData{
			SelectedAccounts: []string{testAccount0, testAccount1},
			ApprovedChainIDs: []uint64{43114, 1, 43113},
		})
		result := h.Approve(context.Background(), req, data)

		require.Equal(t, ResultSuccess, result.Kind)
		namespaces, ok := result.Value.(Namespaces)
		require.True(t, ok)
		ns := namespaces[NamespaceEIP155]

		assert.Equal(t, []string{"eip155:43114", "eip155:1", "eip155:43113"}, ns.Chains)
		require.Len(t, ns.Accounts, 2*3)
		assert.Contains(t, ns.Accounts, "eip155:43114:"+testAccount0)
		assert.Contains(t, ns.Accounts, "eip155:43113:"+testAccount1)
		assert.Equal(t, supportedMethods, ns.Methods)
		// Optional events are left out.
		assert.Equal(t, []string{"chainChanged", "accountsChanged", "message"}, ns.Events)
	})

	t.Run("core origin is granted core methods", func(t *testing.T) {
		h, _ := newProposalHandler(t)
		req := proposalRequest(2, "https://feature-x.core-web.pages.dev", nil, nil)

		result := h.Approve(context.Background(), req, mustJSON(t, SessionProposalApproveData{
			SelectedAccounts: []string{testAccount0},
		}))

		require.Equal(t, ResultSuccess, result.Kind)
		ns := result.Value.(Namespaces)[NamespaceEIP155]
		assert.Equal(t, []string{"eip155:43114"}, ns.Chains)
		assert.Equal(t, []string{"eip155:43114:" + testAccount0}, ns.Accounts)
		for _, m := range coreOnlyMethods {
			assert.Contains(t, ns.Methods, m)
		}
		for _, m := range reservedCoreMethods {
			assert.NotContains(t, ns.Methods, m)
		}
	})

	t.Run("invalid approve data", func(t *testing.T) {
		h, _ := newProposalHandler(t)
		req := proposalRequest(3, "https://dapp.example.org", nil, nil)

		for _, data := range []json.RawMessage{
			nil,
			json.RawMessage(`{"selectedAccounts":[]}`),
			json.RawMessage(`{"selectedAccounts":["not-an-address"]}`),
			json.RawMessage(`[1,2]`),
		} {
			result := h.Approve(context.Background(), req, data)
			require.Equal(t, ResultFailure, result.Kind, string(data))
			assert.Equal(t, rpc.Internal(errMsgInvalidApproveData), result.Err)
		}
	})
}

func TestOriginPolicy_IsCoreOrigin(t *testing.T) {
	policy := NewOriginPolicy("wallet.internal.example")

	for url, want := range map[string]bool{
		"https://core.app":                         true,
		"https://develop.core.app/path":            true,
		"http://localhost:3000":                    true,
		"http://127.0.0.1:8080":                    true,
		"https://pr-12.core-web.pages.dev":         true,
		"https://core-preview-ava-labs.vercel.app": true,
		"https://WALLET.internal.example":          true,
		"https://core.app.evil.com":                false,
		"https://notcore.app":                      false,
		"https://a.b.core-web.pages.dev":           false,
		"core.app":                                 false,
		"::not a url":                              false,
	} {
		assert.Equal(t, want, policy.IsCoreOrigin(url), url)
	}
}
