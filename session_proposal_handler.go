package main

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/corewallet/wcnode/pkg/rpc"
)

const (
	errMsgOnlyEIP155          = "Only eip155 namespace is supported"
	errMsgNetworksUnspecified = "Networks not specified"
	errMsgMethodUnauthorized  = "Requested method is not authorized"
)

// supportedMethods are granted to every dApp.
var supportedMethods = []string{
	MethodSendTransaction,
	MethodSignTypedDataV3,
	MethodSignTypedDataV4,
	MethodSignTypedDataV1,
	MethodSignTypedData,
	MethodPersonalSign,
	MethodEthSign,
	MethodAddEthereumChain,
	MethodSwitchEthereumChain,
}

// coreOnlyMethods are granted to trusted core origins only.
var coreOnlyMethods = []string{
	MethodGetContacts,
	MethodCreateContact,
	MethodRemoveContact,
	MethodUpdateContact,
	MethodSelectAccount,
	MethodGetAccounts,
}

// reservedCoreMethods are core-only X/P-chain and bridge methods this wallet
// does not serve. They are never granted, and an untrusted dApp requiring one
// is still refused as unauthorized.
var reservedCoreMethods = []string{
	"avalanche_bridgeAsset",
	"avalanche_sendTransaction",
	"avalanche_signTransaction",
}

var defaultSessionEvents = []string{"chainChanged", "accountsChanged"}

func isCoreOnlyMethod(method string) bool {
	return slices.Contains(coreOnlyMethods, method) || slices.Contains(reservedCoreMethods, method)
}

// SessionProposalApproveData is sent by the UI when the user approves a session.
type SessionProposalApproveData struct {
	SelectedAccounts []string `json:"selectedAccounts" validate:"required,min=1,dive,eth_addr"`
	ApprovedChainIDs []uint64 `json:"approvedChainIds"`
}

// SessionProposalHandler decides which namespaces a dApp is granted.
type SessionProposalHandler struct {
	networks NetworkLookup
	state    *WalletState
	origins  *OriginPolicy
	prompter Prompter
}

func NewSessionProposalHandler(networks NetworkLookup, state *WalletState, origins *OriginPolicy, prompter Prompter) *SessionProposalHandler {
	return &SessionProposalHandler{networks: networks, state: state, origins: origins, prompter: prompter}
}

func (h *SessionProposalHandler) Methods() []string {
	return []string{MethodSessionProposal}
}

// sessionProposalPrompt is what the user reviews before picking accounts.
type sessionProposalPrompt struct {
	Chains     []Network `json:"chains"`
	Methods    []string  `json:"methods"`
	Events     []string  `json:"events"`
	Accounts   []Account `json:"accounts"`
	IsCoreDApp bool      `json:"isCoreDApp"`
}

func (h *SessionProposalHandler) Handle(ctx context.Context, req Request) Result {
	proposal := req.Proposal
	if proposal == nil {
		return Failure(rpc.InvalidParams("Session proposal is missing"))
	}

	networks, rpcErr := h.requestedNetworks(ctx, *proposal)
	if rpcErr != nil {
		return Failure(*rpcErr)
	}

	isCore := h.origins.IsCoreOrigin(proposal.Proposer.URL)
	required := proposal.RequiredNamespaces[NamespaceEIP155]
	if !isCore {
		for _, method := range required.Methods {
			if isCoreOnlyMethod(method) {
				return Failure(rpc.InvalidParams(errMsgMethodUnauthorized))
			}
		}
	}

	return deferWithPrompt(ctx, h.prompter, req, PromptSessionProposal, sessionProposalPrompt{
		Chains:     networks,
		Methods:    h.grantedMethods(isCore),
		Events:     sessionEvents(*proposal),
		Accounts:   h.state.Accounts(),
		IsCoreDApp: isCore,
	})
}

func (h *SessionProposalHandler) Approve(ctx context.Context, req Request, data json.RawMessage) Result {
	approveData, err := parseApproveData[SessionProposalApproveData](data)
	if err != nil || req.Proposal == nil {
		return Failure(rpc.Internal(errMsgInvalidApproveData))
	}

	chainIDs := approveData.ApprovedChainIDs
	if len(chainIDs) == 0 {
		networks, rpcErr := h.requestedNetworks(ctx, *req.Proposal)
		if rpcErr != nil {
			return Failure(*rpcErr)
		}
		for _, n := range networks {
			chainIDs = append(chainIDs, n.ChainID)
		}
	}

	chains := make([]string, 0, len(chainIDs))
	accounts := make([]string, 0, len(chainIDs)*len(approveData.SelectedAccounts))
	for _, chainID := range chainIDs {
		chain := CaipChainID(chainID)
		chains = append(chains, chain)
		for _, account := range approveData.SelectedAccounts {
			accounts = append(accounts, fmt.Sprintf("%s:%s", chain, account))
		}
	}

	isCore := h.origins.IsCoreOrigin(req.Proposal.Proposer.URL)
	return Success(Namespaces{
		NamespaceEIP155: {
			Chains:   chains,
			Accounts: accounts,
			Methods:  h.grantedMethods(isCore),
			Events:   sessionEvents(*req.Proposal),
		},
	})
}

// requestedNetworks validates the proposal namespaces and resolves the
// required chains followed by the supported optional ones.
func (h *SessionProposalHandler) requestedNetworks(ctx context.Context, p SessionProposal) ([]Network, *rpc.Error) {
	if err := checkNamespaces(p.RequiredNamespaces); err != nil {
		return nil, err
	}

	var chains []string
	if len(p.RequiredNamespaces) == 0 {
		chains = []string{CaipChainID(h.state.ActiveChainID())}
	} else {
		chains = p.RequiredNamespaces[NamespaceEIP155].Chains
	}
	if len(chains) == 0 {
		rpcErr := rpc.InvalidParams(errMsgNetworksUnspecified)
		return nil, &rpcErr
	}

	seen := make(map[uint64]struct{})
	networks := make([]Network, 0, len(chains))
	for _, chain := range chains {
		network, ok := h.supportedNetwork(ctx, chain)
		if !ok {
			rpcErr := rpc.InvalidParams(fmt.Sprintf("Requested network %s is not supported", chain))
			return nil, &rpcErr
		}
		if _, dup := seen[network.ChainID]; dup {
			continue
		}
		seen[network.ChainID] = struct{}{}
		networks = append(networks, network)
	}

	for _, chain := range p.OptionalNamespaces[NamespaceEIP155].Chains {
		network, ok := h.supportedNetwork(ctx, chain)
		if !ok {
			continue
		}
		if _, dup := seen[network.ChainID]; dup {
			continue
		}
		seen[network.ChainID] = struct{}{}
		networks = append(networks, network)
	}
	return networks, nil
}

func (h *SessionProposalHandler) supportedNetwork(ctx context.Context, chain string) (Network, bool) {
	chainID, err := ParseChainID(chain)
	if err != nil {
		return Network{}, false
	}
	network, ok, err := h.networks.Get(chainID)
	if err != nil {
		LoggerFromContext(ctx).Error("failed to look up network", "chainID", chainID, "error", err)
		return Network{}, false
	}
	return network, ok && network.VMName == VMNameEVM
}

func (h *SessionProposalHandler) grantedMethods(isCore bool) []string {
	methods := append([]string{}, supportedMethods...)
	if isCore {
		methods = append(methods, coreOnlyMethods...)
	}
	return methods
}

func checkNamespaces(namespaces Namespaces) *rpc.Error {
	if len(namespaces) > 1 {
		rpcErr := rpc.InvalidParams(errMsgOnlyEIP155)
		return &rpcErr
	}
	for name := range namespaces {
		if name != NamespaceEIP155 {
			rpcErr := rpc.InvalidParams(errMsgOnlyEIP155)
			return &rpcErr
		}
	}
	return nil
}

// sessionEvents returns the default events followed by the required ones,
// without duplicates. Optional events are not granted.
func sessionEvents(p SessionProposal) []string {
	events := append([]string{}, defaultSessionEvents...)
	for _, e := range p.RequiredNamespaces[NamespaceEIP155].Events {
		if !slices.Contains(events, e) {
			events = append(events, e)
		}
	}
	return events
}
