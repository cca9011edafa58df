package main

import (
	"context"
	"encoding/json"

	"github.com/corewallet/wcnode/pkg/rpc"
)

const (
	errMsgInvalidChainInfo       = "Chain info is invalid"
	errMsgMissingRPCURL          = "RPC url is missing"
	errMsgMissingNativeCurrency  = "Expected nativeCurrency param to be defined"
	errMsgChainIDMismatch        = "ChainID does not match the rpc url"
	defaultNativeCurrencyDecimal = 18
)

// ChainApproveData is the payload of the add and switch chain prompts, sent
// back unchanged on approval.
type ChainApproveData struct {
	Network    Network `json:"network"`
	IsExisting bool    `json:"isExisting"`
}

// AddChainHandler serves wallet_addEthereumChain (EIP-3085).
type AddChainHandler struct {
	networks *NetworkStore
	state    *WalletState
	service  NetworkService
	prompter Prompter
}

func NewAddChainHandler(networks *NetworkStore, state *WalletState, service NetworkService, prompter Prompter) *AddChainHandler {
	return &AddChainHandler{networks: networks, state: state, service: service, prompter: prompter}
}

func (h *AddChainHandler) Methods() []string {
	return []string{MethodAddEthereumChain}
}

func (h *AddChainHandler) Handle(ctx context.Context, req Request) Result {
	params, err := parseFirstParam[AddEthereumChainParams](req.Params)
	if err != nil {
		return Failure(rpc.InvalidParams(errMsgInvalidChainInfo))
	}
	chainID, err := parseHexUint64(params.ChainID)
	if err != nil {
		return Failure(rpc.InvalidParams(errMsgInvalidChainInfo))
	}

	if chainID == h.state.ActiveChainID() {
		return Success(nil)
	}
	if len(params.RPCUrls) == 0 {
		return Failure(rpc.InvalidParams(errMsgMissingRPCURL))
	}
	if params.NativeCurrency == nil {
		return Failure(rpc.InvalidParams(errMsgMissingNativeCurrency))
	}

	existing, ok, err := h.networks.Get(chainID)
	if err != nil {
		LoggerFromContext(ctx).Error("failed to look up network", "chainID", chainID, "error", err)
		return Failure(rpc.Internal(defaultNodeErrorMessage))
	}
	if ok {
		return deferWithPrompt(ctx, h.prompter, req, PromptAddChain, ChainApproveData{Network: existing, IsExisting: true})
	}

	rpcURL := params.RPCUrls[0]
	reported, err := h.service.GetChainID(ctx, rpcURL)
	if err != nil || reported != chainID {
		LoggerFromContext(ctx).Warn("rpc url does not serve the requested chain", "chainID", chainID, "rpcURL", rpcURL, "reportedChainID", reported, "error", err)
		return Failure(rpc.InvalidParams(errMsgChainIDMismatch))
	}

	return deferWithPrompt(ctx, h.prompter, req, PromptAddChain, ChainApproveData{
		Network:    h.networkFromParams(chainID, params),
		IsExisting: false,
	})
}

func (h *AddChainHandler) networkFromParams(chainID uint64, params AddEthereumChainParams) Network {
	isTestnet := h.state.DeveloperMode()
	if params.IsTestnet != nil {
		isTestnet = *params.IsTestnet
	}
	decimals := params.NativeCurrency.Decimals
	if decimals == 0 {
		decimals = defaultNativeCurrencyDecimal
	}

	network := Network{
		ChainID:   chainID,
		ChainName: params.ChainName,
		VMName:    VMNameEVM,
		RPCURL:    params.RPCUrls[0],
		IsTestnet: isTestnet,
		NetworkToken: NetworkToken{
			Name:     params.NativeCurrency.Name,
			Symbol:   params.NativeCurrency.Symbol,
			Decimals: decimals,
		},
		IsCustom: true,
	}
	if len(params.BlockExplorerUrls) > 0 {
		network.ExplorerURL = params.BlockExplorerUrls[0]
	}
	if len(params.IconUrls) > 0 {
		network.LogoURI = params.IconUrls[0]
	}
	return network
}

func (h *AddChainHandler) Approve(ctx context.Context, req Request, data json.RawMessage) Result {
	approveData, err := parseApproveData[ChainApproveData](data)
	if err != nil {
		return Failure(rpc.Internal(errMsgInvalidApproveData))
	}

	network := approveData.Network
	if !approveData.IsExisting {
		if network.VMName == "" {
			network.VMName = VMNameEVM
		}
		if err := h.networks.AddCustom(network); err != nil {
			LoggerFromContext(ctx).Error("failed to add custom network", "chainID", network.ChainID, "error", err)
			return Failure(rpc.Internal(defaultNodeErrorMessage))
		}
	}
	return activateNetwork(ctx, h.state, network)
}

// activateNetwork makes network the active one, switching developer mode so
// that it matches the network kind.
func activateNetwork(ctx context.Context, state *WalletState, network Network) Result {
	if state.DeveloperMode() != network.IsTestnet {
		if err := state.SetDeveloperMode(network.IsTestnet); err != nil {
			LoggerFromContext(ctx).Error("failed to toggle developer mode", "error", err)
			return Failure(rpc.Internal(defaultNodeErrorMessage))
		}
	}
	if err := state.SetActiveChainID(network.ChainID); err != nil {
		LoggerFromContext(ctx).Error("failed to set active network", "chainID", network.ChainID, "error", err)
		return Failure(rpc.Internal(defaultNodeErrorMessage))
	}
	return Success(nil)
}
