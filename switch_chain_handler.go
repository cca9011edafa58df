package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/corewallet/wcnode/pkg/rpc"
)

const errMsgInvalidChainID = "Chain ID is invalid"

// SwitchChainHandler serves wallet_switchEthereumChain (EIP-3326).
type SwitchChainHandler struct {
	networks NetworkLookup
	state    *WalletState
	prompter Prompter
}

func NewSwitchChainHandler(networks NetworkLookup, state *WalletState, prompter Prompter) *SwitchChainHandler {
	return &SwitchChainHandler{networks: networks, state: state, prompter: prompter}
}

func (h *SwitchChainHandler) Methods() []string {
	return []string{MethodSwitchEthereumChain}
}

func (h *SwitchChainHandler) Handle(ctx context.Context, req Request) Result {
	params, err := parseFirstParam[SwitchEthereumChainParams](req.Params)
	if err != nil {
		return Failure(rpc.InvalidParams(errMsgInvalidChainID))
	}
	chainID, err := parseHexUint64(params.ChainID)
	if err != nil {
		return Failure(rpc.InvalidParams(errMsgInvalidChainID))
	}

	if chainID == h.state.ActiveChainID() {
		return Success(nil)
	}

	network, ok, err := h.networks.Get(chainID)
	if err != nil {
		LoggerFromContext(ctx).Error("failed to look up network", "chainID", chainID, "error", err)
		return Failure(rpc.Internal(defaultNodeErrorMessage))
	}
	if !ok {
		return Failure(rpc.UnrecognizedChain(fmt.Sprintf(
			"Unrecognized chain ID \"%d\". Try adding the chain using %s first.",
			chainID, MethodAddEthereumChain,
		)))
	}

	return deferWithPrompt(ctx, h.prompter, req, PromptSwitchChain, ChainApproveData{Network: network, IsExisting: true})
}

func (h *SwitchChainHandler) Approve(ctx context.Context, _ Request, data json.RawMessage) Result {
	approveData, err := parseApproveData[ChainApproveData](data)
	if err != nil {
		return Failure(rpc.Internal(errMsgInvalidApproveData))
	}
	return activateNetwork(ctx, h.state, approveData.Network)
}
