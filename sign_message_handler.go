package main

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/tidwall/gjson"

	"github.com/corewallet/wcnode/pkg/rpc"
)

const (
	errMsgInvalidMessageParams = "Invalid message params"
	errMsgAddressUnauthorized  = "Requested address is not authorized"
	errMsgSignMessageFailed    = "Unable to sign message"
)

// signMessagePrompt is shown for every signing method.
type signMessagePrompt struct {
	Data    json.RawMessage `json:"data"`
	Network Network         `json:"network" validate:"-"`
	Account Account         `json:"account"`
}

// SignMessageApproveData is echoed back by the UI after the user approved.
type SignMessageApproveData struct {
	Data    json.RawMessage `json:"data" validate:"required"`
	Account Account         `json:"account"`
	Network Network         `json:"network" validate:"-"`
}

// SignMessageHandler serves the EIP-191 and EIP-712 signing methods.
type SignMessageHandler struct {
	networks NetworkLookup
	state    *WalletState
	signer   *WalletSigner
	prompter Prompter
	reporter ErrorReporter
}

func NewSignMessageHandler(networks NetworkLookup, state *WalletState, prompter Prompter, reporter ErrorReporter) *SignMessageHandler {
	if reporter == nil {
		reporter = NoopReporter{}
	}
	return &SignMessageHandler{
		networks: networks,
		state:    state,
		signer:   NewWalletSigner(state),
		prompter: prompter,
		reporter: reporter,
	}
}

func (h *SignMessageHandler) Methods() []string {
	return []string{
		MethodEthSign,
		MethodPersonalSign,
		MethodSignTypedData,
		MethodSignTypedDataV1,
		MethodSignTypedDataV3,
		MethodSignTypedDataV4,
	}
}

// messageParamPositions returns the array index of the address and of the
// payload for method.
func messageParamPositions(method string) (address, data string) {
	switch method {
	case MethodPersonalSign, MethodSignTypedData, MethodSignTypedDataV1:
		return "1", "0"
	default:
		return "0", "1"
	}
}

func (h *SignMessageHandler) Handle(ctx context.Context, req Request) Result {
	params := gjson.ParseBytes(req.Params)
	if !params.IsArray() || len(params.Array()) != 2 {
		return Failure(rpc.InvalidParams(errMsgInvalidMessageParams))
	}

	addressPos, dataPos := messageParamPositions(req.Method)
	address := params.Get(addressPos)
	if address.Type != gjson.String {
		return Failure(rpc.InvalidParams(errMsgInvalidMessageParams))
	}
	if !req.Session.HasAccount(req.ChainID, address.String()) {
		return Failure(rpc.Unauthorized(errMsgAddressUnauthorized))
	}

	network, rpcErr := networkOfRequest(ctx, h.networks, req)
	if rpcErr != nil {
		return Failure(*rpcErr)
	}
	account, ok := h.state.AccountByAddress(address.String())
	if !ok {
		return Failure(rpc.ResourceNotFound(errMsgAccountNotFound))
	}

	return deferWithPrompt(ctx, h.prompter, req, PromptSignMessage, signMessagePrompt{
		Data:    json.RawMessage(params.Get(dataPos).Raw),
		Network: network,
		Account: account,
	})
}

func (h *SignMessageHandler) Approve(ctx context.Context, req Request, data json.RawMessage) Result {
	approveData, err := parseApproveData[SignMessageApproveData](data)
	if err != nil {
		return Failure(rpc.Internal(errMsgInvalidApproveData))
	}

	account, ok := h.state.AccountByAddress(approveData.Account.AddressC)
	if !ok {
		return Failure(rpc.ResourceNotFound(errMsgAccountNotFound))
	}

	signature, err := h.signer.SignMessage(req.Method, approveData.Data, account.Index)
	if errors.Is(err, ErrAccountNotFound) {
		return Failure(rpc.ResourceNotFound(errMsgAccountNotFound))
	}
	if err != nil {
		LoggerFromContext(ctx).Error("failed to sign message", "account", account.AddressC, "error", err)
		h.reporter.Report(err, reporterTagDApps, reporterSignMsgScope)
		return Failure(rpc.Internal(errMsgSignMessageFailed))
	}
	return Success(hexutil.Encode(signature))
}
