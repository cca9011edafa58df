package main

import (
	"context"
	"encoding/json"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/corewallet/wcnode/pkg/rpc"
)

const (
	errMsgInvalidTxParams  = "Transaction params are invalid"
	errMsgApproveTxFailed  = "Unable to approve transaction request"
	reporterTagDApps       = "dapps"
	reporterSignTxScope    = "signTransactionV2"
	reporterSignMsgScope   = "signMessageV2"
	broadcastStatusSuccess = "success"
	broadcastStatusFailed  = "failed"
)

type sendTransactionPrompt struct {
	TxParams TransactionParams `json:"txParams"`
	Network  Network           `json:"network"`
	Account  Account           `json:"account"`
	Fee      *NetworkFee       `json:"fee"`

	// DisplayValue is the value in native token units, e.g. "1.5".
	DisplayValue string `json:"displayValue"`
}

// SendTransactionApproveData carries the params the user confirmed, which may
// differ from the dApp ones in gas settings.
type SendTransactionApproveData struct {
	TxParams TransactionParams `json:"txParams"`
}

// SendTransactionHandler serves eth_sendTransaction.
type SendTransactionHandler struct {
	networks NetworkLookup
	state    *WalletState
	signer   *WalletSigner
	service  NetworkService
	prompter Prompter
	reporter ErrorReporter
	store    *RequestStore
	metrics  *Metrics
}

// NewSendTransactionHandler builds the handler. store and metrics may be nil.
func NewSendTransactionHandler(
	networks NetworkLookup,
	state *WalletState,
	service NetworkService,
	prompter Prompter,
	reporter ErrorReporter,
	store *RequestStore,
	metrics *Metrics,
) *SendTransactionHandler {
	if reporter == nil {
		reporter = NoopReporter{}
	}
	return &SendTransactionHandler{
		networks: networks,
		state:    state,
		signer:   NewWalletSigner(state),
		service:  service,
		prompter: prompter,
		reporter: reporter,
		store:    store,
		metrics:  metrics,
	}
}

func (h *SendTransactionHandler) Methods() []string {
	return []string{MethodSendTransaction}
}

func (h *SendTransactionHandler) Handle(ctx context.Context, req Request) Result {
	txParams, err := parseFirstParam[TransactionParams](req.Params)
	if err != nil {
		return Failure(rpc.InvalidParams(errMsgInvalidTxParams))
	}

	network, rpcErr := networkOfRequest(ctx, h.networks, req)
	if rpcErr != nil {
		return Failure(*rpcErr)
	}

	account, ok := h.state.AccountByAddress(txParams.From)
	if !ok {
		return Failure(rpc.ResourceNotFound(errMsgAccountNotFound))
	}

	value, err := parseQuantity(txParams.Value)
	if err != nil {
		return Failure(rpc.InvalidParams(errMsgInvalidTxParams))
	}
	displayValue := FormatTokenAmount(value, network.NetworkToken.Decimals)

	var fee *NetworkFee
	if f, err := h.service.GetNetworkFee(ctx, network); err != nil {
		LoggerFromContext(ctx).Warn("failed to fetch network fee", "chainID", network.ChainID, "error", err)
	} else {
		fee = &f
	}

	return deferWithPrompt(ctx, h.prompter, req, PromptSendTransaction, sendTransactionPrompt{
		TxParams: txParams,
		Network:  network,
		Account:  account,
		Fee:      fee,

		DisplayValue: displayValue,
	})
}

func (h *SendTransactionHandler) Approve(ctx context.Context, req Request, data json.RawMessage) Result {
	approveData, err := parseApproveData[SendTransactionApproveData](data)
	if err != nil {
		return Failure(rpc.Internal(errMsgInvalidApproveData))
	}

	network, rpcErr := networkOfRequest(ctx, h.networks, req)
	if rpcErr != nil {
		return Failure(*rpcErr)
	}
	account, ok := h.state.AccountByAddress(approveData.TxParams.From)
	if !ok {
		return Failure(rpc.ResourceNotFound(errMsgAccountNotFound))
	}

	txHash, err := h.broadcast(ctx, approveData.TxParams, account, network)
	if err != nil {
		LoggerFromContext(ctx).Error("failed to approve transaction", "chainID", network.ChainID, "error", err)
		h.reporter.Report(err, reporterTagDApps, reporterSignTxScope)
		h.countBroadcast(network, broadcastStatusFailed)
		return Failure(rpc.Internal(errMsgApproveTxFailed))
	}
	h.countBroadcast(network, broadcastStatusSuccess)

	if h.store != nil {
		if err := h.store.SetTxHash(req.ID, txHash); err != nil {
			LoggerFromContext(ctx).Error("failed to store transaction hash", "txHash", txHash, "error", err)
		}
	}
	return Success(txHash)
}

func (h *SendTransactionHandler) broadcast(ctx context.Context, params TransactionParams, account Account, network Network) (string, error) {
	nonce, err := h.service.PendingNonce(ctx, network, common.HexToAddress(account.AddressC))
	if err != nil {
		return "", err
	}

	var fallbackGasPrice *big.Int
	if params.GasPrice == "" {
		fee, err := h.service.GetNetworkFee(ctx, network)
		if err != nil {
			return "", err
		}
		fallbackGasPrice = fee.Low
	}

	tx, err := h.signer.SignTransaction(params, account.Index, network, nonce, fallbackGasPrice)
	if err != nil {
		return "", errors.Wrap(err, "sign transaction")
	}
	return h.service.SendTransaction(ctx, network, tx)
}

func (h *SendTransactionHandler) countBroadcast(network Network, status string) {
	if h.metrics == nil {
		return
	}
	h.metrics.BroadcastTransactions.WithLabelValues(strconv.FormatUint(network.ChainID, 10), status).Inc()
}
