package main

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/corewallet/wcnode/pkg/rpc"
)

const (
	MethodSelectAccount = "avalanche_selectAccount"
	MethodGetAccounts   = "avalanche_getAccounts"

	errMsgRequestedAccountNotFound = "Requested account does not exist"
	errMsgInvalidAccountIndex      = "Account index is invalid"
)

type selectAccountPrompt struct {
	Account Account `json:"account"`
}

// SelectAccountHandler serves avalanche_selectAccount.
type SelectAccountHandler struct {
	state    *WalletState
	prompter Prompter
}

func NewSelectAccountHandler(state *WalletState, prompter Prompter) *SelectAccountHandler {
	return &SelectAccountHandler{state: state, prompter: prompter}
}

func (h *SelectAccountHandler) Methods() []string {
	return []string{MethodSelectAccount}
}

func (h *SelectAccountHandler) Handle(ctx context.Context, req Request) Result {
	index, err := parseFirstParam[int](req.Params)
	if err != nil {
		return Failure(rpc.InvalidParams(errMsgInvalidAccountIndex))
	}
	if index == h.state.ActiveAccountIndex() {
		return Success(nil)
	}

	account, ok := h.state.Account(index)
	if !ok {
		return Failure(rpc.ResourceNotFound(errMsgRequestedAccountNotFound))
	}
	return deferWithPrompt(ctx, h.prompter, req, PromptSelectAccount, selectAccountPrompt{Account: account})
}

func (h *SelectAccountHandler) Approve(ctx context.Context, req Request, _ json.RawMessage) Result {
	index, err := parseFirstParam[int](req.Params)
	if err != nil {
		return Failure(rpc.Internal(errMsgInvalidApproveData))
	}
	if err := h.state.SelectAccount(index); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return Failure(rpc.ResourceNotFound(errMsgRequestedAccountNotFound))
		}
		LoggerFromContext(ctx).Error("failed to select account", "index", index, "error", err)
		return Failure(rpc.Internal(defaultNodeErrorMessage))
	}
	return Success(nil)
}

// GetAccountsHandler serves avalanche_getAccounts.
type GetAccountsHandler struct {
	state *WalletState
}

func NewGetAccountsHandler(state *WalletState) *GetAccountsHandler {
	return &GetAccountsHandler{state: state}
}

func (h *GetAccountsHandler) Methods() []string {
	return []string{MethodGetAccounts}
}

func (h *GetAccountsHandler) Handle(context.Context, Request) Result {
	return Success(h.state.Accounts())
}
