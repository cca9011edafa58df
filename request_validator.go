package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/corewallet/wcnode/pkg/rpc"
)

const (
	errMsgTurnOffDeveloperMode = "Invalid environment. Please turn off developer mode and try again"
	errMsgTurnOnDeveloperMode  = "Invalid environment. Please turn on developer mode and try again"
	errMsgNetworkNotFound      = "Network does not exist"
)

// chainAgnosticMethods do not depend on the chain id of the request.
var chainAgnosticMethods = map[string]struct{}{
	"avalanche_getContacts":      {},
	"avalanche_createContact":    {},
	"avalanche_removeContact":    {},
	"avalanche_updateContact":    {},
	"avalanche_getAccounts":      {},
	"avalanche_selectAccount":    {},
	"wallet_addEthereumChain":    {},
	"wallet_switchEthereumChain": {},
}

// ParseChainID extracts the numeric reference of an "eip155:<id>" chain id.
func ParseChainID(caip string) (uint64, error) {
	namespace, reference, ok := strings.Cut(caip, ":")
	if !ok || namespace != NamespaceEIP155 {
		return 0, fmt.Errorf("unsupported chain id %q", caip)
	}
	id, err := strconv.ParseUint(reference, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chain reference %q: %w", reference, err)
	}
	return id, nil
}

// NetworkLookup resolves networks by chain id.
type NetworkLookup interface {
	Get(chainID uint64) (Network, bool, error)
}

// DeveloperModeReader reports whether the wallet operates on test networks.
type DeveloperModeReader interface {
	DeveloperMode() bool
}

// RequestValidator rejects requests whose chain does not match the wallet
// environment: testnet chains are only served in developer mode and mainnet
// chains only outside of it.
type RequestValidator struct {
	networks NetworkLookup
	state    DeveloperModeReader
}

func NewRequestValidator(networks NetworkLookup, state DeveloperModeReader) *RequestValidator {
	return &RequestValidator{networks: networks, state: state}
}

// Validate returns an rpc.Error when req must not be dispatched.
func (v *RequestValidator) Validate(ctx context.Context, req Request) error {
	if req.IsSessionProposal() {
		return nil
	}
	if _, ok := chainAgnosticMethods[req.Method]; ok {
		return nil
	}

	chainID, err := ParseChainID(req.ChainID)
	if err != nil {
		return rpc.ResourceNotFound(errMsgNetworkNotFound)
	}

	network, ok, err := v.networks.Get(chainID)
	if err != nil {
		LoggerFromContext(ctx).Error("failed to look up network", "chainID", chainID, "error", err)
		return rpc.ResourceNotFound(errMsgNetworkNotFound)
	}
	if !ok {
		return rpc.ResourceNotFound(errMsgNetworkNotFound)
	}

	developerMode := v.state.DeveloperMode()
	switch {
	case developerMode && !network.IsTestnet:
		return rpc.Internal(errMsgTurnOffDeveloperMode)
	case !developerMode && network.IsTestnet:
		return rpc.Internal(errMsgTurnOnDeveloperMode)
	}
	return nil
}
