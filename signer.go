package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/corewallet/wcnode/pkg/sign"
)

const (
	MethodPersonalSign        = "personal_sign"
	MethodEthSign             = "eth_sign"
	MethodSignTypedData       = "eth_signTypedData"
	MethodSignTypedDataV1     = "eth_signTypedData_v1"
	MethodSignTypedDataV3     = "eth_signTypedData_v3"
	MethodSignTypedDataV4     = "eth_signTypedData_v4"
	MethodSendTransaction     = "eth_sendTransaction"
	MethodAddEthereumChain    = "wallet_addEthereumChain"
	MethodSwitchEthereumChain = "wallet_switchEthereumChain"
)

var (
	// ErrLegacyTypedData is returned for pre EIP-712 typed data, which the wallet does not sign.
	ErrLegacyTypedData   = errors.New("legacy typed data is not supported")
	ErrUnknownSignMethod = errors.New("unknown signing method")
)

// WalletSigner signs transactions and messages with the wallet accounts.
type WalletSigner struct {
	accounts interface {
		Signer(index int) (sign.Signer, bool)
	}
}

func NewWalletSigner(state *WalletState) *WalletSigner {
	return &WalletSigner{accounts: state}
}

func (w *WalletSigner) signer(accountIndex int) (sign.Signer, error) {
	s, ok := w.accounts.Signer(accountIndex)
	if !ok {
		return nil, ErrAccountNotFound
	}
	return s, nil
}

// SignTransaction builds and signs a legacy transaction from dApp params.
// fallbackGasPrice is used when params carry no gas price.
func (w *WalletSigner) SignTransaction(params TransactionParams, accountIndex int, network Network, nonce uint64, fallbackGasPrice *big.Int) (*types.Transaction, error) {
	s, err := w.signer(accountIndex)
	if err != nil {
		return nil, err
	}

	gas, err := parseQuantityUint64(params.Gas)
	if err != nil {
		return nil, fmt.Errorf("gas: %w", err)
	}
	value, err := parseQuantity(params.Value)
	if err != nil {
		return nil, fmt.Errorf("value: %w", err)
	}
	gasPrice := fallbackGasPrice
	if params.GasPrice != "" {
		if gasPrice, err = parseQuantity(params.GasPrice); err != nil {
			return nil, fmt.Errorf("gasPrice: %w", err)
		}
	}
	if gasPrice == nil {
		return nil, errors.New("gas price is unknown")
	}
	var data []byte
	if params.Data != "" && params.Data != "0x" {
		if data, err = hexutil.Decode(params.Data); err != nil {
			return nil, fmt.Errorf("data: %w", err)
		}
	}

	to := common.HexToAddress(params.To)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Value:    value,
		Data:     data,
	})
	return s.SignTx(tx, new(big.Int).SetUint64(network.ChainID))
}

// SignMessage signs data on behalf of the account at accountIndex using the
// scheme of method. personal_sign and eth_sign use EIP-191, typed data
// methods EIP-712. Legacy (v1) typed data is refused.
func (w *WalletSigner) SignMessage(method string, data json.RawMessage, accountIndex int) (sign.Signature, error) {
	s, err := w.signer(accountIndex)
	if err != nil {
		return nil, err
	}

	switch method {
	case MethodPersonalSign, MethodEthSign:
		var message string
		if err := json.Unmarshal(data, &message); err != nil {
			return nil, fmt.Errorf("message must be a string: %w", err)
		}
		return sign.SignPersonalMessage(s, message)
	case MethodSignTypedDataV1:
		return nil, ErrLegacyTypedData
	case MethodSignTypedData, MethodSignTypedDataV3, MethodSignTypedDataV4:
		var typed any
		if err := json.Unmarshal(data, &typed); err != nil {
			return nil, fmt.Errorf("invalid typed data: %w", err)
		}
		// eth_signTypedData without a version carries a v1 array when legacy.
		if isLegacyTypedData(typed) {
			return nil, ErrLegacyTypedData
		}
		return sign.SignTypedData(s, typed)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownSignMethod, method)
	}
}

func isLegacyTypedData(typed any) bool {
	switch v := typed.(type) {
	case []any:
		return true
	case string:
		return strings.HasPrefix(strings.TrimSpace(v), "[")
	default:
		return false
	}
}
