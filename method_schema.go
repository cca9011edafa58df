package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	hexNumberRegex = regexp.MustCompile(`^0[xX][0-9a-fA-F]+$`)
	hexDataRegex   = regexp.MustCompile(`^0[xX]([0-9a-fA-F]{2})*$`)
	quantityRegex  = regexp.MustCompile(`^(0[xX][0-9a-fA-F]+|[0-9]+)$`)
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// getValidator returns the validator shared by every method schema.
func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()

		if err := validate.RegisterValidation("hexnum", func(fl validator.FieldLevel) bool {
			return hexNumberRegex.MatchString(fl.Field().String())
		}); err != nil {
			panic(fmt.Sprintf("failed to register hexnum validation: %v", err))
		}
		if err := validate.RegisterValidation("quantity", func(fl validator.FieldLevel) bool {
			return quantityRegex.MatchString(fl.Field().String())
		}); err != nil {
			panic(fmt.Sprintf("failed to register quantity validation: %v", err))
		}
		if err := validate.RegisterValidation("hexdata", func(fl validator.FieldLevel) bool {
			return hexDataRegex.MatchString(fl.Field().String())
		}); err != nil {
			panic(fmt.Sprintf("failed to register hexdata validation: %v", err))
		}
	})
	return validate
}

var errNoParams = errors.New("params must be a non-empty array")

// parseFirstParam decodes the first element of a JSON-RPC params array into T
// and validates it against T's schema tags.
func parseFirstParam[T any](params json.RawMessage) (T, error) {
	var zero T

	var list []json.RawMessage
	if err := json.Unmarshal(params, &list); err != nil {
		return zero, err
	}
	if len(list) == 0 {
		return zero, errNoParams
	}

	var out T
	if err := json.Unmarshal(list[0], &out); err != nil {
		return zero, err
	}
	if err := getValidator().Struct(out); err != nil {
		var invalid *validator.InvalidValidationError
		if !errors.As(err, &invalid) {
			return zero, err
		}
	}
	return out, nil
}

// parseApproveData decodes and validates approval data sent by the UI.
func parseApproveData[T any](data json.RawMessage) (T, error) {
	var out T
	if len(data) == 0 {
		return out, errors.New("approval data is empty")
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, err
	}
	if err := getValidator().Struct(out); err != nil {
		return out, err
	}
	return out, nil
}

// parseHexUint64 parses a 0x-prefixed hex quantity. Leading zeros are accepted.
func parseHexUint64(s string) (uint64, error) {
	if !hexNumberRegex.MatchString(s) {
		return 0, fmt.Errorf("invalid hex quantity %q", s)
	}
	return strconv.ParseUint(s[2:], 16, 64)
}

func parseHexBig(s string) (*big.Int, error) {
	if !hexNumberRegex.MatchString(s) {
		return nil, fmt.Errorf("invalid hex quantity %q", s)
	}
	n, ok := new(big.Int).SetString(s[2:], 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex quantity %q", s)
	}
	return n, nil
}

// parseQuantity parses a transaction quantity given either as 0x-prefixed hex
// or as a decimal string.
func parseQuantity(s string) (*big.Int, error) {
	if !quantityRegex.MatchString(s) {
		return nil, fmt.Errorf("invalid quantity %q", s)
	}
	if hexNumberRegex.MatchString(s) {
		return parseHexBig(s)
	}
	// Decimal strings are read in base 10 even with leading zeros.
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid quantity %q", s)
	}
	return n, nil
}

func parseQuantityUint64(s string) (uint64, error) {
	n, err := parseQuantity(s)
	if err != nil {
		return 0, err
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("quantity %q overflows uint64", s)
	}
	return n.Uint64(), nil
}

// TransactionParams is the first param of eth_sendTransaction.
type TransactionParams struct {
	From     string `json:"from" validate:"required,eth_addr"`
	To       string `json:"to" validate:"required,eth_addr"`
	Value    string `json:"value" validate:"required,quantity"`
	Gas      string `json:"gas" validate:"required,quantity"`
	GasPrice string `json:"gasPrice,omitempty" validate:"omitempty,quantity"`
	Data     string `json:"data,omitempty" validate:"omitempty,hexdata"`
}

// NativeCurrency describes the currency of a chain added by a dApp.
type NativeCurrency struct {
	Name     string `json:"name" validate:"required"`
	Symbol   string `json:"symbol" validate:"required"`
	Decimals uint8  `json:"decimals"`
}

// AddEthereumChainParams is the first param of wallet_addEthereumChain (EIP-3085).
type AddEthereumChainParams struct {
	ChainID           string          `json:"chainId" validate:"required,hexnum"`
	ChainName         string          `json:"chainName" validate:"required"`
	RPCUrls           []string        `json:"rpcUrls" validate:"omitempty,dive,url"`
	NativeCurrency    *NativeCurrency `json:"nativeCurrency" validate:"omitempty"`
	BlockExplorerUrls []string        `json:"blockExplorerUrls,omitempty" validate:"omitempty,dive,url"`
	IconUrls          []string        `json:"iconUrls,omitempty"`
	IsTestnet         *bool           `json:"isTestnet,omitempty"`
}

// SwitchEthereumChainParams is the first param of wallet_switchEthereumChain (EIP-3326).
type SwitchEthereumChainParams struct {
	ChainID string `json:"chainId" validate:"required,hexnum"`
}

// ContactParams is the first param of avalanche_createContact and avalanche_updateContact.
type ContactParams struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name" validate:"required"`
	Address string `json:"address" validate:"required,eth_addr"`
}

// RemoveContactParams is the first param of avalanche_removeContact.
type RemoveContactParams struct {
	ID string `json:"id" validate:"required"`
}
