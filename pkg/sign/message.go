package sign

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// SignPersonalMessage signs message with the EIP-191 "\x19Ethereum Signed Message"
// prefix. A 0x-prefixed hex message is decoded first, as wallets do for personal_sign.
func SignPersonalMessage(s Signer, message string) (Signature, error) {
	return s.SignHash(accounts.TextHash(DecodeMessage(message)))
}

// DecodeMessage returns the bytes of a 0x-prefixed hex message, or the raw text.
func DecodeMessage(message string) []byte {
	if strings.HasPrefix(message, "0x") {
		if decoded, err := hexutil.Decode(message); err == nil {
			return decoded
		}
	}
	return []byte(message)
}

// SignTypedData signs an EIP-712 payload given either as a JSON string or as a
// decoded object.
func SignTypedData(s Signer, data any) (Signature, error) {
	typed, err := ParseTypedData(data)
	if err != nil {
		return nil, err
	}

	hash, _, err := apitypes.TypedDataAndHash(typed)
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}
	return s.SignHash(hash)
}

func ParseTypedData(data any) (apitypes.TypedData, error) {
	var raw []byte
	switch v := data.(type) {
	case string:
		raw = []byte(v)
	case json.RawMessage:
		raw = v
		// A JSON-encoded string holding the typed data document.
		var inner string
		if json.Unmarshal(v, &inner) == nil {
			raw = []byte(inner)
		}
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return apitypes.TypedData{}, fmt.Errorf("failed to encode typed data: %w", err)
		}
		raw = encoded
	}

	var typed apitypes.TypedData
	if err := json.Unmarshal(raw, &typed); err != nil {
		return apitypes.TypedData{}, fmt.Errorf("failed to decode typed data: %w", err)
	}
	return typed, nil
}
