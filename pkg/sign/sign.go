// Package sign holds the wallet's account keys and produces Ethereum signatures
// for transactions, EIP-191 personal messages and EIP-712 typed data.
//
// Private keys never leave this package: callers work with a Signer, which
// exposes the account address and signing operations only. A Keyring orders
// signers by account index, matching how the wallet addresses its accounts.
package sign

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// Signer signs on behalf of one account.
type Signer interface {
	Address() common.Address
	// SignHash signs a 32-byte digest. V is returned in the 27/28 form.
	SignHash(hash []byte) (Signature, error)
	// SignTx signs tx for chainID with the latest signer rules for that chain.
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// Signature is a 65-byte [R || S || V] secp256k1 signature, hex encoded in JSON.
type Signature []byte

func (s Signature) String() string {
	return hexutil.Encode(s)
}

func (s Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Signature) UnmarshalJSON(data []byte) error {
	var hexStr string
	if err := json.Unmarshal(data, &hexStr); err != nil {
		return err
	}
	decoded, err := hexutil.Decode(hexStr)
	if err != nil {
		return fmt.Errorf("invalid signature hex: %w", err)
	}
	*s = decoded
	return nil
}
