package sign

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var _ Signer = (*EthereumSigner)(nil)

var ErrInvalidSignature = errors.New("invalid signature length")

// EthereumSigner signs with an in-memory secp256k1 key.
type EthereumSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewEthereumSigner parses a hex private key, with or without the 0x prefix.
func NewEthereumSigner(privateKeyHex string) (*EthereumSigner, error) {
	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("could not parse ethereum private key: %w", err)
	}
	return NewEthereumSignerFromKey(key), nil
}

func NewEthereumSignerFromKey(key *ecdsa.PrivateKey) *EthereumSigner {
	return &EthereumSigner{key: key, address: ethcrypto.PubkeyToAddress(key.PublicKey)}
}

func (s *EthereumSigner) Address() common.Address {
	return s.address
}

func (s *EthereumSigner) SignHash(hash []byte) (Signature, error) {
	sig, err := ethcrypto.Sign(hash, s.key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

func (s *EthereumSigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
}

// RecoverAddress returns the account that produced sig over hash.
// Both the 0/1 and 27/28 forms of V are accepted; sig is not modified.
func RecoverAddress(hash []byte, sig Signature) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, ErrInvalidSignature
	}
	local := make([]byte, 65)
	copy(local, sig)
	if local[64] >= 27 {
		local[64] -= 27
	}

	pub, err := ethcrypto.SigToPub(hash, local)
	if err != nil {
		return common.Address{}, fmt.Errorf("signature recovery failed: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}
