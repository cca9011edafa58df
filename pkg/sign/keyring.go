package sign

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Keyring is the ordered, immutable set of wallet accounts. The position of a
// signer is its account index.
type Keyring struct {
	signers []Signer
	index   map[common.Address]int
}

// NewKeyring builds a keyring from hex private keys, one per account index.
func NewKeyring(privateKeysHex []string) (*Keyring, error) {
	signers := make([]Signer, 0, len(privateKeysHex))
	for i, keyHex := range privateKeysHex {
		s, err := NewEthereumSigner(keyHex)
		if err != nil {
			return nil, fmt.Errorf("account %d: %w", i, err)
		}
		signers = append(signers, s)
	}
	return NewKeyringFromSigners(signers...)
}

func NewKeyringFromSigners(signers ...Signer) (*Keyring, error) {
	kr := &Keyring{signers: signers, index: make(map[common.Address]int, len(signers))}
	for i, s := range signers {
		if _, dup := kr.index[s.Address()]; dup {
			return nil, fmt.Errorf("account %d duplicates address %s", i, s.Address().Hex())
		}
		kr.index[s.Address()] = i
	}
	return kr, nil
}

func (kr *Keyring) Len() int {
	return len(kr.signers)
}

// Signer returns the signer of the account at index.
func (kr *Keyring) Signer(index int) (Signer, bool) {
	if index < 0 || index >= len(kr.signers) {
		return nil, false
	}
	return kr.signers[index], true
}

// IndexOf returns the account index owning addr.
func (kr *Keyring) IndexOf(addr common.Address) (int, bool) {
	i, ok := kr.index[addr]
	return i, ok
}

func (kr *Keyring) Addresses() []common.Address {
	out := make([]common.Address, len(kr.signers))
	for i, s := range kr.signers {
		out[i] = s.Address()
	}
	return out
}
