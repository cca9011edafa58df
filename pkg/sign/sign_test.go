package sign

import (
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPrivKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testAddress = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"
)

func setupSigner(t *testing.T) *EthereumSigner {
	t.Helper()
	s, err := NewEthereumSigner(testPrivKey)
	require.NoError(t, err)
	return s
}

func TestEthereumSigner(t *testing.T) {
	t.Run("parses keys with and without prefix", func(t *testing.T) {
		for _, key := range []string{testPrivKey, strings.TrimPrefix(testPrivKey, "0x")} {
			s, err := NewEthereumSigner(key)
			require.NoError(t, err)
			assert.Equal(t, common.HexToAddress(testAddress), s.Address())
		}
	})

	t.Run("rejects invalid key", func(t *testing.T) {
		_, err := NewEthereumSigner("0xnotakey")
		assert.Error(t, err)
	})

	t.Run("sign and recover hash", func(t *testing.T) {
		s := setupSigner(t)
		hash := ethcrypto.Keccak256([]byte("wcnode"))
		sig, err := s.SignHash(hash)
		require.NoError(t, err)
		require.Len(t, sig, 65)
		assert.GreaterOrEqual(t, sig[64], byte(27))

		addr, err := RecoverAddress(hash, sig)
		require.NoError(t, err)
		assert.Equal(t, s.Address(), addr)
		assert.GreaterOrEqual(t, sig[64], byte(27), "recovery must not mutate the signature")
	})

	t.Run("recover rejects short signature", func(t *testing.T) {
		_, err := RecoverAddress(make([]byte, 32), Signature{1, 2, 3})
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("sign transaction", func(t *testing.T) {
		s := setupSigner(t)
		to := common.HexToAddress("0x000000000000000000000000000000000000dEaD")
		tx := types.NewTx(&types.LegacyTx{Nonce: 3, To: &to, Value: big.NewInt(1), Gas: 21000, GasPrice: big.NewInt(25e9)})

		signed, err := s.SignTx(tx, big.NewInt(43114))
		require.NoError(t, err)

		sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(43114)), signed)
		require.NoError(t, err)
		assert.Equal(t, s.Address(), sender)
	})
}

func TestSignPersonalMessage(t *testing.T) {
	s := setupSigner(t)

	plain, err := SignPersonalMessage(s, "hello")
	require.NoError(t, err)
	addr, err := RecoverAddress(accounts.TextHash([]byte("hello")), plain)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), addr)

	hexed, err := SignPersonalMessage(s, "0x68656c6c6f")
	require.NoError(t, err)
	assert.Equal(t, plain, hexed, "hex and text forms of the same message sign identically")
}

const typedDataJSON = `{
  "types": {
    "EIP712Domain": [{"name": "name", "type": "string"}, {"name": "chainId", "type": "uint256"}],
    "Mail": [{"name": "contents", "type": "string"}]
  },
  "primaryType": "Mail",
  "domain": {"name": "wcnode", "chainId": "43114"},
  "message": {"contents": "hi"}
}`

func TestSignTypedData(t *testing.T) {
	s := setupSigner(t)

	var typed apitypes.TypedData
	require.NoError(t, json.Unmarshal([]byte(typedDataJSON), &typed))
	hash, _, err := apitypes.TypedDataAndHash(typed)
	require.NoError(t, err)

	t.Run("from string", func(t *testing.T) {
		sig, err := SignTypedData(s, typedDataJSON)
		require.NoError(t, err)
		addr, err := RecoverAddress(hash, sig)
		require.NoError(t, err)
		assert.Equal(t, s.Address(), addr)
	})

	t.Run("from decoded object", func(t *testing.T) {
		var obj map[string]any
		require.NoError(t, json.Unmarshal([]byte(typedDataJSON), &obj))
		sig, err := SignTypedData(s, obj)
		require.NoError(t, err)
		addr, err := RecoverAddress(hash, sig)
		require.NoError(t, err)
		assert.Equal(t, s.Address(), addr)
	})

	t.Run("invalid document", func(t *testing.T) {
		_, err := SignTypedData(s, "not json")
		assert.Error(t, err)
	})
}

func TestKeyring(t *testing.T) {
	other, err := ethcrypto.GenerateKey()
	require.NoError(t, err)

	kr, err := NewKeyringFromSigners(setupSigner(t), NewEthereumSignerFromKey(other))
	require.NoError(t, err)
	assert.Equal(t, 2, kr.Len())

	s, ok := kr.Signer(0)
	require.True(t, ok)
	assert.Equal(t, common.HexToAddress(testAddress), s.Address())

	_, ok = kr.Signer(2)
	assert.False(t, ok)
	_, ok = kr.Signer(-1)
	assert.False(t, ok)

	idx, ok := kr.IndexOf(ethcrypto.PubkeyToAddress(other.PublicKey))
	require.True(t, ok)
	assert.Equal(t, 1, idx)
	assert.Len(t, kr.Addresses(), 2)

	_, err = NewKeyring([]string{testPrivKey, testPrivKey})
	assert.ErrorContains(t, err, "duplicates address")

	_, err = NewKeyring([]string{"zz"})
	assert.ErrorContains(t, err, "account 0")
}

func TestSignatureJSON(t *testing.T) {
	sig := Signature{0xde, 0xad}
	encoded, err := json.Marshal(sig)
	require.NoError(t, err)
	assert.JSONEq(t, `"0xdead"`, string(encoded))

	var decoded Signature
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, sig, decoded)
	assert.Error(t, json.Unmarshal([]byte(`"nothex"`), &decoded))
}
