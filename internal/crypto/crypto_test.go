package crypto

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/editionshop/internal/domain"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestDeriverFindIsDeterministic(t *testing.T) {
	d := NewDeriver(DefaultProgramID)
	resource := common.HexToAddress("0x01")
	store := common.HexToAddress("0x02")

	a1, b1 := d.VaultOwner(resource, store)
	a2, b2 := d.VaultOwner(resource, store)
	assert.Equal(t, a1, a2)
	assert.Equal(t, b1, b2)

	other, _ := d.VaultOwner(store, resource)
	assert.NotEqual(t, a1, other, "seed order matters")

	alt := NewDeriver(common.HexToAddress("0xff"))
	a3, _ := alt.VaultOwner(resource, store)
	assert.NotEqual(t, a1, a3, "program id namespaces addresses")
}

func TestDeriverVerify(t *testing.T) {
	d := NewDeriver(DefaultProgramID)
	market := common.HexToAddress("0xaa")
	wallet := common.HexToAddress("0xbb")
	addr, bump := d.TradeHistory(wallet, market)

	require.NoError(t, d.Verify(addr, bump, TagTradeHistory, wallet.Bytes(), market.Bytes()))

	err := d.Verify(addr, bump-1, TagTradeHistory, wallet.Bytes(), market.Bytes())
	assert.True(t, errors.Is(err, domain.ErrDerivedKeyInvalid))

	err = d.Verify(common.HexToAddress("0x01"), bump, TagTradeHistory, wallet.Bytes(), market.Bytes())
	assert.True(t, errors.Is(err, domain.ErrDerivedKeyInvalid))

	err = d.Verify(addr, bump, TagPayoutTicket, wallet.Bytes(), market.Bytes())
	assert.True(t, errors.Is(err, domain.ErrDerivedKeyInvalid), "tag is part of the derivation")
}

func TestEditionMintSeeds(t *testing.T) {
	d := NewDeriver(DefaultProgramID)
	master := common.HexToAddress("0x10")
	first, second := common.HexToAddress("0x20"), common.HexToAddress("0x21")
	assert.NotEqual(t, d.EditionMint(master, first, 0), d.EditionMint(master, first, 1))
	assert.NotEqual(t, d.EditionMint(master, first, 0), d.EditionMint(master, second, 0), "each listing prints its own mints")
	assert.Equal(t, d.EditionMint(master, first, 3), d.EditionMint(master, first, 3))
}

func TestNewRecordAddressUnique(t *testing.T) {
	seen := make(map[common.Address]bool)
	for i := 0; i < 100; i++ {
		a := NewRecordAddress()
		require.False(t, seen[a])
		seen[a] = true
	}
}

func TestSignAndVerifyRequest(t *testing.T) {
	s, err := NewSigner(testKey, DefaultDomain)
	require.NoError(t, err)

	req := SignedRequest{
		Timestamp: 1700000000,
		Method:    "post",
		Path:      "/api/markets",
		Body:      []byte(`{"price":10}`),
	}
	sig, err := s.SignRequest(req)
	require.NoError(t, err)

	req.Signer = s.Address()
	require.NoError(t, VerifyRequest(DefaultDomain, req, sig))

	tampered := req
	tampered.Body = []byte(`{"price":1}`)
	assert.ErrorIs(t, VerifyRequest(DefaultDomain, tampered, sig), ErrBadSignature)

	other := DefaultDomain
	other.ChainID = 2
	assert.ErrorIs(t, VerifyRequest(other, req, sig), ErrBadSignature)

	_, err = RecoverSigner(DefaultDomain.Digest(req), "0xdead")
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestEncryptDecryptKey(t *testing.T) {
	blob, err := EncryptKey("0x"+testKey, "hunter2")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testKey, got)

	_, err = DecryptKey(blob, "wrong")
	assert.Error(t, err)

	_, err = EncryptKey(testKey, "")
	assert.Error(t, err)

	_, err = EncryptKey("abcd", "pw")
	assert.Error(t, err)
}

func TestLoadKey(t *testing.T) {
	k, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + testKey})
	require.NoError(t, err)
	assert.Equal(t, testKey, k)

	_, err = LoadKey(KeyConfig{})
	assert.Error(t, err)

	_, err = LoadKey(KeyConfig{RawPrivateKey: "zz"})
	assert.Error(t, err)
}
