package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	// EIP712Domain(string name,string version,uint256 chainId)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId)"),
	)

	// ShopRequest(address signer,uint256 timestamp,bytes32 method,bytes32 path,bytes32 body)
	requestTypeHash = ethcrypto.Keccak256(
		[]byte("ShopRequest(address signer,uint256 timestamp,bytes32 method,bytes32 path,bytes32 body)"),
	)
)

// ErrBadSignature is returned when a signature cannot be decoded or does not
// recover to the claimed signer.
var ErrBadSignature = errors.New("crypto: bad signature")

// SignedRequest is the set of values a caller signs to authenticate one HTTP
// request against the shop API.
type SignedRequest struct {
	Signer    common.Address
	Timestamp int64
	Method    string
	Path      string
	Body      []byte
}

// Domain identifies the API a signature is valid for.
type Domain struct {
	Name    string
	Version string
	ChainID int64
}

// DefaultDomain is used when configuration does not override it.
var DefaultDomain = Domain{Name: "EditionShop", Version: "1", ChainID: 1}

// Separator returns keccak256(abi.encode(typeHash, nameHash, versionHash, chainId)).
func (d Domain) Separator() []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			eip712DomainTypeHash,
			ethcrypto.Keccak256([]byte(d.Name)),
			ethcrypto.Keccak256([]byte(d.Version)),
			bigIntTo32Bytes(big.NewInt(d.ChainID)),
		),
	)
}

// Digest returns the EIP-712 digest of r under domain d.
func (d Domain) Digest(r SignedRequest) []byte {
	structHash := ethcrypto.Keccak256(
		concatBytes(
			requestTypeHash,
			common.LeftPadBytes(r.Signer.Bytes(), 32),
			bigIntTo32Bytes(big.NewInt(r.Timestamp)),
			ethcrypto.Keccak256([]byte(strings.ToUpper(r.Method))),
			ethcrypto.Keccak256([]byte(r.Path)),
			ethcrypto.Keccak256(r.Body),
		),
	)
	return eip712Hash(d.Separator(), structHash)
}

// Signer signs shop API requests with a secp256k1 key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	domain     Domain
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string, domain Domain) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		domain:     domain,
	}, nil
}

// Address returns the address derived from the signer's private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignRequest signs a request issued by this signer. The Signer field of r is
// overwritten with the signer's own address.
func (s *Signer) SignRequest(r SignedRequest) (string, error) {
	r.Signer = s.address
	return s.signDigest(s.domain.Digest(r))
}

// VerifyRequest checks that sig over r recovers to r.Signer under domain d.
func VerifyRequest(d Domain, r SignedRequest, sig string) error {
	got, err := RecoverSigner(d.Digest(r), sig)
	if err != nil {
		return err
	}
	if got != r.Signer {
		return fmt.Errorf("%w: recovered %s, claimed %s", ErrBadSignature, got.Hex(), r.Signer.Hex())
	}
	return nil
}

// RecoverSigner returns the address whose key produced the hex-encoded
// 65-byte signature over digest.
func RecoverSigner(digest []byte, sig string) (common.Address, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(sig, "0x"))
	if err != nil || len(raw) != 65 {
		return common.Address{}, ErrBadSignature
	}
	if raw[64] >= 27 {
		raw[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(digest, raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// eip712Hash computes the final EIP-712 digest:
//
//	keccak256("\x19\x01" || domainSeparator || structHash)
func eip712Hash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			[]byte{0x19, 0x01},
			domainSep,
			structHash,
		),
	)
}

// signDigest signs a 32-byte digest and returns the hex-encoded signature
// (r || s || v, 65 bytes) with v in {27,28}.
func (s *Signer) signDigest(digest []byte) (string, error) {
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n.
func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
