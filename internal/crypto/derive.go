package crypto

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/alanyoungcy/editionshop/internal/domain"
)

// Derivation tags. Each names one kind of sub-account.
const (
	TagVaultOwner      = "vault_owner"
	TagTreasuryOwner   = "holder"
	TagPrimaryCreators = "primary_creators"
	TagTradeHistory    = "history"
	TagPayoutTicket    = "payout_ticket"
	TagAssociated      = "associated"
	TagEdition         = "edition"
	TagVault           = "vault"
	TagMetadata        = "metadata"
)

// DefaultProgramID namespaces derived addresses when configuration does not
// provide one.
var DefaultProgramID = common.HexToAddress("0x5fbe1e4bb0a5c3d1e9c05f5a7b3e0d4a9c6f2e71")

// Deriver maps (tag, seeds) to deterministic addresses under one program id.
type Deriver struct {
	program common.Address
}

// NewDeriver creates a Deriver for the given program id.
func NewDeriver(program common.Address) *Deriver {
	return &Deriver{program: program}
}

// Program returns the namespace of this deriver.
func (d *Deriver) Program() common.Address {
	return d.program
}

// candidate hashes keccak256(tag || seeds... || bump || program). The address
// is the last 20 bytes; a candidate is valid only when the first byte of the
// hash has its high bit clear, so not every bump yields an address.
func (d *Deriver) candidate(tag string, bump uint8, seeds [][]byte) (common.Address, bool) {
	parts := make([][]byte, 0, len(seeds)+3)
	parts = append(parts, []byte(tag))
	parts = append(parts, seeds...)
	parts = append(parts, []byte{bump}, d.program.Bytes())
	h := ethcrypto.Keccak256(parts...)
	return common.BytesToAddress(h[12:]), h[0]&0x80 == 0
}

// Find returns the address for tag and seeds together with its bump, the
// highest value in 255..0 that produces a valid candidate.
func (d *Deriver) Find(tag string, seeds ...[]byte) (common.Address, uint8) {
	for b := 255; b >= 0; b-- {
		if addr, ok := d.candidate(tag, uint8(b), seeds); ok {
			return addr, uint8(b)
		}
	}
	// Unreachable in practice: every bump failing has probability 2^-256.
	panic(fmt.Sprintf("crypto: no valid bump for tag %q", tag))
}

// Verify checks that want is the address for tag and seeds under the echoed
// bump. It fails with domain.ErrDerivedKeyInvalid otherwise.
func (d *Deriver) Verify(want common.Address, bump uint8, tag string, seeds ...[]byte) error {
	addr, ok := d.candidate(tag, bump, seeds)
	if !ok || addr != want {
		return fmt.Errorf("crypto: verify %s %s: %w", tag, want.Hex(), domain.ErrDerivedKeyInvalid)
	}
	if canonical, _ := d.Find(tag, seeds...); canonical != want {
		return fmt.Errorf("crypto: verify %s %s: non-canonical bump %d: %w", tag, want.Hex(), bump, domain.ErrDerivedKeyInvalid)
	}
	return nil
}

// VaultOwner derives the authority over a selling resource vault.
func (d *Deriver) VaultOwner(resource, store common.Address) (common.Address, uint8) {
	return d.Find(TagVaultOwner, resource.Bytes(), store.Bytes())
}

// Vault derives the vault token account held by a vault owner.
func (d *Deriver) Vault(vaultOwner common.Address) (common.Address, uint8) {
	return d.Find(TagVault, vaultOwner.Bytes())
}

// TreasuryOwner derives the authority over a market treasury.
func (d *Deriver) TreasuryOwner(treasuryMint, sellingResource common.Address) (common.Address, uint8) {
	return d.Find(TagTreasuryOwner, treasuryMint.Bytes(), sellingResource.Bytes())
}

// PrimaryCreators derives the snapshot address for resource metadata.
func (d *Deriver) PrimaryCreators(metadata common.Address) (common.Address, uint8) {
	return d.Find(TagPrimaryCreators, metadata.Bytes())
}

// TradeHistory derives the purchase counter of wallet in market.
func (d *Deriver) TradeHistory(wallet, market common.Address) (common.Address, uint8) {
	return d.Find(TagTradeHistory, wallet.Bytes(), market.Bytes())
}

// PayoutTicket derives the ticket proving funder was paid for market.
func (d *Deriver) PayoutTicket(market, funder common.Address) (common.Address, uint8) {
	return d.Find(TagPayoutTicket, market.Bytes(), funder.Bytes())
}

// Associated derives the canonical token account of owner for mint.
func (d *Deriver) Associated(owner, mint common.Address) common.Address {
	addr, _ := d.Find(TagAssociated, owner.Bytes(), mint.Bytes())
	return addr
}

// Metadata derives the metadata record of a mint.
func (d *Deriver) Metadata(mint common.Address) common.Address {
	addr, _ := d.Find(TagMetadata, mint.Bytes())
	return addr
}

// EditionMint derives the mint of edition number n printed from master by
// the selling resource listing. Numbers restart with every listing of the
// same master, so the listing is part of the seeds.
func (d *Deriver) EditionMint(master, listing common.Address, n uint64) common.Address {
	var num [8]byte
	binary.BigEndian.PutUint64(num[:], n)
	addr, _ := d.Find(TagEdition, master.Bytes(), listing.Bytes(), num[:])
	return addr
}

// NewRecordAddress returns a fresh random address for a top-level record.
func NewRecordAddress() common.Address {
	id := uuid.New()
	return common.BytesToAddress(ethcrypto.Keccak256(id[:])[12:])
}
