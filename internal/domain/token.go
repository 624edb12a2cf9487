package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// NativeMint identifies the native asset. Native balances are held in token
// accounts whose mint is NativeMint.
var NativeMint = common.Address{}

// TokenAccount holds a balance of one mint for one owner.
type TokenAccount struct {
	Address common.Address
	Mint    common.Address
	Owner   common.Address
	Amount  uint64
}

// MasterEdition is the printable original behind a resource mint.
type MasterEdition struct {
	Mint      common.Address
	Supply    uint64
	MaxSupply *uint64
}

// Remaining returns how many more editions the master can print, or nil when
// unlimited.
func (e MasterEdition) Remaining() *uint64 {
	if e.MaxSupply == nil {
		return nil
	}
	left := uint64(0)
	if *e.MaxSupply > e.Supply {
		left = *e.MaxSupply - e.Supply
	}
	return &left
}

// Metadata is the descriptive record attached to a resource mint.
type Metadata struct {
	Address              common.Address
	Mint                 common.Address
	UpdateAuthority      common.Address
	Name                 string
	URI                  string
	SellerFeeBasisPoints uint16
	Creators             []Creator
	PrimarySaleHappened  bool
	IsMutable            bool
}

// ShareOf returns the creator share of addr in the metadata creators.
func (m Metadata) ShareOf(addr common.Address) (uint8, bool) {
	return CreatorShare(m.Creators, addr)
}

// Edition is one printed copy of a master edition.
type Edition struct {
	Mint         common.Address
	Parent       common.Address
	Number       uint64
	TokenAccount common.Address
	Owner        common.Address
	CreatedAt    time.Time
}
