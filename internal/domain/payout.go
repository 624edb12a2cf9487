package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MaxPrimaryCreators caps the length of a primary creators snapshot.
const MaxPrimaryCreators = 5

// Creator is one royalty recipient. Share is a whole percentage.
type Creator struct {
	Address  common.Address `json:"address"`
	Share    uint8          `json:"share"`
	Verified bool           `json:"verified"`
}

// PrimaryMetadataCreators is the immutable snapshot of recipients for the
// primary sale of a resource, keyed by the resource metadata.
type PrimaryMetadataCreators struct {
	Address   common.Address
	Metadata  common.Address
	Creators  []Creator
	CreatedAt time.Time
}

// ShareOf returns the share of addr and whether it is listed.
func (p PrimaryMetadataCreators) ShareOf(addr common.Address) (uint8, bool) {
	return CreatorShare(p.Creators, addr)
}

// CreatorShare returns the share of addr in creators and whether it is
// listed.
func CreatorShare(creators []Creator, addr common.Address) (uint8, bool) {
	for _, c := range creators {
		if c.Address == addr {
			return c.Share, true
		}
	}
	return 0, false
}

// PayoutTicket proves that Funder has been paid for Market.
type PayoutTicket struct {
	Address     common.Address
	Market      common.Address
	Funder      common.Address
	Destination common.Address
	Amount      uint64
	Primary     bool
	CreatedAt   time.Time
}
