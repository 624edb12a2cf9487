package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MarketState represents the lifecycle state of a market. Created and Active
// are derived from the clock; Ended is either derived from EndDate or set
// explicitly by CloseMarket.
type MarketState string

const (
	MarketStateCreated MarketState = "created"
	MarketStateActive  MarketState = "active"
	MarketStateEnded   MarketState = "ended"
)

// Market holds the sale terms over one selling resource.
type Market struct {
	Address           common.Address
	Store             common.Address
	SellingResource   common.Address
	TreasuryMint      common.Address
	TreasuryHolder    common.Address
	TreasuryOwner     common.Address
	Owner             common.Address
	Name              string
	Description       string
	Mutable           bool
	Price             uint64
	PiecesInOneWallet *uint64
	StartDate         time.Time
	EndDate           *time.Time
	Closed            bool
	FundsCollected    uint64
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// StateAt derives the market state at the given instant.
func (m Market) StateAt(now time.Time) MarketState {
	switch {
	case m.Closed:
		return MarketStateEnded
	case m.EndDate != nil && !now.Before(*m.EndDate):
		return MarketStateEnded
	case now.Before(m.StartDate):
		return MarketStateCreated
	default:
		return MarketStateActive
	}
}

// IsNative reports whether the market is paid in the native asset.
func (m Market) IsNative() bool {
	return m.TreasuryMint == NativeMint
}
