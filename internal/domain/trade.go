package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TradeHistory counts the copies one wallet bought in one market.
type TradeHistory struct {
	Address       common.Address
	Market        common.Address
	Wallet        common.Address
	AlreadyBought uint64
	UpdatedAt     time.Time
}

// Purchase describes the effects of a successful buy.
type Purchase struct {
	Market        common.Address
	Buyer         common.Address
	Edition       Edition
	Price         uint64
	Supply        uint64
	AlreadyBought uint64
	At            time.Time
}
