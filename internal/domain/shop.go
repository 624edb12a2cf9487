package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Store is a named collection of selling resources under one administrator.
// Name and Description are stored NUL-padded to a fixed width.
type Store struct {
	Address     common.Address
	Admin       common.Address
	Name        string
	Description string
	CreatedAt   time.Time
}

// SellingResourceState tracks whether a resource is free, bound to a market,
// or fully reclaimed.
type SellingResourceState string

const (
	SellingResourceCreated   SellingResourceState = "created"
	SellingResourceInUse     SellingResourceState = "in_use"
	SellingResourceExhausted SellingResourceState = "exhausted"
)

// SellingResource binds one mintable resource to a store and an escrow vault.
type SellingResource struct {
	Address    common.Address
	Store      common.Address
	Owner      common.Address
	Resource   common.Address // mint of the master edition
	Vault      common.Address // token account holding the master edition unit
	VaultOwner common.Address // derived authority over Vault
	Supply     uint64
	MaxSupply  *uint64
	State      SellingResourceState
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// HasCapacity reports whether another copy may be printed.
func (r SellingResource) HasCapacity() bool {
	return r.MaxSupply == nil || r.Supply < *r.MaxSupply
}
