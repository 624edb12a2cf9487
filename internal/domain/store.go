package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// Repository runs operations against the shop records. InTx executes fn as a
// single all-or-nothing unit: every record fn reads through tx is locked for
// mutation until fn returns, and a record already locked by a concurrent
// transaction makes the access fail with ErrRecordLocked instead of waiting.
// If fn returns an error nothing it wrote is kept.
type Repository interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// View runs fn without taking locks. Writes through tx are rejected.
	View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx exposes the record stores bound to one transaction.
type Tx interface {
	Stores() StoreStore
	SellingResources() SellingResourceStore
	Markets() MarketStore
	TradeHistories() TradeHistoryStore
	PrimaryCreators() PrimaryCreatorsStore
	PayoutTickets() PayoutTicketStore
	Tokens() TokenLedger
	Audit() AuditStore
}

// StoreStore persists stores.
type StoreStore interface {
	Create(ctx context.Context, s Store) error
	Get(ctx context.Context, addr common.Address) (Store, error)
}

// SellingResourceStore persists selling resources.
type SellingResourceStore interface {
	Create(ctx context.Context, r SellingResource) error
	Get(ctx context.Context, addr common.Address) (SellingResource, error)
	Update(ctx context.Context, r SellingResource) error
}

// MarketStore persists markets.
type MarketStore interface {
	Create(ctx context.Context, m Market) error
	Get(ctx context.Context, addr common.Address) (Market, error)
	Update(ctx context.Context, m Market) error
	ListByStore(ctx context.Context, store common.Address, opts ListOpts) ([]Market, error)
}

// TradeHistoryStore persists per-wallet purchase counters.
type TradeHistoryStore interface {
	Get(ctx context.Context, addr common.Address) (TradeHistory, error)
	Put(ctx context.Context, h TradeHistory) error
}

// PrimaryCreatorsStore persists primary creators snapshots. Create fails with
// ErrAlreadyExists when a snapshot for the address is present.
type PrimaryCreatorsStore interface {
	Create(ctx context.Context, p PrimaryMetadataCreators) error
	Get(ctx context.Context, addr common.Address) (PrimaryMetadataCreators, error)
}

// PayoutTicketStore persists payout tickets. Create fails with
// ErrAlreadyExists when a ticket for the address is present.
type PayoutTicketStore interface {
	Create(ctx context.Context, t PayoutTicket) error
	Get(ctx context.Context, addr common.Address) (PayoutTicket, error)
	ListByMarket(ctx context.Context, market common.Address) ([]PayoutTicket, error)
}

// TokenLedger is the token collaborator invoked during sales and payouts. It
// is bound to the surrounding transaction so its effects commit together with
// the shop records.
type TokenLedger interface {
	// OpenAccount creates a token account, failing with ErrAlreadyExists.
	OpenAccount(ctx context.Context, a TokenAccount) error
	Account(ctx context.Context, addr common.Address) (TokenAccount, error)
	// Transfer moves amount between two accounts of the same mint.
	Transfer(ctx context.Context, from, to common.Address, amount uint64) error
	// Deposit credits amount to an existing account.
	Deposit(ctx context.Context, to common.Address, amount uint64) error

	CreateMaster(ctx context.Context, e MasterEdition, md Metadata) error
	MasterEdition(ctx context.Context, mint common.Address) (MasterEdition, error)
	Metadata(ctx context.Context, mint common.Address) (Metadata, error)
	UpdateMetadata(ctx context.Context, md Metadata) error
	// MintEdition prints e from its parent master, advancing the master supply
	// and crediting one unit to e.TokenAccount owned by e.Owner.
	MintEdition(ctx context.Context, e Edition) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
