package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/editionshop/internal/crypto"
	"github.com/alanyoungcy/editionshop/internal/domain"
	"github.com/alanyoungcy/editionshop/internal/store/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeBus struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (b *fakeBus) Publish(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.payloads = append(b.payloads, payload)
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

func (b *fakeBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type fakeCache struct {
	invalidated []common.Address
	entries     map[common.Address]domain.Market
}

func (c *fakeCache) Set(_ context.Context, m domain.Market) error {
	if c.entries == nil {
		c.entries = make(map[common.Address]domain.Market)
	}
	c.entries[m.Address] = m
	return nil
}

func (c *fakeCache) Get(_ context.Context, addr common.Address) (domain.Market, error) {
	m, ok := c.entries[addr]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (c *fakeCache) Invalidate(_ context.Context, addr common.Address) error {
	c.invalidated = append(c.invalidated, addr)
	delete(c.entries, addr)
	return nil
}

type heldLocks struct{ held map[string]bool }

func (l *heldLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	return func() {}, nil
}

var (
	admin    = common.HexToAddress("0xa1")
	owner    = common.HexToAddress("0xa2")
	buyer    = common.HexToAddress("0xb1")
	buyer2   = common.HexToAddress("0xb2")
	creator1 = common.HexToAddress("0xc1")
	creator2 = common.HexToAddress("0xc2")
)

type fixture struct {
	t      *testing.T
	ctx    context.Context
	clock  *fakeClock
	repo   *memory.Repository
	derive *crypto.Deriver
	shop   *Shop
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	repo := memory.NewRepository()
	derive := crypto.NewDeriver(crypto.DefaultProgramID)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]Option{WithClock(clock)}, opts...)
	return &fixture{
		t:      t,
		ctx:    context.Background(),
		clock:  clock,
		repo:   repo,
		derive: derive,
		shop:   NewShop(NewCore(repo, derive, logger, opts...)),
	}
}

func u64(v uint64) *uint64 { return &v }

func (f *fixture) fund(wallet common.Address, amount uint64) common.Address {
	f.t.Helper()
	acc, err := f.shop.Tokens.Deposit(f.ctx, DepositRequest{Owner: wallet, Mint: domain.NativeMint, Amount: amount})
	require.NoError(f.t, err)
	return acc.Address
}

// resource mints a master edition owned by admin with the given printable
// ceiling.
func (f *fixture) resource(max *uint64) Resource {
	f.t.Helper()
	res, err := f.shop.Tokens.CreateResource(f.ctx, CreateResourceRequest{
		Creator:              admin,
		Name:                 "edition",
		URI:                  "https://example.invalid/edition.json",
		SellerFeeBasisPoints: 500,
		Creators: []domain.Creator{
			{Address: creator1, Share: 70, Verified: true},
			{Address: creator2, Share: 30},
		},
		MaxSupply: max,
	})
	require.NoError(f.t, err)
	return res
}

func (f *fixture) store() domain.Store {
	f.t.Helper()
	st, err := f.shop.Stores.CreateStore(f.ctx, CreateStoreRequest{Admin: admin, Name: "shop", Description: "editions"})
	require.NoError(f.t, err)
	return st
}

func (f *fixture) initRequest(st domain.Store, res Resource, max *uint64) InitSellingResourceRequest {
	_, bump := f.derive.VaultOwner(res.Mint, st.Address)
	return InitSellingResourceRequest{
		Store:          st.Address,
		Admin:          admin,
		Owner:          owner,
		Resource:       res.Mint,
		ResourceToken:  res.TokenAccount,
		VaultOwnerBump: bump,
		MaxSupply:      max,
	}
}

func (f *fixture) sellingResource(max *uint64) (Resource, domain.SellingResource) {
	f.t.Helper()
	res := f.resource(max)
	st := f.store()
	sr, err := f.shop.Resources.InitSellingResource(f.ctx, f.initRequest(st, res, max))
	require.NoError(f.t, err)
	return res, sr
}

func (f *fixture) marketRequest(sr domain.SellingResource) CreateMarketRequest {
	_, bump := f.derive.TreasuryOwner(domain.NativeMint, sr.Address)
	return CreateMarketRequest{
		SellingResource:   sr.Address,
		Owner:             owner,
		TreasuryMint:      domain.NativeMint,
		TreasuryOwnerBump: bump,
		Name:              "drop",
		Description:       "first drop",
		Mutable:           true,
		Price:             1_000,
		StartDate:         f.clock.Now(),
	}
}

func (f *fixture) market(sr domain.SellingResource, edit func(*CreateMarketRequest)) domain.Market {
	f.t.Helper()
	f.fund(owner, DefaultMinimumNativeBalance)
	req := f.marketRequest(sr)
	if edit != nil {
		edit(&req)
	}
	m, err := f.shop.Markets.CreateMarket(f.ctx, req)
	require.NoError(f.t, err)
	return m
}

func (f *fixture) buy(m domain.Market, sr domain.SellingResource, wallet common.Address) (domain.Purchase, error) {
	_, histBump := f.derive.TradeHistory(wallet, m.Address)
	_, vaultBump := f.derive.VaultOwner(sr.Resource, sr.Store)
	return f.shop.Trades.Buy(f.ctx, BuyRequest{
		Market:           m.Address,
		Buyer:            wallet,
		PaymentAccount:   f.derive.Associated(wallet, domain.NativeMint),
		TradeHistoryBump: histBump,
		VaultOwnerBump:   vaultBump,
	})
}

func (f *fixture) saveCreators(res Resource, creators []domain.Creator) error {
	_, bump := f.derive.PrimaryCreators(res.Metadata.Address)
	_, err := f.shop.Resources.SavePrimaryMetadataCreators(f.ctx, SavePrimaryMetadataCreatorsRequest{
		Resource:        res.Mint,
		UpdateAuthority: admin,
		Bump:            bump,
		Creators:        creators,
	})
	return err
}

func (f *fixture) withdraw(m domain.Market, funder common.Address) (domain.PayoutTicket, error) {
	_, treasuryBump := f.derive.TreasuryOwner(m.TreasuryMint, m.SellingResource)
	_, ticketBump := f.derive.PayoutTicket(m.Address, funder)
	return f.shop.Payouts.Withdraw(f.ctx, WithdrawRequest{
		Market:            m.Address,
		Owner:             owner,
		Funder:            funder,
		TreasuryOwnerBump: treasuryBump,
		PayoutTicketBump:  ticketBump,
	})
}

func (f *fixture) balance(wallet common.Address) uint64 {
	f.t.Helper()
	acc, err := f.shop.Tokens.GetAccount(f.ctx, f.derive.Associated(wallet, domain.NativeMint))
	require.NoError(f.t, err)
	return acc.Amount
}
