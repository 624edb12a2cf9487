package service

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/editionshop/internal/domain"
)

func TestCreateMarket_NativeTreasuryFunded(t *testing.T) {
	f := newFixture(t)
	_, sr := f.sellingResource(u64(10))
	m := f.market(sr, func(r *CreateMarketRequest) { r.PiecesInOneWallet = u64(2) })

	treasuryOwner, _ := f.derive.TreasuryOwner(domain.NativeMint, sr.Address)
	assert.Equal(t, treasuryOwner, m.TreasuryOwner)
	assert.Equal(t, treasuryOwner, m.TreasuryHolder)
	assert.Equal(t, sr.Store, m.Store)
	assert.Len(t, m.Name, domain.DefaultNameMaxLen)
	assert.Equal(t, "drop", domain.UnpadText(m.Name))
	assert.Len(t, m.Description, domain.DefaultDescriptionMaxLen)
	assert.Equal(t, domain.MarketStateActive, m.StateAt(f.clock.Now()))

	holder, err := f.shop.Tokens.GetAccount(f.ctx, m.TreasuryHolder)
	require.NoError(t, err)
	assert.Equal(t, DefaultMinimumNativeBalance, holder.Amount)
	assert.Zero(t, f.balance(owner))

	gotSR, err := f.shop.Resources.GetSellingResource(f.ctx, sr.Address)
	require.NoError(t, err)
	assert.Equal(t, domain.SellingResourceInUse, gotSR.State)

	listed, err := f.shop.Markets.ListMarkets(f.ctx, sr.Store, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, m.Address, listed[0].Address)
}

func TestCreateMarket_Preconditions(t *testing.T) {
	tests := []struct {
		name string
		fund uint64
		edit func(f *fixture, r *CreateMarketRequest)
		want error
	}{
		{
			name: "not the resource owner",
			fund: DefaultMinimumNativeBalance,
			edit: func(_ *fixture, r *CreateMarketRequest) { r.Owner = buyer },
			want: domain.ErrSellingResourceOwnerInvalid,
		},
		{
			name: "start in the past",
			fund: DefaultMinimumNativeBalance,
			edit: func(f *fixture, r *CreateMarketRequest) { r.StartDate = f.clock.Now().Add(-time.Second) },
			want: domain.ErrStartDateIsInPast,
		},
		{
			name: "end before start",
			fund: DefaultMinimumNativeBalance,
			edit: func(f *fixture, r *CreateMarketRequest) {
				end := r.StartDate.Add(-time.Millisecond)
				r.StartDate = f.clock.Now().Add(time.Minute)
				r.EndDate = &end
			},
			want: domain.ErrEndDateIsEarlierThanBeginDate,
		},
		{
			name: "wallet cap above max supply",
			fund: DefaultMinimumNativeBalance,
			edit: func(_ *fixture, r *CreateMarketRequest) { r.PiecesInOneWallet = u64(4) },
			want: domain.ErrPiecesInOneWalletIsTooMuch,
		},
		{
			name: "zero price",
			fund: DefaultMinimumNativeBalance,
			edit: func(_ *fixture, r *CreateMarketRequest) { r.Price = 0 },
			want: domain.ErrPriceIsZero,
		},
		{
			name: "name too long",
			fund: DefaultMinimumNativeBalance,
			edit: func(_ *fixture, r *CreateMarketRequest) { r.Name = string(make([]byte, domain.DefaultNameMaxLen+1)) },
			want: domain.ErrNameIsTooLong,
		},
		{
			name: "description too long",
			fund: DefaultMinimumNativeBalance,
			edit: func(_ *fixture, r *CreateMarketRequest) {
				r.Description = string(make([]byte, domain.DefaultDescriptionMaxLen+1))
			},
			want: domain.ErrDescriptionIsTooLong,
		},
		{
			name: "treasury owner bump",
			fund: DefaultMinimumNativeBalance,
			edit: func(_ *fixture, r *CreateMarketRequest) { r.TreasuryOwnerBump++ },
			want: domain.ErrDerivedKeyInvalid,
		},
		{
			name: "native treasury underfunded",
			fund: DefaultMinimumNativeBalance - 1,
			edit: func(*fixture, *CreateMarketRequest) {},
			want: domain.ErrInsufficientFunds,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, sr := f.sellingResource(u64(3))
			f.fund(owner, tt.fund)
			req := f.marketRequest(sr)
			tt.edit(f, &req)

			_, err := f.shop.Markets.CreateMarket(f.ctx, req)
			require.ErrorIs(t, err, tt.want)

			gotSR, err := f.shop.Resources.GetSellingResource(f.ctx, sr.Address)
			require.NoError(t, err)
			assert.Equal(t, domain.SellingResourceCreated, gotSR.State)
			assert.Equal(t, tt.fund, f.balance(owner))
		})
	}
}

func TestCreateMarket_ResourceAlreadyTaken(t *testing.T) {
	f := newFixture(t)
	_, sr := f.sellingResource(nil)
	f.market(sr, nil)

	f.fund(owner, DefaultMinimumNativeBalance)
	_, err := f.shop.Markets.CreateMarket(f.ctx, f.marketRequest(sr))
	require.ErrorIs(t, err, domain.ErrSellingResourceAlreadyTaken)
}

func TestCreateMarket_CustomMinimumBalance(t *testing.T) {
	f := newFixture(t, WithMinimumNativeBalance(0))
	_, sr := f.sellingResource(nil)

	m, err := f.shop.Markets.CreateMarket(f.ctx, f.marketRequest(sr))
	require.NoError(t, err)

	holder, err := f.shop.Tokens.GetAccount(f.ctx, m.TreasuryHolder)
	require.NoError(t, err)
	assert.Zero(t, holder.Amount)
}

func TestChangeMarket(t *testing.T) {
	f := newFixture(t)
	_, sr := f.sellingResource(u64(5))
	m := f.market(sr, func(r *CreateMarketRequest) {
		r.StartDate = f.clock.Now().Add(time.Hour)
	})

	name := "renamed"
	changed, err := f.shop.Markets.ChangeMarket(f.ctx, ChangeMarketRequest{
		Market:               m.Address,
		Owner:                owner,
		NewName:              &name,
		NewPrice:             u64(42),
		NewPiecesInOneWallet: u64(5),
	})
	require.NoError(t, err)
	assert.Equal(t, "renamed", domain.UnpadText(changed.Name))
	assert.Equal(t, uint64(42), changed.Price)
	require.NotNil(t, changed.PiecesInOneWallet)
	assert.Equal(t, uint64(5), *changed.PiecesInOneWallet)
	assert.Equal(t, m.Description, changed.Description)
	assert.Equal(t, m.Version+1, changed.Version)

	_, err = f.shop.Markets.ChangeMarket(f.ctx, ChangeMarketRequest{Market: m.Address, Owner: owner, NewPrice: u64(0)})
	require.ErrorIs(t, err, domain.ErrPriceIsZero)

	long := strings.Repeat("x", domain.DefaultNameMaxLen+1)
	_, err = f.shop.Markets.ChangeMarket(f.ctx, ChangeMarketRequest{Market: m.Address, Owner: owner, NewName: &long, NewPrice: u64(0)})
	require.ErrorIs(t, err, domain.ErrNameIsTooLong, "lengths are checked before the price")
	longDesc := strings.Repeat("y", domain.DefaultDescriptionMaxLen+1)
	_, err = f.shop.Markets.ChangeMarket(f.ctx, ChangeMarketRequest{Market: m.Address, Owner: owner, NewDescription: &longDesc, NewPrice: u64(0)})
	require.ErrorIs(t, err, domain.ErrDescriptionIsTooLong)

	_, err = f.shop.Markets.ChangeMarket(f.ctx, ChangeMarketRequest{Market: m.Address, Owner: owner, NewPiecesInOneWallet: u64(6)})
	require.ErrorIs(t, err, domain.ErrPiecesInOneWalletIsTooMuch)

	_, err = f.shop.Markets.ChangeMarket(f.ctx, ChangeMarketRequest{Market: m.Address, Owner: buyer, NewPrice: u64(1)})
	require.ErrorIs(t, err, domain.ErrPublicKeyMismatch)

	got, err := f.shop.Markets.GetMarket(f.ctx, m.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got.Price)

	f.clock.Advance(time.Hour)
	_, err = f.shop.Markets.ChangeMarket(f.ctx, ChangeMarketRequest{Market: m.Address, Owner: owner, NewPrice: u64(7)})
	require.ErrorIs(t, err, domain.ErrMarketIsStarted)
}

func TestChangeMarket_Immutable(t *testing.T) {
	f := newFixture(t)
	_, sr := f.sellingResource(nil)
	m := f.market(sr, func(r *CreateMarketRequest) {
		r.StartDate = f.clock.Now().Add(time.Hour)
		r.Mutable = false
	})

	_, err := f.shop.Markets.ChangeMarket(f.ctx, ChangeMarketRequest{Market: m.Address, Owner: owner, NewPrice: u64(7)})
	require.ErrorIs(t, err, domain.ErrMarketIsImmutable)
}

func TestChangeMarket_FreezeMutability(t *testing.T) {
	f := newFixture(t)
	_, sr := f.sellingResource(nil)
	m := f.market(sr, func(r *CreateMarketRequest) {
		r.StartDate = f.clock.Now().Add(time.Hour)
	})

	frozen := false
	_, err := f.shop.Markets.ChangeMarket(f.ctx, ChangeMarketRequest{Market: m.Address, Owner: owner, Mutable: &frozen})
	require.NoError(t, err)

	_, err = f.shop.Markets.ChangeMarket(f.ctx, ChangeMarketRequest{Market: m.Address, Owner: owner, NewPrice: u64(7)})
	require.ErrorIs(t, err, domain.ErrMarketIsImmutable)
}

func TestCloseMarket(t *testing.T) {
	t.Run("unlimited closes any time", func(t *testing.T) {
		f := newFixture(t)
		_, sr := f.sellingResource(nil)
		m := f.market(sr, nil)

		_, err := f.shop.Markets.CloseMarket(f.ctx, CloseMarketRequest{Market: m.Address, Owner: buyer})
		require.ErrorIs(t, err, domain.ErrPublicKeyMismatch)

		closed, err := f.shop.Markets.CloseMarket(f.ctx, CloseMarketRequest{Market: m.Address, Owner: owner})
		require.NoError(t, err)
		assert.True(t, closed.Closed)
		assert.Equal(t, domain.MarketStateEnded, closed.StateAt(f.clock.Now()))

		_, err = f.shop.Markets.CloseMarket(f.ctx, CloseMarketRequest{Market: m.Address, Owner: owner})
		require.ErrorIs(t, err, domain.ErrMarketInInvalidState)
	})

	t.Run("timed closes after end", func(t *testing.T) {
		f := newFixture(t)
		_, sr := f.sellingResource(nil)
		m := f.market(sr, func(r *CreateMarketRequest) {
			end := f.clock.Now().Add(time.Hour)
			r.EndDate = &end
		})

		_, err := f.shop.Markets.CloseMarket(f.ctx, CloseMarketRequest{Market: m.Address, Owner: owner})
		require.ErrorIs(t, err, domain.ErrMarketDurationIsNotUnlimited)

		f.clock.Advance(time.Hour)
		_, err = f.shop.Markets.CloseMarket(f.ctx, CloseMarketRequest{Market: m.Address, Owner: owner})
		require.NoError(t, err)
	})
}

func TestGetMarket_ServesFromCache(t *testing.T) {
	cache := &fakeCache{}
	f := newFixture(t, WithMarketCache(cache))
	_, sr := f.sellingResource(nil)
	m := f.market(sr, nil)

	_, err := f.shop.Markets.GetMarket(f.ctx, m.Address)
	require.NoError(t, err)

	stale := cache.entries[m.Address]
	stale.Price = 1
	cache.entries[m.Address] = stale

	got, err := f.shop.Markets.GetMarket(f.ctx, m.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Price)

	_, err = f.shop.Markets.CloseMarket(f.ctx, CloseMarketRequest{Market: m.Address, Owner: owner})
	require.NoError(t, err)
	got, err = f.shop.Markets.GetMarket(f.ctx, m.Address)
	require.NoError(t, err)
	assert.Equal(t, m.Price, got.Price)
	assert.True(t, got.Closed)
}
