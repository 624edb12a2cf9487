package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/editionshop/internal/domain"
)

func TestCreateResource(t *testing.T) {
	f := newFixture(t)

	res, err := f.shop.Tokens.CreateResource(f.ctx, CreateResourceRequest{
		Creator:   admin,
		Name:      "solo",
		URI:       "ipfs://solo",
		MaxSupply: u64(10),
	})
	require.NoError(t, err)
	assert.Equal(t, f.derive.Metadata(res.Mint), res.Metadata.Address)
	assert.Equal(t, []domain.Creator{{Address: admin, Share: 100, Verified: true}}, res.Metadata.Creators)
	assert.True(t, res.Metadata.IsMutable)
	assert.Equal(t, "solo", domain.UnpadText(res.Metadata.Name))

	acc, err := f.shop.Tokens.GetAccount(f.ctx, res.TokenAccount)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), acc.Amount)
	assert.Equal(t, admin, acc.Owner)

	md, err := f.shop.Tokens.GetMetadata(f.ctx, res.Mint)
	require.NoError(t, err)
	assert.Equal(t, res.Metadata, md)
}

func TestCreateResource_Invalid(t *testing.T) {
	tests := []struct {
		name string
		req  CreateResourceRequest
		want error
	}{
		{
			name: "seller fee above 100%",
			req:  CreateResourceRequest{Creator: admin, SellerFeeBasisPoints: 10_001},
			want: domain.ErrSellerFeeInvalid,
		},
		{
			name: "too many creators",
			req:  CreateResourceRequest{Creator: admin, Creators: creatorsN(6)},
			want: domain.ErrCreatorsIsGtThanAvailable,
		},
		{
			name: "shares do not sum to 100",
			req:  CreateResourceRequest{Creator: admin, Creators: []domain.Creator{{Address: creator1, Share: 99}}},
			want: domain.ErrCreatorSharesInvalid,
		},
		{
			name: "name too long",
			req:  CreateResourceRequest{Creator: admin, Name: string(make([]byte, domain.DefaultNameMaxLen+1))},
			want: domain.ErrNameIsTooLong,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.shop.Tokens.CreateResource(f.ctx, tt.req)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDeposit(t *testing.T) {
	f := newFixture(t)

	f.fund(buyer, 5)
	acc := f.fund(buyer, 7)
	assert.Equal(t, f.derive.Associated(buyer, domain.NativeMint), acc)
	assert.Equal(t, uint64(12), f.balance(buyer))

	_, err := f.shop.Tokens.GetAccount(f.ctx, f.derive.Associated(buyer2, domain.NativeMint))
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEventRoundTrip(t *testing.T) {
	f := newFixture(t)
	ev := Event{Kind: EventSale, At: f.clock.Now(), Fields: map[string]string{"price": "18446744073709551615"}}

	payload, err := ev.Marshal()
	require.NoError(t, err)
	got, err := DecodeEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, ev.Kind, got.Kind)
	assert.True(t, ev.At.Equal(got.At))
	assert.Equal(t, ev.Fields, got.Fields)

	n := got.Notification()
	assert.Equal(t, "Edition sold", n.Title)
	assert.Equal(t, EventSale, n.Kind)

	_, err = DecodeEvent([]byte("not json"))
	require.Error(t, err)
}
