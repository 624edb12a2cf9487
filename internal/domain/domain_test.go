package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPadText(t *testing.T) {
	limits := DefaultTextLimits()

	got, err := limits.PadName("shop")
	require.NoError(t, err)
	assert.Len(t, got, DefaultNameMaxLen)
	assert.Equal(t, "shop", UnpadText(got))

	exact := "0123456789012345678901234567890123456789"
	got, err = limits.PadName(exact)
	require.NoError(t, err)
	assert.Equal(t, exact, got)

	_, err = limits.PadName(exact + "x")
	assert.ErrorIs(t, err, ErrNameIsTooLong)

	_, err = limits.PadDescription(string(make([]byte, DefaultDescriptionMaxLen+1)))
	assert.ErrorIs(t, err, ErrDescriptionIsTooLong)

	got, err = limits.PadDescription("")
	require.NoError(t, err)
	assert.Len(t, got, DefaultDescriptionMaxLen)
}

func TestErrorCodeAndKind(t *testing.T) {
	tests := []struct {
		err  error
		code uint32
		kind ErrorKind
	}{
		{ErrNameIsTooLong, 6000, KindValidation},
		{ErrDerivedKeyInvalid, 6004, KindAuthorization},
		{ErrMathOverflow, 6012, KindArithmetic},
		{ErrPayoutTicketExists, 6019, KindIdempotency},
		{ErrSellingResourceOwnerInvalid, 6031, KindAuthorization},
		{ErrNotFound, 0, KindNotFound},
		{ErrRecordLocked, 0, KindConflict},
		{errors.New("boom"), 0, KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			wrapped := fmt.Errorf("service: op: %w", tt.err)
			assert.Equal(t, tt.code, Code(wrapped))
			assert.Equal(t, tt.kind, Kind(wrapped))
		})
	}

	joined := errors.Join(errors.New("other"), fmt.Errorf("x: %w", ErrMarketIsEnded))
	assert.Equal(t, uint32(6010), Code(joined))
	assert.Equal(t, KindState, Kind(joined))
}

func TestMarketStateAt(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	timed := Market{StartDate: start, EndDate: &end}
	assert.Equal(t, MarketStateCreated, timed.StateAt(start.Add(-time.Second)))
	assert.Equal(t, MarketStateActive, timed.StateAt(start))
	assert.Equal(t, MarketStateActive, timed.StateAt(end.Add(-time.Second)))
	assert.Equal(t, MarketStateEnded, timed.StateAt(end))

	unlimited := Market{StartDate: start}
	assert.Equal(t, MarketStateActive, unlimited.StateAt(start.Add(1000*time.Hour)))
	unlimited.Closed = true
	assert.Equal(t, MarketStateEnded, unlimited.StateAt(start))
}

func TestMasterEditionRemaining(t *testing.T) {
	assert.Nil(t, MasterEdition{Supply: 5}.Remaining())

	max := uint64(3)
	assert.Equal(t, uint64(1), *MasterEdition{Supply: 2, MaxSupply: &max}.Remaining())
	assert.Equal(t, uint64(0), *MasterEdition{Supply: 4, MaxSupply: &max}.Remaining())
}

func TestSellingResourceHasCapacity(t *testing.T) {
	max := uint64(2)
	assert.True(t, SellingResource{Supply: 1, MaxSupply: &max}.HasCapacity())
	assert.False(t, SellingResource{Supply: 2, MaxSupply: &max}.HasCapacity())
	assert.True(t, SellingResource{Supply: 1 << 40}.HasCapacity())
}
