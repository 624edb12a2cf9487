package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/editionshop/internal/domain"
)

// TradeHistoryStore implements domain.TradeHistoryStore.
type TradeHistoryStore struct{ *shopTx }

// Get returns the history at addr.
func (s *TradeHistoryStore) Get(ctx context.Context, addr common.Address) (domain.TradeHistory, error) {
	var h domain.TradeHistory
	var bought string
	err := s.q.QueryRow(ctx,
		`SELECT address, market, wallet, already_bought::text, updated_at
		 FROM trade_histories WHERE address = $1`+s.lock,
		addr.Bytes(),
	).Scan(&h.Address, &h.Market, &h.Wallet, &bought, &h.UpdatedAt)
	if err != nil {
		return domain.TradeHistory{}, fmt.Errorf("postgres: get trade history %s: %w", addr.Hex(), mapErr(err))
	}
	if h.AlreadyBought, err = parseNum(bought); err != nil {
		return domain.TradeHistory{}, err
	}
	return h, nil
}

// Put inserts or overwrites h.
func (s *TradeHistoryStore) Put(ctx context.Context, h domain.TradeHistory) error {
	const query = `
		INSERT INTO trade_histories (address, market, wallet, already_bought, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5)
		ON CONFLICT (address) DO UPDATE SET
			already_bought = EXCLUDED.already_bought,
			updated_at     = EXCLUDED.updated_at`
	_, err := s.q.Exec(ctx, query,
		h.Address.Bytes(), h.Market.Bytes(), h.Wallet.Bytes(), numText(h.AlreadyBought), h.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: put trade history %s: %w", h.Address.Hex(), mapErr(err))
	}
	return nil
}
