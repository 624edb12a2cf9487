package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/editionshop/internal/crypto"
	"github.com/alanyoungcy/editionshop/internal/domain"
)

// TradeService runs purchases and serves per-wallet trade history.
type TradeService struct {
	*Core
}

// NewTradeService creates a TradeService.
func NewTradeService(core *Core) *TradeService {
	return &TradeService{Core: core}
}

// BuyRequest carries the Buy arguments. PaymentAccount is the buyer's token
// account for the market's treasury mint.
type BuyRequest struct {
	Market           common.Address
	Buyer            common.Address
	PaymentAccount   common.Address
	TradeHistoryBump uint8
	VaultOwnerBump   uint8
}

// validateBuy checks, in order, the sale window, the per-wallet cap and the
// remaining supply.
func validateBuy(m domain.Market, h domain.TradeHistory, sr domain.SellingResource, now time.Time) error {
	if now.Before(m.StartDate) {
		return domain.ErrMarketIsNotStarted
	}
	if m.StateAt(now) == domain.MarketStateEnded {
		return domain.ErrMarketIsEnded
	}
	if m.PiecesInOneWallet != nil && h.AlreadyBought >= *m.PiecesInOneWallet {
		return domain.ErrUserReachBuyLimit
	}
	if !sr.HasCapacity() {
		return domain.ErrSupplyIsGtThanMaxSupply
	}
	return nil
}

// Buy moves the market price from the buyer into the treasury holder and
// prints the next numbered edition into a new account owned by the buyer.
// Every effect commits together or not at all.
func (s *TradeService) Buy(ctx context.Context, req BuyRequest) (domain.Purchase, error) {
	var out domain.Purchase
	var mint common.Address
	err := s.execute(ctx, "buy", "market:"+req.Market.Hex(), func(ctx context.Context, tx domain.Tx) error {
		m, err := tx.Markets().Get(ctx, req.Market)
		if err != nil {
			return err
		}
		sr, err := tx.SellingResources().Get(ctx, m.SellingResource)
		if err != nil {
			return err
		}

		histAddr, _ := s.derive.TradeHistory(req.Buyer, m.Address)
		if err := s.derive.Verify(histAddr, req.TradeHistoryBump, crypto.TagTradeHistory, req.Buyer.Bytes(), m.Address.Bytes()); err != nil {
			return err
		}
		if err := s.derive.Verify(sr.VaultOwner, req.VaultOwnerBump, crypto.TagVaultOwner, sr.Resource.Bytes(), sr.Store.Bytes()); err != nil {
			return err
		}

		hist, err := tx.TradeHistories().Get(ctx, histAddr)
		switch {
		case isNotFound(err):
			hist = domain.TradeHistory{Address: histAddr, Market: m.Address, Wallet: req.Buyer}
		case err != nil:
			return err
		}

		now := s.clock.Now()
		if err := validateBuy(m, hist, sr, now); err != nil {
			return err
		}

		payment, err := tx.Tokens().Account(ctx, req.PaymentAccount)
		if err != nil {
			return err
		}
		if payment.Owner != req.Buyer {
			return domain.ErrUserWalletMustMatchUserTokenAccount
		}
		if payment.Mint != m.TreasuryMint {
			return domain.ErrMintMismatch
		}
		if err := tx.Tokens().Transfer(ctx, req.PaymentAccount, m.TreasuryHolder, m.Price); err != nil {
			return err
		}
		if m.FundsCollected, err = addU64(m.FundsCollected, m.Price); err != nil {
			return err
		}

		number := sr.Supply
		edition := domain.Edition{
			Mint:      s.derive.EditionMint(sr.Resource, sr.Address, number),
			Parent:    sr.Resource,
			Number:    number,
			Owner:     req.Buyer,
			CreatedAt: now,
		}
		edition.TokenAccount = s.derive.Associated(req.Buyer, edition.Mint)
		if err := tx.Tokens().MintEdition(ctx, edition); err != nil {
			return err
		}

		if sr.Supply, err = addU64(sr.Supply, 1); err != nil {
			return err
		}
		sr.UpdatedAt = now
		sr.Version++
		if err := tx.SellingResources().Update(ctx, sr); err != nil {
			return err
		}

		if hist.AlreadyBought, err = addU64(hist.AlreadyBought, 1); err != nil {
			return err
		}
		hist.UpdatedAt = now
		if err := tx.TradeHistories().Put(ctx, hist); err != nil {
			return err
		}

		m.UpdatedAt = now
		m.Version++
		if err := tx.Markets().Update(ctx, m); err != nil {
			return err
		}

		mint = m.TreasuryMint
		out = domain.Purchase{
			Market:        m.Address,
			Buyer:         req.Buyer,
			Edition:       edition,
			Price:         m.Price,
			Supply:        sr.Supply,
			AlreadyBought: hist.AlreadyBought,
			At:            now,
		}
		return record(ctx, tx, EventSale, map[string]any{
			"market":  m.Address.Hex(),
			"buyer":   req.Buyer.Hex(),
			"edition": number,
			"price":   m.Price,
		})
	})
	if err != nil {
		return domain.Purchase{}, fmt.Errorf("trade_service: buy: %w", err)
	}

	s.invalidate(ctx, out.Market)
	s.metrics.RecordSale(mint.Hex(), out.Price)
	s.logger.InfoContext(ctx, "trade_service: edition sold",
		slog.String("market", out.Market.Hex()),
		slog.String("buyer", out.Buyer.Hex()),
		slog.Uint64("edition", out.Edition.Number),
		slog.Uint64("price", out.Price),
	)
	s.announce(ctx, Event{Kind: EventSale, At: out.At, Fields: map[string]string{
		"market":  out.Market.Hex(),
		"buyer":   out.Buyer.Hex(),
		"edition": strconv.FormatUint(out.Edition.Number, 10),
		"price":   strconv.FormatUint(out.Price, 10),
		"supply":  strconv.FormatUint(out.Supply, 10),
	}})
	return out, nil
}

// GetTradeHistory returns how many copies wallet bought in market. A wallet
// that never bought gets a zero history.
func (s *TradeService) GetTradeHistory(ctx context.Context, market, wallet common.Address) (domain.TradeHistory, error) {
	addr, _ := s.derive.TradeHistory(wallet, market)
	var out domain.TradeHistory
	err := s.view(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		out, err = tx.TradeHistories().Get(ctx, addr)
		if isNotFound(err) {
			out = domain.TradeHistory{Address: addr, Market: market, Wallet: wallet}
			return nil
		}
		return err
	})
	if err != nil {
		return domain.TradeHistory{}, fmt.Errorf("trade_service: get trade history: %w", err)
	}
	return out, nil
}
