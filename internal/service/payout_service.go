package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/editionshop/internal/crypto"
	"github.com/alanyoungcy/editionshop/internal/domain"
)

// PayoutService distributes market proceeds to royalty recipients, once per
// (market, funder).
type PayoutService struct {
	*Core
}

// NewPayoutService creates a PayoutService.
func NewPayoutService(core *Core) *PayoutService {
	return &PayoutService{Core: core}
}

// WithdrawRequest carries the Withdraw arguments. A zero Destination selects
// the funder's associated account for the treasury mint.
type WithdrawRequest struct {
	Market            common.Address
	Owner             common.Address
	Funder            common.Address
	Destination       common.Address
	TreasuryOwnerBump uint8
	PayoutTicketBump  uint8
}

func validateWithdraw(req WithdrawRequest, m domain.Market) error {
	if m.Owner != req.Owner {
		return domain.ErrPublicKeyMismatch
	}
	if !m.Closed {
		return domain.ErrMarketInInvalidState
	}
	return nil
}

// primaryCreators returns the recipients of a primary sale: the saved
// snapshot, or the metadata creators when none was saved.
func primaryCreators(md domain.Metadata, snap *domain.PrimaryMetadataCreators) []domain.Creator {
	if snap != nil {
		return snap.Creators
	}
	return md.Creators
}

// entitlement computes what funder receives out of base. Before the primary
// sale has happened the primary creators split all of base; afterwards the
// metadata creators split the seller fee and the market owner keeps the
// rest.
func entitlement(base uint64, funder common.Address, m domain.Market, md domain.Metadata, snap *domain.PrimaryMetadataCreators) (uint64, bool, error) {
	if !md.PrimarySaleHappened {
		creators := primaryCreators(md, snap)
		if len(creators) == 0 {
			return 0, true, domain.ErrPrimaryMetadataCreatorsNotProvided
		}
		share, ok := domain.CreatorShare(creators, funder)
		if !ok {
			if funder == m.Owner {
				return 0, true, domain.ErrMarketOwnerDoesntHaveShares
			}
			return 0, true, domain.ErrFunderIsInvalid
		}
		amount, err := portion(base, uint64(share), 100)
		return amount, true, err
	}

	royalty, err := portion(base, uint64(md.SellerFeeBasisPoints), 10_000)
	if err != nil {
		return 0, false, err
	}
	var amount uint64
	listed := false
	if share, ok := md.ShareOf(funder); ok {
		listed = true
		if amount, err = portion(royalty, uint64(share), 100); err != nil {
			return 0, false, err
		}
	}
	if funder == m.Owner {
		listed = true
		if amount, err = addU64(amount, base-royalty); err != nil {
			return 0, false, err
		}
	}
	if !listed {
		return 0, false, domain.ErrFunderIsInvalid
	}
	return amount, false, nil
}

// portion returns base * num / den with an overflow-checked multiplication.
func portion(base, num, den uint64) (uint64, error) {
	p, err := mulU64(base, num)
	if err != nil {
		return 0, err
	}
	return p / den, nil
}

// Withdraw pays funder's share of the market proceeds and records the payout
// ticket in the same transaction. A second withdrawal for the same funder
// fails with ErrPayoutTicketExists.
func (s *PayoutService) Withdraw(ctx context.Context, req WithdrawRequest) (domain.PayoutTicket, error) {
	var out domain.PayoutTicket
	err := s.execute(ctx, "withdraw", "market:"+req.Market.Hex(), func(ctx context.Context, tx domain.Tx) error {
		m, err := tx.Markets().Get(ctx, req.Market)
		if err != nil {
			return err
		}
		if err := validateWithdraw(req, m); err != nil {
			return err
		}
		if err := s.derive.Verify(m.TreasuryOwner, req.TreasuryOwnerBump, crypto.TagTreasuryOwner, m.TreasuryMint.Bytes(), m.SellingResource.Bytes()); err != nil {
			return err
		}
		ticketAddr, _ := s.derive.PayoutTicket(m.Address, req.Funder)
		if err := s.derive.Verify(ticketAddr, req.PayoutTicketBump, crypto.TagPayoutTicket, m.Address.Bytes(), req.Funder.Bytes()); err != nil {
			return err
		}
		switch _, err := tx.PayoutTickets().Get(ctx, ticketAddr); {
		case err == nil:
			return domain.ErrPayoutTicketExists
		case !isNotFound(err):
			return err
		}

		sr, err := tx.SellingResources().Get(ctx, m.SellingResource)
		if err != nil {
			return err
		}
		md, err := tx.Tokens().Metadata(ctx, sr.Resource)
		if err != nil {
			return err
		}
		var snap *domain.PrimaryMetadataCreators
		if !md.PrimarySaleHappened {
			snapAddr, _ := s.derive.PrimaryCreators(md.Address)
			got, err := tx.PrimaryCreators().Get(ctx, snapAddr)
			switch {
			case err == nil:
				snap = &got
			case !isNotFound(err):
				return err
			}
		}
		amount, primary, err := entitlement(m.FundsCollected, req.Funder, m, md, snap)
		if err != nil {
			return err
		}

		dest := s.derive.Associated(req.Funder, m.TreasuryMint)
		if req.Destination != (common.Address{}) && req.Destination != dest {
			return domain.ErrInvalidFunderDestination
		}
		if err := ensureAccount(ctx, tx, dest, m.TreasuryMint, req.Funder); err != nil {
			return err
		}
		if amount > 0 {
			if err := tx.Tokens().Transfer(ctx, m.TreasuryHolder, dest, amount); err != nil {
				return err
			}
		}

		out = domain.PayoutTicket{
			Address:     ticketAddr,
			Market:      m.Address,
			Funder:      req.Funder,
			Destination: dest,
			Amount:      amount,
			Primary:     primary,
			CreatedAt:   s.clock.Now(),
		}
		if err := tx.PayoutTickets().Create(ctx, out); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				return domain.ErrPayoutTicketExists
			}
			return err
		}
		return record(ctx, tx, EventPayout, map[string]any{
			"market":  m.Address.Hex(),
			"funder":  req.Funder.Hex(),
			"amount":  amount,
			"primary": primary,
		})
	})
	if err != nil {
		return domain.PayoutTicket{}, fmt.Errorf("payout_service: withdraw: %w", err)
	}

	s.metrics.RecordPayout(out.Primary, out.Amount)
	s.logger.InfoContext(ctx, "payout_service: royalty paid",
		slog.String("market", out.Market.Hex()),
		slog.String("funder", out.Funder.Hex()),
		slog.Uint64("amount", out.Amount),
		slog.Bool("primary", out.Primary),
	)
	s.announce(ctx, Event{Kind: EventPayout, At: out.CreatedAt, Fields: map[string]string{
		"market": out.Market.Hex(),
		"funder": out.Funder.Hex(),
		"amount": strconv.FormatUint(out.Amount, 10),
	}})
	return out, nil
}

// GetPayoutTicket returns the ticket of funder for market.
func (s *PayoutService) GetPayoutTicket(ctx context.Context, market, funder common.Address) (domain.PayoutTicket, error) {
	addr, _ := s.derive.PayoutTicket(market, funder)
	var out domain.PayoutTicket
	err := s.view(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		out, err = tx.PayoutTickets().Get(ctx, addr)
		return err
	})
	if err != nil {
		return domain.PayoutTicket{}, fmt.Errorf("payout_service: get payout ticket: %w", err)
	}
	return out, nil
}

// ListPayoutTickets returns every ticket issued for market.
func (s *PayoutService) ListPayoutTickets(ctx context.Context, market common.Address) ([]domain.PayoutTicket, error) {
	var out []domain.PayoutTicket
	err := s.view(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		out, err = tx.PayoutTickets().ListByMarket(ctx, market)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("payout_service: list payout tickets: %w", err)
	}
	return out, nil
}
