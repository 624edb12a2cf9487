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

// MarketService controls the market lifecycle and serves cached market reads.
type MarketService struct {
	*Core
}

// NewMarketService creates a MarketService.
func NewMarketService(core *Core) *MarketService {
	return &MarketService{Core: core}
}

// CreateMarketRequest carries the CreateMarket arguments.
type CreateMarketRequest struct {
	SellingResource   common.Address
	Owner             common.Address
	TreasuryMint      common.Address
	TreasuryOwnerBump uint8
	Name              string
	Description       string
	Mutable           bool
	Price             uint64
	PiecesInOneWallet *uint64
	StartDate         time.Time
	EndDate           *time.Time
}

func validateCreateMarket(req CreateMarketRequest, sr domain.SellingResource, now time.Time) error {
	if sr.Owner != req.Owner {
		return domain.ErrSellingResourceOwnerInvalid
	}
	if sr.State != domain.SellingResourceCreated {
		return domain.ErrSellingResourceAlreadyTaken
	}
	if req.StartDate.Before(now) {
		return domain.ErrStartDateIsInPast
	}
	if req.EndDate != nil && req.EndDate.Before(req.StartDate) {
		return domain.ErrEndDateIsEarlierThanBeginDate
	}
	if req.PiecesInOneWallet != nil && sr.MaxSupply != nil && *req.PiecesInOneWallet > *sr.MaxSupply {
		return domain.ErrPiecesInOneWalletIsTooMuch
	}
	if req.Price == 0 {
		return domain.ErrPriceIsZero
	}
	return nil
}

// CreateMarket opens a sale over a selling resource and flips the resource
// to InUse. The treasury holder is opened for the payment mint; for the
// native mint it is the treasury owner itself and is funded with the
// minimum native balance from the owner's native account.
func (s *MarketService) CreateMarket(ctx context.Context, req CreateMarketRequest) (domain.Market, error) {
	var out domain.Market
	err := s.execute(ctx, "create_market", "", func(ctx context.Context, tx domain.Tx) error {
		sr, err := tx.SellingResources().Get(ctx, req.SellingResource)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if err := validateCreateMarket(req, sr, now); err != nil {
			return err
		}
		name, err := s.limits.PadName(req.Name)
		if err != nil {
			return err
		}
		desc, err := s.limits.PadDescription(req.Description)
		if err != nil {
			return err
		}

		treasuryOwner, _ := s.derive.TreasuryOwner(req.TreasuryMint, sr.Address)
		if err := s.derive.Verify(treasuryOwner, req.TreasuryOwnerBump, crypto.TagTreasuryOwner, req.TreasuryMint.Bytes(), sr.Address.Bytes()); err != nil {
			return err
		}
		holder, err := s.openTreasury(ctx, tx, req, treasuryOwner)
		if err != nil {
			return err
		}

		out = domain.Market{
			Address:           crypto.NewRecordAddress(),
			Store:             sr.Store,
			SellingResource:   sr.Address,
			TreasuryMint:      req.TreasuryMint,
			TreasuryHolder:    holder,
			TreasuryOwner:     treasuryOwner,
			Owner:             req.Owner,
			Name:              name,
			Description:       desc,
			Mutable:           req.Mutable,
			Price:             req.Price,
			PiecesInOneWallet: req.PiecesInOneWallet,
			StartDate:         req.StartDate,
			EndDate:           req.EndDate,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := tx.Markets().Create(ctx, out); err != nil {
			return err
		}

		sr.State = domain.SellingResourceInUse
		sr.UpdatedAt = now
		sr.Version++
		if err := tx.SellingResources().Update(ctx, sr); err != nil {
			return err
		}
		return record(ctx, tx, EventMarketCreated, map[string]any{
			"market":           out.Address.Hex(),
			"selling_resource": sr.Address.Hex(),
			"price":            out.Price,
			"treasury_mint":    out.TreasuryMint.Hex(),
		})
	})
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: create market: %w", err)
	}

	s.logger.InfoContext(ctx, "market_service: market created",
		slog.String("market", out.Address.Hex()),
		slog.String("selling_resource", out.SellingResource.Hex()),
		slog.Uint64("price", out.Price),
	)
	s.announce(ctx, Event{Kind: EventMarketCreated, At: out.CreatedAt, Fields: map[string]string{
		"market": out.Address.Hex(),
		"name":   domain.UnpadText(out.Name),
		"price":  strconv.FormatUint(out.Price, 10),
		"start":  out.StartDate.UTC().Format(time.RFC3339),
	}})
	return out, nil
}

func (s *MarketService) openTreasury(ctx context.Context, tx domain.Tx, req CreateMarketRequest, treasuryOwner common.Address) (common.Address, error) {
	if req.TreasuryMint != domain.NativeMint {
		holder := s.derive.Associated(treasuryOwner, req.TreasuryMint)
		if err := ensureAccount(ctx, tx, holder, req.TreasuryMint, treasuryOwner); err != nil {
			return common.Address{}, err
		}
		return holder, nil
	}

	holder := treasuryOwner
	if err := ensureAccount(ctx, tx, holder, domain.NativeMint, treasuryOwner); err != nil {
		return common.Address{}, err
	}
	if s.minNative > 0 {
		funding := s.derive.Associated(req.Owner, domain.NativeMint)
		if err := tx.Tokens().Transfer(ctx, funding, holder, s.minNative); err != nil {
			return common.Address{}, fmt.Errorf("fund native treasury: %w", err)
		}
	}
	return holder, nil
}

// ChangeMarketRequest carries the optional ChangeMarket fields. Nil fields
// are left unchanged.
type ChangeMarketRequest struct {
	Market               common.Address
	Owner                common.Address
	NewName              *string
	NewDescription       *string
	Mutable              *bool
	NewPrice             *uint64
	NewPiecesInOneWallet *uint64
}

func validateChangeMarket(req ChangeMarketRequest, m domain.Market, now time.Time) error {
	if m.Owner != req.Owner {
		return domain.ErrPublicKeyMismatch
	}
	if !m.Mutable {
		return domain.ErrMarketIsImmutable
	}
	if m.StateAt(now) == domain.MarketStateEnded {
		return domain.ErrMarketIsEnded
	}
	if !now.Before(m.StartDate) {
		return domain.ErrMarketIsStarted
	}
	return nil
}

// ChangeMarket overwrites the provided mutable fields. It is only allowed on
// mutable markets strictly before their start date.
func (s *MarketService) ChangeMarket(ctx context.Context, req ChangeMarketRequest) (domain.Market, error) {
	var out domain.Market
	err := s.execute(ctx, "change_market", "market:"+req.Market.Hex(), func(ctx context.Context, tx domain.Tx) error {
		m, err := tx.Markets().Get(ctx, req.Market)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if err := validateChangeMarket(req, m, now); err != nil {
			return err
		}

		if req.NewName != nil {
			if m.Name, err = s.limits.PadName(*req.NewName); err != nil {
				return err
			}
		}
		if req.NewDescription != nil {
			if m.Description, err = s.limits.PadDescription(*req.NewDescription); err != nil {
				return err
			}
		}
		if req.NewPrice != nil && *req.NewPrice == 0 {
			return domain.ErrPriceIsZero
		}
		if req.NewPiecesInOneWallet != nil {
			sr, err := tx.SellingResources().Get(ctx, m.SellingResource)
			if err != nil {
				return err
			}
			if sr.MaxSupply != nil && *req.NewPiecesInOneWallet > *sr.MaxSupply {
				return domain.ErrPiecesInOneWalletIsTooMuch
			}
			limit := *req.NewPiecesInOneWallet
			m.PiecesInOneWallet = &limit
		}
		if req.NewPrice != nil {
			m.Price = *req.NewPrice
		}
		if req.Mutable != nil {
			m.Mutable = *req.Mutable
		}

		m.UpdatedAt = now
		m.Version++
		if err := tx.Markets().Update(ctx, m); err != nil {
			return err
		}
		out = m
		return record(ctx, tx, EventMarketChanged, map[string]any{
			"market":  m.Address.Hex(),
			"price":   m.Price,
			"mutable": m.Mutable,
		})
	})
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: change market: %w", err)
	}

	s.invalidate(ctx, out.Address)
	s.logger.InfoContext(ctx, "market_service: market changed",
		slog.String("market", out.Address.Hex()),
	)
	s.announce(ctx, Event{Kind: EventMarketChanged, At: out.UpdatedAt, Fields: map[string]string{
		"market": out.Address.Hex(),
		"price":  strconv.FormatUint(out.Price, 10),
	}})
	return out, nil
}

// CloseMarketRequest carries the CloseMarket arguments.
type CloseMarketRequest struct {
	Market common.Address
	Owner  common.Address
}

func validateCloseMarket(req CloseMarketRequest, m domain.Market, now time.Time) error {
	if m.Owner != req.Owner {
		return domain.ErrPublicKeyMismatch
	}
	if m.Closed {
		return domain.ErrMarketInInvalidState
	}
	if m.EndDate != nil && now.Before(*m.EndDate) {
		return domain.ErrMarketDurationIsNotUnlimited
	}
	return nil
}

// CloseMarket marks the market closed, which gates withdrawals and resource
// claims. Markets without an end date may be closed at any time; timed
// markets only once their end date has passed.
func (s *MarketService) CloseMarket(ctx context.Context, req CloseMarketRequest) (domain.Market, error) {
	var out domain.Market
	err := s.execute(ctx, "close_market", "market:"+req.Market.Hex(), func(ctx context.Context, tx domain.Tx) error {
		m, err := tx.Markets().Get(ctx, req.Market)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if err := validateCloseMarket(req, m, now); err != nil {
			return err
		}
		m.Closed = true
		m.UpdatedAt = now
		m.Version++
		if err := tx.Markets().Update(ctx, m); err != nil {
			return err
		}
		out = m
		return record(ctx, tx, EventMarketClosed, map[string]any{
			"market":          m.Address.Hex(),
			"funds_collected": m.FundsCollected,
		})
	})
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: close market: %w", err)
	}

	s.invalidate(ctx, out.Address)
	s.logger.InfoContext(ctx, "market_service: market closed",
		slog.String("market", out.Address.Hex()),
		slog.Uint64("funds_collected", out.FundsCollected),
	)
	s.announce(ctx, Event{Kind: EventMarketClosed, At: out.UpdatedAt, Fields: map[string]string{
		"market":          out.Address.Hex(),
		"funds_collected": strconv.FormatUint(out.FundsCollected, 10),
	}})
	return out, nil
}

// GetMarket returns a market, checking the cache first and back-filling it
// from the repository on a miss.
func (s *MarketService) GetMarket(ctx context.Context, addr common.Address) (domain.Market, error) {
	if s.cache != nil {
		if m, err := s.cache.Get(ctx, addr); err == nil {
			return m, nil
		}
	}

	var m domain.Market
	err := s.view(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		m, err = tx.Markets().Get(ctx, addr)
		return err
	})
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get market %s: %w", addr.Hex(), err)
	}

	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
			s.logger.WarnContext(ctx, "market_service: cache set failed",
				slog.String("market", addr.Hex()),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return m, nil
}

// ListMarkets returns the markets of a store in creation order.
func (s *MarketService) ListMarkets(ctx context.Context, store common.Address, opts domain.ListOpts) ([]domain.Market, error) {
	var out []domain.Market
	err := s.view(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		out, err = tx.Markets().ListByStore(ctx, store, opts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("market_service: list markets %s: %w", store.Hex(), err)
	}
	return out, nil
}
