package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/editionshop/internal/crypto"
	"github.com/alanyoungcy/editionshop/internal/domain"
)

// TokenService mints resources and funds accounts on the token ledger.
type TokenService struct {
	*Core
}

// NewTokenService creates a TokenService.
func NewTokenService(core *Core) *TokenService {
	return &TokenService{Core: core}
}

// CreateResourceRequest describes a new printable resource. Creators
// defaults to the creator alone with the full share.
type CreateResourceRequest struct {
	Creator              common.Address
	Name                 string
	URI                  string
	SellerFeeBasisPoints uint16
	Creators             []domain.Creator
	MaxSupply            *uint64
	Immutable            bool
}

// Resource is the result of CreateResource.
type Resource struct {
	Mint         common.Address
	Metadata     domain.Metadata
	Master       domain.MasterEdition
	TokenAccount common.Address
}

func validateCreateResource(req CreateResourceRequest) error {
	if req.SellerFeeBasisPoints > 10_000 {
		return domain.ErrSellerFeeInvalid
	}
	if len(req.Creators) > domain.MaxPrimaryCreators {
		return domain.ErrCreatorsIsGtThanAvailable
	}
	if len(req.Creators) > 0 {
		return validateShares(req.Creators)
	}
	return nil
}

// CreateResource mints a master edition with its metadata and credits the
// single unit to the creator's associated account.
func (s *TokenService) CreateResource(ctx context.Context, req CreateResourceRequest) (Resource, error) {
	var out Resource
	err := s.execute(ctx, "create_resource", "", func(ctx context.Context, tx domain.Tx) error {
		if err := validateCreateResource(req); err != nil {
			return err
		}
		name, err := s.limits.PadName(req.Name)
		if err != nil {
			return err
		}
		creators := req.Creators
		if len(creators) == 0 {
			creators = []domain.Creator{{Address: req.Creator, Share: 100, Verified: true}}
		}

		mint := crypto.NewRecordAddress()
		out = Resource{
			Mint: mint,
			Master: domain.MasterEdition{
				Mint:      mint,
				MaxSupply: req.MaxSupply,
			},
			Metadata: domain.Metadata{
				Address:              s.derive.Metadata(mint),
				Mint:                 mint,
				UpdateAuthority:      req.Creator,
				Name:                 name,
				URI:                  req.URI,
				SellerFeeBasisPoints: req.SellerFeeBasisPoints,
				Creators:             append([]domain.Creator(nil), creators...),
				IsMutable:            !req.Immutable,
			},
			TokenAccount: s.derive.Associated(req.Creator, mint),
		}
		if err := tx.Tokens().CreateMaster(ctx, out.Master, out.Metadata); err != nil {
			return err
		}
		if err := tx.Tokens().OpenAccount(ctx, domain.TokenAccount{
			Address: out.TokenAccount,
			Mint:    mint,
			Owner:   req.Creator,
			Amount:  1,
		}); err != nil {
			return err
		}
		return record(ctx, tx, EventResourceMinted, map[string]any{
			"mint":       mint.Hex(),
			"creator":    req.Creator.Hex(),
			"max_supply": optU64(req.MaxSupply),
		})
	})
	if err != nil {
		return Resource{}, fmt.Errorf("token_service: create resource: %w", err)
	}

	s.logger.InfoContext(ctx, "token_service: resource minted",
		slog.String("mint", out.Mint.Hex()),
		slog.String("creator", req.Creator.Hex()),
	)
	s.announce(ctx, Event{Kind: EventResourceMinted, At: s.clock.Now(), Fields: map[string]string{
		"mint":    out.Mint.Hex(),
		"creator": req.Creator.Hex(),
	}})
	return out, nil
}

// DepositRequest credits Amount of Mint to the owner's associated account,
// opening it when absent.
type DepositRequest struct {
	Owner  common.Address
	Mint   common.Address
	Amount uint64
}

// Deposit funds an account. It exists for development and test setups
// where balances are not bridged in from elsewhere.
func (s *TokenService) Deposit(ctx context.Context, req DepositRequest) (domain.TokenAccount, error) {
	var out domain.TokenAccount
	addr := s.derive.Associated(req.Owner, req.Mint)
	err := s.execute(ctx, "deposit", "", func(ctx context.Context, tx domain.Tx) error {
		if err := ensureAccount(ctx, tx, addr, req.Mint, req.Owner); err != nil {
			return err
		}
		if err := tx.Tokens().Deposit(ctx, addr, req.Amount); err != nil {
			return err
		}
		var err error
		out, err = tx.Tokens().Account(ctx, addr)
		if err != nil {
			return err
		}
		return record(ctx, tx, EventAccountDeposited, map[string]any{
			"account": addr.Hex(),
			"amount":  req.Amount,
		})
	})
	if err != nil {
		return domain.TokenAccount{}, fmt.Errorf("token_service: deposit: %w", err)
	}

	s.logger.InfoContext(ctx, "token_service: account funded",
		slog.String("account", addr.Hex()),
		slog.Uint64("amount", req.Amount),
	)
	s.announce(ctx, Event{Kind: EventAccountDeposited, At: s.clock.Now(), Fields: map[string]string{
		"account": addr.Hex(),
		"amount":  strconv.FormatUint(req.Amount, 10),
	}})
	return out, nil
}

// GetAccount returns the token account at addr.
func (s *TokenService) GetAccount(ctx context.Context, addr common.Address) (domain.TokenAccount, error) {
	var out domain.TokenAccount
	err := s.view(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		out, err = tx.Tokens().Account(ctx, addr)
		return err
	})
	if err != nil {
		return domain.TokenAccount{}, fmt.Errorf("token_service: get account %s: %w", addr.Hex(), err)
	}
	return out, nil
}

// GetMetadata returns the metadata of a resource mint.
func (s *TokenService) GetMetadata(ctx context.Context, mint common.Address) (domain.Metadata, error) {
	var out domain.Metadata
	err := s.view(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		out, err = tx.Tokens().Metadata(ctx, mint)
		return err
	})
	if err != nil {
		return domain.Metadata{}, fmt.Errorf("token_service: get metadata %s: %w", mint.Hex(), err)
	}
	return out, nil
}
