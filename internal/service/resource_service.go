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

// ResourceService manages selling resources and their royalty snapshots.
type ResourceService struct {
	*Core
}

// NewResourceService creates a ResourceService.
func NewResourceService(core *Core) *ResourceService {
	return &ResourceService{Core: core}
}

// InitSellingResourceRequest carries the InitSellingResource arguments.
// ResourceToken is the admin's account holding the master edition unit.
type InitSellingResourceRequest struct {
	Store          common.Address
	Admin          common.Address
	Owner          common.Address
	Resource       common.Address
	ResourceToken  common.Address
	VaultOwnerBump uint8
	MaxSupply      *uint64
}

// validateInitSellingResource checks supply consistency against the master
// edition.
func validateInitSellingResource(req InitSellingResourceRequest, store domain.Store, master domain.MasterEdition) error {
	if store.Admin != req.Admin {
		return domain.ErrPublicKeyMismatch
	}
	remaining := master.Remaining()
	if remaining == nil {
		return nil
	}
	if req.MaxSupply == nil {
		return domain.ErrSupplyIsNotProvided
	}
	if *req.MaxSupply > *remaining {
		return domain.ErrSupplyIsGtThanAvailable
	}
	return nil
}

// InitSellingResource binds a resource to a store and escrows its master
// edition unit in a vault controlled by the derived vault owner.
func (s *ResourceService) InitSellingResource(ctx context.Context, req InitSellingResourceRequest) (domain.SellingResource, error) {
	var out domain.SellingResource
	err := s.execute(ctx, "init_selling_resource", "", func(ctx context.Context, tx domain.Tx) error {
		store, err := tx.Stores().Get(ctx, req.Store)
		if err != nil {
			return err
		}
		master, err := tx.Tokens().MasterEdition(ctx, req.Resource)
		if err != nil {
			return err
		}
		if err := validateInitSellingResource(req, store, master); err != nil {
			return err
		}

		vaultOwner, _ := s.derive.VaultOwner(req.Resource, req.Store)
		if err := s.derive.Verify(vaultOwner, req.VaultOwnerBump, crypto.TagVaultOwner, req.Resource.Bytes(), req.Store.Bytes()); err != nil {
			return err
		}

		token, err := tx.Tokens().Account(ctx, req.ResourceToken)
		if err != nil {
			return err
		}
		if token.Mint != req.Resource {
			return domain.ErrMintMismatch
		}
		if token.Owner != req.Admin {
			return domain.ErrUserWalletMustMatchUserTokenAccount
		}

		vault, _ := s.derive.Vault(vaultOwner)
		if err := ensureAccount(ctx, tx, vault, req.Resource, vaultOwner); err != nil {
			return err
		}
		if err := tx.Tokens().Transfer(ctx, req.ResourceToken, vault, 1); err != nil {
			return err
		}

		now := s.clock.Now()
		out = domain.SellingResource{
			Address:    crypto.NewRecordAddress(),
			Store:      req.Store,
			Owner:      req.Owner,
			Resource:   req.Resource,
			Vault:      vault,
			VaultOwner: vaultOwner,
			MaxSupply:  req.MaxSupply,
			State:      domain.SellingResourceCreated,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.SellingResources().Create(ctx, out); err != nil {
			return err
		}
		return record(ctx, tx, EventResourceInit, map[string]any{
			"selling_resource": out.Address.Hex(),
			"store":            out.Store.Hex(),
			"resource":         out.Resource.Hex(),
			"max_supply":       optU64(out.MaxSupply),
		})
	})
	if err != nil {
		return domain.SellingResource{}, fmt.Errorf("resource_service: init selling resource: %w", err)
	}

	s.logger.InfoContext(ctx, "resource_service: selling resource created",
		slog.String("selling_resource", out.Address.Hex()),
		slog.String("store", out.Store.Hex()),
		slog.String("resource", out.Resource.Hex()),
	)
	s.announce(ctx, Event{Kind: EventResourceInit, At: out.CreatedAt, Fields: map[string]string{
		"selling_resource": out.Address.Hex(),
		"store":            out.Store.Hex(),
		"owner":            out.Owner.Hex(),
	}})
	return out, nil
}

// SavePrimaryMetadataCreatorsRequest carries the creators snapshot for the
// metadata of Resource.
type SavePrimaryMetadataCreatorsRequest struct {
	Resource        common.Address
	UpdateAuthority common.Address
	Bump            uint8
	Creators        []domain.Creator
}

func validateSavePrimaryMetadataCreators(req SavePrimaryMetadataCreatorsRequest, md domain.Metadata) error {
	if md.UpdateAuthority != req.UpdateAuthority {
		return domain.ErrPublicKeyMismatch
	}
	if !md.IsMutable {
		return domain.ErrMetadataShouldBeMutable
	}
	if md.PrimarySaleHappened {
		return domain.ErrPrimarySaleIsNotAllowed
	}
	if len(req.Creators) == 0 {
		return domain.ErrCreatorsIsEmpty
	}
	if len(req.Creators) > domain.MaxPrimaryCreators {
		return domain.ErrCreatorsIsGtThanAvailable
	}
	return validateShares(req.Creators)
}

// validateShares requires distinct addresses whose shares sum to exactly 100.
func validateShares(creators []domain.Creator) error {
	seen := make(map[common.Address]bool, len(creators))
	total := 0
	for _, c := range creators {
		if seen[c.Address] {
			return domain.ErrCreatorSharesInvalid
		}
		seen[c.Address] = true
		total += int(c.Share)
	}
	if total != 100 {
		return domain.ErrCreatorSharesInvalid
	}
	return nil
}

// SavePrimaryMetadataCreators stores the primary sale recipients of a
// resource. The snapshot is written once and never recomputed.
func (s *ResourceService) SavePrimaryMetadataCreators(ctx context.Context, req SavePrimaryMetadataCreatorsRequest) (domain.PrimaryMetadataCreators, error) {
	var out domain.PrimaryMetadataCreators
	err := s.execute(ctx, "save_primary_metadata_creators", "", func(ctx context.Context, tx domain.Tx) error {
		md, err := tx.Tokens().Metadata(ctx, req.Resource)
		if err != nil {
			return err
		}
		if err := validateSavePrimaryMetadataCreators(req, md); err != nil {
			return err
		}
		addr, _ := s.derive.PrimaryCreators(md.Address)
		if err := s.derive.Verify(addr, req.Bump, crypto.TagPrimaryCreators, md.Address.Bytes()); err != nil {
			return err
		}
		out = domain.PrimaryMetadataCreators{
			Address:   addr,
			Metadata:  md.Address,
			Creators:  append([]domain.Creator(nil), req.Creators...),
			CreatedAt: s.clock.Now(),
		}
		if err := tx.PrimaryCreators().Create(ctx, out); err != nil {
			return err
		}
		return record(ctx, tx, EventCreatorsSaved, map[string]any{
			"primary_creators": addr.Hex(),
			"metadata":         md.Address.Hex(),
			"count":            len(out.Creators),
		})
	})
	if err != nil {
		return domain.PrimaryMetadataCreators{}, fmt.Errorf("resource_service: save primary creators: %w", err)
	}

	s.logger.InfoContext(ctx, "resource_service: primary creators saved",
		slog.String("metadata", out.Metadata.Hex()),
		slog.Int("count", len(out.Creators)),
	)
	s.announce(ctx, Event{Kind: EventCreatorsSaved, At: out.CreatedAt, Fields: map[string]string{
		"metadata": out.Metadata.Hex(),
		"count":    strconv.Itoa(len(out.Creators)),
	}})
	return out, nil
}

// ClaimResourceRequest carries the ClaimResource arguments. A zero
// Destination selects the owner's associated account for the resource.
type ClaimResourceRequest struct {
	Market         common.Address
	Owner          common.Address
	Destination    common.Address
	VaultOwnerBump uint8
}

func validateClaimResource(req ClaimResourceRequest, m domain.Market, sr domain.SellingResource) error {
	if sr.Owner != req.Owner {
		return domain.ErrSellingResourceOwnerInvalid
	}
	if !m.Closed {
		return domain.ErrMarketInInvalidState
	}
	if sr.State != domain.SellingResourceInUse {
		return domain.ErrSellingResourceInInvalidState
	}
	return nil
}

// ClaimResource returns the escrowed master edition unit to the selling
// resource owner once the market is closed and every payee has withdrawn.
func (s *ResourceService) ClaimResource(ctx context.Context, req ClaimResourceRequest) (domain.SellingResource, error) {
	var out domain.SellingResource
	err := s.execute(ctx, "claim_resource", "market:"+req.Market.Hex(), func(ctx context.Context, tx domain.Tx) error {
		m, err := tx.Markets().Get(ctx, req.Market)
		if err != nil {
			return err
		}
		sr, err := tx.SellingResources().Get(ctx, m.SellingResource)
		if err != nil {
			return err
		}
		if err := validateClaimResource(req, m, sr); err != nil {
			return err
		}
		if err := s.derive.Verify(sr.VaultOwner, req.VaultOwnerBump, crypto.TagVaultOwner, sr.Resource.Bytes(), sr.Store.Bytes()); err != nil {
			return err
		}

		md, err := tx.Tokens().Metadata(ctx, sr.Resource)
		if err != nil {
			return err
		}
		if err := s.requireAllPaid(ctx, tx, m, md); err != nil {
			return err
		}

		dest := s.derive.Associated(req.Owner, sr.Resource)
		if req.Destination != (common.Address{}) && req.Destination != dest {
			return domain.ErrInvalidFunderDestination
		}
		if err := ensureAccount(ctx, tx, dest, sr.Resource, req.Owner); err != nil {
			return err
		}
		if err := tx.Tokens().Transfer(ctx, sr.Vault, dest, 1); err != nil {
			return err
		}

		if sr.Supply > 0 && !md.PrimarySaleHappened {
			md.PrimarySaleHappened = true
			if err := tx.Tokens().UpdateMetadata(ctx, md); err != nil {
				return err
			}
		}

		sr.State = domain.SellingResourceExhausted
		sr.UpdatedAt = s.clock.Now()
		sr.Version++
		if err := tx.SellingResources().Update(ctx, sr); err != nil {
			return err
		}
		out = sr
		return record(ctx, tx, EventResourceClaimed, map[string]any{
			"market":           m.Address.Hex(),
			"selling_resource": sr.Address.Hex(),
			"destination":      dest.Hex(),
		})
	})
	if err != nil {
		return domain.SellingResource{}, fmt.Errorf("resource_service: claim resource: %w", err)
	}

	s.logger.InfoContext(ctx, "resource_service: resource claimed",
		slog.String("market", req.Market.Hex()),
		slog.String("selling_resource", out.Address.Hex()),
	)
	s.announce(ctx, Event{Kind: EventResourceClaimed, At: out.UpdatedAt, Fields: map[string]string{
		"market":           req.Market.Hex(),
		"selling_resource": out.Address.Hex(),
		"supply":           strconv.FormatUint(out.Supply, 10),
	}})
	return out, nil
}

// requireAllPaid fails with ErrTreasuryIsNotEmpty while any payee entitled
// to a non-zero amount has no payout ticket for m.
func (s *ResourceService) requireAllPaid(ctx context.Context, tx domain.Tx, m domain.Market, md domain.Metadata) error {
	if m.FundsCollected == 0 {
		return nil
	}
	var payees []common.Address
	if !md.PrimarySaleHappened {
		var snap *domain.PrimaryMetadataCreators
		snapAddr, _ := s.derive.PrimaryCreators(md.Address)
		got, err := tx.PrimaryCreators().Get(ctx, snapAddr)
		switch {
		case err == nil:
			snap = &got
		case !isNotFound(err):
			return err
		}
		creators := primaryCreators(md, snap)
		if len(creators) == 0 {
			return domain.ErrTreasuryIsNotEmpty
		}
		for _, c := range creators {
			if c.Share > 0 {
				payees = append(payees, c.Address)
			}
		}
	} else {
		for _, c := range md.Creators {
			if c.Share > 0 && md.SellerFeeBasisPoints > 0 {
				payees = append(payees, c.Address)
			}
		}
		if md.SellerFeeBasisPoints < 10_000 {
			payees = append(payees, m.Owner)
		}
	}

	for _, p := range payees {
		addr, _ := s.derive.PayoutTicket(m.Address, p)
		_, err := tx.PayoutTickets().Get(ctx, addr)
		if isNotFound(err) {
			return domain.ErrTreasuryIsNotEmpty
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// GetSellingResource returns the selling resource at addr.
func (s *ResourceService) GetSellingResource(ctx context.Context, addr common.Address) (domain.SellingResource, error) {
	var out domain.SellingResource
	err := s.view(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		out, err = tx.SellingResources().Get(ctx, addr)
		return err
	})
	if err != nil {
		return domain.SellingResource{}, fmt.Errorf("resource_service: get selling resource %s: %w", addr.Hex(), err)
	}
	return out, nil
}

// GetPrimaryMetadataCreators returns the snapshot saved for resource.
func (s *ResourceService) GetPrimaryMetadataCreators(ctx context.Context, resource common.Address) (domain.PrimaryMetadataCreators, error) {
	var out domain.PrimaryMetadataCreators
	err := s.view(ctx, func(ctx context.Context, tx domain.Tx) error {
		md, err := tx.Tokens().Metadata(ctx, resource)
		if err != nil {
			return err
		}
		addr, _ := s.derive.PrimaryCreators(md.Address)
		out, err = tx.PrimaryCreators().Get(ctx, addr)
		return err
	})
	if err != nil {
		return domain.PrimaryMetadataCreators{}, fmt.Errorf("resource_service: get primary creators %s: %w", resource.Hex(), err)
	}
	return out, nil
}
