package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/editionshop/internal/crypto"
	"github.com/alanyoungcy/editionshop/internal/domain"
)

// StoreService registers stores.
type StoreService struct {
	*Core
}

// NewStoreService creates a StoreService.
func NewStoreService(core *Core) *StoreService {
	return &StoreService{Core: core}
}

// CreateStoreRequest carries the CreateStore arguments.
type CreateStoreRequest struct {
	Admin       common.Address
	Name        string
	Description string
}

// CreateStore allocates a store owned by the caller.
func (s *StoreService) CreateStore(ctx context.Context, req CreateStoreRequest) (domain.Store, error) {
	var out domain.Store
	err := s.execute(ctx, "create_store", "", func(ctx context.Context, tx domain.Tx) error {
		name, err := s.limits.PadName(req.Name)
		if err != nil {
			return err
		}
		desc, err := s.limits.PadDescription(req.Description)
		if err != nil {
			return err
		}
		out = domain.Store{
			Address:     crypto.NewRecordAddress(),
			Admin:       req.Admin,
			Name:        name,
			Description: desc,
			CreatedAt:   s.clock.Now(),
		}
		if err := tx.Stores().Create(ctx, out); err != nil {
			return err
		}
		return record(ctx, tx, EventStoreCreated, map[string]any{
			"store": out.Address.Hex(),
			"admin": out.Admin.Hex(),
		})
	})
	if err != nil {
		return domain.Store{}, fmt.Errorf("store_service: create store: %w", err)
	}

	s.logger.InfoContext(ctx, "store_service: store created",
		slog.String("store", out.Address.Hex()),
		slog.String("admin", out.Admin.Hex()),
	)
	s.announce(ctx, Event{Kind: EventStoreCreated, At: out.CreatedAt, Fields: map[string]string{
		"store": out.Address.Hex(),
		"admin": out.Admin.Hex(),
		"name":  domain.UnpadText(out.Name),
	}})
	return out, nil
}

// GetStore returns the store at addr.
func (s *StoreService) GetStore(ctx context.Context, addr common.Address) (domain.Store, error) {
	var out domain.Store
	err := s.view(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		out, err = tx.Stores().Get(ctx, addr)
		return err
	})
	if err != nil {
		return domain.Store{}, fmt.Errorf("store_service: get store %s: %w", addr.Hex(), err)
	}
	return out, nil
}
