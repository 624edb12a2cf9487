package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/editionshop/internal/domain"
)

// SellingResourceStore implements domain.SellingResourceStore.
type SellingResourceStore struct{ *shopTx }

const sellingResourceCols = `address, store, owner, resource, vault, vault_owner,
	supply::text, max_supply::text, state, version, created_at, updated_at`

// Create inserts r.
func (s *SellingResourceStore) Create(ctx context.Context, r domain.SellingResource) error {
	const query = `
		INSERT INTO selling_resources (
			address, store, owner, resource, vault, vault_owner,
			supply, max_supply, state, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9, $10, $11, $12)
		ON CONFLICT (address) DO NOTHING`
	err := inserted(s.q.Exec(ctx, query,
		r.Address.Bytes(), r.Store.Bytes(), r.Owner.Bytes(), r.Resource.Bytes(),
		r.Vault.Bytes(), r.VaultOwner.Bytes(),
		numText(r.Supply), optNumText(r.MaxSupply), string(r.State), r.Version,
		r.CreatedAt, r.UpdatedAt,
	))
	if err != nil {
		return fmt.Errorf("postgres: create selling resource %s: %w", r.Address.Hex(), err)
	}
	return nil
}

// Get returns the selling resource at addr.
func (s *SellingResourceStore) Get(ctx context.Context, addr common.Address) (domain.SellingResource, error) {
	var r domain.SellingResource
	var supply string
	var maxSupply *string
	var state string
	err := s.q.QueryRow(ctx,
		`SELECT `+sellingResourceCols+` FROM selling_resources WHERE address = $1`+s.lock,
		addr.Bytes(),
	).Scan(
		&r.Address, &r.Store, &r.Owner, &r.Resource, &r.Vault, &r.VaultOwner,
		&supply, &maxSupply, &state, &r.Version, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return domain.SellingResource{}, fmt.Errorf("postgres: get selling resource %s: %w", addr.Hex(), mapErr(err))
	}
	if r.Supply, err = parseNum(supply); err != nil {
		return domain.SellingResource{}, err
	}
	if r.MaxSupply, err = parseOptNum(maxSupply); err != nil {
		return domain.SellingResource{}, err
	}
	r.State = domain.SellingResourceState(state)
	return r, nil
}

// Update overwrites the mutable columns of r.
func (s *SellingResourceStore) Update(ctx context.Context, r domain.SellingResource) error {
	const query = `
		UPDATE selling_resources
		SET supply = $2::numeric, state = $3, version = $4, updated_at = $5
		WHERE address = $1`
	err := updated(s.q.Exec(ctx, query,
		r.Address.Bytes(), numText(r.Supply), string(r.State), r.Version, r.UpdatedAt,
	))
	if err != nil {
		return fmt.Errorf("postgres: update selling resource %s: %w", r.Address.Hex(), err)
	}
	return nil
}
