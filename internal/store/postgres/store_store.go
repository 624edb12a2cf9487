package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/editionshop/internal/domain"
)

// StoreStore implements domain.StoreStore.
type StoreStore struct{ *shopTx }

// Create inserts s, failing with domain.ErrAlreadyExists on a taken address.
func (s *StoreStore) Create(ctx context.Context, st domain.Store) error {
	const query = `
		INSERT INTO stores (address, admin, name, description, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (address) DO NOTHING`
	err := inserted(s.q.Exec(ctx, query,
		st.Address.Bytes(), st.Admin.Bytes(), []byte(st.Name), []byte(st.Description), st.CreatedAt,
	))
	if err != nil {
		return fmt.Errorf("postgres: create store %s: %w", st.Address.Hex(), err)
	}
	return nil
}

// Get returns the store at addr.
func (s *StoreStore) Get(ctx context.Context, addr common.Address) (domain.Store, error) {
	var st domain.Store
	var name, desc []byte
	err := s.q.QueryRow(ctx,
		`SELECT address, admin, name, description, created_at FROM stores WHERE address = $1`+s.lock,
		addr.Bytes(),
	).Scan(&st.Address, &st.Admin, &name, &desc, &st.CreatedAt)
	if err != nil {
		return domain.Store{}, fmt.Errorf("postgres: get store %s: %w", addr.Hex(), mapErr(err))
	}
	st.Name, st.Description = string(name), string(desc)
	return st, nil
}
