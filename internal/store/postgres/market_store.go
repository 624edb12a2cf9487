package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/editionshop/internal/domain"
)

// MarketStore implements domain.MarketStore.
type MarketStore struct{ *shopTx }

const marketCols = `address, store, selling_resource, treasury_mint, treasury_holder,
	treasury_owner, owner, name, description, mutable, price::text,
	pieces_in_one_wallet::text, start_date, end_date, closed,
	funds_collected::text, version, created_at, updated_at`

// Create inserts m.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			address, store, selling_resource, treasury_mint, treasury_holder,
			treasury_owner, owner, name, description, mutable, price,
			pieces_in_one_wallet, start_date, end_date, closed,
			funds_collected, version, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11::numeric,
			$12::numeric, $13, $14, $15,
			$16::numeric, $17, $18, $19
		)
		ON CONFLICT (address) DO NOTHING`
	err := inserted(s.q.Exec(ctx, query,
		m.Address.Bytes(), m.Store.Bytes(), m.SellingResource.Bytes(),
		m.TreasuryMint.Bytes(), m.TreasuryHolder.Bytes(),
		m.TreasuryOwner.Bytes(), m.Owner.Bytes(), []byte(m.Name), []byte(m.Description),
		m.Mutable, numText(m.Price),
		optNumText(m.PiecesInOneWallet), m.StartDate, m.EndDate, m.Closed,
		numText(m.FundsCollected), m.Version, m.CreatedAt, m.UpdatedAt,
	))
	if err != nil {
		return fmt.Errorf("postgres: create market %s: %w", m.Address.Hex(), err)
	}
	return nil
}

func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var name, desc []byte
	var price, funds string
	var pieces *string
	err := row.Scan(
		&m.Address, &m.Store, &m.SellingResource, &m.TreasuryMint, &m.TreasuryHolder,
		&m.TreasuryOwner, &m.Owner, &name, &desc, &m.Mutable, &price,
		&pieces, &m.StartDate, &m.EndDate, &m.Closed,
		&funds, &m.Version, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, mapErr(err)
	}
	m.Name, m.Description = string(name), string(desc)
	if m.Price, err = parseNum(price); err != nil {
		return domain.Market{}, err
	}
	if m.FundsCollected, err = parseNum(funds); err != nil {
		return domain.Market{}, err
	}
	if m.PiecesInOneWallet, err = parseOptNum(pieces); err != nil {
		return domain.Market{}, err
	}
	return m, nil
}

// Get returns the market at addr.
func (s *MarketStore) Get(ctx context.Context, addr common.Address) (domain.Market, error) {
	m, err := scanMarket(s.q.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE address = $1`+s.lock, addr.Bytes()))
	if err != nil {
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", addr.Hex(), err)
	}
	return m, nil
}

// Update overwrites the mutable columns of m.
func (s *MarketStore) Update(ctx context.Context, m domain.Market) error {
	const query = `
		UPDATE markets SET
			name                 = $2,
			description          = $3,
			mutable              = $4,
			price                = $5::numeric,
			pieces_in_one_wallet = $6::numeric,
			closed               = $7,
			funds_collected      = $8::numeric,
			version              = $9,
			updated_at           = $10
		WHERE address = $1`
	err := updated(s.q.Exec(ctx, query,
		m.Address.Bytes(), []byte(m.Name), []byte(m.Description), m.Mutable,
		numText(m.Price), optNumText(m.PiecesInOneWallet), m.Closed,
		numText(m.FundsCollected), m.Version, m.UpdatedAt,
	))
	if err != nil {
		return fmt.Errorf("postgres: update market %s: %w", m.Address.Hex(), err)
	}
	return nil
}

// ListByStore returns the markets of store oldest first. Listing never takes
// row locks.
func (s *MarketStore) ListByStore(ctx context.Context, store common.Address, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets WHERE store = $1`
	args := []any{store.Bytes()}

	if opts.Since != nil {
		args = append(args, *opts.Since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if opts.Until != nil {
		args = append(args, *opts.Until)
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}
	query += " ORDER BY created_at, address"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets of %s: %w", store.Hex(), mapErr(err))
	}
	defer rows.Close()

	var out []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return out, nil
}
