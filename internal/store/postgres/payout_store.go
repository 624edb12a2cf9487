package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/editionshop/internal/domain"
)

// PrimaryCreatorsStore implements domain.PrimaryCreatorsStore. Creators are
// kept as a JSONB array.
type PrimaryCreatorsStore struct{ *shopTx }

// Create inserts p.
func (s *PrimaryCreatorsStore) Create(ctx context.Context, p domain.PrimaryMetadataCreators) error {
	creators, err := json.Marshal(p.Creators)
	if err != nil {
		return fmt.Errorf("postgres: marshal creators: %w", err)
	}
	const query = `
		INSERT INTO primary_metadata_creators (address, metadata, creators, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address) DO NOTHING`
	if err := inserted(s.q.Exec(ctx, query, p.Address.Bytes(), p.Metadata.Bytes(), creators, p.CreatedAt)); err != nil {
		return fmt.Errorf("postgres: create primary creators %s: %w", p.Address.Hex(), err)
	}
	return nil
}

// Get returns the snapshot at addr.
func (s *PrimaryCreatorsStore) Get(ctx context.Context, addr common.Address) (domain.PrimaryMetadataCreators, error) {
	var p domain.PrimaryMetadataCreators
	var creators []byte
	err := s.q.QueryRow(ctx,
		`SELECT address, metadata, creators, created_at
		 FROM primary_metadata_creators WHERE address = $1`+s.lock,
		addr.Bytes(),
	).Scan(&p.Address, &p.Metadata, &creators, &p.CreatedAt)
	if err != nil {
		return domain.PrimaryMetadataCreators{}, fmt.Errorf("postgres: get primary creators %s: %w", addr.Hex(), mapErr(err))
	}
	if err := json.Unmarshal(creators, &p.Creators); err != nil {
		return domain.PrimaryMetadataCreators{}, fmt.Errorf("postgres: unmarshal creators %s: %w", addr.Hex(), err)
	}
	return p, nil
}

// PayoutTicketStore implements domain.PayoutTicketStore.
type PayoutTicketStore struct{ *shopTx }

const ticketCols = `address, market, funder, destination, amount::text, is_primary, created_at`

// Create inserts t. The (market, funder) uniqueness makes a second payout
// fail with domain.ErrAlreadyExists.
func (s *PayoutTicketStore) Create(ctx context.Context, t domain.PayoutTicket) error {
	const query = `
		INSERT INTO payout_tickets (` + ticketCols + `)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7)
		ON CONFLICT DO NOTHING`
	err := inserted(s.q.Exec(ctx, query,
		t.Address.Bytes(), t.Market.Bytes(), t.Funder.Bytes(), t.Destination.Bytes(),
		numText(t.Amount), t.Primary, t.CreatedAt,
	))
	if err != nil {
		return fmt.Errorf("postgres: create payout ticket %s: %w", t.Address.Hex(), err)
	}
	return nil
}

func scanTicket(row pgx.Row) (domain.PayoutTicket, error) {
	var t domain.PayoutTicket
	var amount string
	if err := row.Scan(&t.Address, &t.Market, &t.Funder, &t.Destination, &amount, &t.Primary, &t.CreatedAt); err != nil {
		return domain.PayoutTicket{}, mapErr(err)
	}
	var err error
	if t.Amount, err = parseNum(amount); err != nil {
		return domain.PayoutTicket{}, err
	}
	return t, nil
}

// Get returns the ticket at addr.
func (s *PayoutTicketStore) Get(ctx context.Context, addr common.Address) (domain.PayoutTicket, error) {
	t, err := scanTicket(s.q.QueryRow(ctx,
		`SELECT `+ticketCols+` FROM payout_tickets WHERE address = $1`+s.lock, addr.Bytes()))
	if err != nil {
		return domain.PayoutTicket{}, fmt.Errorf("postgres: get payout ticket %s: %w", addr.Hex(), err)
	}
	return t, nil
}

// ListByMarket returns the tickets of market in issue order.
func (s *PayoutTicketStore) ListByMarket(ctx context.Context, market common.Address) ([]domain.PayoutTicket, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+ticketCols+` FROM payout_tickets WHERE market = $1 ORDER BY created_at, address`,
		market.Bytes())
	if err != nil {
		return nil, fmt.Errorf("postgres: list payout tickets %s: %w", market.Hex(), mapErr(err))
	}
	defer rows.Close()

	var out []domain.PayoutTicket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan payout ticket: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list payout tickets rows: %w", err)
	}
	return out, nil
}
