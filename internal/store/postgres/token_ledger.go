package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"math/bits"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/editionshop/internal/domain"
)

// TokenLedger implements domain.TokenLedger on the token_accounts,
// master_editions, metadata and editions tables.
type TokenLedger struct{ *shopTx }

// OpenAccount inserts a.
func (l *TokenLedger) OpenAccount(ctx context.Context, a domain.TokenAccount) error {
	const query = `
		INSERT INTO token_accounts (address, mint, owner, amount)
		VALUES ($1, $2, $3, $4::numeric)
		ON CONFLICT (address) DO NOTHING`
	err := inserted(l.q.Exec(ctx, query, a.Address.Bytes(), a.Mint.Bytes(), a.Owner.Bytes(), numText(a.Amount)))
	if err != nil {
		return fmt.Errorf("postgres: open account %s: %w", a.Address.Hex(), err)
	}
	return nil
}

// Account returns the token account at addr.
func (l *TokenLedger) Account(ctx context.Context, addr common.Address) (domain.TokenAccount, error) {
	var a domain.TokenAccount
	var amount string
	err := l.q.QueryRow(ctx,
		`SELECT address, mint, owner, amount::text FROM token_accounts WHERE address = $1`+l.lock,
		addr.Bytes(),
	).Scan(&a.Address, &a.Mint, &a.Owner, &amount)
	if err != nil {
		return domain.TokenAccount{}, fmt.Errorf("postgres: get account %s: %w", addr.Hex(), mapErr(err))
	}
	if a.Amount, err = parseNum(amount); err != nil {
		return domain.TokenAccount{}, err
	}
	return a, nil
}

func (l *TokenLedger) setAmount(ctx context.Context, addr common.Address, amount uint64) error {
	err := updated(l.q.Exec(ctx,
		`UPDATE token_accounts SET amount = $2::numeric WHERE address = $1`,
		addr.Bytes(), numText(amount)))
	if err != nil {
		return fmt.Errorf("postgres: set amount %s: %w", addr.Hex(), err)
	}
	return nil
}

// Transfer moves amount from one account to another of the same mint.
func (l *TokenLedger) Transfer(ctx context.Context, from, to common.Address, amount uint64) error {
	src, err := l.Account(ctx, from)
	if err != nil {
		return err
	}
	dst, err := l.Account(ctx, to)
	if err != nil {
		return err
	}
	if src.Mint != dst.Mint {
		return fmt.Errorf("postgres: transfer %s -> %s: %w", from.Hex(), to.Hex(), domain.ErrMintMismatch)
	}
	if src.Amount < amount {
		return fmt.Errorf("postgres: transfer from %s: %w", from.Hex(), domain.ErrInsufficientFunds)
	}
	if from == to {
		return nil
	}
	sum, carry := bits.Add64(dst.Amount, amount, 0)
	if carry != 0 {
		return fmt.Errorf("postgres: transfer to %s: %w", to.Hex(), domain.ErrMathOverflow)
	}
	if err := l.setAmount(ctx, from, src.Amount-amount); err != nil {
		return err
	}
	return l.setAmount(ctx, to, sum)
}

// Deposit credits amount to an existing account.
func (l *TokenLedger) Deposit(ctx context.Context, to common.Address, amount uint64) error {
	dst, err := l.Account(ctx, to)
	if err != nil {
		return err
	}
	sum, carry := bits.Add64(dst.Amount, amount, 0)
	if carry != 0 {
		return fmt.Errorf("postgres: deposit to %s: %w", to.Hex(), domain.ErrMathOverflow)
	}
	return l.setAmount(ctx, to, sum)
}

// CreateMaster inserts the master edition and its metadata.
func (l *TokenLedger) CreateMaster(ctx context.Context, e domain.MasterEdition, md domain.Metadata) error {
	err := inserted(l.q.Exec(ctx, `
		INSERT INTO master_editions (mint, supply, max_supply)
		VALUES ($1, $2::numeric, $3::numeric)
		ON CONFLICT (mint) DO NOTHING`,
		e.Mint.Bytes(), numText(e.Supply), optNumText(e.MaxSupply)))
	if err != nil {
		return fmt.Errorf("postgres: create master %s: %w", e.Mint.Hex(), err)
	}

	creators, err := json.Marshal(md.Creators)
	if err != nil {
		return fmt.Errorf("postgres: marshal metadata creators: %w", err)
	}
	err = inserted(l.q.Exec(ctx, `
		INSERT INTO metadata (
			mint, address, update_authority, name, uri,
			seller_fee_basis_points, creators, primary_sale_happened, is_mutable
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT DO NOTHING`,
		md.Mint.Bytes(), md.Address.Bytes(), md.UpdateAuthority.Bytes(), []byte(md.Name), md.URI,
		int32(md.SellerFeeBasisPoints), creators, md.PrimarySaleHappened, md.IsMutable))
	if err != nil {
		return fmt.Errorf("postgres: create metadata %s: %w", md.Mint.Hex(), err)
	}
	return nil
}

// MasterEdition returns the master edition of mint.
func (l *TokenLedger) MasterEdition(ctx context.Context, mint common.Address) (domain.MasterEdition, error) {
	var e domain.MasterEdition
	var supply string
	var maxSupply *string
	err := l.q.QueryRow(ctx,
		`SELECT mint, supply::text, max_supply::text FROM master_editions WHERE mint = $1`+l.lock,
		mint.Bytes(),
	).Scan(&e.Mint, &supply, &maxSupply)
	if err != nil {
		return domain.MasterEdition{}, fmt.Errorf("postgres: get master %s: %w", mint.Hex(), mapErr(err))
	}
	if e.Supply, err = parseNum(supply); err != nil {
		return domain.MasterEdition{}, err
	}
	if e.MaxSupply, err = parseOptNum(maxSupply); err != nil {
		return domain.MasterEdition{}, err
	}
	return e, nil
}

// Metadata returns the metadata attached to mint.
func (l *TokenLedger) Metadata(ctx context.Context, mint common.Address) (domain.Metadata, error) {
	var md domain.Metadata
	var name, creators []byte
	var fee int32
	err := l.q.QueryRow(ctx, `
		SELECT mint, address, update_authority, name, uri,
		       seller_fee_basis_points, creators, primary_sale_happened, is_mutable
		FROM metadata WHERE mint = $1`+l.lock,
		mint.Bytes(),
	).Scan(&md.Mint, &md.Address, &md.UpdateAuthority, &name, &md.URI,
		&fee, &creators, &md.PrimarySaleHappened, &md.IsMutable)
	if err != nil {
		return domain.Metadata{}, fmt.Errorf("postgres: get metadata %s: %w", mint.Hex(), mapErr(err))
	}
	md.Name = string(name)
	md.SellerFeeBasisPoints = uint16(fee)
	if err := json.Unmarshal(creators, &md.Creators); err != nil {
		return domain.Metadata{}, fmt.Errorf("postgres: unmarshal metadata creators %s: %w", mint.Hex(), err)
	}
	return md, nil
}

// UpdateMetadata overwrites the mutable metadata columns.
func (l *TokenLedger) UpdateMetadata(ctx context.Context, md domain.Metadata) error {
	creators, err := json.Marshal(md.Creators)
	if err != nil {
		return fmt.Errorf("postgres: marshal metadata creators: %w", err)
	}
	err = updated(l.q.Exec(ctx, `
		UPDATE metadata SET
			update_authority        = $2,
			name                    = $3,
			uri                     = $4,
			seller_fee_basis_points = $5,
			creators                = $6,
			primary_sale_happened   = $7,
			is_mutable              = $8
		WHERE mint = $1`,
		md.Mint.Bytes(), md.UpdateAuthority.Bytes(), []byte(md.Name), md.URI,
		int32(md.SellerFeeBasisPoints), creators, md.PrimarySaleHappened, md.IsMutable))
	if err != nil {
		return fmt.Errorf("postgres: update metadata %s: %w", md.Mint.Hex(), err)
	}
	return nil
}

// MintEdition prints e, opens its token account holding one unit and
// advances the master supply.
func (l *TokenLedger) MintEdition(ctx context.Context, e domain.Edition) error {
	master, err := l.MasterEdition(ctx, e.Parent)
	if err != nil {
		return err
	}
	if left := master.Remaining(); left != nil && *left == 0 {
		return fmt.Errorf("postgres: mint edition of %s: %w", e.Parent.Hex(), domain.ErrSupplyIsGtThanMaxSupply)
	}

	err = inserted(l.q.Exec(ctx, `
		INSERT INTO editions (mint, parent, number, token_account, owner, created_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6)
		ON CONFLICT DO NOTHING`,
		e.Mint.Bytes(), e.Parent.Bytes(), numText(e.Number), e.TokenAccount.Bytes(), e.Owner.Bytes(), e.CreatedAt))
	if err != nil {
		return fmt.Errorf("postgres: mint edition %s: %w", e.Mint.Hex(), err)
	}
	if err := l.OpenAccount(ctx, domain.TokenAccount{
		Address: e.TokenAccount,
		Mint:    e.Mint,
		Owner:   e.Owner,
		Amount:  1,
	}); err != nil {
		return err
	}

	err = updated(l.q.Exec(ctx,
		`UPDATE master_editions SET supply = $2::numeric WHERE mint = $1`,
		e.Parent.Bytes(), numText(master.Supply+1)))
	if err != nil {
		return fmt.Errorf("postgres: advance master %s: %w", e.Parent.Hex(), err)
	}
	return nil
}

var _ domain.TokenLedger = (*TokenLedger)(nil)
