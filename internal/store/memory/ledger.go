package memory

import (
	"context"
	"fmt"
	"math/bits"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/editionshop/internal/domain"
)

type ledger struct{ t *tx }

func (l ledger) OpenAccount(_ context.Context, a domain.TokenAccount) error {
	return create(l.t, "token_account", a.Address, a, accountsOf)
}

func (l ledger) Account(_ context.Context, addr common.Address) (domain.TokenAccount, error) {
	return get(l.t, "token_account", addr, accountsOf)
}

func (l ledger) Transfer(_ context.Context, from, to common.Address, amount uint64) error {
	src, err := get(l.t, "token_account", from, accountsOf)
	if err != nil {
		return err
	}
	dst, err := get(l.t, "token_account", to, accountsOf)
	if err != nil {
		return err
	}
	if src.Mint != dst.Mint {
		return fmt.Errorf("memory: transfer %s -> %s: %w", from.Hex(), to.Hex(), domain.ErrMintMismatch)
	}
	if src.Amount < amount {
		return fmt.Errorf("memory: transfer from %s: %w", from.Hex(), domain.ErrInsufficientFunds)
	}
	if from == to {
		return nil
	}
	sum, carry := bits.Add64(dst.Amount, amount, 0)
	if carry != 0 {
		return fmt.Errorf("memory: transfer to %s: %w", to.Hex(), domain.ErrMathOverflow)
	}
	src.Amount -= amount
	dst.Amount = sum
	if err := l.t.put(recordKey{"token_account", from}, src); err != nil {
		return err
	}
	return l.t.put(recordKey{"token_account", to}, dst)
}

func (l ledger) Deposit(_ context.Context, to common.Address, amount uint64) error {
	dst, err := get(l.t, "token_account", to, accountsOf)
	if err != nil {
		return err
	}
	sum, carry := bits.Add64(dst.Amount, amount, 0)
	if carry != 0 {
		return fmt.Errorf("memory: deposit to %s: %w", to.Hex(), domain.ErrMathOverflow)
	}
	dst.Amount = sum
	return l.t.put(recordKey{"token_account", to}, dst)
}

func (l ledger) CreateMaster(_ context.Context, e domain.MasterEdition, md domain.Metadata) error {
	if err := create(l.t, "master_edition", e.Mint, e, mastersOf); err != nil {
		return err
	}
	md.Creators = append([]domain.Creator(nil), md.Creators...)
	return create(l.t, "metadata", md.Mint, md, metadataOf)
}

func (l ledger) MasterEdition(_ context.Context, mint common.Address) (domain.MasterEdition, error) {
	return get(l.t, "master_edition", mint, mastersOf)
}

func (l ledger) Metadata(_ context.Context, mint common.Address) (domain.Metadata, error) {
	return get(l.t, "metadata", mint, metadataOf)
}

func (l ledger) UpdateMetadata(_ context.Context, md domain.Metadata) error {
	md.Creators = append([]domain.Creator(nil), md.Creators...)
	return update(l.t, "metadata", md.Mint, md, metadataOf)
}

func (l ledger) MintEdition(_ context.Context, e domain.Edition) error {
	master, err := get(l.t, "master_edition", e.Parent, mastersOf)
	if err != nil {
		return err
	}
	if left := master.Remaining(); left != nil && *left == 0 {
		return fmt.Errorf("memory: mint edition of %s: %w", e.Parent.Hex(), domain.ErrSupplyIsGtThanMaxSupply)
	}
	if err := create(l.t, "edition", e.Mint, e, editionsOf); err != nil {
		return err
	}
	if err := create(l.t, "token_account", e.TokenAccount, domain.TokenAccount{
		Address: e.TokenAccount,
		Mint:    e.Mint,
		Owner:   e.Owner,
		Amount:  1,
	}, accountsOf); err != nil {
		return err
	}
	master.Supply++
	return l.t.put(recordKey{"master_edition", e.Parent}, master)
}
