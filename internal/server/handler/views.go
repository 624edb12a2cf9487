package handler

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/editionshop/internal/domain"
	"github.com/alanyoungcy/editionshop/internal/service"
)

// JSON views of the shop records. Padded text is returned without its NUL
// tail.

type storeView struct {
	Address     common.Address `json:"address"`
	Admin       common.Address `json:"admin"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	CreatedAt   time.Time      `json:"created_at"`
}

func viewStore(s domain.Store) storeView {
	return storeView{
		Address:     s.Address,
		Admin:       s.Admin,
		Name:        domain.UnpadText(s.Name),
		Description: domain.UnpadText(s.Description),
		CreatedAt:   s.CreatedAt,
	}
}

type sellingResourceView struct {
	Address    common.Address `json:"address"`
	Store      common.Address `json:"store"`
	Owner      common.Address `json:"owner"`
	Resource   common.Address `json:"resource"`
	Vault      common.Address `json:"vault"`
	VaultOwner common.Address `json:"vault_owner"`
	Supply     uint64         `json:"supply"`
	MaxSupply  *uint64        `json:"max_supply"`
	State      string         `json:"state"`
}

func viewSellingResource(r domain.SellingResource) sellingResourceView {
	return sellingResourceView{
		Address:    r.Address,
		Store:      r.Store,
		Owner:      r.Owner,
		Resource:   r.Resource,
		Vault:      r.Vault,
		VaultOwner: r.VaultOwner,
		Supply:     r.Supply,
		MaxSupply:  r.MaxSupply,
		State:      string(r.State),
	}
}

type marketView struct {
	Address           common.Address `json:"address"`
	Store             common.Address `json:"store"`
	SellingResource   common.Address `json:"selling_resource"`
	TreasuryMint      common.Address `json:"treasury_mint"`
	TreasuryHolder    common.Address `json:"treasury_holder"`
	TreasuryOwner     common.Address `json:"treasury_owner"`
	Owner             common.Address `json:"owner"`
	Name              string         `json:"name"`
	Description       string         `json:"description"`
	Mutable           bool           `json:"mutable"`
	Price             uint64         `json:"price"`
	PiecesInOneWallet *uint64        `json:"pieces_in_one_wallet"`
	StartDate         time.Time      `json:"start_date"`
	EndDate           *time.Time     `json:"end_date"`
	State             string         `json:"state"`
	FundsCollected    uint64         `json:"funds_collected"`
}

func viewMarket(m domain.Market, now time.Time) marketView {
	return marketView{
		Address:           m.Address,
		Store:             m.Store,
		SellingResource:   m.SellingResource,
		TreasuryMint:      m.TreasuryMint,
		TreasuryHolder:    m.TreasuryHolder,
		TreasuryOwner:     m.TreasuryOwner,
		Owner:             m.Owner,
		Name:              domain.UnpadText(m.Name),
		Description:       domain.UnpadText(m.Description),
		Mutable:           m.Mutable,
		Price:             m.Price,
		PiecesInOneWallet: m.PiecesInOneWallet,
		StartDate:         m.StartDate,
		EndDate:           m.EndDate,
		State:             string(m.StateAt(now)),
		FundsCollected:    m.FundsCollected,
	}
}

type tradeHistoryView struct {
	Address       common.Address `json:"address"`
	Market        common.Address `json:"market"`
	Wallet        common.Address `json:"wallet"`
	AlreadyBought uint64         `json:"already_bought"`
}

type purchaseView struct {
	Market        common.Address `json:"market"`
	Buyer         common.Address `json:"buyer"`
	EditionMint   common.Address `json:"edition_mint"`
	EditionNumber uint64         `json:"edition_number"`
	TokenAccount  common.Address `json:"token_account"`
	Price         uint64         `json:"price"`
	Supply        uint64         `json:"supply"`
	AlreadyBought uint64         `json:"already_bought"`
}

func viewPurchase(p domain.Purchase) purchaseView {
	return purchaseView{
		Market:        p.Market,
		Buyer:         p.Buyer,
		EditionMint:   p.Edition.Mint,
		EditionNumber: p.Edition.Number,
		TokenAccount:  p.Edition.TokenAccount,
		Price:         p.Price,
		Supply:        p.Supply,
		AlreadyBought: p.AlreadyBought,
	}
}

type primaryCreatorsView struct {
	Address  common.Address   `json:"address"`
	Metadata common.Address   `json:"metadata"`
	Creators []domain.Creator `json:"creators"`
}

type payoutTicketView struct {
	Address     common.Address `json:"address"`
	Market      common.Address `json:"market"`
	Funder      common.Address `json:"funder"`
	Destination common.Address `json:"destination"`
	Amount      uint64         `json:"amount"`
	Primary     bool           `json:"primary"`
	CreatedAt   time.Time      `json:"created_at"`
}

func viewTicket(t domain.PayoutTicket) payoutTicketView {
	return payoutTicketView{
		Address:     t.Address,
		Market:      t.Market,
		Funder:      t.Funder,
		Destination: t.Destination,
		Amount:      t.Amount,
		Primary:     t.Primary,
		CreatedAt:   t.CreatedAt,
	}
}

type accountView struct {
	Address common.Address `json:"address"`
	Mint    common.Address `json:"mint"`
	Owner   common.Address `json:"owner"`
	Amount  uint64         `json:"amount"`
}

type metadataView struct {
	Address              common.Address   `json:"address"`
	Mint                 common.Address   `json:"mint"`
	UpdateAuthority      common.Address   `json:"update_authority"`
	Name                 string           `json:"name"`
	URI                  string           `json:"uri"`
	SellerFeeBasisPoints uint16           `json:"seller_fee_basis_points"`
	Creators             []domain.Creator `json:"creators"`
	PrimarySaleHappened  bool             `json:"primary_sale_happened"`
	IsMutable            bool             `json:"is_mutable"`
}

func viewMetadata(md domain.Metadata) metadataView {
	return metadataView{
		Address:              md.Address,
		Mint:                 md.Mint,
		UpdateAuthority:      md.UpdateAuthority,
		Name:                 md.Name,
		URI:                  md.URI,
		SellerFeeBasisPoints: md.SellerFeeBasisPoints,
		Creators:             md.Creators,
		PrimarySaleHappened:  md.PrimarySaleHappened,
		IsMutable:            md.IsMutable,
	}
}

type resourceView struct {
	Mint         common.Address `json:"mint"`
	TokenAccount common.Address `json:"token_account"`
	Supply       uint64         `json:"supply"`
	MaxSupply    *uint64        `json:"max_supply"`
	Metadata     metadataView   `json:"metadata"`
}

func viewResource(r service.Resource) resourceView {
	return resourceView{
		Mint:         r.Mint,
		TokenAccount: r.TokenAccount,
		Supply:       r.Master.Supply,
		MaxSupply:    r.Master.MaxSupply,
		Metadata:     viewMetadata(r.Metadata),
	}
}
