package service

// Shop groups the services built over one Core.
type Shop struct {
	Core      *Core
	Stores    *StoreService
	Resources *ResourceService
	Markets   *MarketService
	Trades    *TradeService
	Payouts   *PayoutService
	Tokens    *TokenService
}

// NewShop builds every service over core.
func NewShop(core *Core) *Shop {
	return &Shop{
		Core:      core,
		Stores:    NewStoreService(core),
		Resources: NewResourceService(core),
		Markets:   NewMarketService(core),
		Trades:    NewTradeService(core),
		Payouts:   NewPayoutService(core),
		Tokens:    NewTokenService(core),
	}
}
