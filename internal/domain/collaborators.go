package domain

// MarketData supplies already-fetched market inputs to the automation cycle.
// The engine performs no network or storage I/O of its own; implementations
// live with the caller (exchange client, cached feed, test double).
type MarketData interface {
	// CurrentPrice returns the latest price for an asset.
	CurrentPrice(asset string) (float64, error)

	// HistoricalCloses returns up to the last n daily closing prices for an
	// asset, oldest first. Implementations may return fewer (or none) when
	// history is unavailable.
	HistoricalCloses(asset string, n int) ([]float64, error)

	// PriceAt returns the price of an asset on a given date (Unix seconds).
	// Used for the DCA lump-sum counterfactual.
	PriceAt(asset string, date int64) (float64, error)
}

// PortfolioSource reports what the portfolio currently holds and what it
// should hold. Like MarketData it is caller-owned; the engine never talks
// to an exchange or broker directly.
type PortfolioSource interface {
	// Holdings returns the current holdings in units.
	Holdings() ([]Holding, error)

	// TargetAllocation returns the desired asset weights.
	TargetAllocation() (AllocationMap, error)
}

// Execution consumes the order intents the engine computes. Implementations
// are responsible for actually moving funds; the engine only returns data
// structures describing what should happen.
type Execution interface {
	// SubmitRebalanceOrder forwards one rebalance order intent.
	SubmitRebalanceOrder(asset string, side OrderSide, amountUSD float64, priority int) error

	// SubmitPurchase forwards one executed DCA purchase for settlement.
	SubmitPurchase(event PurchaseEvent) error

	// SubmitStopExit forwards a triggered stop order for closing.
	SubmitStopExit(orderID, asset, reason string, amount, triggerPrice float64) error
}
