package domain

import "time"

// Trade represents a matched execution between a buy and a sell order.
// Trades are immutable once created.
type Trade struct {
	TradeID     string
	SessionID   string
	BuyOrderID  string
	SellOrderID string
	BuyerID     string
	SellerID    string
	Product     Product
	Quantity    int64
	Price       int64 // execution price, inherited from the resting order
	Value       int64 // Quantity × Price
	Seq         int64 // monotonic execution counter, unique per session
	ExecutedAt  time.Time // strictly increasing across executions
}
