package domain

import "time"

// Fill records one execution against an order.
type Fill struct {
	TradeID    string
	Quantity   int64
	Price      int64
	ExecutedAt time.Time
}

// Order represents a buy or sell instruction submitted by a participant.
// Identity fields are set once at submission; RemainingQuantity, Status,
// Fills, Price (for converted market remainders) and UpdatedAt mutate as
// the engine processes it.
type Order struct {
	OrderID           string
	SessionID         string
	ParticipantID     string
	ParticipantName   string
	Product           Product
	Side              Side
	Type              OrderType
	Quantity          int64 // original quantity, >= 1
	RemainingQuantity int64
	Price             int64 // > 0 for limit; 0 for market until a synthetic price is assigned
	Status            OrderStatus
	Fills             []Fill
	Seq               int64 // monotonic submission counter, tie-breaker for price-time priority
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ApplyFill appends a fill, decrements the remaining quantity, and
// recomputes the status. The caller guarantees f.Quantity <= RemainingQuantity.
func (o *Order) ApplyFill(f Fill) {
	o.Fills = append(o.Fills, f)
	o.RemainingQuantity -= f.Quantity
	if o.RemainingQuantity == 0 {
		o.Status = OrderStatusFilled
	} else {
		o.Status = OrderStatusPartial
	}
	o.UpdatedAt = f.ExecutedAt
}

// FilledQuantity returns the total quantity executed so far.
func (o *Order) FilledQuantity() int64 {
	var total int64
	for _, f := range o.Fills {
		total += f.Quantity
	}
	return total
}
