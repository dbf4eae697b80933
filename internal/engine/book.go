package engine

import (
	"github.com/google/btree"

	"github.com/openpit/exchange/internal/domain"
)

// bookEntry represents a single order resting on the book.
type bookEntry struct {
	Price   int64
	Seq     int64
	OrderID string
	Order   *domain.Order
}

// bidLess defines ordering for the bid side: price descending, then
// submission sequence ascending. Min() returns the best bid (highest
// price, earliest arrival).
func bidLess(a, b bookEntry) bool {
	if a.Price != b.Price {
		return a.Price > b.Price
	}
	return a.Seq < b.Seq
}

// askLess defines ordering for the ask side: price ascending, then
// submission sequence ascending. Min() returns the best ask (lowest
// price, earliest arrival).
func askLess(a, b bookEntry) bool {
	if a.Price != b.Price {
		return a.Price < b.Price
	}
	return a.Seq < b.Seq
}

// OrderSummary is the per-order view inside a depth level. Name is empty
// unless the session is configured to reveal participant names.
type OrderSummary struct {
	OrderID  string `json:"order_id"`
	Name     string `json:"name,omitempty"`
	Quantity int64  `json:"quantity"`
}

// PriceLevel aggregates the resting orders at one price.
type PriceLevel struct {
	Price         int64          `json:"price"`
	TotalQuantity int64          `json:"total_quantity"`
	OrderCount    int            `json:"order_count"`
	Orders        []OrderSummary `json:"orders,omitempty"`
}

// BookDepth is a point-in-time projection of one product's book: bids
// sorted by price descending, asks ascending.
type BookDepth struct {
	Product domain.Product `json:"product"`
	Bids    []PriceLevel   `json:"bids"`
	Asks    []PriceLevel   `json:"asks"`
}

// OrderBook maintains the bid and ask sides for a single product using
// B-trees with a secondary index for removal by order id. It holds only
// orders with status open or partial; the matcher removes an order the
// moment it turns filled or cancelled.
type OrderBook struct {
	product domain.Product
	bids    *btree.BTreeG[bookEntry]
	asks    *btree.BTreeG[bookEntry]
	index   map[string]bookEntry // order_id → entry
}

// NewOrderBook creates an order book for the given product.
func NewOrderBook(product domain.Product) *OrderBook {
	const degree = 32
	return &OrderBook{
		product: product,
		bids:    btree.NewG[bookEntry](degree, bidLess),
		asks:    btree.NewG[bookEntry](degree, askLess),
		index:   make(map[string]bookEntry),
	}
}

// Add inserts an order on its side of the book.
func (ob *OrderBook) Add(o *domain.Order) {
	entry := bookEntry{
		Price:   o.Price,
		Seq:     o.Seq,
		OrderID: o.OrderID,
		Order:   o,
	}
	if o.Side == domain.SideBuy {
		ob.bids.ReplaceOrInsert(entry)
	} else {
		ob.asks.ReplaceOrInsert(entry)
	}
	ob.index[o.OrderID] = entry
}

// Remove deletes an order from the book by order id, regardless of its
// status. It is a no-op for orders not on the book.
func (ob *OrderBook) Remove(orderID string) {
	entry, ok := ob.index[orderID]
	if !ok {
		return
	}
	delete(ob.index, orderID)
	if entry.Order.Side == domain.SideBuy {
		ob.bids.Delete(entry)
	} else {
		ob.asks.Delete(entry)
	}
}

// BestBid returns the highest-priority bid (highest price, earliest arrival).
func (ob *OrderBook) BestBid() (*domain.Order, bool) {
	entry, ok := ob.bids.Min()
	if !ok {
		return nil, false
	}
	return entry.Order, true
}

// BestAsk returns the highest-priority ask (lowest price, earliest arrival).
func (ob *OrderBook) BestAsk() (*domain.Order, bool) {
	entry, ok := ob.asks.Min()
	if !ok {
		return nil, false
	}
	return entry.Order, true
}

// WalkAsks iterates asks in priority order (lowest price first). The
// callback returns true to continue, false to stop. Used for market buy
// cost estimation.
func (ob *OrderBook) WalkAsks(fn func(*domain.Order) bool) {
	ob.asks.Ascend(func(entry bookEntry) bool {
		return fn(entry.Order)
	})
}

// Depth aggregates both sides by price level. When revealNames is true,
// each level carries per-order summaries with participant names; when
// false, the summaries omit the names.
func (ob *OrderBook) Depth(revealNames bool) BookDepth {
	return BookDepth{
		Product: ob.product,
		Bids:    levels(ob.bids, revealNames),
		Asks:    levels(ob.asks, revealNames),
	}
}

// levels iterates one side in priority order and aggregates entries into
// price levels.
func levels(tree *btree.BTreeG[bookEntry], revealNames bool) []PriceLevel {
	out := []PriceLevel{}
	tree.Ascend(func(entry bookEntry) bool {
		summary := OrderSummary{
			OrderID:  entry.OrderID,
			Quantity: entry.Order.RemainingQuantity,
		}
		if revealNames {
			summary.Name = entry.Order.ParticipantName
		}
		if n := len(out); n > 0 && out[n-1].Price == entry.Price {
			out[n-1].TotalQuantity += entry.Order.RemainingQuantity
			out[n-1].OrderCount++
			out[n-1].Orders = append(out[n-1].Orders, summary)
			return true
		}
		out = append(out, PriceLevel{
			Price:         entry.Price,
			TotalQuantity: entry.Order.RemainingQuantity,
			OrderCount:    1,
			Orders:        []OrderSummary{summary},
		})
		return true
	})
	return out
}

// SweepCancel marks every resting order cancelled and clears the book.
// It returns the swept orders so the caller can update open-order sets
// and emit records.
func (ob *OrderBook) SweepCancel() []*domain.Order {
	swept := make([]*domain.Order, 0, len(ob.index))
	for _, entry := range ob.index {
		entry.Order.Status = domain.OrderStatusCancelled
		swept = append(swept, entry.Order)
	}
	ob.bids.Clear(false)
	ob.asks.Clear(false)
	ob.index = make(map[string]bookEntry)
	return swept
}

// BidCount returns the number of individual bid orders on the book.
func (ob *OrderBook) BidCount() int {
	return ob.bids.Len()
}

// AskCount returns the number of individual ask orders on the book.
func (ob *OrderBook) AskCount() int {
	return ob.asks.Len()
}

// Contains reports whether the order id is resting on the book.
func (ob *OrderBook) Contains(orderID string) bool {
	_, ok := ob.index[orderID]
	return ok
}
