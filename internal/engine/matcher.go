package engine

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/openpit/exchange/internal/domain"
	"github.com/openpit/exchange/internal/ledger"
	"github.com/openpit/exchange/internal/store"
)

const (
	// MarketBuyCeiling is the synthetic price assigned to the unfilled
	// remainder of a market buy when it converts to an aggressive resting
	// limit. It also inflates the cost estimate for quantity not covered
	// by visible liquidity, so clearly unaffordable market buys are
	// rejected at submission.
	MarketBuyCeiling int64 = 1_000_000_000

	// MarketSellFloor is the synthetic price for an unfilled market sell
	// remainder: the minimal positive price, so it crosses any future bid.
	MarketSellFloor int64 = 1

	// MaxLimitPrice caps client-supplied limit prices. Together with the
	// order size bound in the rules it keeps every qty*price product far
	// below the int64 overflow point, and keeps real limits strictly below
	// the synthetic market extremes.
	MaxLimitPrice int64 = 1_000_000
)

// Matcher crosses incoming orders against the per-product books under
// price-time priority and settles the resulting trades against the ledger.
// It is not safe for concurrent use; the session manager serializes every
// call, so a submission runs to completion — match loop, settlement, and
// record enqueue — before the next command is handled.
type Matcher struct {
	rules    domain.GameRules
	books    map[domain.Product]*OrderBook
	ledger   *ledger.Ledger
	orders   *store.OrderStore
	trades   *store.TradeStore
	recorder store.Recorder
	logger   *slog.Logger

	seq         int64 // monotonic counter: order priority and trade ordering
	lastTradeAt time.Time
	entropy     *ulid.MonotonicEntropy
	now         func() time.Time
}

// NewMatcher creates a Matcher with one empty book per configured product.
func NewMatcher(
	rules domain.GameRules,
	l *ledger.Ledger,
	orders *store.OrderStore,
	trades *store.TradeStore,
	recorder store.Recorder,
	logger *slog.Logger,
) *Matcher {
	books := make(map[domain.Product]*OrderBook, len(rules.Products))
	for _, p := range rules.Products {
		books[p] = NewOrderBook(p)
	}
	return &Matcher{
		rules:    rules,
		books:    books,
		ledger:   l,
		orders:   orders,
		trades:   trades,
		recorder: recorder,
		logger:   logger,
		entropy:  ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		now:      time.Now,
	}
}

// Book returns the order book for a product. It panics for products
// outside the configured set; callers validate first.
func (m *Matcher) Book(product domain.Product) *OrderBook {
	book, ok := m.books[product]
	if !ok {
		panic(fmt.Sprintf("engine: no book for product %s", product))
	}
	return book
}

// Depths returns a point-in-time depth projection of every book, in
// configured product order. Name visibility follows the session rules.
func (m *Matcher) Depths() []BookDepth {
	out := make([]BookDepth, 0, len(m.rules.Products))
	for _, p := range m.rules.Products {
		out = append(out, m.books[p].Depth(m.rules.ShowOrderNames))
	}
	return out
}

// Submit validates an order against the rules, ledger and book, runs the
// matching loop, settles any trades, and rests the remainder. The returned
// trades are in execution order. Validation failures return a nil order:
// nothing was created.
func (m *Matcher) Submit(
	sessionID string,
	p *domain.Participant,
	product domain.Product,
	side domain.Side,
	typ domain.OrderType,
	qty int64,
	price *int64,
) (*domain.Order, []*domain.Trade, error) {
	// Validation chain: first failure short-circuits.
	if !m.rules.HasProduct(product) {
		return nil, nil, &domain.ValidationError{
			Message: fmt.Sprintf("unknown product %q", product),
		}
	}
	if qty < m.rules.MinOrderSize || qty > m.rules.MaxOrderSize {
		return nil, nil, &domain.ValidationError{
			Message: fmt.Sprintf("quantity must be between %d and %d", m.rules.MinOrderSize, m.rules.MaxOrderSize),
		}
	}
	var limitPrice int64
	switch typ {
	case domain.OrderTypeLimit:
		if price == nil || *price <= 0 {
			return nil, nil, &domain.ValidationError{
				Message: "price must be a positive integer for limit orders",
			}
		}
		if *price > MaxLimitPrice {
			return nil, nil, &domain.ValidationError{
				Message: fmt.Sprintf("price must not exceed %d", MaxLimitPrice),
			}
		}
		limitPrice = *price
	case domain.OrderTypeMarket:
		if price != nil {
			return nil, nil, &domain.ValidationError{
				Message: "market orders must not include a price",
			}
		}
	default:
		return nil, nil, &domain.ValidationError{
			Message: fmt.Sprintf("unknown order type %q, must be one of: limit, market", typ),
		}
	}

	book := m.books[product]

	// Pre-reservation check. Resting orders hold no escrow, so this is a
	// point-in-time gate; settlement re-checks at each execution.
	if side == domain.SideBuy {
		required := qty * limitPrice
		if typ == domain.OrderTypeMarket {
			required = m.EstimateMarketCost(product, qty)
		}
		if p.Cash < required {
			return nil, nil, domain.ErrInsufficientCash
		}
	} else {
		if p.Inventory[product] < qty {
			return nil, nil, domain.ErrInsufficientInventory
		}
	}

	now := m.now()
	m.seq++
	order := &domain.Order{
		OrderID:           uuid.New().String(),
		SessionID:         sessionID,
		ParticipantID:     p.ParticipantID,
		ParticipantName:   p.Name,
		Product:           product,
		Side:              side,
		Type:              typ,
		Quantity:          qty,
		RemainingQuantity: qty,
		Price:             limitPrice, // 0 for market until remainder conversion
		Status:            domain.OrderStatusOpen,
		Seq:               m.seq,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	m.orders.Create(order)

	trades := m.matchLoop(order, book)

	switch {
	case order.RemainingQuantity == 0:
		// Fully filled during the loop; settlement already marked it.
	case typ == domain.OrderTypeLimit:
		book.Add(order)
		m.ledger.AddOpenOrder(p.ParticipantID, order.OrderID)
	default:
		// Market remainder converts to an aggressive resting limit at a
		// synthetic extreme, so the book keeps its all-limits invariant
		// while late liquidity can still fill it.
		if side == domain.SideBuy {
			order.Price = MarketBuyCeiling
		} else {
			order.Price = MarketSellFloor
		}
		book.Add(order)
		m.ledger.AddOpenOrder(p.ParticipantID, order.OrderID)
	}

	m.recorder.Record(store.RecordKindOrder, store.NewOrderRecord(order))
	return order, trades, nil
}

// matchLoop crosses the incoming order against the opposing side of the
// book until it is filled, the book is exhausted, prices stop crossing,
// or a halt condition (self-trade, settlement re-check failure) fires.
func (m *Matcher) matchLoop(incoming *domain.Order, book *OrderBook) []*domain.Trade {
	var trades []*domain.Trade
	for incoming.RemainingQuantity > 0 {
		var resting *domain.Order
		var found bool
		if incoming.Side == domain.SideBuy {
			resting, found = book.BestAsk()
		} else {
			resting, found = book.BestBid()
		}
		if !found {
			break
		}

		// Self-trade prevention: halt matching for this submission rather
		// than skipping to the next level. The remainder rests.
		if resting.ParticipantID == incoming.ParticipantID {
			break
		}

		if incoming.Type == domain.OrderTypeLimit {
			if incoming.Side == domain.SideBuy && incoming.Price < resting.Price {
				break
			}
			if incoming.Side == domain.SideSell && incoming.Price > resting.Price {
				break
			}
		}

		trade, ok := m.executeTrade(incoming, resting, book)
		if !ok {
			break
		}
		trades = append(trades, trade)
	}
	return trades
}

// executeTrade settles one match between the incoming and resting orders.
// Trades execute at the resting (maker) price. Resources are re-checked
// here; a failure aborts this single trade and halts the loop, since it
// indicates an earlier accounting bug rather than a recoverable state.
func (m *Matcher) executeTrade(incoming, resting *domain.Order, book *OrderBook) (*domain.Trade, bool) {
	qty := min(incoming.RemainingQuantity, resting.RemainingQuantity)
	price := resting.Price
	value := qty * price

	buy, sell := incoming, resting
	if incoming.Side == domain.SideSell {
		buy, sell = resting, incoming
	}

	// Execution-time re-check, applied as debit-or-abort with unwind so
	// settlement is atomic over the ledger.
	if err := m.ledger.DebitCash(buy.ParticipantID, value); err != nil {
		m.logger.Error("settlement aborted, buyer short of cash",
			slog.String("buy_order", buy.OrderID),
			slog.String("sell_order", sell.OrderID),
			slog.Int64("value", value),
		)
		return nil, false
	}
	if err := m.ledger.DebitInventory(sell.ParticipantID, incoming.Product, qty); err != nil {
		m.ledger.CreditCash(buy.ParticipantID, value)
		m.logger.Error("settlement aborted, seller short of inventory",
			slog.String("buy_order", buy.OrderID),
			slog.String("sell_order", sell.OrderID),
			slog.Int64("quantity", qty),
		)
		return nil, false
	}
	m.ledger.CreditCash(sell.ParticipantID, value)
	m.ledger.CreditInventory(buy.ParticipantID, incoming.Product, qty)

	// Trade timestamps are strictly increasing. Consecutive executions in
	// one matching loop can observe the same wall clock, so equal reads get
	// a nanosecond bump past the previous trade.
	now := m.now()
	if !now.After(m.lastTradeAt) {
		now = m.lastTradeAt.Add(time.Nanosecond)
	}
	m.lastTradeAt = now
	m.seq++
	trade := &domain.Trade{
		TradeID:     ulid.MustNew(ulid.Timestamp(now), m.entropy).String(),
		SessionID:   incoming.SessionID,
		BuyOrderID:  buy.OrderID,
		SellOrderID: sell.OrderID,
		BuyerID:     buy.ParticipantID,
		SellerID:    sell.ParticipantID,
		Product:     incoming.Product,
		Quantity:    qty,
		Price:       price,
		Value:       value,
		Seq:         m.seq,
		ExecutedAt:  now,
	}

	fill := domain.Fill{TradeID: trade.TradeID, Quantity: qty, Price: price, ExecutedAt: now}
	incoming.ApplyFill(fill)
	resting.ApplyFill(fill)

	m.ledger.RecordTrade(buy.ParticipantID, trade.TradeID)
	m.ledger.RecordTrade(sell.ParticipantID, trade.TradeID)

	if resting.RemainingQuantity == 0 {
		book.Remove(resting.OrderID)
		m.ledger.RemoveOpenOrder(resting.ParticipantID, resting.OrderID)
		m.recorder.Record(store.RecordKindOrder, store.NewOrderRecord(resting))
	}

	m.trades.Append(trade)
	m.recorder.Record(store.RecordKindTrade, store.NewTradeRecord(trade))
	return trade, true
}

// EstimateMarketCost walks the ask queue in price-time order, pricing the
// requested quantity against visible liquidity. Quantity beyond the book
// is priced at MarketBuyCeiling per unit, a deliberately pessimistic
// estimate.
func (m *Matcher) EstimateMarketCost(product domain.Product, qty int64) int64 {
	remaining := qty
	var cost int64
	m.books[product].WalkAsks(func(o *domain.Order) bool {
		if remaining <= 0 {
			return false
		}
		take := min(remaining, o.RemainingQuantity)
		cost += take * o.Price
		remaining -= take
		return remaining > 0
	})
	if remaining > 0 {
		cost += remaining * MarketBuyCeiling
	}
	return cost
}

// Cancel cancels a resting order owned by pid. Resting orders hold no
// escrow, so cancellation has no balance effect.
func (m *Matcher) Cancel(orderID, pid string) (*domain.Order, error) {
	order, err := m.orders.Get(orderID)
	if err != nil {
		return nil, err
	}
	if order.ParticipantID != pid {
		return nil, domain.ErrNotOrderOwner
	}
	if order.Status.Terminal() {
		return nil, domain.ErrOrderAlreadyTerminal
	}
	m.cancelOrder(order)
	return order, nil
}

// SweepParticipant cancels every resting order owned by pid. Used on
// disconnect. It returns the swept orders.
func (m *Matcher) SweepParticipant(pid string) []*domain.Order {
	p, err := m.ledger.Get(pid)
	if err != nil {
		return nil
	}
	ids := make([]string, 0, len(p.OpenOrders))
	for id := range p.OpenOrders {
		ids = append(ids, id)
	}
	swept := make([]*domain.Order, 0, len(ids))
	for _, id := range ids {
		order, err := m.orders.Get(id)
		if err != nil || order.Status.Terminal() {
			continue
		}
		m.cancelOrder(order)
		swept = append(swept, order)
	}
	return swept
}

// SweepSession cancels every resting order on every book. Used at game
// end. It returns the swept orders.
func (m *Matcher) SweepSession() []*domain.Order {
	var swept []*domain.Order
	now := m.now()
	for _, p := range m.rules.Products {
		for _, order := range m.books[p].SweepCancel() {
			order.UpdatedAt = now
			m.ledger.RemoveOpenOrder(order.ParticipantID, order.OrderID)
			m.recorder.Record(store.RecordKindOrder, store.NewOrderRecord(order))
			swept = append(swept, order)
		}
	}
	return swept
}

// Reset clears all books for a new session.
func (m *Matcher) Reset() {
	for _, p := range m.rules.Products {
		m.books[p] = NewOrderBook(p)
	}
}

func (m *Matcher) cancelOrder(order *domain.Order) {
	order.Status = domain.OrderStatusCancelled
	order.UpdatedAt = m.now()
	m.books[order.Product].Remove(order.OrderID)
	m.ledger.RemoveOpenOrder(order.ParticipantID, order.OrderID)
	m.recorder.Record(store.RecordKindOrder, store.NewOrderRecord(order))
}
