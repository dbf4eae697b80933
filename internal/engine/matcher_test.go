package engine

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/openpit/exchange/internal/domain"
	"github.com/openpit/exchange/internal/ledger"
	"github.com/openpit/exchange/internal/store"
)

var baseTime = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func newTestMatcher() (*Matcher, *ledger.Ledger, *store.OrderStore, *store.TradeStore) {
	l := ledger.New()
	orders := store.NewOrderStore()
	trades := store.NewTradeStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := NewMatcher(domain.DefaultRules(), l, orders, trades, store.NewMemoryRecorder(), logger)
	return m, l, orders, trades
}

func admitPlayer(l *ledger.Ledger, id string, cash int64, inv map[domain.Product]int64) *domain.Participant {
	p := domain.NewParticipant(id, id, cash, inv, baseTime)
	l.Admit(p)
	return p
}

func i64(v int64) *int64 { return &v }

func TestSubmit_SimpleCrossAtMakerPrice(t *testing.T) {
	m, l, _, trades := newTestMatcher()
	seller := admitPlayer(l, "seller", 100, map[domain.Product]int64{"bread": 10})
	buyer := admitPlayer(l, "buyer", 100, nil)

	// Seller rests an ask at 7.
	askOrder, askTrades, err := m.Submit("s1", seller, "bread", domain.SideSell, domain.OrderTypeLimit, 5, i64(7))
	if err != nil {
		t.Fatalf("failed to rest ask: %v", err)
	}
	if len(askTrades) != 0 {
		t.Fatalf("expected no trades for resting ask, got %d", len(askTrades))
	}

	// Buyer crosses at 9; the trade executes at the resting price 7.
	bidOrder, bidTrades, err := m.Submit("s1", buyer, "bread", domain.SideBuy, domain.OrderTypeLimit, 5, i64(9))
	if err != nil {
		t.Fatalf("failed to submit bid: %v", err)
	}
	if len(bidTrades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(bidTrades))
	}

	trade := bidTrades[0]
	if trade.Price != 7 {
		t.Errorf("expected execution at maker price 7, got %d", trade.Price)
	}
	if trade.Quantity != 5 || trade.Value != 35 {
		t.Errorf("unexpected trade: qty=%d value=%d", trade.Quantity, trade.Value)
	}
	if trade.BuyerID != "buyer" || trade.SellerID != "seller" {
		t.Errorf("unexpected counterparties: %s / %s", trade.BuyerID, trade.SellerID)
	}

	if buyer.Cash != 65 || buyer.Inventory["bread"] != 5 {
		t.Errorf("buyer not settled: cash=%d bread=%d", buyer.Cash, buyer.Inventory["bread"])
	}
	if seller.Cash != 135 || seller.Inventory["bread"] != 5 {
		t.Errorf("seller not settled: cash=%d bread=%d", seller.Cash, seller.Inventory["bread"])
	}

	if askOrder.Status != domain.OrderStatusFilled || bidOrder.Status != domain.OrderStatusFilled {
		t.Errorf("expected both orders filled, got %s / %s", askOrder.Status, bidOrder.Status)
	}
	if m.Book("bread").AskCount() != 0 || m.Book("bread").BidCount() != 0 {
		t.Error("expected empty book after full cross")
	}
	if len(seller.OpenOrders) != 0 {
		t.Errorf("expected seller's open-order set emptied, got %d", len(seller.OpenOrders))
	}
	if trades.Len() != 1 {
		t.Errorf("expected 1 trade in store, got %d", trades.Len())
	}
}

func TestSubmit_PriceTimePriority(t *testing.T) {
	m, l, _, _ := newTestMatcher()
	s1 := admitPlayer(l, "s1", 0, map[domain.Product]int64{"bread": 10})
	s2 := admitPlayer(l, "s2", 0, map[domain.Product]int64{"bread": 10})
	buyer := admitPlayer(l, "buyer", 100, nil)

	first, _, err := m.Submit("sess", s1, "bread", domain.SideSell, domain.OrderTypeLimit, 3, i64(7))
	if err != nil {
		t.Fatalf("failed to rest first ask: %v", err)
	}
	second, _, err := m.Submit("sess", s2, "bread", domain.SideSell, domain.OrderTypeLimit, 4, i64(7))
	if err != nil {
		t.Fatalf("failed to rest second ask: %v", err)
	}

	_, trades, err := m.Submit("sess", buyer, "bread", domain.SideBuy, domain.OrderTypeLimit, 5, i64(7))
	if err != nil {
		t.Fatalf("failed to submit bid: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}

	// Earlier arrival fills first and completely.
	if trades[0].SellOrderID != first.OrderID || trades[0].Quantity != 3 {
		t.Errorf("unexpected first trade: %+v", trades[0])
	}
	if trades[1].SellOrderID != second.OrderID || trades[1].Quantity != 2 {
		t.Errorf("unexpected second trade: %+v", trades[1])
	}
	if first.Status != domain.OrderStatusFilled {
		t.Errorf("expected first ask filled, got %s", first.Status)
	}
	if second.Status != domain.OrderStatusPartial || second.RemainingQuantity != 2 {
		t.Errorf("expected second ask partial with 2 left, got %s/%d", second.Status, second.RemainingQuantity)
	}
}

func TestSubmit_IncomingWalksLevels(t *testing.T) {
	m, l, _, _ := newTestMatcher()
	s1 := admitPlayer(l, "s1", 0, map[domain.Product]int64{"bread": 10})
	s2 := admitPlayer(l, "s2", 0, map[domain.Product]int64{"bread": 10})
	buyer := admitPlayer(l, "buyer", 100, nil)

	if _, _, err := m.Submit("sess", s1, "bread", domain.SideSell, domain.OrderTypeLimit, 2, i64(5)); err != nil {
		t.Fatalf("failed to rest ask: %v", err)
	}
	if _, _, err := m.Submit("sess", s2, "bread", domain.SideSell, domain.OrderTypeLimit, 2, i64(6)); err != nil {
		t.Fatalf("failed to rest ask: %v", err)
	}

	// A bid at 6 sweeps the 5 level first, then the 6 level. Each trade
	// prices at its own maker.
	_, trades, err := m.Submit("sess", buyer, "bread", domain.SideBuy, domain.OrderTypeLimit, 4, i64(6))
	if err != nil {
		t.Fatalf("failed to submit bid: %v", err)
	}
	if len(trades) != 2 || trades[0].Price != 5 || trades[1].Price != 6 {
		t.Fatalf("expected trades at 5 then 6, got %+v", trades)
	}
	if buyer.Cash != 100-2*5-2*6 {
		t.Errorf("unexpected buyer cash %d", buyer.Cash)
	}
}

func TestSubmit_NonCrossingRests(t *testing.T) {
	m, l, _, _ := newTestMatcher()
	seller := admitPlayer(l, "seller", 0, map[domain.Product]int64{"bread": 10})
	buyer := admitPlayer(l, "buyer", 100, nil)

	if _, _, err := m.Submit("sess", seller, "bread", domain.SideSell, domain.OrderTypeLimit, 5, i64(8)); err != nil {
		t.Fatalf("failed to rest ask: %v", err)
	}
	bid, trades, err := m.Submit("sess", buyer, "bread", domain.SideBuy, domain.OrderTypeLimit, 5, i64(7))
	if err != nil {
		t.Fatalf("failed to submit bid: %v", err)
	}
	if len(trades) != 0 {
		t.Fatalf("expected no trades for non-crossing bid, got %d", len(trades))
	}
	if bid.Status != domain.OrderStatusOpen {
		t.Errorf("expected open bid, got %s", bid.Status)
	}
	if !m.Book("bread").Contains(bid.OrderID) {
		t.Error("expected bid resting on the book")
	}
	if _, ok := buyer.OpenOrders[bid.OrderID]; !ok {
		t.Error("expected bid in buyer's open-order set")
	}
}

func TestSubmit_SelfTradePreventionHalts(t *testing.T) {
	m, l, _, _ := newTestMatcher()
	p := admitPlayer(l, "solo", 100, map[domain.Product]int64{"bread": 10})
	other := admitPlayer(l, "other", 0, map[domain.Product]int64{"bread": 10})

	// Own ask at 7 has time priority over the other ask at 8.
	ownAsk, _, err := m.Submit("sess", p, "bread", domain.SideSell, domain.OrderTypeLimit, 3, i64(7))
	if err != nil {
		t.Fatalf("failed to rest own ask: %v", err)
	}
	if _, _, err := m.Submit("sess", other, "bread", domain.SideSell, domain.OrderTypeLimit, 3, i64(8)); err != nil {
		t.Fatalf("failed to rest other ask: %v", err)
	}

	// A crossing buy from the same participant halts immediately. It does
	// not skip past the own order to the other seller's level.
	bid, trades, err := m.Submit("sess", p, "bread", domain.SideBuy, domain.OrderTypeLimit, 3, i64(9))
	if err != nil {
		t.Fatalf("failed to submit bid: %v", err)
	}
	if len(trades) != 0 {
		t.Fatalf("expected no trades on self-cross, got %d", len(trades))
	}
	if bid.Status != domain.OrderStatusOpen || bid.RemainingQuantity != 3 {
		t.Errorf("expected untouched resting bid, got %s/%d", bid.Status, bid.RemainingQuantity)
	}
	if ownAsk.RemainingQuantity != 3 {
		t.Errorf("own ask should be untouched, remaining %d", ownAsk.RemainingQuantity)
	}
	if p.Cash != 100 {
		t.Errorf("no settlement should have happened, cash %d", p.Cash)
	}
}

func TestSubmit_InsufficientResources(t *testing.T) {
	m, l, orders, _ := newTestMatcher()
	buyer := admitPlayer(l, "buyer", 10, nil)
	seller := admitPlayer(l, "seller", 0, map[domain.Product]int64{"bread": 2})

	// Limit buy needs qty*price in cash.
	_, _, err := m.Submit("sess", buyer, "bread", domain.SideBuy, domain.OrderTypeLimit, 5, i64(7))
	if !errors.Is(err, domain.ErrInsufficientCash) {
		t.Errorf("expected ErrInsufficientCash, got %v", err)
	}

	// Sell needs the full quantity on hand.
	_, _, err = m.Submit("sess", seller, "bread", domain.SideSell, domain.OrderTypeLimit, 3, i64(7))
	if !errors.Is(err, domain.ErrInsufficientInventory) {
		t.Errorf("expected ErrInsufficientInventory, got %v", err)
	}

	// Rejected submissions create nothing.
	if orders.Len() != 0 {
		t.Errorf("expected no orders created, got %d", orders.Len())
	}
}

func TestSubmit_Validation(t *testing.T) {
	m, l, _, _ := newTestMatcher()
	p := admitPlayer(l, "p", 1000, map[domain.Product]int64{"bread": 100})

	tests := []struct {
		name    string
		product domain.Product
		side    domain.Side
		typ     domain.OrderType
		qty     int64
		price   *int64
	}{
		{"unknown product", "milk", domain.SideBuy, domain.OrderTypeLimit, 1, i64(5)},
		{"zero quantity", "bread", domain.SideBuy, domain.OrderTypeLimit, 0, i64(5)},
		{"quantity above max", "bread", domain.SideBuy, domain.OrderTypeLimit, 101, i64(5)},
		{"limit without price", "bread", domain.SideBuy, domain.OrderTypeLimit, 1, nil},
		{"limit with zero price", "bread", domain.SideBuy, domain.OrderTypeLimit, 1, i64(0)},
		{"limit price above cap", "bread", domain.SideBuy, domain.OrderTypeLimit, 1, i64(MaxLimitPrice + 1)},
		{"market with price", "bread", domain.SideBuy, domain.OrderTypeMarket, 1, i64(5)},
		{"unknown type", "bread", domain.SideBuy, "stop", 1, i64(5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := m.Submit("sess", p, tt.product, tt.side, tt.typ, tt.qty, tt.price)
			var validationErr *domain.ValidationError
			if !errors.As(err, &validationErr) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestSubmit_LimitPriceCap(t *testing.T) {
	m, l, orders, _ := newTestMatcher()
	buyer := admitPlayer(l, "buyer", 100, nil)
	seller := admitPlayer(l, "seller", 0, map[domain.Product]int64{"bread": 4})

	// 4 * 2^62 wraps int64, so the reservation check could not price it.
	// The cap rejects the price before anything is created.
	_, _, err := m.Submit("sess", buyer, "bread", domain.SideBuy, domain.OrderTypeLimit, 4, i64(1<<62))
	var validationErr *domain.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected validation error for oversized price, got %v", err)
	}
	if orders.Len() != 0 {
		t.Errorf("expected no order created, got %d", orders.Len())
	}
	if m.Book("bread").BidCount() != 0 {
		t.Error("expected nothing resting on the book")
	}
	if buyer.Cash != 100 {
		t.Errorf("expected untouched cash, got %d", buyer.Cash)
	}

	// The cap itself is a legal price.
	ask, _, err := m.Submit("sess", seller, "bread", domain.SideSell, domain.OrderTypeLimit, 1, i64(MaxLimitPrice))
	if err != nil {
		t.Fatalf("ask at the cap should rest: %v", err)
	}
	if ask.Status != domain.OrderStatusOpen {
		t.Errorf("expected open ask, got %s", ask.Status)
	}
}

func TestSubmit_TradeTimestampsStrictlyIncrease(t *testing.T) {
	m, l, _, _ := newTestMatcher()
	m.now = func() time.Time { return baseTime }
	s1 := admitPlayer(l, "s1", 0, map[domain.Product]int64{"bread": 10})
	s2 := admitPlayer(l, "s2", 0, map[domain.Product]int64{"bread": 10})
	buyer := admitPlayer(l, "buyer", 100, nil)

	if _, _, err := m.Submit("sess", s1, "bread", domain.SideSell, domain.OrderTypeLimit, 2, i64(5)); err != nil {
		t.Fatal(err)
	}
	if _, _, err := m.Submit("sess", s2, "bread", domain.SideSell, domain.OrderTypeLimit, 2, i64(5)); err != nil {
		t.Fatal(err)
	}

	// Both executions read the same frozen clock; the second trade still
	// carries a later timestamp.
	_, trades, err := m.Submit("sess", buyer, "bread", domain.SideBuy, domain.OrderTypeLimit, 4, i64(5))
	if err != nil {
		t.Fatalf("failed to submit bid: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	if !trades[1].ExecutedAt.After(trades[0].ExecutedAt) {
		t.Errorf("timestamps not strictly increasing: %v then %v", trades[0].ExecutedAt, trades[1].ExecutedAt)
	}
	if trades[1].Seq <= trades[0].Seq {
		t.Errorf("sequence not increasing: %d then %d", trades[0].Seq, trades[1].Seq)
	}
}

func TestSubmit_MarketBuyAgainstLiquidity(t *testing.T) {
	m, l, _, _ := newTestMatcher()
	seller := admitPlayer(l, "seller", 0, map[domain.Product]int64{"bread": 10})
	buyer := admitPlayer(l, "buyer", 100, nil)

	if _, _, err := m.Submit("sess", seller, "bread", domain.SideSell, domain.OrderTypeLimit, 3, i64(7)); err != nil {
		t.Fatalf("failed to rest ask: %v", err)
	}

	order, trades, err := m.Submit("sess", buyer, "bread", domain.SideBuy, domain.OrderTypeMarket, 3, nil)
	if err != nil {
		t.Fatalf("failed to submit market buy: %v", err)
	}
	if len(trades) != 1 || trades[0].Price != 7 || trades[0].Quantity != 3 {
		t.Fatalf("unexpected trades: %+v", trades)
	}
	if order.Status != domain.OrderStatusFilled {
		t.Errorf("expected filled market order, got %s", order.Status)
	}
}

func TestSubmit_MarketBuyPessimisticEstimateRejects(t *testing.T) {
	m, l, _, _ := newTestMatcher()
	seller := admitPlayer(l, "seller", 0, map[domain.Product]int64{"bread": 10})
	buyer := admitPlayer(l, "buyer", 1000, nil)

	if _, _, err := m.Submit("sess", seller, "bread", domain.SideSell, domain.OrderTypeLimit, 3, i64(7)); err != nil {
		t.Fatalf("failed to rest ask: %v", err)
	}

	// Only 3 units of visible liquidity; the uncovered 2 units are priced
	// at the ceiling, so the estimate dwarfs the buyer's cash.
	_, _, err := m.Submit("sess", buyer, "bread", domain.SideBuy, domain.OrderTypeMarket, 5, nil)
	if !errors.Is(err, domain.ErrInsufficientCash) {
		t.Errorf("expected ErrInsufficientCash from pessimistic estimate, got %v", err)
	}
}

func TestSubmit_MarketSellRemainderConverts(t *testing.T) {
	m, l, _, _ := newTestMatcher()
	buyer := admitPlayer(l, "buyer", 100, nil)
	seller := admitPlayer(l, "seller", 0, map[domain.Product]int64{"bread": 10})

	if _, _, err := m.Submit("sess", buyer, "bread", domain.SideBuy, domain.OrderTypeLimit, 3, i64(7)); err != nil {
		t.Fatalf("failed to rest bid: %v", err)
	}

	order, trades, err := m.Submit("sess", seller, "bread", domain.SideSell, domain.OrderTypeMarket, 5, nil)
	if err != nil {
		t.Fatalf("failed to submit market sell: %v", err)
	}
	if len(trades) != 1 || trades[0].Quantity != 3 || trades[0].Price != 7 {
		t.Fatalf("unexpected trades: %+v", trades)
	}

	// The unfilled remainder rests as an aggressive limit at the floor.
	if order.Status != domain.OrderStatusPartial || order.RemainingQuantity != 2 {
		t.Fatalf("expected partial with 2 left, got %s/%d", order.Status, order.RemainingQuantity)
	}
	if order.Price != MarketSellFloor {
		t.Errorf("expected synthetic floor price %d, got %d", MarketSellFloor, order.Price)
	}
	if !m.Book("bread").Contains(order.OrderID) {
		t.Error("expected remainder resting on the book")
	}

	// A later bid at any price crosses it.
	_, lateTrades, err := m.Submit("sess", buyer, "bread", domain.SideBuy, domain.OrderTypeLimit, 2, i64(2))
	if err != nil {
		t.Fatalf("failed to submit late bid: %v", err)
	}
	if len(lateTrades) != 1 || lateTrades[0].Price != MarketSellFloor {
		t.Fatalf("expected fill at floor price, got %+v", lateTrades)
	}
	if order.Status != domain.OrderStatusFilled {
		t.Errorf("expected converted remainder filled, got %s", order.Status)
	}
}

func TestEstimateMarketCost(t *testing.T) {
	m, l, _, _ := newTestMatcher()
	seller := admitPlayer(l, "seller", 0, map[domain.Product]int64{"bread": 20})

	if _, _, err := m.Submit("sess", seller, "bread", domain.SideSell, domain.OrderTypeLimit, 3, i64(5)); err != nil {
		t.Fatalf("failed to rest ask: %v", err)
	}
	if _, _, err := m.Submit("sess", seller, "bread", domain.SideSell, domain.OrderTypeLimit, 4, i64(8)); err != nil {
		t.Fatalf("failed to rest ask: %v", err)
	}

	// Fully covered: 3@5 + 2@8.
	if got := m.EstimateMarketCost("bread", 5); got != 31 {
		t.Errorf("EstimateMarketCost(5) = %d, want 31", got)
	}
	// Partially covered: 3@5 + 4@8 + 1 at the ceiling.
	want := int64(3*5+4*8) + MarketBuyCeiling
	if got := m.EstimateMarketCost("bread", 8); got != want {
		t.Errorf("EstimateMarketCost(8) = %d, want %d", got, want)
	}
}

func TestCancel(t *testing.T) {
	m, l, _, _ := newTestMatcher()
	owner := admitPlayer(l, "owner", 100, nil)
	admitPlayer(l, "other", 100, nil)

	order, _, err := m.Submit("sess", owner, "bread", domain.SideBuy, domain.OrderTypeLimit, 2, i64(5))
	if err != nil {
		t.Fatalf("failed to rest bid: %v", err)
	}

	if _, err := m.Cancel(order.OrderID, "other"); !errors.Is(err, domain.ErrNotOrderOwner) {
		t.Errorf("expected ErrNotOrderOwner, got %v", err)
	}
	if _, err := m.Cancel("missing", "owner"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}

	cancelled, err := m.Cancel(order.OrderID, "owner")
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Errorf("expected cancelled status, got %s", cancelled.Status)
	}
	if m.Book("bread").Contains(order.OrderID) {
		t.Error("expected order off the book")
	}
	if len(owner.OpenOrders) != 0 {
		t.Errorf("expected empty open-order set, got %d", len(owner.OpenOrders))
	}

	// Cancelling a terminal order fails.
	if _, err := m.Cancel(order.OrderID, "owner"); !errors.Is(err, domain.ErrOrderAlreadyTerminal) {
		t.Errorf("expected ErrOrderAlreadyTerminal, got %v", err)
	}
}

func TestSweepParticipant(t *testing.T) {
	m, l, _, _ := newTestMatcher()
	p := admitPlayer(l, "p", 100, map[domain.Product]int64{"bread": 10})
	other := admitPlayer(l, "other", 100, nil)

	if _, _, err := m.Submit("sess", p, "bread", domain.SideBuy, domain.OrderTypeLimit, 1, i64(3)); err != nil {
		t.Fatal(err)
	}
	if _, _, err := m.Submit("sess", p, "bread", domain.SideSell, domain.OrderTypeLimit, 2, i64(9)); err != nil {
		t.Fatal(err)
	}
	otherBid, _, err := m.Submit("sess", other, "bread", domain.SideBuy, domain.OrderTypeLimit, 1, i64(2))
	if err != nil {
		t.Fatal(err)
	}

	swept := m.SweepParticipant("p")
	if len(swept) != 2 {
		t.Fatalf("expected 2 swept orders, got %d", len(swept))
	}
	if len(p.OpenOrders) != 0 {
		t.Errorf("expected empty open-order set, got %d", len(p.OpenOrders))
	}
	// The other participant's order survives.
	if !m.Book("bread").Contains(otherBid.OrderID) {
		t.Error("expected other participant's bid to survive the sweep")
	}
}

func TestSweepSession(t *testing.T) {
	m, l, _, _ := newTestMatcher()
	a := admitPlayer(l, "a", 100, map[domain.Product]int64{"bread": 10, "meat": 5})
	b := admitPlayer(l, "b", 100, nil)

	if _, _, err := m.Submit("sess", a, "bread", domain.SideSell, domain.OrderTypeLimit, 2, i64(9)); err != nil {
		t.Fatal(err)
	}
	if _, _, err := m.Submit("sess", a, "meat", domain.SideSell, domain.OrderTypeLimit, 1, i64(12)); err != nil {
		t.Fatal(err)
	}
	if _, _, err := m.Submit("sess", b, "bread", domain.SideBuy, domain.OrderTypeLimit, 1, i64(2)); err != nil {
		t.Fatal(err)
	}

	swept := m.SweepSession()
	if len(swept) != 3 {
		t.Fatalf("expected 3 swept orders, got %d", len(swept))
	}
	for _, p := range domain.DefaultRules().Products {
		if m.Book(p).BidCount() != 0 || m.Book(p).AskCount() != 0 {
			t.Errorf("book %s not empty after session sweep", p)
		}
	}
	if len(a.OpenOrders) != 0 || len(b.OpenOrders) != 0 {
		t.Error("expected all open-order sets emptied")
	}
}
