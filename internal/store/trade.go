package store

import (
	"github.com/openpit/exchange/internal/domain"
)

// TradeStore is an in-memory, append-only store for trades in execution
// order, with a primary index by trade_id.
type TradeStore struct {
	trades []*domain.Trade
	byID   map[string]*domain.Trade
}

// NewTradeStore creates an empty TradeStore.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		byID: make(map[string]*domain.Trade),
	}
}

// Append adds a trade to the chronological list.
func (s *TradeStore) Append(t *domain.Trade) {
	s.trades = append(s.trades, t)
	s.byID[t.TradeID] = t
}

// Get retrieves a trade by id, or nil if unknown.
func (s *TradeStore) Get(id string) *domain.Trade {
	return s.byID[id]
}

// All returns every trade in execution order.
func (s *TradeStore) All() []*domain.Trade {
	out := make([]*domain.Trade, len(s.trades))
	copy(out, s.trades)
	return out
}

// Len returns the number of stored trades.
func (s *TradeStore) Len() int {
	return len(s.trades)
}

// Reset drops all trades (session teardown).
func (s *TradeStore) Reset() {
	s.trades = nil
	s.byID = make(map[string]*domain.Trade)
}
