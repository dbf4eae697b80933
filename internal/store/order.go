package store

import (
	"github.com/openpit/exchange/internal/domain"
)

// OrderStore is an in-memory store for orders, with a primary index by
// order_id and a secondary index by participant_id. Access is serialized
// by the session manager, like all engine state.
type OrderStore struct {
	orders            map[string]*domain.Order
	participantOrders map[string][]*domain.Order // participant_id → orders (append-only)
}

// NewOrderStore creates an empty OrderStore.
func NewOrderStore() *OrderStore {
	return &OrderStore{
		orders:            make(map[string]*domain.Order),
		participantOrders: make(map[string][]*domain.Order),
	}
}

// Create adds an order to the store and appends it to the participant's
// secondary index.
func (s *OrderStore) Create(o *domain.Order) {
	s.orders[o.OrderID] = o
	s.participantOrders[o.ParticipantID] = append(s.participantOrders[o.ParticipantID], o)
}

// Get retrieves an order by id. It returns domain.ErrOrderNotFound if the
// order does not exist.
func (s *OrderStore) Get(id string) (*domain.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return o, nil
}

// ListByParticipant returns the participant's orders in submission order.
func (s *OrderStore) ListByParticipant(pid string) []*domain.Order {
	all := s.participantOrders[pid]
	out := make([]*domain.Order, len(all))
	copy(out, all)
	return out
}

// Len returns the number of stored orders.
func (s *OrderStore) Len() int {
	return len(s.orders)
}

// Reset drops all orders (session teardown).
func (s *OrderStore) Reset() {
	s.orders = make(map[string]*domain.Order)
	s.participantOrders = make(map[string][]*domain.Order)
}
