// Package ledger tracks per-participant cash, inventory, and open-order
// membership. All mutations are integer arithmetic; the matching engine is
// responsible for resource checks, and the ledger panics on any mutation
// that would drive a balance below zero, since that indicates an engine bug.
package ledger

import (
	"fmt"

	"github.com/openpit/exchange/internal/domain"
)

// Ledger holds the participants of the current session, keyed by id and
// kept in admission order. It is not safe for concurrent use; the session
// manager serializes all access.
type Ledger struct {
	participants map[string]*domain.Participant
	order        []string // admission order
}

// New creates an empty Ledger.
func New() *Ledger {
	return &Ledger{
		participants: make(map[string]*domain.Participant),
	}
}

// Admit registers a participant. The caller guarantees id uniqueness.
func (l *Ledger) Admit(p *domain.Participant) {
	if _, exists := l.participants[p.ParticipantID]; exists {
		panic(fmt.Sprintf("ledger: participant %s admitted twice", p.ParticipantID))
	}
	l.participants[p.ParticipantID] = p
	l.order = append(l.order, p.ParticipantID)
}

// Remove drops a participant (lobby leave). It is a no-op for unknown ids.
func (l *Ledger) Remove(pid string) {
	if _, ok := l.participants[pid]; !ok {
		return
	}
	delete(l.participants, pid)
	for i, id := range l.order {
		if id == pid {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

// Get retrieves a participant by id. It returns
// domain.ErrParticipantNotFound if the participant does not exist.
func (l *Ledger) Get(pid string) (*domain.Participant, error) {
	p, ok := l.participants[pid]
	if !ok {
		return nil, domain.ErrParticipantNotFound
	}
	return p, nil
}

// Participants returns all participants in admission order.
func (l *Ledger) Participants() []*domain.Participant {
	out := make([]*domain.Participant, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.participants[id])
	}
	return out
}

// Len returns the number of admitted participants.
func (l *Ledger) Len() int {
	return len(l.order)
}

// CreditCash adds n to the participant's cash balance.
func (l *Ledger) CreditCash(pid string, n int64) {
	p := l.mustGet(pid)
	if n < 0 {
		panic(fmt.Sprintf("ledger: negative cash credit %d for %s", n, pid))
	}
	p.Cash += n
}

// DebitCash removes n from the participant's cash balance. It returns
// domain.ErrInsufficientCash, leaving the balance untouched, if the debit
// would go below zero.
func (l *Ledger) DebitCash(pid string, n int64) error {
	p := l.mustGet(pid)
	if n < 0 {
		panic(fmt.Sprintf("ledger: negative cash debit %d for %s", n, pid))
	}
	if p.Cash < n {
		return domain.ErrInsufficientCash
	}
	p.Cash -= n
	return nil
}

// CreditInventory adds n units of product to the participant's inventory.
func (l *Ledger) CreditInventory(pid string, product domain.Product, n int64) {
	p := l.mustGet(pid)
	if n < 0 {
		panic(fmt.Sprintf("ledger: negative inventory credit %d of %s for %s", n, product, pid))
	}
	p.Inventory[product] += n
}

// DebitInventory removes n units of product. It returns
// domain.ErrInsufficientInventory, leaving the inventory untouched, if the
// debit would go below zero.
func (l *Ledger) DebitInventory(pid string, product domain.Product, n int64) error {
	p := l.mustGet(pid)
	if n < 0 {
		panic(fmt.Sprintf("ledger: negative inventory debit %d of %s for %s", n, product, pid))
	}
	if p.Inventory[product] < n {
		return domain.ErrInsufficientInventory
	}
	p.Inventory[product] -= n
	return nil
}

// AddOpenOrder records an order id in the participant's open-order set.
func (l *Ledger) AddOpenOrder(pid, orderID string) {
	l.mustGet(pid).OpenOrders[orderID] = struct{}{}
}

// RemoveOpenOrder drops an order id from the participant's open-order set.
func (l *Ledger) RemoveOpenOrder(pid, orderID string) {
	delete(l.mustGet(pid).OpenOrders, orderID)
}

// RecordTrade appends a trade id to the participant's trade history.
func (l *Ledger) RecordTrade(pid, tradeID string) {
	p := l.mustGet(pid)
	p.TradeIDs = append(p.TradeIDs, tradeID)
}

// TotalCash returns the sum of all participants' cash. Settlement must
// leave this constant; tests use it to verify conservation.
func (l *Ledger) TotalCash() int64 {
	var total int64
	for _, p := range l.participants {
		total += p.Cash
	}
	return total
}

// TotalInventory returns the sum of all participants' holdings of product.
func (l *Ledger) TotalInventory(product domain.Product) int64 {
	var total int64
	for _, p := range l.participants {
		total += p.Inventory[product]
	}
	return total
}

// Reset drops all participants (session teardown).
func (l *Ledger) Reset() {
	l.participants = make(map[string]*domain.Participant)
	l.order = nil
}

func (l *Ledger) mustGet(pid string) *domain.Participant {
	p, ok := l.participants[pid]
	if !ok {
		panic(fmt.Sprintf("ledger: unknown participant %s", pid))
	}
	return p
}
