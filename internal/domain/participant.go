package domain

import "time"

// Participant represents an admitted player. Cash, inventory, open orders
// and trade history are mutated only by the engine; the initial snapshot
// fields are frozen at admission for endgame profit-and-loss reporting.
type Participant struct {
	ParticipantID    string
	Name             string
	Cash             int64
	Inventory        map[Product]int64
	OpenOrders       map[string]struct{} // order_id set
	TradeIDs         []string
	InitialCash      int64
	InitialInventory map[Product]int64
	JoinedAt         time.Time
}

// NewParticipant creates a participant with the given starting balances.
// The inventory map is copied into both the live and the initial snapshot.
func NewParticipant(id, name string, cash int64, inventory map[Product]int64, joinedAt time.Time) *Participant {
	live := make(map[Product]int64, len(inventory))
	initial := make(map[Product]int64, len(inventory))
	for p, n := range inventory {
		live[p] = n
		initial[p] = n
	}
	return &Participant{
		ParticipantID:    id,
		Name:             name,
		Cash:             cash,
		Inventory:        live,
		OpenOrders:       make(map[string]struct{}),
		InitialCash:      cash,
		InitialInventory: initial,
		JoinedAt:         joinedAt,
	}
}

// ScrapValue returns the scrap value of the participant's current inventory.
func (p *Participant) ScrapValue(scrapValues map[Product]int64) int64 {
	var total int64
	for product, count := range p.Inventory {
		total += count * scrapValues[product]
	}
	return total
}

// InitialScrapValue returns the scrap value of the admission-time inventory.
func (p *Participant) InitialScrapValue(scrapValues map[Product]int64) int64 {
	var total int64
	for product, count := range p.InitialInventory {
		total += count * scrapValues[product]
	}
	return total
}

// CompleteSets returns how many full recipe bundles the participant's
// current inventory can assemble.
func (p *Participant) CompleteSets(recipe map[Product]int64) int64 {
	var sets int64 = -1
	for product, needed := range recipe {
		k := p.Inventory[product] / needed
		if sets < 0 || k < sets {
			sets = k
		}
	}
	if sets < 0 {
		return 0
	}
	return sets
}
