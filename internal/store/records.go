package store

import (
	"time"

	"github.com/openpit/exchange/internal/domain"
)

// Persisted record shapes. These are flat projections of the domain types:
// no back-references beyond ids, so every record serializes independently.

// SessionRecord is the persisted shape of a session.
type SessionRecord struct {
	SessionID      string   `json:"session_id"`
	HostID         string   `json:"host_id"`
	Status         string   `json:"status"`
	ParticipantIDs []string `json:"participant_ids"`
	CreatedAt      string   `json:"created_at"`
	StartedAt      *string  `json:"started_at"`
	EndedAt        *string  `json:"ended_at"`
}

// ParticipantRecord is the persisted shape of a participant.
type ParticipantRecord struct {
	ParticipantID    string           `json:"participant_id"`
	Name             string           `json:"name"`
	Cash             int64            `json:"cash"`
	Inventory        map[string]int64 `json:"inventory"`
	InitialCash      int64            `json:"initial_cash"`
	InitialInventory map[string]int64 `json:"initial_inventory"`
	JoinedAt         string           `json:"joined_at"`
}

// FillRecord is one fill inside an OrderRecord.
type FillRecord struct {
	TradeID    string `json:"trade_id"`
	Quantity   int64  `json:"quantity"`
	Price      int64  `json:"price"`
	ExecutedAt string `json:"executed_at"`
}

// OrderRecord is the persisted shape of an order.
type OrderRecord struct {
	OrderID           string       `json:"order_id"`
	SessionID         string       `json:"session_id"`
	ParticipantID     string       `json:"participant_id"`
	Product           string       `json:"product"`
	Side              string       `json:"side"`
	Type              string       `json:"type"`
	Quantity          int64        `json:"quantity"`
	RemainingQuantity int64        `json:"remaining_quantity"`
	Price             int64        `json:"price"`
	Status            string       `json:"status"`
	Fills             []FillRecord `json:"fills"`
	CreatedAt         string       `json:"created_at"`
	UpdatedAt         string       `json:"updated_at"`
}

// TradeRecord is the persisted shape of a trade.
type TradeRecord struct {
	TradeID     string `json:"trade_id"`
	SessionID   string `json:"session_id"`
	BuyOrderID  string `json:"buy_order_id"`
	SellOrderID string `json:"sell_order_id"`
	BuyerID     string `json:"buyer_id"`
	SellerID    string `json:"seller_id"`
	Product     string `json:"product"`
	Quantity    int64  `json:"quantity"`
	Price       int64  `json:"price"`
	Value       int64  `json:"value"`
	ExecutedAt  string `json:"executed_at"`
}

// EventRecord captures session lifecycle moments: admission, departure,
// start, end.
type EventRecord struct {
	SessionID     string `json:"session_id"`
	Event         string `json:"event"`
	ParticipantID string `json:"participant_id,omitempty"`
	OccurredAt    string `json:"occurred_at"`
}

func isoTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func isoTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := isoTime(*t)
	return &s
}

// NewSessionRecord projects a session into its persisted shape.
func NewSessionRecord(s *domain.Session) SessionRecord {
	ids := make([]string, len(s.ParticipantIDs))
	copy(ids, s.ParticipantIDs)
	return SessionRecord{
		SessionID:      s.SessionID,
		HostID:         s.HostID,
		Status:         string(s.Status),
		ParticipantIDs: ids,
		CreatedAt:      isoTime(s.CreatedAt),
		StartedAt:      isoTimePtr(s.StartedAt),
		EndedAt:        isoTimePtr(s.EndedAt),
	}
}

// NewParticipantRecord projects a participant into its persisted shape.
func NewParticipantRecord(p *domain.Participant) ParticipantRecord {
	return ParticipantRecord{
		ParticipantID:    p.ParticipantID,
		Name:             p.Name,
		Cash:             p.Cash,
		Inventory:        productCounts(p.Inventory),
		InitialCash:      p.InitialCash,
		InitialInventory: productCounts(p.InitialInventory),
		JoinedAt:         isoTime(p.JoinedAt),
	}
}

// NewOrderRecord projects an order into its persisted shape.
func NewOrderRecord(o *domain.Order) OrderRecord {
	fills := make([]FillRecord, len(o.Fills))
	for i, f := range o.Fills {
		fills[i] = FillRecord{
			TradeID:    f.TradeID,
			Quantity:   f.Quantity,
			Price:      f.Price,
			ExecutedAt: isoTime(f.ExecutedAt),
		}
	}
	return OrderRecord{
		OrderID:           o.OrderID,
		SessionID:         o.SessionID,
		ParticipantID:     o.ParticipantID,
		Product:           string(o.Product),
		Side:              string(o.Side),
		Type:              string(o.Type),
		Quantity:          o.Quantity,
		RemainingQuantity: o.RemainingQuantity,
		Price:             o.Price,
		Status:            string(o.Status),
		Fills:             fills,
		CreatedAt:         isoTime(o.CreatedAt),
		UpdatedAt:         isoTime(o.UpdatedAt),
	}
}

// NewTradeRecord projects a trade into its persisted shape.
func NewTradeRecord(t *domain.Trade) TradeRecord {
	return TradeRecord{
		TradeID:     t.TradeID,
		SessionID:   t.SessionID,
		BuyOrderID:  t.BuyOrderID,
		SellOrderID: t.SellOrderID,
		BuyerID:     t.BuyerID,
		SellerID:    t.SellerID,
		Product:     string(t.Product),
		Quantity:    t.Quantity,
		Price:       t.Price,
		Value:       t.Value,
		ExecutedAt:  isoTime(t.ExecutedAt),
	}
}

// NewEventRecord builds a lifecycle event record.
func NewEventRecord(sessionID, event, participantID string, at time.Time) EventRecord {
	return EventRecord{
		SessionID:     sessionID,
		Event:         event,
		ParticipantID: participantID,
		OccurredAt:    isoTime(at),
	}
}

func productCounts(m map[domain.Product]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for p, n := range m {
		out[string(p)] = n
	}
	return out
}
