package domain

import (
	"testing"
	"time"
)

var baseTime = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func newTestOrder(qty int64) *Order {
	return &Order{
		OrderID:           "o1",
		ParticipantID:     "p1",
		Product:           "bread",
		Side:              SideBuy,
		Type:              OrderTypeLimit,
		Quantity:          qty,
		RemainingQuantity: qty,
		Price:             5,
		Status:            OrderStatusOpen,
		CreatedAt:         baseTime,
		UpdatedAt:         baseTime,
	}
}

func TestApplyFill_PartialThenFilled(t *testing.T) {
	o := newTestOrder(10)

	o.ApplyFill(Fill{TradeID: "t1", Quantity: 4, Price: 5, ExecutedAt: baseTime.Add(time.Second)})
	if o.Status != OrderStatusPartial {
		t.Errorf("expected status partial after first fill, got %s", o.Status)
	}
	if o.RemainingQuantity != 6 {
		t.Errorf("expected remaining 6, got %d", o.RemainingQuantity)
	}
	if o.FilledQuantity() != 4 {
		t.Errorf("expected filled 4, got %d", o.FilledQuantity())
	}

	o.ApplyFill(Fill{TradeID: "t2", Quantity: 6, Price: 5, ExecutedAt: baseTime.Add(2 * time.Second)})
	if o.Status != OrderStatusFilled {
		t.Errorf("expected status filled, got %s", o.Status)
	}
	if o.RemainingQuantity != 0 {
		t.Errorf("expected remaining 0, got %d", o.RemainingQuantity)
	}
	if len(o.Fills) != 2 {
		t.Errorf("expected 2 fills, got %d", len(o.Fills))
	}
	if !o.UpdatedAt.Equal(baseTime.Add(2 * time.Second)) {
		t.Errorf("expected UpdatedAt to track the last fill, got %s", o.UpdatedAt)
	}
}

func TestApplyFill_SingleFullFill(t *testing.T) {
	o := newTestOrder(3)
	o.ApplyFill(Fill{TradeID: "t1", Quantity: 3, Price: 5, ExecutedAt: baseTime})
	if o.Status != OrderStatusFilled {
		t.Errorf("expected status filled, got %s", o.Status)
	}
}

func TestOrderStatus_Terminal(t *testing.T) {
	tests := []struct {
		status OrderStatus
		want   bool
	}{
		{OrderStatusOpen, false},
		{OrderStatusPartial, false},
		{OrderStatusFilled, true},
		{OrderStatusCancelled, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("Terminal(%s) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
