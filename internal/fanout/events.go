// Package fanout delivers point-in-time state snapshots to session
// observers. The engine assembles payloads under its lock and hands them
// to the hub; delivery is buffered and best-effort per observer, so a
// slow consumer can never stall the engine.
package fanout

import (
	"github.com/openpit/exchange/internal/engine"
)

// EventType labels an asynchronous event pushed to observers.
type EventType string

const (
	EventConfig       EventType = "config"
	EventSessionState EventType = "session_state"
	EventPlayerState  EventType = "player_state"
	EventOrderBooks   EventType = "order_books"
	EventLeaderboard  EventType = "leaderboard"
	EventTimer        EventType = "timer"
	EventTrades       EventType = "trades"
	EventGameEnded    EventType = "game_ended"
	EventFinalScore   EventType = "final_score"
)

// Event is one pushed message: a coherent snapshot, never a delta that
// assumes client-side reconciliation.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// ConfigPayload is sent once on subscribe.
type ConfigPayload struct {
	GameDurationSeconds int64            `json:"game_duration_seconds"`
	StartingCash        int64            `json:"starting_cash"`
	MaxPlayers          int              `json:"max_players"`
	Products            []string         `json:"products"`
	ScrapValues         map[string]int64 `json:"scrap_values"`
	SetValue            int64            `json:"set_value"`
	SetRecipe           map[string]int64 `json:"set_recipe"`
	MinOrderSize        int64            `json:"min_order_size"`
	MaxOrderSize        int64            `json:"max_order_size"`
	ShowOrderNames      bool             `json:"show_order_names"`
}

// SessionParticipant is the public view of one participant in the
// session state.
type SessionParticipant struct {
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
	IsHost        bool   `json:"is_host"`
}

// SessionStatePayload is sent on every lifecycle transition and
// participant set change.
type SessionStatePayload struct {
	SessionID        string               `json:"session_id"`
	Status           string               `json:"status"`
	Participants     []SessionParticipant `json:"participants"`
	RemainingSeconds int64                `json:"remaining_seconds"`
}

// OpenOrderView is one open order in a player state snapshot.
type OpenOrderView struct {
	OrderID           string `json:"order_id"`
	Product           string `json:"product"`
	Side              string `json:"side"`
	Type              string `json:"type"`
	Price             int64  `json:"price"`
	Quantity          int64  `json:"quantity"`
	RemainingQuantity int64  `json:"remaining_quantity"`
	Status            string `json:"status"`
}

// PlayerStatePayload is targeted at a single participant after any
// mutation affecting them.
type PlayerStatePayload struct {
	ParticipantID string           `json:"participant_id"`
	Name          string           `json:"name"`
	Cash          int64            `json:"cash"`
	Inventory     map[string]int64 `json:"inventory"`
	OpenOrders    []OpenOrderView  `json:"open_orders"`
	CompleteSets  int64            `json:"complete_sets"`
	ScrapValue    int64            `json:"scrap_value"`
}

// OrderBooksPayload is a depth snapshot of every book.
type OrderBooksPayload struct {
	Books []engine.BookDepth `json:"books"`
}

// TradeView is the public projection of one trade.
type TradeView struct {
	TradeID    string `json:"trade_id"`
	Product    string `json:"product"`
	BuyerName  string `json:"buyer_name"`
	SellerName string `json:"seller_name"`
	Quantity   int64  `json:"quantity"`
	Price      int64  `json:"price"`
	Value      int64  `json:"value"`
	ExecutedAt string `json:"executed_at"`
}

// TradesPayload is a batch of trades produced by one submission.
type TradesPayload struct {
	Trades []TradeView `json:"trades"`
}

// TimerPayload is pushed on every timer tick while running.
type TimerPayload struct {
	RemainingSeconds int64 `json:"remaining_seconds"`
}

// LeaderboardRow is one row of the live or final leaderboard.
type LeaderboardRow struct {
	Rank          int    `json:"rank"`
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
	Value         int64  `json:"value"` // estimated during play, total score at end
	CompleteSets  int64  `json:"complete_sets"`
}

// LeaderboardPayload is pushed every few ticks during play and at end.
type LeaderboardPayload struct {
	Final bool             `json:"final"`
	Rows  []LeaderboardRow `json:"rows"`
}

// FinalScoreRow is the targeted endgame breakdown for one participant.
type FinalScoreRow struct {
	ParticipantID string           `json:"participant_id"`
	Name          string           `json:"name"`
	Cash          int64            `json:"cash"`
	CompleteSets  int64            `json:"complete_sets"`
	SetsValue     int64            `json:"sets_value"`
	Leftover      map[string]int64 `json:"leftover_inventory"`
	ScrapValue    int64            `json:"scrap_value"`
	TotalScore    int64            `json:"total_score"`
	PnL           int64            `json:"pnl"`
	Rank          int              `json:"rank"`
}

// GameEndedPayload carries the final leaderboard to every observer.
type GameEndedPayload struct {
	SessionID string           `json:"session_id"`
	Rows      []LeaderboardRow `json:"rows"`
}
