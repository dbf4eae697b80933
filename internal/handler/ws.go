package handler

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/openpit/exchange/internal/domain"
	"github.com/openpit/exchange/internal/fanout"
	"github.com/openpit/exchange/internal/session"
)

// subscriptionBuffer is the per-connection event buffer. A connection that
// falls this far behind starts missing events; every event is a full
// snapshot, so the next one restores a coherent view.
const subscriptionBuffer = 64

// SocketHandler serves the game websocket: commands in, events out.
type SocketHandler struct {
	mgr      *session.Manager
	hub      *fanout.Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewSocketHandler creates a SocketHandler.
func NewSocketHandler(mgr *session.Manager, hub *fanout.Hub, logger *slog.Logger) *SocketHandler {
	return &SocketHandler{
		mgr:      mgr,
		hub:      hub,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		logger:   logger,
	}
}

// command is one inbound websocket message.
type command struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`

	// join
	Name string `json:"name,omitempty"`

	// submit_order
	Product   string `json:"product,omitempty"`
	Side      string `json:"side,omitempty"`
	OrderType string `json:"order_type,omitempty"`
	Quantity  int64  `json:"quantity,omitempty"`
	Price     *int64 `json:"price,omitempty"`

	// cancel_order
	OrderID string `json:"order_id,omitempty"`
}

// reply is the synchronous response to one command.
type reply struct {
	Type      string `json:"type"` // "ack" or "error"
	RequestID string `json:"request_id,omitempty"`
	Command   string `json:"command"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// joinResult is the ack payload for a join command.
type joinResult struct {
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
	IsHost        bool   `json:"is_host"`
}

// fillView is one fill in an order result.
type fillView struct {
	TradeID  string `json:"trade_id"`
	Quantity int64  `json:"quantity"`
	Price    int64  `json:"price"`
}

// orderResult is the ack payload for submit_order and cancel_order.
type orderResult struct {
	OrderID           string     `json:"order_id"`
	Product           string     `json:"product"`
	Side              string     `json:"side"`
	Type              string     `json:"type"`
	Price             int64      `json:"price"`
	Quantity          int64      `json:"quantity"`
	RemainingQuantity int64      `json:"remaining_quantity"`
	Status            string     `json:"status"`
	Fills             []fillView `json:"fills"`
}

// ServeWS upgrades the connection and runs it until the client drops. All
// writes to the connection happen on the write pump goroutine; the read
// loop routes command replies through the pump's reply channel.
func (s *SocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := s.hub.Subscribe(subscriptionBuffer)
	defer s.hub.Unsubscribe(sub)

	// Initial snapshots, written before the pump starts so there is never
	// more than one writer.
	initial := []fanout.Event{
		{Type: fanout.EventConfig, Data: s.mgr.Config()},
		{Type: fanout.EventSessionState, Data: s.mgr.SessionState()},
		{Type: fanout.EventOrderBooks, Data: s.mgr.Books()},
	}
	for _, ev := range initial {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}

	replies := make(chan any, 16)
	done := make(chan struct{})
	defer close(done)
	go s.writePump(conn, sub, replies, done)

	for {
		var cmd command
		if err := conn.ReadJSON(&cmd); err != nil {
			break
		}
		select {
		case replies <- s.dispatch(sub, cmd):
		case <-done:
			return
		}
	}

	if pid := sub.ParticipantID(); pid != "" {
		s.mgr.HandleDisconnect(pid)
	}
}

// writePump is the connection's single writer. It interleaves broadcast
// events with command replies; a write error abandons the connection and
// the read loop notices on its next read.
func (s *SocketHandler) writePump(conn *websocket.Conn, sub *fanout.Subscription, replies chan any, done chan struct{}) {
	for {
		select {
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case msg := <-replies:
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (s *SocketHandler) dispatch(sub *fanout.Subscription, cmd command) reply {
	switch cmd.Type {
	case "create_session":
		return s.handleCreate(cmd)
	case "join":
		return s.handleJoin(sub, cmd)
	case "leave":
		return s.handleLeave(sub, cmd)
	case "start":
		return s.handleStart(sub, cmd)
	case "submit_order":
		return s.handleSubmit(sub, cmd)
	case "cancel_order":
		return s.handleCancel(sub, cmd)
	case "reset":
		s.mgr.Reset()
		return ack(cmd, nil)
	default:
		return commandError(cmd, &domain.ValidationError{
			Message: "unknown command type " + cmd.Type,
		})
	}
}

func (s *SocketHandler) handleCreate(cmd command) reply {
	if _, err := s.mgr.Create(); err != nil {
		return commandError(cmd, err)
	}
	return ack(cmd, s.mgr.SessionState())
}

func (s *SocketHandler) handleJoin(sub *fanout.Subscription, cmd command) reply {
	if sub.ParticipantID() != "" {
		return commandError(cmd, &domain.ValidationError{
			Message: "connection is already joined",
		})
	}
	p, err := s.mgr.Join(cmd.Name)
	if err != nil {
		return commandError(cmd, err)
	}
	// Bind first so targeted events reach this connection, then replay the
	// player state the manager pushed before the bind existed.
	sub.Bind(p.ParticipantID)
	if ps, err := s.mgr.PlayerState(p.ParticipantID); err == nil {
		s.hub.SendTo(p.ParticipantID, fanout.Event{
			Type: fanout.EventPlayerState,
			Data: ps,
		})
	}
	state := s.mgr.SessionState()
	return ack(cmd, joinResult{
		ParticipantID: p.ParticipantID,
		Name:          p.Name,
		IsHost:        isHost(state, p.ParticipantID),
	})
}

func (s *SocketHandler) handleLeave(sub *fanout.Subscription, cmd command) reply {
	pid := sub.ParticipantID()
	if pid == "" {
		return commandError(cmd, domain.ErrParticipantNotFound)
	}
	if err := s.mgr.Leave(pid); err != nil {
		return commandError(cmd, err)
	}
	sub.Bind("")
	return ack(cmd, nil)
}

func (s *SocketHandler) handleStart(sub *fanout.Subscription, cmd command) reply {
	pid := sub.ParticipantID()
	if pid == "" {
		return commandError(cmd, domain.ErrParticipantNotFound)
	}
	if err := s.mgr.Start(pid); err != nil {
		return commandError(cmd, err)
	}
	return ack(cmd, nil)
}

func (s *SocketHandler) handleSubmit(sub *fanout.Subscription, cmd command) reply {
	pid := sub.ParticipantID()
	if pid == "" {
		return commandError(cmd, domain.ErrParticipantNotFound)
	}
	order, _, err := s.mgr.SubmitOrder(
		pid,
		domain.Product(cmd.Product),
		domain.Side(cmd.Side),
		domain.OrderType(cmd.OrderType),
		cmd.Quantity,
		cmd.Price,
	)
	if err != nil {
		return commandError(cmd, err)
	}
	return ack(cmd, buildOrderResult(order))
}

func (s *SocketHandler) handleCancel(sub *fanout.Subscription, cmd command) reply {
	pid := sub.ParticipantID()
	if pid == "" {
		return commandError(cmd, domain.ErrParticipantNotFound)
	}
	order, err := s.mgr.CancelOrder(pid, cmd.OrderID)
	if err != nil {
		return commandError(cmd, err)
	}
	return ack(cmd, buildOrderResult(order))
}

func ack(cmd command, data any) reply {
	return reply{
		Type:      "ack",
		RequestID: cmd.RequestID,
		Command:   cmd.Type,
		Data:      data,
	}
}

func commandError(cmd command, err error) reply {
	_, code, message := mapError(err)
	return reply{
		Type:      "error",
		RequestID: cmd.RequestID,
		Command:   cmd.Type,
		Error:     code,
		Message:   message,
	}
}

func buildOrderResult(o *domain.Order) orderResult {
	fills := make([]fillView, len(o.Fills))
	for i, f := range o.Fills {
		fills[i] = fillView{TradeID: f.TradeID, Quantity: f.Quantity, Price: f.Price}
	}
	return orderResult{
		OrderID:           o.OrderID,
		Product:           string(o.Product),
		Side:              string(o.Side),
		Type:              string(o.Type),
		Price:             o.Price,
		Quantity:          o.Quantity,
		RemainingQuantity: o.RemainingQuantity,
		Status:            string(o.Status),
		Fills:             fills,
	}
}

func isHost(state fanout.SessionStatePayload, pid string) bool {
	for _, p := range state.Participants {
		if p.ParticipantID == pid {
			return p.IsHost
		}
	}
	return false
}
