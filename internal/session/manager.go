package session

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openpit/exchange/internal/domain"
	"github.com/openpit/exchange/internal/engine"
	"github.com/openpit/exchange/internal/fanout"
	"github.com/openpit/exchange/internal/ledger"
	"github.com/openpit/exchange/internal/store"
)

// leaderboardTickInterval is how many timer ticks pass between live
// leaderboard pushes.
const leaderboardTickInterval = 5

// Manager owns the single current session and serializes every state
// mutation — command handling, the match loop, settlement, timer ticks
// and endgame — behind one mutex. Observers only ever see snapshots
// assembled under that lock and delivered through the fanout hub.
type Manager struct {
	mu       sync.Mutex
	rules    domain.GameRules
	ledger   *ledger.Ledger
	matcher  *engine.Matcher
	hub      *fanout.Hub
	orders   *store.OrderStore
	trades   *store.TradeStore
	recorder store.Recorder
	logger   *slog.Logger
	rng      *rand.Rand
	now      func() time.Time

	session     *domain.Session
	timerCancel context.CancelFunc
	ticks       int64
}

// NewManager wires a Manager. The seed makes starting-inventory
// generation reproducible; pass time.Now().UnixNano() in production.
func NewManager(
	rules domain.GameRules,
	l *ledger.Ledger,
	matcher *engine.Matcher,
	hub *fanout.Hub,
	orders *store.OrderStore,
	trades *store.TradeStore,
	recorder store.Recorder,
	logger *slog.Logger,
	seed int64,
) *Manager {
	return &Manager{
		rules:    rules,
		ledger:   l,
		matcher:  matcher,
		hub:      hub,
		orders:   orders,
		trades:   trades,
		recorder: recorder,
		logger:   logger,
		rng:      rand.New(rand.NewSource(seed)),
		now:      time.Now,
	}
}

// Create opens a new session in the lobby state. The host is assigned to
// the first participant who joins. It returns
// domain.ErrSessionAlreadyActive while a non-ended session exists.
func (m *Manager) Create() (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil && m.session.Status != domain.SessionStatusEnded {
		return nil, domain.ErrSessionAlreadyActive
	}
	if m.session != nil {
		m.clearLocked()
	}

	now := m.now()
	m.session = &domain.Session{
		SessionID: uuid.New().String(),
		Status:    domain.SessionStatusLobby,
		Rules:     m.rules,
		CreatedAt: now,
	}
	m.recorder.Record(store.RecordKindSession, store.NewSessionRecord(m.session))
	m.logger.Info("session created", slog.String("session_id", m.session.SessionID))

	m.broadcastSessionState()
	return m.session, nil
}

// Join admits a participant into the lobby. Names must be non-empty and
// unique case-insensitively among currently joined participants; a name
// freed by a leave may be reused.
func (m *Manager) Join(name string) (*domain.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil || m.session.Status == domain.SessionStatusEnded {
		return nil, domain.ErrNoSession
	}
	if m.session.Status != domain.SessionStatusLobby {
		return nil, domain.ErrSessionNotLobby
	}
	if m.ledger.Len() >= m.rules.MaxPlayers {
		return nil, domain.ErrSessionFull
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrEmptyName
	}
	for _, existing := range m.ledger.Participants() {
		if strings.EqualFold(existing.Name, name) {
			return nil, domain.ErrNameTaken
		}
	}

	now := m.now()
	inventory := GenerateInventory(m.rng, m.rules)
	p := domain.NewParticipant(uuid.New().String(), name, m.rules.StartingCash, inventory, now)
	m.ledger.Admit(p)
	m.session.ParticipantIDs = append(m.session.ParticipantIDs, p.ParticipantID)
	if m.session.HostID == "" {
		m.session.HostID = p.ParticipantID
	}

	m.recorder.Record(store.RecordKindParticipant, store.NewParticipantRecord(p))
	m.recorder.Record(store.RecordKindEvent,
		store.NewEventRecord(m.session.SessionID, "admission", p.ParticipantID, now))
	m.logger.Info("participant joined",
		slog.String("session_id", m.session.SessionID),
		slog.String("participant_id", p.ParticipantID),
		slog.String("name", name),
	)

	m.broadcastSessionState()
	m.hub.SendTo(p.ParticipantID, fanout.Event{
		Type: fanout.EventPlayerState,
		Data: m.buildPlayerState(p),
	})
	return p, nil
}

// Leave removes a participant from the lobby. While the session is
// running a participant cannot withdraw from scoring; their resting
// orders are swept instead, the same as a disconnect.
func (m *Manager) Leave(pid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return domain.ErrNoSession
	}
	if _, err := m.ledger.Get(pid); err != nil {
		return err
	}

	switch m.session.Status {
	case domain.SessionStatusLobby:
		m.departLocked(pid)
	case domain.SessionStatusRunning:
		m.sweepParticipantLocked(pid)
	}
	return nil
}

// Start transitions the lobby to running. Only the host may start, and
// at least two participants must have joined. It arms the game timer.
func (m *Manager) Start(pid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil || m.session.Status == domain.SessionStatusEnded {
		return domain.ErrNoSession
	}
	if m.session.Status != domain.SessionStatusLobby {
		return domain.ErrSessionNotLobby
	}
	if pid != m.session.HostID {
		return domain.ErrNotHost
	}
	if m.ledger.Len() < 2 {
		return domain.ErrTooFewPlayers
	}

	now := m.now()
	m.session.Status = domain.SessionStatusRunning
	m.session.StartedAt = &now
	m.ticks = 0

	ctx, cancel := context.WithCancel(context.Background())
	m.timerCancel = cancel
	go m.runTimer(ctx)

	m.recorder.Record(store.RecordKindSession, store.NewSessionRecord(m.session))
	m.recorder.Record(store.RecordKindEvent,
		store.NewEventRecord(m.session.SessionID, "start", pid, now))
	m.logger.Info("session started",
		slog.String("session_id", m.session.SessionID),
		slog.Int("players", m.ledger.Len()),
	)

	m.broadcastSessionState()
	m.broadcastBooks()
	return nil
}

// SubmitOrder gates a submission against session status and hands it to
// the matcher, then fans out the resulting deltas.
func (m *Manager) SubmitOrder(
	pid string,
	product domain.Product,
	side domain.Side,
	typ domain.OrderType,
	qty int64,
	price *int64,
) (*domain.Order, []*domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil, nil, domain.ErrNoSession
	}
	if m.session.Status != domain.SessionStatusRunning {
		return nil, nil, domain.ErrSessionNotRunning
	}
	p, err := m.ledger.Get(pid)
	if err != nil {
		return nil, nil, err
	}

	order, trades, err := m.matcher.Submit(m.session.SessionID, p, product, side, typ, qty, price)
	if err != nil {
		return nil, nil, err
	}

	m.broadcastBooks()
	if len(trades) > 0 {
		m.broadcastTrades(trades)
	}
	for _, affected := range affectedParticipants(pid, trades) {
		if ap, err := m.ledger.Get(affected); err == nil {
			m.hub.SendTo(affected, fanout.Event{
				Type: fanout.EventPlayerState,
				Data: m.buildPlayerState(ap),
			})
		}
	}
	return order, trades, nil
}

// CancelOrder cancels one of the participant's resting orders.
func (m *Manager) CancelOrder(pid, orderID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil, domain.ErrNoSession
	}
	if m.session.Status != domain.SessionStatusRunning {
		return nil, domain.ErrSessionNotRunning
	}
	if _, err := m.ledger.Get(pid); err != nil {
		return nil, err
	}

	order, err := m.matcher.Cancel(orderID, pid)
	if err != nil {
		return nil, err
	}

	m.broadcastBooks()
	if p, err := m.ledger.Get(pid); err == nil {
		m.hub.SendTo(pid, fanout.Event{
			Type: fanout.EventPlayerState,
			Data: m.buildPlayerState(p),
		})
	}
	return order, nil
}

// HandleDisconnect reacts to a dropped observer connection: in the lobby
// the participant departs, during play their resting orders are swept.
// Disconnect is not an error.
func (m *Manager) HandleDisconnect(pid string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil || pid == "" {
		return
	}
	if _, err := m.ledger.Get(pid); err != nil {
		return
	}

	switch m.session.Status {
	case domain.SessionStatusLobby:
		m.departLocked(pid)
	case domain.SessionStatusRunning:
		m.sweepParticipantLocked(pid)
	}
}

// Reset tears the current session down. A running session is ended and
// scored first, so a reset mid-game still produces a final leaderboard.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil && m.session.Status == domain.SessionStatusRunning {
		m.endGameLocked()
	}
	m.clearLocked()
	m.broadcastSessionState()
}

// runTimer ticks once per second until cancelled. Each tick re-acquires
// the manager lock, so timer work is serialized with command handling.
func (m *Manager) runTimer(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

func (m *Manager) tick() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil || m.session.Status != domain.SessionStatusRunning {
		return
	}
	m.ticks++
	now := m.now()

	m.hub.Broadcast(fanout.Event{
		Type: fanout.EventTimer,
		Data: fanout.TimerPayload{RemainingSeconds: m.session.RemainingSeconds(now)},
	})
	if m.ticks%leaderboardTickInterval == 0 {
		m.hub.Broadcast(fanout.Event{
			Type: fanout.EventLeaderboard,
			Data: m.buildLiveLeaderboard(),
		})
	}

	if now.Sub(*m.session.StartedAt) >= m.rules.GameDuration {
		m.endGameLocked()
	}
}

// endGameLocked fires exactly once per session: it sweeps the books,
// freezes the session, scores every participant and fans out the results.
func (m *Manager) endGameLocked() {
	if m.session == nil || m.session.Status != domain.SessionStatusRunning {
		return
	}
	if m.timerCancel != nil {
		m.timerCancel()
		m.timerCancel = nil
	}

	m.matcher.SweepSession()

	now := m.now()
	m.session.Status = domain.SessionStatusEnded
	m.session.EndedAt = &now

	scores := FinalScores(m.ledger.Participants(), m.rules)
	rows := make([]fanout.LeaderboardRow, len(scores))
	for i, s := range scores {
		rows[i] = fanout.LeaderboardRow{
			Rank:          s.Rank,
			ParticipantID: s.ParticipantID,
			Name:          s.Name,
			Value:         s.TotalScore,
			CompleteSets:  s.CompleteSets,
		}
	}

	for _, p := range m.ledger.Participants() {
		m.recorder.Record(store.RecordKindParticipant, store.NewParticipantRecord(p))
	}
	m.recorder.Record(store.RecordKindSession, store.NewSessionRecord(m.session))
	m.recorder.Record(store.RecordKindEvent,
		store.NewEventRecord(m.session.SessionID, "end", "", now))
	m.logger.Info("session ended",
		slog.String("session_id", m.session.SessionID),
		slog.Int("players", len(scores)),
	)

	m.broadcastSessionState()
	m.broadcastBooks()
	m.hub.Broadcast(fanout.Event{
		Type: fanout.EventLeaderboard,
		Data: fanout.LeaderboardPayload{Final: true, Rows: rows},
	})
	m.hub.Broadcast(fanout.Event{
		Type: fanout.EventGameEnded,
		Data: fanout.GameEndedPayload{SessionID: m.session.SessionID, Rows: rows},
	})
	for _, s := range scores {
		m.hub.SendTo(s.ParticipantID, fanout.Event{
			Type: fanout.EventFinalScore,
			Data: finalScoreRow(s),
		})
	}
}

func (m *Manager) departLocked(pid string) {
	now := m.now()
	m.session.RemoveParticipant(pid)
	m.ledger.Remove(pid)
	if m.session.HostID == pid {
		m.session.HostID = ""
		if len(m.session.ParticipantIDs) > 0 {
			m.session.HostID = m.session.ParticipantIDs[0]
		}
	}
	m.recorder.Record(store.RecordKindEvent,
		store.NewEventRecord(m.session.SessionID, "departure", pid, now))
	m.broadcastSessionState()
}

func (m *Manager) sweepParticipantLocked(pid string) {
	swept := m.matcher.SweepParticipant(pid)
	if len(swept) == 0 {
		return
	}
	m.broadcastBooks()
	if p, err := m.ledger.Get(pid); err == nil {
		m.hub.SendTo(pid, fanout.Event{
			Type: fanout.EventPlayerState,
			Data: m.buildPlayerState(p),
		})
	}
}

func (m *Manager) clearLocked() {
	if m.timerCancel != nil {
		m.timerCancel()
		m.timerCancel = nil
	}
	m.matcher.Reset()
	m.ledger.Reset()
	m.orders.Reset()
	m.trades.Reset()
	m.session = nil
	m.ticks = 0
}

// Config returns the once-on-subscribe config payload.
func (m *Manager) Config() fanout.ConfigPayload {
	r := m.rules
	scrap := make(map[string]int64, len(r.ScrapValues))
	recipe := make(map[string]int64, len(r.SetRecipe))
	products := make([]string, len(r.Products))
	for i, p := range r.Products {
		products[i] = string(p)
		scrap[string(p)] = r.ScrapValues[p]
		recipe[string(p)] = r.SetRecipe[p]
	}
	return fanout.ConfigPayload{
		GameDurationSeconds: int64(r.GameDuration / time.Second),
		StartingCash:        r.StartingCash,
		MaxPlayers:          r.MaxPlayers,
		Products:            products,
		ScrapValues:         scrap,
		SetValue:            r.SetValue,
		SetRecipe:           recipe,
		MinOrderSize:        r.MinOrderSize,
		MaxOrderSize:        r.MaxOrderSize,
		ShowOrderNames:      r.ShowOrderNames,
	}
}

// SessionState returns a snapshot of the current session for new
// subscribers and REST reads.
func (m *Manager) SessionState() fanout.SessionStatePayload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buildSessionState()
}

// Books returns a depth snapshot of every book.
func (m *Manager) Books() fanout.OrderBooksPayload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fanout.OrderBooksPayload{Books: m.matcher.Depths()}
}

// Leaderboard returns the live (or final, once ended) leaderboard.
func (m *Manager) Leaderboard() fanout.LeaderboardPayload {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil && m.session.Status == domain.SessionStatusEnded {
		scores := FinalScores(m.ledger.Participants(), m.rules)
		rows := make([]fanout.LeaderboardRow, len(scores))
		for i, s := range scores {
			rows[i] = fanout.LeaderboardRow{
				Rank:          s.Rank,
				ParticipantID: s.ParticipantID,
				Name:          s.Name,
				Value:         s.TotalScore,
				CompleteSets:  s.CompleteSets,
			}
		}
		return fanout.LeaderboardPayload{Final: true, Rows: rows}
	}
	return m.buildLiveLeaderboard()
}

// PlayerState returns a targeted state snapshot for one participant.
func (m *Manager) PlayerState(pid string) (fanout.PlayerStatePayload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.ledger.Get(pid)
	if err != nil {
		return fanout.PlayerStatePayload{}, err
	}
	return m.buildPlayerState(p), nil
}

func (m *Manager) buildSessionState() fanout.SessionStatePayload {
	if m.session == nil {
		return fanout.SessionStatePayload{Status: "none"}
	}
	participants := make([]fanout.SessionParticipant, 0, m.ledger.Len())
	for _, p := range m.ledger.Participants() {
		participants = append(participants, fanout.SessionParticipant{
			ParticipantID: p.ParticipantID,
			Name:          p.Name,
			IsHost:        p.ParticipantID == m.session.HostID,
		})
	}
	return fanout.SessionStatePayload{
		SessionID:        m.session.SessionID,
		Status:           string(m.session.Status),
		Participants:     participants,
		RemainingSeconds: m.session.RemainingSeconds(m.now()),
	}
}

func (m *Manager) buildPlayerState(p *domain.Participant) fanout.PlayerStatePayload {
	inventory := make(map[string]int64, len(p.Inventory))
	for product, n := range p.Inventory {
		inventory[string(product)] = n
	}
	open := make([]fanout.OpenOrderView, 0, len(p.OpenOrders))
	for id := range p.OpenOrders {
		o, err := m.orders.Get(id)
		if err != nil {
			continue
		}
		open = append(open, fanout.OpenOrderView{
			OrderID:           o.OrderID,
			Product:           string(o.Product),
			Side:              string(o.Side),
			Type:              string(o.Type),
			Price:             o.Price,
			Quantity:          o.Quantity,
			RemainingQuantity: o.RemainingQuantity,
			Status:            string(o.Status),
		})
	}
	return fanout.PlayerStatePayload{
		ParticipantID: p.ParticipantID,
		Name:          p.Name,
		Cash:          p.Cash,
		Inventory:     inventory,
		OpenOrders:    open,
		CompleteSets:  p.CompleteSets(m.rules.SetRecipe),
		ScrapValue:    p.ScrapValue(m.rules.ScrapValues),
	}
}

func (m *Manager) buildLiveLeaderboard() fanout.LeaderboardPayload {
	live := LiveScores(m.ledger.Participants(), m.rules)
	rows := make([]fanout.LeaderboardRow, len(live))
	for i, s := range live {
		rows[i] = fanout.LeaderboardRow{
			Rank:          s.Rank,
			ParticipantID: s.ParticipantID,
			Name:          s.Name,
			Value:         s.EstimatedValue,
			CompleteSets:  s.CompleteSets,
		}
	}
	return fanout.LeaderboardPayload{Final: false, Rows: rows}
}

func (m *Manager) broadcastSessionState() {
	m.hub.Broadcast(fanout.Event{
		Type: fanout.EventSessionState,
		Data: m.buildSessionState(),
	})
}

func (m *Manager) broadcastBooks() {
	m.hub.Broadcast(fanout.Event{
		Type: fanout.EventOrderBooks,
		Data: fanout.OrderBooksPayload{Books: m.matcher.Depths()},
	})
}

func (m *Manager) broadcastTrades(trades []*domain.Trade) {
	views := make([]fanout.TradeView, len(trades))
	for i, t := range trades {
		views[i] = fanout.TradeView{
			TradeID:    t.TradeID,
			Product:    string(t.Product),
			BuyerName:  m.participantName(t.BuyerID),
			SellerName: m.participantName(t.SellerID),
			Quantity:   t.Quantity,
			Price:      t.Price,
			Value:      t.Value,
			ExecutedAt: t.ExecutedAt.UTC().Format(time.RFC3339Nano),
		}
	}
	m.hub.Broadcast(fanout.Event{
		Type: fanout.EventTrades,
		Data: fanout.TradesPayload{Trades: views},
	})
}

func (m *Manager) participantName(pid string) string {
	if p, err := m.ledger.Get(pid); err == nil {
		return p.Name
	}
	return pid
}

func finalScoreRow(s Score) fanout.FinalScoreRow {
	leftover := make(map[string]int64, len(s.Leftover))
	for p, n := range s.Leftover {
		leftover[string(p)] = n
	}
	return fanout.FinalScoreRow{
		ParticipantID: s.ParticipantID,
		Name:          s.Name,
		Cash:          s.Cash,
		CompleteSets:  s.CompleteSets,
		SetsValue:     s.SetsValue,
		Leftover:      leftover,
		ScrapValue:    s.ScrapValue,
		TotalScore:    s.TotalScore,
		PnL:           s.PnL,
		Rank:          s.Rank,
	}
}

// affectedParticipants returns the distinct participant ids touched by a
// submission: the submitter plus every counterparty.
func affectedParticipants(submitter string, trades []*domain.Trade) []string {
	seen := map[string]bool{submitter: true}
	out := []string{submitter}
	for _, t := range trades {
		for _, pid := range []string{t.BuyerID, t.SellerID} {
			if !seen[pid] {
				seen[pid] = true
				out = append(out, pid)
			}
		}
	}
	return out
}
