package session

import (
	"sort"

	"github.com/openpit/exchange/internal/domain"
)

// Score is the endgame breakdown for one participant: sets are realized
// at the configured set value, leftover inventory at scrap value.
type Score struct {
	ParticipantID string
	Name          string
	Cash          int64
	CompleteSets  int64
	SetsValue     int64
	Leftover      map[domain.Product]int64
	ScrapValue    int64
	TotalScore    int64
	PnL           int64
	Rank          int
}

// ComputeScore evaluates one participant's final holdings.
func ComputeScore(p *domain.Participant, rules domain.GameRules) Score {
	sets := p.CompleteSets(rules.SetRecipe)
	leftover := make(map[domain.Product]int64, len(rules.Products))
	var scrap int64
	for _, product := range rules.Products {
		left := p.Inventory[product] - sets*rules.SetRecipe[product]
		leftover[product] = left
		scrap += left * rules.ScrapValues[product]
	}
	total := p.Cash + sets*rules.SetValue + scrap
	initial := p.InitialCash + p.InitialScrapValue(rules.ScrapValues)
	return Score{
		ParticipantID: p.ParticipantID,
		Name:          p.Name,
		Cash:          p.Cash,
		CompleteSets:  sets,
		SetsValue:     sets * rules.SetValue,
		Leftover:      leftover,
		ScrapValue:    scrap,
		TotalScore:    total,
		PnL:           total - initial,
	}
}

// FinalScores scores every participant and ranks them by total score
// descending. The sort is stable over admission order, so ties keep the
// earlier joiner ahead.
func FinalScores(participants []*domain.Participant, rules domain.GameRules) []Score {
	scores := make([]Score, len(participants))
	for i, p := range participants {
		scores[i] = ComputeScore(p, rules)
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].TotalScore > scores[j].TotalScore
	})
	for i := range scores {
		scores[i].Rank = i + 1
	}
	return scores
}

// LiveScore is a mid-game leaderboard row. Sets are not realized until
// the end, so the estimate deliberately undervalues near-complete sets.
type LiveScore struct {
	ParticipantID  string
	Name           string
	EstimatedValue int64 // cash + current scrap value
	CompleteSets   int64
	Rank           int
}

// LiveScores ranks participants by cash plus current scrap value,
// descending, ties broken by admission order.
func LiveScores(participants []*domain.Participant, rules domain.GameRules) []LiveScore {
	rows := make([]LiveScore, len(participants))
	for i, p := range participants {
		rows[i] = LiveScore{
			ParticipantID:  p.ParticipantID,
			Name:           p.Name,
			EstimatedValue: p.Cash + p.ScrapValue(rules.ScrapValues),
			CompleteSets:   p.CompleteSets(rules.SetRecipe),
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].EstimatedValue > rows[j].EstimatedValue
	})
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows
}
