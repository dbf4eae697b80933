package session

import (
	"math/rand"

	"github.com/openpit/exchange/internal/domain"
)

// GenerateInventory produces a starting inventory whose scrap value lands
// in [T(1-f), T(1+f)] for target T and spread f. Random draws come from
// rng, so a seeded generator makes the result deterministic.
//
// Units are added one at a time for uniformly random products, skipping
// any pick that would overshoot the upper bound. If random placement
// stalls below the target, the cheapest product that still fits tops up.
func GenerateInventory(rng *rand.Rand, rules domain.GameRules) map[domain.Product]int64 {
	target := float64(rules.StartingValueTarget)
	low := int64(target * (1 - rules.StartingValueSpread))
	high := int64(target * (1 + rules.StartingValueSpread))

	cheapest := rules.Products[0]
	for _, p := range rules.Products {
		if rules.ScrapValues[p] < rules.ScrapValues[cheapest] {
			cheapest = p
		}
	}

	inventory := make(map[domain.Product]int64, len(rules.Products))
	for _, p := range rules.Products {
		inventory[p] = 0
	}

	var current int64
	for current < low {
		if current+rules.ScrapValues[cheapest] > high {
			// Nothing fits under the upper bound any more.
			break
		}
		p := rules.Products[rng.Intn(len(rules.Products))]
		if current+rules.ScrapValues[p] > high {
			continue
		}
		inventory[p]++
		current += rules.ScrapValues[p]
	}

	for current < rules.StartingValueTarget && current+rules.ScrapValues[cheapest] <= high {
		inventory[cheapest]++
		current += rules.ScrapValues[cheapest]
	}

	return inventory
}
