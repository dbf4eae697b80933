package domain

import (
	"fmt"
	"time"
)

// OrderSizeCap bounds MaxOrderSize. With limit prices capped by the engine
// it keeps every order value comfortably inside int64 range.
const OrderSizeCap int64 = 1_000_000

// GameRules holds the immutable parameters of a game session. A session
// snapshots the rules at creation; they never change mid-game.
type GameRules struct {
	GameDuration        time.Duration
	StartingCash        int64
	MaxPlayers          int
	Products            []Product // ordered, distinct
	ScrapValues         map[Product]int64
	SetValue            int64
	SetRecipe           map[Product]int64
	StartingValueTarget int64   // target scrap value of a generated inventory
	StartingValueSpread float64 // randomization factor f, 0 <= f < 1
	MinOrderSize        int64
	MaxOrderSize        int64
	ShowOrderNames      bool // expose participant names in depth projections
}

// DefaultRules returns the standard four-product grocery game.
func DefaultRules() GameRules {
	return GameRules{
		GameDuration: 5 * time.Minute,
		StartingCash: 100,
		MaxPlayers:   8,
		Products:     []Product{"bread", "veggies", "cheese", "meat"},
		ScrapValues: map[Product]int64{
			"bread":   2,
			"veggies": 4,
			"cheese":  6,
			"meat":    8,
		},
		SetValue: 30,
		SetRecipe: map[Product]int64{
			"bread":   1,
			"veggies": 1,
			"cheese":  1,
			"meat":    1,
		},
		StartingValueTarget: 40,
		StartingValueSpread: 0.25,
		MinOrderSize:        1,
		MaxOrderSize:        100,
		ShowOrderNames:      true,
	}
}

// HasProduct returns true if p is one of the configured products.
func (r GameRules) HasProduct(p Product) bool {
	for _, known := range r.Products {
		if known == p {
			return true
		}
	}
	return false
}

// Validate checks the rules for internal consistency. It returns an error
// describing the first problem found.
func (r GameRules) Validate() error {
	if r.GameDuration <= 0 {
		return fmt.Errorf("game duration must be positive, got %s", r.GameDuration)
	}
	if r.StartingCash < 0 {
		return fmt.Errorf("starting cash must be >= 0, got %d", r.StartingCash)
	}
	if r.MaxPlayers < 2 {
		return fmt.Errorf("max players must be >= 2, got %d", r.MaxPlayers)
	}
	if len(r.Products) == 0 {
		return fmt.Errorf("at least one product is required")
	}
	seen := make(map[Product]bool, len(r.Products))
	for _, p := range r.Products {
		if p == "" {
			return fmt.Errorf("product identifiers must be non-empty")
		}
		if seen[p] {
			return fmt.Errorf("duplicate product %q", p)
		}
		seen[p] = true
		if r.ScrapValues[p] <= 0 {
			return fmt.Errorf("scrap value for %q must be a positive integer", p)
		}
		if r.SetRecipe[p] <= 0 {
			return fmt.Errorf("set recipe entry for %q must be a positive integer", p)
		}
	}
	if len(r.ScrapValues) != len(r.Products) {
		return fmt.Errorf("scrap values must cover exactly the configured products")
	}
	if len(r.SetRecipe) != len(r.Products) {
		return fmt.Errorf("set recipe must cover exactly the configured products")
	}
	if r.SetValue <= 0 {
		return fmt.Errorf("set value must be a positive integer, got %d", r.SetValue)
	}
	if r.StartingValueTarget <= 0 {
		return fmt.Errorf("starting inventory target value must be positive, got %d", r.StartingValueTarget)
	}
	if r.StartingValueSpread < 0 || r.StartingValueSpread >= 1 {
		return fmt.Errorf("starting inventory spread must be in [0, 1), got %v", r.StartingValueSpread)
	}
	if r.MinOrderSize < 1 {
		return fmt.Errorf("min order size must be >= 1, got %d", r.MinOrderSize)
	}
	if r.MaxOrderSize < r.MinOrderSize {
		return fmt.Errorf("max order size %d must be >= min order size %d", r.MaxOrderSize, r.MinOrderSize)
	}
	if r.MaxOrderSize > OrderSizeCap {
		return fmt.Errorf("max order size must not exceed %d, got %d", OrderSizeCap, r.MaxOrderSize)
	}
	return nil
}
