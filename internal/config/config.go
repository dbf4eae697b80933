package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/openpit/exchange/internal/domain"
)

// Config holds all runtime configuration for the exchange server.
type Config struct {
	Port            int
	LogLevel        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Seed drives starting-inventory randomization; 0 means derive from
	// the wall clock at startup.
	Seed int64

	// RecordPath is the JSONL game-record file; empty keeps records in
	// memory only.
	RecordPath string

	Rules domain.GameRules
}

// Load reads configuration from environment variables, applies defaults,
// and validates values. It returns an error for any invalid value.
func Load() (*Config, error) {
	port, err := getInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	logLevel := getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", logLevel)
	}

	readTimeout, err := getDuration("READ_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid READ_TIMEOUT: %w", err)
	}

	writeTimeout, err := getDuration("WRITE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WRITE_TIMEOUT: %w", err)
	}

	idleTimeout, err := getDuration("IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid IDLE_TIMEOUT: %w", err)
	}

	shutdownTimeout, err := getDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	seed, err := getInt64("SEED", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid SEED: %w", err)
	}

	rules, err := loadRules()
	if err != nil {
		return nil, err
	}
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("invalid game rules: %w", err)
	}

	return &Config{
		Port:            port,
		LogLevel:        logLevel,
		ReadTimeout:     readTimeout,
		WriteTimeout:    writeTimeout,
		IdleTimeout:     idleTimeout,
		ShutdownTimeout: shutdownTimeout,
		Seed:            seed,
		RecordPath:      getStr("RECORD_PATH", ""),
		Rules:           rules,
	}, nil
}

// loadRules reads the game rules from the environment on top of the
// default grocery game. Product-keyed maps use the "name=value" list
// syntax, e.g. SCRAP_VALUES="bread=2,veggies=4".
func loadRules() (domain.GameRules, error) {
	rules := domain.DefaultRules()

	gameDuration, err := getDuration("GAME_DURATION", rules.GameDuration)
	if err != nil {
		return rules, fmt.Errorf("invalid GAME_DURATION: %w", err)
	}
	rules.GameDuration = gameDuration

	if rules.StartingCash, err = getInt64("STARTING_CASH", rules.StartingCash); err != nil {
		return rules, fmt.Errorf("invalid STARTING_CASH: %w", err)
	}
	if rules.MaxPlayers, err = getInt("MAX_PLAYERS", rules.MaxPlayers); err != nil {
		return rules, fmt.Errorf("invalid MAX_PLAYERS: %w", err)
	}

	if v := os.Getenv("PRODUCTS"); v != "" {
		products, err := parseProducts(v)
		if err != nil {
			return rules, fmt.Errorf("invalid PRODUCTS: %w", err)
		}
		rules.Products = products
	}
	if v := os.Getenv("SCRAP_VALUES"); v != "" {
		values, err := parseProductMap(v)
		if err != nil {
			return rules, fmt.Errorf("invalid SCRAP_VALUES: %w", err)
		}
		rules.ScrapValues = values
	}
	if v := os.Getenv("SET_RECIPE"); v != "" {
		recipe, err := parseProductMap(v)
		if err != nil {
			return rules, fmt.Errorf("invalid SET_RECIPE: %w", err)
		}
		rules.SetRecipe = recipe
	}

	if rules.SetValue, err = getInt64("SET_VALUE", rules.SetValue); err != nil {
		return rules, fmt.Errorf("invalid SET_VALUE: %w", err)
	}
	if rules.StartingValueTarget, err = getInt64("STARTING_VALUE_TARGET", rules.StartingValueTarget); err != nil {
		return rules, fmt.Errorf("invalid STARTING_VALUE_TARGET: %w", err)
	}
	if rules.StartingValueSpread, err = getFloat("STARTING_VALUE_SPREAD", rules.StartingValueSpread); err != nil {
		return rules, fmt.Errorf("invalid STARTING_VALUE_SPREAD: %w", err)
	}
	if rules.MinOrderSize, err = getInt64("MIN_ORDER_SIZE", rules.MinOrderSize); err != nil {
		return rules, fmt.Errorf("invalid MIN_ORDER_SIZE: %w", err)
	}
	if rules.MaxOrderSize, err = getInt64("MAX_ORDER_SIZE", rules.MaxOrderSize); err != nil {
		return rules, fmt.Errorf("invalid MAX_ORDER_SIZE: %w", err)
	}
	if rules.ShowOrderNames, err = getBool("SHOW_ORDER_NAMES", rules.ShowOrderNames); err != nil {
		return rules, fmt.Errorf("invalid SHOW_ORDER_NAMES: %w", err)
	}

	return rules, nil
}

func parseProducts(v string) ([]domain.Product, error) {
	parts := strings.Split(v, ",")
	products := make([]domain.Product, 0, len(parts))
	for _, part := range parts {
		name := strings.TrimSpace(part)
		if name == "" {
			return nil, fmt.Errorf("empty product name in %q", v)
		}
		products = append(products, domain.Product(name))
	}
	return products, nil
}

func parseProductMap(v string) (map[domain.Product]int64, error) {
	out := make(map[domain.Product]int64)
	for _, part := range strings.Split(v, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("entry %q must be name=value", part)
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", part, err)
		}
		out[domain.Product(name)] = n
	}
	return out, nil
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getInt64(key string, defaultVal int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

func getFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseBool(v)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
