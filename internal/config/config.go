package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/scythe504/zombie-mafia-backend/internal"
)

type Config struct {
	Port        int
	DatabaseURL string

	VoiceSigningKey string
	VoiceTokenTTL   time.Duration

	LogLevel  string
	LogPretty bool

	// ActionRateLimit is the sustained per-member request rate per second.
	ActionRateLimit float64
	ActionRateBurst int

	GameOption internal.GameOption
	MinPlayers int
}

// Load reads an optional .env file and then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("[config] could not read .env")
	}

	defaults := internal.DefaultGameOption()
	var errs []error
	cfg := Config{
		Port:            intEnv("PORT", 8080, &errs),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		VoiceSigningKey: os.Getenv("VOICE_SIGNING_KEY"),
		VoiceTokenTTL:   durationEnv("VOICE_TOKEN_TTL", 2*time.Hour, &errs),
		LogLevel:        stringEnv("LOG_LEVEL", "info"),
		LogPretty:       boolEnv("LOG_PRETTY", false, &errs),
		ActionRateLimit: floatEnv("ACTION_RATE_LIMIT", 5, &errs),
		ActionRateBurst: intEnv("ACTION_RATE_BURST", 10, &errs),
		GameOption: internal.GameOption{
			ZombieCount:       intEnv("ZOMBIE_COUNT", defaults.ZombieCount, &errs),
			MutantCount:       intEnv("MUTANT_COUNT", defaults.MutantCount, &errs),
			HealCharges:       intEnv("HEAL_CHARGES", defaults.HealCharges, &errs),
			NightSeconds:      intEnv("NIGHT_SECONDS", defaults.NightSeconds, &errs),
			DiscussionSeconds: intEnv("DISCUSSION_SECONDS", defaults.DiscussionSeconds, &errs),
		},
		MinPlayers: intEnv("MIN_PLAYERS", 5, &errs),
	}

	if err := cfg.GameOption.Validate(); err != nil {
		errs = append(errs, err)
	}
	if cfg.MinPlayers < 1 {
		errs = append(errs, fmt.Errorf("MIN_PLAYERS must be positive, got %d", cfg.MinPlayers))
	}
	if cfg.ActionRateLimit <= 0 || cfg.ActionRateBurst <= 0 {
		errs = append(errs, errors.New("ACTION_RATE_LIMIT and ACTION_RATE_BURST must be positive"))
	}
	return cfg, errors.Join(errs...)
}

func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func stringEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int, errs *[]error) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func floatEnv(key string, fallback float64, errs *[]error) float64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return f
}

func boolEnv(key string, fallback bool, errs *[]error) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return b
}

func durationEnv(key string, fallback time.Duration, errs *[]error) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}
