package main

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Config is read from the environment (and .env in development).
type Config struct {
	DatabaseURL      string
	Port             string
	AutoMigrate      bool
	AutoSeed         bool
	ModelsFile       string
	LinkSecret       string
	SessionTTL       time.Duration
	CookieSecure     bool
	RequestTimeout   time.Duration
	BattleTimeout    time.Duration
	BattleRatePerMin int
	EloK             float64
	LogLevel         string
	LogFormat        string
}

func loadConfig() (Config, error) {
	cfg := Config{
		DatabaseURL:      strings.TrimSpace(os.Getenv("DATABASE_URL")),
		Port:             getenv("PORT", "8080"),
		AutoMigrate:      asBool(os.Getenv("AUTO_MIGRATE")),
		AutoSeed:         asBool(getenv("AUTO_SEED", "true")),
		ModelsFile:       strings.TrimSpace(os.Getenv("MODELS_FILE")),
		LinkSecret:       strings.TrimSpace(os.Getenv("LINK_SECRET")),
		SessionTTL:       time.Duration(atoiDef(os.Getenv("SESSION_TTL_HOURS"), 720)) * time.Hour,
		CookieSecure:     asBool(os.Getenv("COOKIE_SECURE")),
		RequestTimeout:   durationDef(os.Getenv("REQUEST_TIMEOUT"), 15*time.Second),
		BattleTimeout:    durationDef(os.Getenv("BATTLE_TIMEOUT"), 90*time.Second),
		BattleRatePerMin: atoiDef(os.Getenv("BATTLE_RATE_PER_MIN"), 30),
		EloK:             floatDef(os.Getenv("ELO_K"), 32),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		LogFormat:        getenv("LOG_FORMAT", "text"),
	}
	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("missing required env var DATABASE_URL. Put it in .env (dev) or set it on the host (prod)")
	}
	if cfg.SessionTTL <= 0 {
		return Config{}, errors.Errorf("SESSION_TTL_HOURS must be positive")
	}
	return cfg, nil
}

func setupLogging(level, format string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return errors.Wrap(err, "LOG_LEVEL")
	}
	log.SetLevel(lvl)
	switch strings.ToLower(format) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return errors.Errorf("LOG_FORMAT must be json or text, got %q", format)
	}
	return nil
}

// loadAPIKeyFromSecret fills OPENROUTER_API_KEY from a mounted secret file
// when the variable itself is unset.
func loadAPIKeyFromSecret() {
	if os.Getenv("OPENROUTER_API_KEY") != "" || os.Getenv("OPENAI_API_KEY") != "" {
		return
	}
	var candidates []string
	if p := strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY_FILE")); p != "" {
		candidates = append(candidates, p)
	}
	candidates = append(candidates,
		"./secrets/openrouter_api_key.txt",
		"./server/openrouter_api_key.txt",
		"/run/secrets/openrouter_api_key",
	)
	for _, path := range candidates {
		if b, err := os.ReadFile(path); err == nil {
			if key := strings.TrimSpace(string(b)); key != "" {
				os.Setenv("OPENROUTER_API_KEY", key)
				log.WithField("path", path).Debug("loaded API key from file")
				return
			}
		}
	}
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func atoiDef(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}

func floatDef(s string, def float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f <= 0 {
		return def
	}
	return f
}

// durationDef accepts Go durations ("15s") or bare seconds ("15").
func durationDef(s string, def time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	if n := atoiDef(s, 0); n > 0 {
		return time.Duration(n) * time.Second
	}
	return def
}

func asBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}
