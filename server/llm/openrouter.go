package llm

import (
	"net/http"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Headers OpenRouter uses to attribute traffic when none are configured.
const (
	DefaultSiteURL = "https://llm-arena.dev"
	DefaultTitle   = "LLM Arena"
)

type providerKind int

const (
	providerOpenAI providerKind = iota
	providerOpenRouter
)

type apiConfig struct {
	Kind         providerKind
	APIKey       string
	Model        string
	BaseURL      string
	HeaderName   string
	HeaderPrefix string
	Organization string
	ExtraHeaders map[string]string
}

func resolveAPIConfig(model string) (apiConfig, error) {
	cfg := apiConfig{
		Model:        strings.TrimSpace(model),
		ExtraHeaders: map[string]string{},
	}

	if preferOpenRouterEnv() {
		cfg.Kind = providerOpenRouter
	} else {
		cfg.Kind = providerOpenAI
	}

	manualOverride := false
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LLM_PROVIDER"))) {
	case "openrouter":
		cfg.Kind = providerOpenRouter
		manualOverride = true
	case "openai":
		cfg.Kind = providerOpenAI
		manualOverride = true
	}

	if cfg.Model == "" {
		return apiConfig{}, errors.New("model missing")
	}
	if !manualOverride {
		if provider, ok := detectProviderFromModel(cfg.Model); ok {
			cfg.Kind = provider
		}
	}

	base := firstNonEmpty(
		os.Getenv("OPENAI_API_BASE"),
		os.Getenv("OPENAI_BASE_URL"),
		os.Getenv("OPENROUTER_API_BASE"),
		os.Getenv("OPENROUTER_BASE_URL"),
	)
	if base == "" {
		if cfg.Kind == providerOpenRouter {
			base = "https://openrouter.ai/api/v1"
		} else {
			base = "https://api.openai.com/v1"
		}
	}
	cfg.BaseURL = strings.TrimRight(base, "/")
	if !manualOverride && strings.Contains(strings.ToLower(cfg.BaseURL), "openrouter") {
		cfg.Kind = providerOpenRouter
	}

	openAIKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	openRouterKey := strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY"))
	if cfg.Kind == providerOpenRouter {
		cfg.APIKey = firstNonEmpty(openRouterKey, openAIKey)
	} else {
		cfg.APIKey = firstNonEmpty(openAIKey, openRouterKey)
	}
	if cfg.APIKey == "" {
		return apiConfig{}, errors.New("API key missing: set OPENROUTER_API_KEY or OPENAI_API_KEY")
	}

	cfg.HeaderName = firstNonEmpty(os.Getenv("OPENAI_API_KEY_HEADER"), os.Getenv("OPENROUTER_API_KEY_HEADER"), "Authorization")
	cfg.HeaderPrefix = coalesce(os.Getenv("OPENAI_API_KEY_PREFIX"), os.Getenv("OPENROUTER_API_KEY_PREFIX"))
	if cfg.HeaderName == "Authorization" && strings.TrimSpace(cfg.HeaderPrefix) == "" {
		cfg.HeaderPrefix = "Bearer "
	}
	cfg.Organization = strings.TrimSpace(os.Getenv("OPENAI_ORG"))

	if cfg.Kind == providerOpenRouter {
		site := firstNonEmpty(os.Getenv("OPENROUTER_SITE_URL"), DefaultSiteURL)
		cfg.ExtraHeaders["HTTP-Referer"] = site
		cfg.ExtraHeaders["Referer"] = site
		cfg.ExtraHeaders["X-Title"] = firstNonEmpty(os.Getenv("OPENROUTER_TITLE"), DefaultTitle)
	}
	return cfg, nil
}

// setHeaderPreserveCase sets key exactly as spelled. OpenRouter matches
// "HTTP-Referer" literally, which Header.Set would canonicalize away.
func setHeaderPreserveCase(h http.Header, key, value string) {
	key, value = strings.TrimSpace(key), strings.TrimSpace(value)
	if key == "" || value == "" {
		return
	}
	canonical := http.CanonicalHeaderKey(key)
	if canonical == key {
		h.Set(key, value)
		return
	}
	delete(h, canonical)
	h[key] = []string{value}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func coalesce(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}

func PreferOpenRouter() bool {
	return preferOpenRouterEnv()
}

// detectProviderFromModel treats vendor-prefixed slugs ("anthropic/claude-3.5-sonnet")
// as OpenRouter models.
func detectProviderFromModel(model string) (providerKind, bool) {
	normalized := strings.ToLower(strings.TrimSpace(model))
	if normalized == "" {
		return providerOpenAI, false
	}
	if strings.Contains(normalized, "/") {
		return providerOpenRouter, true
	}
	return providerOpenAI, false
}

func preferOpenRouterEnv() bool {
	if strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY")) != "" && strings.TrimSpace(os.Getenv("OPENAI_API_KEY")) == "" {
		return true
	}
	if strings.TrimSpace(os.Getenv("OPENROUTER_API_BASE")) != "" || strings.TrimSpace(os.Getenv("OPENROUTER_BASE_URL")) != "" {
		return true
	}
	for _, key := range []string{"OPENAI_API_BASE", "OPENAI_BASE_URL"} {
		if base := strings.TrimSpace(os.Getenv(key)); base != "" && strings.Contains(strings.ToLower(base), "openrouter") {
			return true
		}
	}
	return false
}
