package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"llm-arena/server/models"
)

// ArenaSystemPrompt frames every battle answer.
const ArenaSystemPrompt = `You are an AI assistant participating in a battle arena. Your task is to provide the most helpful, accurate, and well-reasoned response to the user's question.

Answer directly. Do not mention the arena, other assistants, or that your answer is being compared.`

// Options tune a chat completion.
type Options struct {
	MaxOutputTokens int
	ReasoningEffort string
}

// Client answers battle questions through an OpenAI-compatible
// chat/completions endpoint. Provider, key and base URL are resolved from the
// environment per model.
type Client struct {
	HTTP   *http.Client
	System string
	Opts   Options
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Client{
		HTTP:   &http.Client{Timeout: timeout},
		System: ArenaSystemPrompt,
		Opts:   envOptions(),
	}
}

// Respond asks model to answer question.
func (c *Client) Respond(ctx context.Context, model, question string) (string, error) {
	cfg, err := resolveAPIConfig(model)
	if err != nil {
		return "", errors.Wrap(models.ErrUpstream, err.Error())
	}

	payload := map[string]any{
		"model": cfg.Model,
		"messages": []map[string]string{
			{"role": "system", "content": coalesce(c.System, ArenaSystemPrompt)},
			{"role": "user", "content": question},
		},
	}
	if c.Opts.MaxOutputTokens > 0 {
		payload["max_tokens"] = c.Opts.MaxOutputTokens
	}
	if strings.TrimSpace(c.Opts.ReasoningEffort) != "" {
		payload["reasoning"] = map[string]any{"effort": c.Opts.ReasoningEffort}
	}
	applyTuningFromEnv(payload, cfg.Kind == providerOpenRouter)

	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	setHeaderPreserveCase(req.Header, cfg.HeaderName, cfg.HeaderPrefix+cfg.APIKey)
	if cfg.Organization != "" {
		req.Header.Set("OpenAI-Organization", cfg.Organization)
	}
	for k, v := range cfg.ExtraHeaders {
		setHeaderPreserveCase(req.Header, k, v)
	}

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		return "", errors.Wrapf(models.ErrUpstream, "%s: %v", model, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", errors.Wrapf(models.ErrUpstream, "%s: read body: %v", model, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.Wrapf(models.ErrUpstream, "%s: http %d: %s", model, resp.StatusCode, truncate(string(body), 800))
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &cc); err != nil {
		return "", errors.Wrapf(models.ErrUpstream, "%s: decode: %v", model, err)
	}
	if cc.Error != nil {
		return "", errors.Wrapf(models.ErrUpstream, "%s: %s", model, cc.Error.Message)
	}
	if len(cc.Choices) == 0 || strings.TrimSpace(cc.Choices[0].Message.Content) == "" {
		return "", errors.Wrapf(models.ErrUpstream, "%s: no choices returned", model)
	}
	log.WithFields(log.Fields{"model": model, "elapsed": time.Since(start).Round(time.Millisecond)}).Debug("completion")
	return cc.Choices[0].Message.Content, nil
}

func applyTuningFromEnv(m map[string]any, preferOpenRouter bool) {
	if v := envWithFallback(preferOpenRouter, "OPENAI_TEMPERATURE", "OPENROUTER_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			m["temperature"] = f
		}
	}
	if v := envWithFallback(preferOpenRouter, "OPENAI_TOP_P", "OPENROUTER_TOP_P"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			m["top_p"] = f
		}
	}
	if v := envWithFallback(preferOpenRouter, "OPENAI_TOP_K", "OPENROUTER_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			m["top_k"] = n
		}
	}
}

func envOptions() Options {
	var opts Options
	preferOpenRouter := preferOpenRouterEnv()
	opts.ReasoningEffort = envWithFallback(preferOpenRouter, "OPENAI_REASONING_EFFORT", "OPENROUTER_REASONING_EFFORT")
	if v := envWithFallback(preferOpenRouter, "OPENAI_MAX_OUTPUT_TOKENS", "OPENROUTER_MAX_OUTPUT_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.MaxOutputTokens = n
		}
	}
	return opts
}

func envWithFallback(preferOpenRouter bool, openAIKey, openRouterKey string) string {
	keys := []string{openAIKey, openRouterKey}
	if preferOpenRouter {
		keys[0], keys[1] = keys[1], keys[0]
	}
	for _, key := range keys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	suffix := "..."
	if n <= len(suffix) {
		suffix = ""
	}
	cut := n - len(suffix)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + suffix
}
