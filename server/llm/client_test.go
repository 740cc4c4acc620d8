package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"unicode/utf8"

	"github.com/pkg/errors"

	"llm-arena/server/models"
)

func TestRespond(t *testing.T) {
	clearLLMEnv(t)
	var got struct {
		Model       string              `json:"model"`
		Messages    []map[string]string `json:"messages"`
		Temperature float64             `json:"temperature"`
	}
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		headers = r.Header.Clone()
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Paris."}}]}`))
	}))
	defer srv.Close()

	t.Setenv("OPENROUTER_BASE_URL", srv.URL)
	t.Setenv("OPENROUTER_API_KEY", "test-key")
	t.Setenv("OPENROUTER_TEMPERATURE", "0.2")

	out, err := NewClient(0).Respond(context.Background(), "openai/gpt-4o-mini", "Capital of France?")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if out != "Paris." {
		t.Fatalf("unexpected answer %q", out)
	}
	if got.Model != "openai/gpt-4o-mini" {
		t.Fatalf("unexpected model %q", got.Model)
	}
	if len(got.Messages) != 2 || got.Messages[0]["content"] != ArenaSystemPrompt || got.Messages[1]["content"] != "Capital of France?" {
		t.Fatalf("unexpected messages %+v", got.Messages)
	}
	if got.Temperature != 0.2 {
		t.Fatalf("unexpected temperature %v", got.Temperature)
	}
	if h := headers.Get("Authorization"); h != "Bearer test-key" {
		t.Fatalf("unexpected Authorization %q", h)
	}
	if h := headers.Get("X-Title"); h != DefaultTitle {
		t.Fatalf("unexpected X-Title %q", h)
	}
}

func TestRespondUpstreamErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"http error", http.StatusBadGateway, `{"error":{"message":"overloaded"}}`},
		{"provider error", http.StatusOK, `{"error":{"message":"model not available"}}`},
		{"no choices", http.StatusOK, `{"choices":[]}`},
		{"garbage", http.StatusOK, `not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearLLMEnv(t)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()
			t.Setenv("OPENROUTER_BASE_URL", srv.URL)
			t.Setenv("OPENROUTER_API_KEY", "test-key")

			_, err := NewClient(0).Respond(context.Background(), "openai/gpt-4o-mini", "q")
			if !errors.Is(err, models.ErrUpstream) {
				t.Fatalf("expected ErrUpstream, got %v", err)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"abcdefghij", 8, "abcde..."},
		{"abc", 2, "ab"},
		{"héllo wörld", 8, "héll..."},
		{"日本語のテキスト", 7, "日..."},
		{"日本語", 2, ""},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.n)
		if got != tt.want {
			t.Fatalf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Fatalf("truncate(%q, %d) = %q is not valid UTF-8", tt.in, tt.n, got)
		}
		if len(got) > tt.n && got != tt.in {
			t.Fatalf("truncate(%q, %d) = %q is longer than %d bytes", tt.in, tt.n, got, tt.n)
		}
	}
}
