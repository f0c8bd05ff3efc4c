package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func chatServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func completionBody(content string) []byte {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
	return b
}

func TestChatAPIGenerate(t *testing.T) {
	srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key-123" {
			t.Errorf("auth = %q", got)
		}

		var req chatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Model != "gpt-4o-mini" {
			t.Errorf("model = %q", req.Model)
		}
		if len(req.Messages) != 2 {
			t.Errorf("got %d messages, want history plus prompt", len(req.Messages))
		}

		w.Write(completionBody("All good."))
	})

	c := NewChatAPI("key-123", srv.URL+"/v1", "gpt-4o-mini")
	got, err := c.Generate(context.Background(), GenerateRequest{
		Prompt:  "status?",
		History: []Message{{Role: "assistant", Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "All good." {
		t.Errorf("Generate() = %q", got)
	}
}

func TestChatAPIRetriesRateLimit(t *testing.T) {
	calls := 0
	srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write(completionBody("recovered"))
	})

	c := NewChatAPI("k", srv.URL, "m")
	got, err := c.Generate(context.Background(), GenerateRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "recovered" {
		t.Errorf("Generate() = %q", got)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want retry after 429", calls)
	}
}

func TestChatAPIServerErrorNotRetried(t *testing.T) {
	calls := 0
	srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	})

	c := NewChatAPI("k", srv.URL, "m")
	if _, err := c.Generate(context.Background(), GenerateRequest{Prompt: "hi"}); err == nil {
		t.Fatal("expected error for 500 status")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want no retries on server error", calls)
	}
}

func TestChatAPINoChoices(t *testing.T) {
	srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	})

	c := NewChatAPI("k", srv.URL, "m")
	if _, err := c.Generate(context.Background(), GenerateRequest{Prompt: "hi"}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}
