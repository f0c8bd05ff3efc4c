package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// fakeGen implements Generator for testing.
type fakeGen struct {
	responses []string
	errs      []error
	calls     int
	lastReq   GenerateRequest
}

func (f *fakeGen) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	i := f.calls
	f.calls++
	f.lastReq = req
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	var resp string
	if i < len(f.responses) {
		resp = f.responses[i]
	}
	return resp, err
}

func testSchema() Schema {
	return Schema{
		Type: "object",
		Properties: map[string]SchemaProperty{
			"full_name": {Type: "string", Description: "The candidate's full name"},
			"location":  {Type: "string", Description: "Where the candidate lives"},
		},
	}
}

func TestExtract_ParsesResponse(t *testing.T) {
	gen := &fakeGen{responses: []string{`{"full_name":"Jane Doe","location":null}`}}
	c := NewClient(gen)

	got := c.Extract(context.Background(), "extract the fields", testSchema(), nil)

	if got["full_name"] != "Jane Doe" {
		t.Errorf("full_name = %v, want Jane Doe", got["full_name"])
	}
	if got["location"] != nil {
		t.Errorf("location = %v, want nil", got["location"])
	}
}

func TestExtract_StripsCodeFences(t *testing.T) {
	gen := &fakeGen{responses: []string{"```json\n{\"full_name\":\"Sam Park\",\"location\":\"Boston\"}\n```"}}
	c := NewClient(gen)

	got := c.Extract(context.Background(), "extract", testSchema(), nil)
	if got["location"] != "Boston" {
		t.Errorf("location = %v, want Boston", got["location"])
	}
}

func TestExtract_MalformedJSON(t *testing.T) {
	gen := &fakeGen{responses: []string{`not json at all {{{`}}
	c := NewClient(gen)

	got := c.Extract(context.Background(), "extract", testSchema(), nil)
	if len(got) != 2 {
		t.Fatalf("result has %d keys, want 2", len(got))
	}
	for key, v := range got {
		if v != nil {
			t.Errorf("key %q = %v, want nil on parse failure", key, v)
		}
	}
}

func TestExtract_GeneratorError(t *testing.T) {
	gen := &fakeGen{errs: []error{fmt.Errorf("connection refused")}}
	c := NewClient(gen)

	got := c.Extract(context.Background(), "extract", testSchema(), nil)
	for key, v := range got {
		if v != nil {
			t.Errorf("key %q = %v, want nil on generator error", key, v)
		}
	}
}

func TestExtract_IgnoresUnknownKeys(t *testing.T) {
	gen := &fakeGen{responses: []string{`{"full_name":"Jo","extra":"junk"}`}}
	c := NewClient(gen)

	got := c.Extract(context.Background(), "extract", testSchema(), nil)
	if _, ok := got["extra"]; ok {
		t.Error("result contains key outside the schema")
	}
}

func TestFallback_PrimarySucceeds(t *testing.T) {
	primary := &fakeGen{responses: []string{"hello"}}
	secondary := &fakeGen{responses: []string{"should not be used"}}
	f := &Fallback{Primary: primary, Secondary: secondary}

	got, err := f.Generate(context.Background(), GenerateRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "hello" {
		t.Errorf("Generate() = %q, want hello", got)
	}
	if secondary.calls != 0 {
		t.Errorf("secondary was called %d times, want 0", secondary.calls)
	}
}

func TestFallback_RetriesPrimaryThenUsesSecondary(t *testing.T) {
	primary := &fakeGen{
		responses: []string{"", ""},
		errs:      []error{fmt.Errorf("boom"), fmt.Errorf("boom")},
	}
	secondary := &fakeGen{responses: []string{"backup answer"}}
	f := &Fallback{Primary: primary, Secondary: secondary}

	got, err := f.Generate(context.Background(), GenerateRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "backup answer" {
		t.Errorf("Generate() = %q, want backup answer", got)
	}
	if primary.calls != 2 {
		t.Errorf("primary called %d times, want 2", primary.calls)
	}
}

func TestFallback_NoSecondaryReturnsError(t *testing.T) {
	primary := &fakeGen{errs: []error{fmt.Errorf("down"), fmt.Errorf("down")}}
	f := &Fallback{Primary: primary}

	if _, err := f.Generate(context.Background(), GenerateRequest{Prompt: "hi"}); err == nil {
		t.Fatal("Generate() error = nil, want error")
	}
}

func TestChatAPI_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s, want /chat/completions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}

		var req chatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if len(req.Messages) != 2 {
			t.Errorf("got %d messages, want 2 (history + prompt)", len(req.Messages))
		}

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "reply text"}},
			},
		})
	}))
	defer srv.Close()

	c := NewChatAPI("test-key", srv.URL, "gpt-test")
	got, err := c.Generate(context.Background(), GenerateRequest{
		Prompt:  "question",
		History: []Message{{Role: "assistant", Content: "earlier"}},
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "reply text" {
		t.Errorf("Generate() = %q, want reply text", got)
	}
}

func TestChatAPI_RetriesOnRateLimit(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "ok"}},
			},
		})
	}))
	defer srv.Close()

	c := NewChatAPI("k", srv.URL, "m")
	got, err := c.Generate(context.Background(), GenerateRequest{Prompt: "q"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "ok" {
		t.Errorf("Generate() = %q, want ok", got)
	}
	if hits != 2 {
		t.Errorf("server hit %d times, want 2", hits)
	}
}

func TestChatAPI_NonRetryableStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewChatAPI("k", srv.URL, "m")
	if _, err := c.Generate(context.Background(), GenerateRequest{Prompt: "q"}); err == nil {
		t.Fatal("Generate() error = nil, want error on 400")
	}
}
