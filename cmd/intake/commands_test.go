package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found_error"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestSendTurn(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /sessions/abc/messages": `{"reply":"Thanks! What city do you live in?","state":"collecting_location","profile":{}}`,
	})

	reply, err := sendTurn(ctx, ts.client(), "abc", "Hi, I'm Maria Lopez")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "Thanks! What city do you live in?" {
		t.Errorf("reply = %q", reply)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}

	var body map[string]string
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["message"] != "Hi, I'm Maria Lopez" {
		t.Errorf("body.message = %q", body["message"])
	}
}

func TestSendTurnServerError(t *testing.T) {
	ts := newTestServer(t, nil)

	if _, err := sendTurn(ctx, ts.client(), "missing", "hi"); err == nil {
		t.Fatal("expected error for 404 response")
	}
}

func TestProfilePatchRequestShape(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"PATCH /sessions/abc/profile": `{"summary":"Here is your updated profile.","profile":{"age":"70"}}`,
	})
	client := ts.client()

	body := map[string]any{"updates": map[string]string{"age": "70"}}
	resp, err := client.patch(ctx, "/sessions/abc/profile", body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		Summary string `json:"summary"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result.Summary == "" {
		t.Error("summary is empty")
	}

	var sent struct {
		Updates map[string]string `json:"updates"`
	}
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &sent); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if sent.Updates["age"] != "70" {
		t.Errorf("updates = %v", sent.Updates)
	}
}

func TestDecodeJSONErrorBody(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, err := ts.client().get(ctx, "/nope")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var v any
	err = decodeJSON(resp, &v)
	if err == nil {
		t.Fatal("expected error for 404")
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("0123456789abcdef"); got != "01234567" {
		t.Errorf("shortID = %q", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Errorf("shortID = %q, want unchanged short input", got)
	}
}

func TestCountLabel(t *testing.T) {
	if got := countLabel(5, 100); got != "5" {
		t.Errorf("countLabel = %q", got)
	}
	if got := countLabel(100, 100); got != "100+" {
		t.Errorf("countLabel = %q", got)
	}
}
