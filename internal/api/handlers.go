// Package api exposes the intake engine over HTTP (chi) and MCP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/silverstar/intake/internal/conversation"
	"github.com/silverstar/intake/internal/profile"
	"github.com/silverstar/intake/internal/storage"
)

const maxMessageBodySize = 64 << 10 // 64KB

// IntakeEngine is the slice of the conversation engine the API layer uses.
// Satisfied by *conversation.Engine.
type IntakeEngine interface {
	ProcessMessage(ctx context.Context, s *conversation.Session, text string) (string, map[string]any)
	SeedProfile(s *conversation.Session, fields map[string]string)
	ApplyManualUpdate(ctx context.Context, s *conversation.Session, updates map[string]string) string
	ResetConversation(s *conversation.Session) string
	JudgeFieldChange(ctx context.Context, field, proposed, current, sourceMessage string) conversation.FieldChangeJudgment
}

// JobLister exposes active listings to the API layer.
type JobLister interface {
	ListActiveJobs(limit int) ([]storage.Job, error)
}

// TurnLogger records conversation turns for audit.
type TurnLogger interface {
	SaveTurn(t storage.Turn) error
}

// Sessions is the in-memory session registry. Each session serializes its
// own turns; the registry only guards the map.
type Sessions struct {
	mu   sync.RWMutex
	byID map[string]*conversation.Session
}

// NewSessions creates an empty registry.
func NewSessions() *Sessions {
	return &Sessions{byID: make(map[string]*conversation.Session)}
}

// Create registers a new session for a user (userID may be empty for
// anonymous conversations).
func (s *Sessions) Create(userID string) *conversation.Session {
	sess := conversation.NewSession(userID)
	s.mu.Lock()
	s.byID[sess.ID] = sess
	s.mu.Unlock()
	return sess
}

// Get looks up a session by ID.
func (s *Sessions) Get(id string) (*conversation.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.byID[id]
	return sess, ok
}

// AppDeps holds dependencies for the HTTP handler. Jobs, Turns, and
// Profiles are optional; nil disables the corresponding behavior.
type AppDeps struct {
	Engine   IntakeEngine
	Sessions *Sessions
	Jobs     JobLister
	Turns    TurnLogger
	Profiles profile.Store
	Token    string
}

// NewAppHandler builds the HTTP router. All routes except /health require
// the bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/sessions", handleCreateSession(deps))
		r.Post("/sessions/{id}/messages", handleSendMessage(deps))
		r.Post("/sessions/{id}/reset", handleReset(deps))
		r.Post("/sessions/{id}/seed", handleSeedProfile(deps))
		r.Get("/sessions/{id}/profile", handleGetProfile(deps))
		r.Patch("/sessions/{id}/profile", handlePatchProfile(deps))
		r.Get("/jobs", handleListJobs(deps))
	})

	return r
}

type createSessionRequest struct {
	UserID string `json:"user_id"`
}

type createSessionResponse struct {
	SessionID string         `json:"session_id"`
	State     string         `json:"state"`
	Profile   map[string]any `json:"profile"`
}

func handleCreateSession(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSessionRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
				return
			}
		}

		sess := deps.Sessions.Create(req.UserID)

		// Returning users resume from their stored profile.
		if deps.Profiles != nil && req.UserID != "" {
			if p, err := deps.Profiles.LoadProfile(req.UserID); err == nil {
				fields := make(map[string]string)
				for _, f := range profile.Required() {
					if v := p.Get(f); v != "" {
						fields[string(f)] = v
					}
				}
				deps.Engine.SeedProfile(sess, fields)
			}
		}

		writeJSON(w, http.StatusCreated, createSessionResponse{
			SessionID: sess.ID,
			State:     string(sess.CurrentState()),
			Profile:   sess.ProfileCopy().Snapshot(),
		})
	}
}

type messageRequest struct {
	Message string `json:"message"`
}

type messageResponse struct {
	Reply   string         `json:"reply"`
	State   string         `json:"state"`
	Profile map[string]any `json:"profile"`
}

func handleSendMessage(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := deps.Sessions.Get(chi.URLParam(r, "id"))
		if !ok {
			httpError(w, http.StatusNotFound, "not_found_error", "session not found")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxMessageBodySize)
		var req messageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Message == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}

		reply, snapshot := deps.Engine.ProcessMessage(r.Context(), sess, req.Message)
		state := sess.CurrentState()

		if deps.Turns != nil {
			turn := storage.Turn{
				ID:             uuid.NewString(),
				SessionID:      sess.ID,
				CreatedAt:      time.Now(),
				UserMessage:    req.Message,
				AssistantReply: reply,
				State:          string(state),
			}
			if err := deps.Turns.SaveTurn(turn); err != nil {
				slog.Warn("failed to log turn", "session", sess.ID, "error", err)
			}
		}
		persistProfile(deps, sess)

		writeJSON(w, http.StatusOK, messageResponse{
			Reply:   reply,
			State:   string(state),
			Profile: snapshot,
		})
	}
}

func handleReset(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := deps.Sessions.Get(chi.URLParam(r, "id"))
		if !ok {
			httpError(w, http.StatusNotFound, "not_found_error", "session not found")
			return
		}

		reply := deps.Engine.ResetConversation(sess)
		writeJSON(w, http.StatusOK, messageResponse{
			Reply:   reply,
			State:   string(sess.CurrentState()),
			Profile: sess.ProfileCopy().Snapshot(),
		})
	}
}

type seedProfileRequest struct {
	Fields map[string]string `json:"fields"`
}

func handleSeedProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := deps.Sessions.Get(chi.URLParam(r, "id"))
		if !ok {
			httpError(w, http.StatusNotFound, "not_found_error", "session not found")
			return
		}

		var req seedProfileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if len(req.Fields) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "fields is required")
			return
		}
		for name := range req.Fields {
			if profile.ParseField(name) == "" {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown profile field %q", name)
				return
			}
		}

		deps.Engine.SeedProfile(sess, req.Fields)
		persistProfile(deps, sess)

		writeJSON(w, http.StatusOK, map[string]any{
			"state":   string(sess.CurrentState()),
			"profile": sess.ProfileCopy().Snapshot(),
		})
	}
}

func handleGetProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := deps.Sessions.Get(chi.URLParam(r, "id"))
		if !ok {
			httpError(w, http.StatusNotFound, "not_found_error", "session not found")
			return
		}
		writeJSON(w, http.StatusOK, sess.ProfileCopy())
	}
}

type patchProfileRequest struct {
	Updates map[string]string `json:"updates"`
	// SourceMessage, when present, triggers an intent check before any
	// already-set field is overwritten.
	SourceMessage string `json:"source_message"`
}

type patchProfileResponse struct {
	Summary  string                                      `json:"summary"`
	Rejected map[string]conversation.FieldChangeJudgment `json:"rejected,omitempty"`
	Profile  map[string]any                              `json:"profile"`
}

func handlePatchProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := deps.Sessions.Get(chi.URLParam(r, "id"))
		if !ok {
			httpError(w, http.StatusNotFound, "not_found_error", "session not found")
			return
		}

		var req patchProfileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if len(req.Updates) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "updates is required")
			return
		}

		accepted := req.Updates
		rejected := make(map[string]conversation.FieldChangeJudgment)
		if req.SourceMessage != "" {
			accepted = make(map[string]string, len(req.Updates))
			current := sess.ProfileCopy()
			for name, value := range req.Updates {
				existing := current.Get(profile.Field(name))
				if existing == "" || existing == value {
					accepted[name] = value
					continue
				}
				judgment := deps.Engine.JudgeFieldChange(r.Context(), name, value, existing, req.SourceMessage)
				if judgment.ShouldReplace {
					accepted[name] = value
				} else {
					rejected[name] = judgment
				}
			}
		}

		summary := ""
		if len(accepted) > 0 {
			summary = deps.Engine.ApplyManualUpdate(r.Context(), sess, accepted)
			persistProfile(deps, sess)
		}

		resp := patchProfileResponse{
			Summary: summary,
			Profile: sess.ProfileCopy().Snapshot(),
		}
		if len(rejected) > 0 {
			resp.Rejected = rejected
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleListJobs(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Jobs == nil {
			httpError(w, http.StatusNotImplemented, "api_error", "job store not configured")
			return
		}

		limit := 20
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 || n > 200 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid limit")
				return
			}
			limit = n
		}

		jobs, err := deps.Jobs.ListActiveJobs(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing jobs: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
	}
}

func persistProfile(deps AppDeps, sess *conversation.Session) {
	if deps.Profiles == nil || sess.UserID == "" {
		return
	}
	if err := deps.Profiles.SaveProfile(sess.UserID, sess.ProfileCopy()); err != nil {
		slog.Warn("failed to persist profile", "user", sess.UserID, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
