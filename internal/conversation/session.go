package conversation

import (
	"sync"

	"github.com/google/uuid"

	"github.com/silverstar/intake/internal/oracle"
	"github.com/silverstar/intake/internal/profile"
)

// RetryState tracks consecutive failed answers for one field.
type RetryState struct {
	Count      int
	LastPrompt string
}

// PendingCorrection is a detected likely typo awaiting a yes/no from the
// user. At most one exists per session at a time.
type PendingCorrection struct {
	Field     profile.Field
	Original  string
	Corrected string
}

// Session is one user's intake conversation. It exclusively owns its profile,
// history, and retry counters; nothing is shared across sessions. Turns on
// the same session are serialized by the engine, so a slow oracle call for
// one session never stalls another.
type Session struct {
	ID     string
	UserID string

	Profile *profile.CandidateProfile
	State   State

	// History is append-only; insertion order is the conversation order.
	History []oracle.Message

	// LastQuestion and LastQuestionType hold the outstanding question and
	// which field (or sub-dialogue) it targets. Both empty when no question
	// is pending.
	LastQuestion     string
	LastQuestionType string

	Retries map[profile.Field]*RetryState
	Pending *PendingCorrection

	mu sync.Mutex
}

// NewSession creates a fresh session in the greeting state.
func NewSession(userID string) *Session {
	return &Session{
		ID:      uuid.NewString(),
		UserID:  userID,
		Profile: &profile.CandidateProfile{},
		State:   StateGreeting,
		Retries: make(map[profile.Field]*RetryState),
	}
}

// reset reinitializes state, profile, and history while preserving the
// session identity. Caller must hold the session lock.
func (s *Session) reset() {
	s.Profile = &profile.CandidateProfile{}
	s.State = StateGreeting
	s.History = nil
	s.LastQuestion = ""
	s.LastQuestionType = ""
	s.Retries = make(map[profile.Field]*RetryState)
	s.Pending = nil
}

func (s *Session) appendHistory(role, content string) {
	s.History = append(s.History, oracle.Message{Role: role, Content: content})
}

func (s *Session) clearQuestion() {
	s.LastQuestion = ""
	s.LastQuestionType = ""
}

// retry returns the retry state for a field, creating it on first use.
func (s *Session) retry(f profile.Field) *RetryState {
	rs, ok := s.Retries[f]
	if !ok {
		rs = &RetryState{}
		s.Retries[f] = rs
	}
	return rs
}

func (s *Session) resetRetry(f profile.Field) {
	delete(s.Retries, f)
}

// CurrentState returns the conversation state under the session lock.
func (s *Session) CurrentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.State
}

// ProfileCopy returns a deep copy of the profile safe for concurrent readers.
func (s *Session) ProfileCopy() *profile.CandidateProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Profile.Clone()
}
