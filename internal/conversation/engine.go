package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/silverstar/intake/internal/extract"
	"github.com/silverstar/intake/internal/oracle"
	"github.com/silverstar/intake/internal/profile"
	"github.com/silverstar/intake/internal/recommend"
	"github.com/silverstar/intake/internal/validation"
)

// AnswerJudge decides whether a reply answers the pending question.
// Satisfied by *validation.AnswerValidator.
type AnswerJudge interface {
	Validate(ctx context.Context, question, answer, questionType string, history []oracle.Message) validation.Result
}

// ProfileJudge decides completeness of the accumulated profile.
// Satisfied by *profile.Validator.
type ProfileJudge interface {
	Validate(ctx context.Context, p *profile.CandidateProfile) profile.ValidationResult
}

// Recommender ranks jobs for a finished profile.
// Satisfied by *recommend.Recommender.
type Recommender interface {
	Recommend(ctx context.Context, p *profile.CandidateProfile, limit int) []recommend.Recommendation
	Format(recs []recommend.Recommendation) string
}

// Question types for the sub-dialogues. Field questions use the field name
// itself as their type.
const (
	questionTypeCorrection     = "confirm_correction"
	questionTypeConfirmProfile = "confirm_profile"
	questionTypeFieldSelection = "field_selection"
	questionTypeConsent        = "recommendation_consent"
)

// Engine drives intake conversations. All collaborators are injected so
// tests can substitute fakes without shared state.
type Engine struct {
	oracle      oracle.Oracle
	answers     AnswerJudge
	profiles    ProfileJudge
	recommender Recommender

	recommendLimit int
}

// NewEngine constructs an engine over the given collaborators.
func NewEngine(o oracle.Oracle, answers AnswerJudge, profiles ProfileJudge, rec Recommender) *Engine {
	return &Engine{oracle: o, answers: answers, profiles: profiles, recommender: rec}
}

// SetRecommendationLimit overrides how many job matches are offered at the
// end of an intake. Values <= 0 keep the default.
func (e *Engine) SetRecommendationLimit(n int) {
	e.recommendLimit = n
}

// ProcessMessage runs one full turn: history append, correction handling,
// answer validation with retry policy, opportunistic multi-field extraction,
// state advancement, and dispatch to the current state's handler. It never
// returns an error; every failure inside a handler degrades to a polite
// re-ask. The returned map is a snapshot of the profile after the turn.
func (e *Engine) ProcessMessage(ctx context.Context, s *Session, text string) (string, map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	text = strings.TrimSpace(text)
	s.appendHistory("user", text)

	reply := e.processTurn(ctx, s, text)

	s.appendHistory("assistant", reply)
	return reply, s.Profile.Snapshot()
}

func (e *Engine) processTurn(ctx context.Context, s *Session, text string) string {
	// A pending typo correction takes priority over everything else.
	if s.LastQuestionType == questionTypeCorrection && s.Pending != nil {
		return e.handleCorrectionReply(ctx, s, text)
	}

	progress := false

	if s.LastQuestion != "" && isFieldQuestion(s.LastQuestionType) {
		field := profile.Field(s.LastQuestionType)

		// The literal "skip" token always advances, regardless of retries.
		if strings.EqualFold(text, "skip") {
			s.clearQuestion()
			s.resetRetry(field)
			s.State = StateValidatingProfile
			return "No problem, we can come back to that later. Let me check what we have so far; send me a message when you're ready to continue."
		}

		result := e.answers.Validate(ctx, s.LastQuestion, text, s.LastQuestionType, s.History)
		if !result.IsValid {
			return e.reaskOrEscalate(s, field)
		}

		value := strings.TrimSpace(result.ExtractedValue)
		if value == "" {
			value = heuristicFor(field)(text)
		}
		if value == "" {
			value = text
		}
		if field == profile.FieldAge {
			// Age stores only a plausible in-range number. A validator pass
			// without one is still a re-ask.
			age := extract.Age(value)
			if age == "" {
				age = extract.Age(text)
			}
			if age == "" {
				return e.reaskOrEscalate(s, field)
			}
			value = age
		}
		s.resetRetry(field)
		if s.Profile.Set(field, value) {
			progress = true
		}
		s.clearQuestion()

		// Likely-typo check on the just-captured value.
		if corrected := collapseRepeats(value); corrected != value {
			s.Pending = &PendingCorrection{Field: field, Original: value, Corrected: corrected}
			s.LastQuestion = correctionQuestion(value, corrected)
			s.LastQuestionType = questionTypeCorrection
			return s.LastQuestion
		}
	}

	if e.autofill(ctx, s, text) {
		progress = true
	}

	e.advance(s)

	return e.dispatch(ctx, s, text, progress)
}

// reaskOrEscalate implements the retry policy: a short re-ask first, then
// from the second consecutive failure an escalated prompt with an example
// value and a skip hint.
func (e *Engine) reaskOrEscalate(s *Session, field profile.Field) string {
	rs := s.retry(field)
	rs.Count++

	var prompt string
	if rs.Count >= 2 {
		prompt = escalatedReask(field)
	} else {
		prompt = plainReask(field)
	}
	rs.LastPrompt = prompt
	s.LastQuestion = prompt
	s.LastQuestionType = string(field)
	return prompt
}

// minExtractLen skips the oracle fallback for trivial replies ("ok", "62"
// answered questions are handled by the validator path, not here).
const minExtractLen = 4

// extractHistoryTail limits conversation context sent with extraction calls.
const extractHistoryTail = 6

// autofill runs the two-stage extraction pipeline against every field still
// empty: deterministic heuristics first, one oracle extraction call for
// whatever remains. Set never overwrites, so existing values are safe.
func (e *Engine) autofill(ctx context.Context, s *Session, text string) bool {
	if text == "" {
		return false
	}

	filled := false
	for _, f := range profile.Required() {
		if !s.Profile.IsMissing(f) {
			continue
		}
		if v := heuristicFor(f)(text); v != "" && s.Profile.Set(f, v) {
			filled = true
		}
	}

	var missing []profile.Field
	for _, f := range profile.Required() {
		if s.Profile.IsMissing(f) {
			missing = append(missing, f)
		}
	}

	if len(missing) > 0 && len(text) >= minExtractLen {
		history := s.History
		if len(history) > extractHistoryTail {
			history = history[len(history)-extractHistoryTail:]
		}
		got := e.oracle.Extract(ctx, autofillPrompt(text), schemaFor(missing), history)
		for _, f := range missing {
			v, ok := got[string(f)].(string)
			if !ok || strings.TrimSpace(v) == "" {
				continue
			}
			if f == profile.FieldAge {
				age := extract.Age(v)
				if age == "" {
					continue
				}
				v = age
			}
			if s.Profile.Set(f, v) {
				filled = true
			}
		}
	}

	// If the pending question's field got filled opportunistically, the
	// question is answered.
	if filled && isFieldQuestion(s.LastQuestionType) && !s.Profile.IsMissing(profile.Field(s.LastQuestionType)) {
		s.clearQuestion()
	}
	return filled
}

func autofillPrompt(text string) string {
	return fmt.Sprintf(`Extract candidate profile details from this message if they are present. Only extract values the user actually stated; use null for anything not mentioned. Do not guess.

Message: %q`, text)
}

func schemaFor(fields []profile.Field) oracle.Schema {
	props := make(map[string]oracle.SchemaProperty, len(fields))
	for _, f := range fields {
		props[string(f)] = oracle.SchemaProperty{Type: "string", Description: f.Label() + " of the candidate, or null"}
	}
	return oracle.Schema{Type: "object", Properties: props}
}

// advance moves past collecting states whose field is already filled.
// Bounded: at most one pass over the intake path per turn.
func (e *Engine) advance(s *Session) {
	for range collectingOrder {
		f := s.State.Field()
		if f == "" || s.Profile.IsMissing(f) {
			return
		}
		s.State = s.State.next()
	}
}

func (e *Engine) dispatch(ctx context.Context, s *Session, text string, progress bool) string {
	switch s.State {
	case StateGreeting:
		return e.handleGreeting(s)
	case StateCollectingFullName, StateCollectingLocation, StateCollectingAge,
		StateCollectingCondition, StateCollectingInterests, StateCollectingLimits:
		return e.handleCollecting(s, progress)
	case StateConfirmingProfile:
		return e.handleConfirmProfile(ctx, s, text)
	case StateFieldSelection:
		return e.handleFieldSelection(s, text)
	case StateValidatingProfile:
		return e.handleValidation(ctx, s)
	case StateAwaitingConsent:
		return e.handleConsent(ctx, s, text)
	case StateRecommendingJobs:
		return e.handleRecommendations(ctx, s)
	case StateProfileComplete:
		return e.handleGeneralQuery(ctx, s, text)
	default:
		// Unrecognized state: route to the general handler instead of crashing.
		slog.Warn("unrecognized conversation state", "state", s.State, "session", s.ID)
		return e.handleGeneralQuery(ctx, s, text)
	}
}

func (e *Engine) handleGreeting(s *Session) string {
	missing := s.Profile.MissingFields()
	if len(missing) == 0 {
		s.State = StateConfirmingProfile
		return greetingText + "\n\n" + e.askConfirmProfile(s)
	}
	s.State = StateForField(missing[0])
	return greetingText + " " + e.ask(s, missing[0])
}

func (e *Engine) handleCollecting(s *Session, progress bool) string {
	f := s.State.Field()
	q := e.ask(s, f)
	if progress {
		return "Thanks! " + q
	}
	return "I'm sorry, I didn't quite get that. " + q
}

func (e *Engine) handleConfirmProfile(ctx context.Context, s *Session, text string) string {
	if missing := s.Profile.MissingFields(); len(missing) > 0 {
		// Never ask "is this correct?" about a profile with holes.
		s.State = StateForField(missing[0])
		return "Welcome back! Let's fill in a few details first. " + e.ask(s, missing[0])
	}

	if s.LastQuestionType != questionTypeConfirmProfile {
		return e.askConfirmProfile(s)
	}

	switch {
	case isAffirmative(text):
		s.clearQuestion()
		s.State = StateValidatingProfile
		return e.handleValidation(ctx, s)
	case profile.ParseField(text) != "":
		f := profile.ParseField(text)
		s.clearQuestion()
		s.State = StateForField(f)
		return e.ask(s, f)
	case isNegative(text):
		s.clearQuestion()
		s.State = StateFieldSelection
		s.LastQuestion = fieldSelectionQuestion
		s.LastQuestionType = questionTypeFieldSelection
		return fieldSelectionQuestion
	default:
		return "Please answer yes or no. " + profileSummaryLine(s.Profile) + " Is everything correct?"
	}
}

func (e *Engine) askConfirmProfile(s *Session) string {
	q := profileSummaryLine(s.Profile) + " Is everything correct? (yes/no)"
	s.LastQuestion = q
	s.LastQuestionType = questionTypeConfirmProfile
	return q
}

func (e *Engine) handleFieldSelection(s *Session, text string) string {
	f := profile.ParseField(text)
	if f == "" {
		return "I didn't recognize that one. " + fieldSelectionQuestion
	}
	s.clearQuestion()
	s.State = StateForField(f)
	return e.ask(s, f)
}

func (e *Engine) handleValidation(ctx context.Context, s *Session) string {
	result := e.profiles.Validate(ctx, s.Profile)
	s.Profile.Validation = &result

	if !result.IsComplete {
		if f := firstMissingField(s.Profile, result); f != "" {
			s.State = StateForField(f)
			return result.Summary + " " + e.ask(s, f)
		}
		// Nothing actionable to collect; fall through as complete.
	}

	summary := e.executiveSummary(ctx, s.Profile)
	s.State = StateAwaitingConsent
	s.LastQuestion = consentQuestion
	s.LastQuestionType = questionTypeConsent

	reply := result.Summary
	if summary != nil {
		reply += "\n\n" + summary.Overview
		for _, role := range summary.SuggestedRoles {
			reply += fmt.Sprintf("\n- %s: %s", role.Title, role.Reason)
		}
	}
	return reply + "\n\n" + consentQuestion
}

func firstMissingField(p *profile.CandidateProfile, result profile.ValidationResult) profile.Field {
	if missing := p.MissingFields(); len(missing) > 0 {
		return missing[0]
	}
	for _, name := range result.MissingFields {
		if f := profile.ParseField(name); f != "" {
			return f
		}
	}
	return ""
}

func (e *Engine) handleConsent(ctx context.Context, s *Session, text string) string {
	switch {
	case isAffirmative(text):
		s.clearQuestion()
		s.State = StateRecommendingJobs
		return e.handleRecommendations(ctx, s)
	case isNegative(text):
		s.clearQuestion()
		s.State = StateProfileComplete
		return closingText
	default:
		return "Just to be sure: " + consentQuestion
	}
}

func (e *Engine) handleRecommendations(ctx context.Context, s *Session) string {
	limit := e.recommendLimit
	if limit <= 0 {
		limit = recommend.DefaultLimit
	}
	recs := e.recommender.Recommend(ctx, s.Profile, limit)
	s.State = StateProfileComplete
	s.clearQuestion()
	return e.recommender.Format(recs)
}

// handleGeneralQuery answers free-text questions once (or whenever) the
// structured flow is done. Oracle failures degrade to a canned apology and
// never move the state.
func (e *Engine) handleGeneralQuery(ctx context.Context, s *Session, text string) string {
	prompt := fmt.Sprintf(`You are a friendly job placement assistant. The candidate's profile:
%s

Answer the candidate's message helpfully and briefly. If they ask about jobs, remind them you can run a job match for them.

Message: %q`, oracle.CompactJSON(s.Profile.Snapshot(), 220, 1400), text)

	history := s.History
	if len(history) > extractHistoryTail {
		history = history[len(history)-extractHistoryTail:]
	}
	reply, err := e.oracle.Generate(ctx, oracle.GenerateRequest{
		Prompt:      prompt,
		History:     history,
		Temperature: 0.6,
		MaxTokens:   512,
	})
	if err != nil || strings.TrimSpace(reply) == "" {
		slog.Warn("general query oracle call failed", "session", s.ID, "error", err)
		return apologyGeneral
	}
	return reply
}

func (e *Engine) handleCorrectionReply(ctx context.Context, s *Session, text string) string {
	pc := s.Pending
	switch {
	case isAffirmative(text):
		s.Pending = nil
		s.clearQuestion()
		s.Profile.Overwrite(pc.Field, pc.Corrected)
		e.advance(s)
		return fmt.Sprintf("Great, I've recorded %q. ", pc.Corrected) + e.dispatch(ctx, s, "", true)
	case isNegative(text):
		s.Pending = nil
		s.clearQuestion()
		e.advance(s)
		return fmt.Sprintf("No problem, I'll keep %q. ", pc.Original) + e.dispatch(ctx, s, "", true)
	default:
		// Ambiguous reply: keep the correction pending and re-prompt.
		return s.LastQuestion
	}
}

// ask records and returns the canned question for a field.
func (e *Engine) ask(s *Session, f profile.Field) string {
	q := questionFor(f)
	s.LastQuestion = q
	s.LastQuestionType = string(f)
	return q
}

// --- session-facing operations beyond ProcessMessage ---

// SeedProfile pre-populates fields from a persisted profile and jumps the
// session to the confirmation state. Used for returning users.
func (e *Engine) SeedProfile(s *Session, fields map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, value := range fields {
		f := knownField(name)
		if f == "" {
			continue
		}
		s.Profile.Set(f, value)
	}
	s.State = StateConfirmingProfile
	s.clearQuestion()
}

// ApplyManualUpdate writes field edits directly (the non-conversational
// path; empty values clear), re-runs profile validation, and returns its
// summary text.
func (e *Engine) ApplyManualUpdate(ctx context.Context, s *Session, updates map[string]string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, value := range updates {
		f := knownField(name)
		if f == "" {
			continue
		}
		if f == profile.FieldAge && value != "" {
			if age := extract.Age(value); age != "" {
				value = age
			}
		}
		s.Profile.Overwrite(f, value)
	}

	result := e.profiles.Validate(ctx, s.Profile)
	s.Profile.Validation = &result
	return result.Summary
}

// ResetConversation reinitializes the session in place, preserving its ID.
func (e *Engine) ResetConversation(s *Session) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reset()
	return "Okay, let's start fresh! " + greetingText
}

// judgeThreshold is the minimum confidence required before an out-of-band
// field edit is allowed to replace an existing value.
const judgeThreshold = 0.75

// FieldChangeJudgment is the verdict on a proposed out-of-band field edit.
type FieldChangeJudgment struct {
	ShouldReplace bool    `json:"should_replace"`
	Confidence    float64 `json:"confidence"`
	Reason        string  `json:"reason"`
}

// JudgeFieldChange asks the oracle whether a message really intends to
// replace a stored field value. Fails closed: on any oracle failure or a
// confidence below the acceptance threshold, the change is rejected.
func (e *Engine) JudgeFieldChange(ctx context.Context, field, proposed, current, sourceMessage string) FieldChangeJudgment {
	prompt := fmt.Sprintf(`A candidate profile field may need updating.

Field: %s
Current value: %q
Proposed new value: %q
The user's message that triggered this: %q

Decide whether the user genuinely intends to replace the current value with the proposed one. Be conservative: casual mentions are not replacement intent.

Respond with valid JSON only:
{"should_replace": true/false, "confidence": 0.0-1.0, "reason": "brief explanation"}`,
		field, current, proposed, sourceMessage)

	raw, err := e.oracle.Generate(ctx, oracle.GenerateRequest{
		Prompt:      prompt,
		Temperature: 0.1,
		MaxTokens:   256,
	})
	if err != nil {
		slog.Warn("field change judgment oracle call failed", "field", field, "error", err)
		return FieldChangeJudgment{Reason: "judgment unavailable: " + err.Error()}
	}

	var parsed struct {
		ShouldReplace *bool    `json:"should_replace"`
		Confidence    *float64 `json:"confidence"`
		Reason        string   `json:"reason"`
	}
	if err := json.Unmarshal([]byte(oracle.StripJSONFences(raw)), &parsed); err != nil ||
		parsed.ShouldReplace == nil || parsed.Confidence == nil {
		slog.Warn("failed to parse field change judgment", "field", field, "response", raw)
		return FieldChangeJudgment{Reason: "invalid judgment response format"}
	}

	j := FieldChangeJudgment{
		ShouldReplace: *parsed.ShouldReplace,
		Confidence:    *parsed.Confidence,
		Reason:        parsed.Reason,
	}
	if j.Confidence < judgeThreshold {
		j.ShouldReplace = false
	}
	return j
}

// executiveSummary asks the oracle for a structured overview of a complete
// profile. Best-effort: returns nil on any failure, and the flow proceeds
// without a summary.
func (e *Engine) executiveSummary(ctx context.Context, p *profile.CandidateProfile) *profile.ExecutiveSummary {
	prompt := fmt.Sprintf(`Write an executive summary of this job candidate for a placement counselor.

Candidate profile:
%s

Respond with valid JSON only:
{
  "overview": "2-3 sentence overview of the candidate",
  "suggested_roles": [{"title": "role name", "reason": "one sentence"}],
  "next_steps": ["short actionable step"]
}
Include 2-4 suggested roles.`, oracle.CompactJSON(p.Snapshot(), 220, 1400))

	raw, err := e.oracle.Generate(ctx, oracle.GenerateRequest{
		Prompt:      prompt,
		Temperature: 0.3,
		MaxTokens:   1024,
	})
	if err != nil {
		slog.Warn("executive summary oracle call failed", "error", err)
		return nil
	}

	var summary profile.ExecutiveSummary
	if err := json.Unmarshal([]byte(oracle.StripJSONFences(raw)), &summary); err != nil || summary.Overview == "" {
		slog.Warn("failed to parse executive summary", "error", err, "response", raw)
		return nil
	}

	p.ExecutiveSummary = &summary
	p.JobSuggestions = append([]profile.RoleSuggestion(nil), summary.SuggestedRoles...)
	return &summary
}

// --- helpers ---

func isFieldQuestion(questionType string) bool {
	f := profile.Field(questionType)
	for _, required := range profile.Required() {
		if f == required {
			return true
		}
	}
	return false
}

// knownField resolves an exact field name first, then free-text aliases.
func knownField(name string) profile.Field {
	if isFieldQuestion(name) {
		return profile.Field(name)
	}
	return profile.ParseField(name)
}

func heuristicFor(f profile.Field) func(string) string {
	switch f {
	case profile.FieldFullName:
		return extract.FullName
	case profile.FieldLocation:
		return extract.Location
	case profile.FieldAge:
		return extract.Age
	case profile.FieldPhysicalCondition:
		return extract.Condition
	case profile.FieldInterests:
		return extract.Interests
	case profile.FieldLimitations:
		return extract.Limitations
	}
	return func(string) string { return "" }
}

var affirmativeWords = map[string]bool{
	"yes": true, "y": true, "yeah": true, "yep": true, "yup": true,
	"sure": true, "correct": true, "right": true, "ok": true, "okay": true,
	"absolutely": true, "definitely": true, "please": true,
}

var negativeWords = map[string]bool{
	"no": true, "n": true, "nope": true, "nah": true, "wrong": true,
	"incorrect": true, "not": true,
}

func isAffirmative(text string) bool {
	return firstWordIn(text, affirmativeWords)
}

func isNegative(text string) bool {
	return firstWordIn(text, negativeWords)
}

func firstWordIn(text string, words map[string]bool) bool {
	fields := strings.Fields(strings.ToLower(strings.Trim(text, " .,!?")))
	if len(fields) == 0 {
		return false
	}
	return words[strings.Trim(fields[0], ".,!?")]
}

// collapseRepeats reduces runs of three or more identical letters to one,
// flagging likely keyboard-repeat typos ("Lopezzz" -> "Lopez"). Digits and
// punctuation are left alone.
func collapseRepeats(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		run := 1
		for i+run < len(runes) && runes[i+run] == runes[i] {
			run++
		}
		if run >= 3 && unicode.IsLetter(runes[i]) {
			b.WriteRune(runes[i])
		} else {
			for j := 0; j < run; j++ {
				b.WriteRune(runes[i])
			}
		}
		i += run - 1
	}
	return b.String()
}
