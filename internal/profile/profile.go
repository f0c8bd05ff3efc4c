// Package profile defines the candidate profile aggregate gathered by the
// intake conversation, and the validator that judges its completeness.
package profile

import (
	"strings"
)

// Field identifies one of the candidate attributes the intake flow collects.
type Field string

const (
	FieldFullName          Field = "full_name"
	FieldLocation          Field = "location"
	FieldAge               Field = "age"
	FieldPhysicalCondition Field = "physical_condition"
	FieldInterests         Field = "interests"
	FieldLimitations       Field = "limitations"
)

// Required returns the fields a complete profile must have, in intake order.
func Required() []Field {
	return []Field{
		FieldFullName,
		FieldLocation,
		FieldAge,
		FieldPhysicalCondition,
		FieldInterests,
		FieldLimitations,
	}
}

// Label returns the human-readable name for a field ("full name", "age", ...).
func (f Field) Label() string {
	return strings.ReplaceAll(string(f), "_", " ")
}

// ParseField maps a free-text field name ("full name", "location") to a
// Field. Returns "" if the text names no known field.
func ParseField(text string) Field {
	normalized := strings.ToLower(strings.TrimSpace(text))
	normalized = strings.ReplaceAll(normalized, "_", " ")
	for _, f := range Required() {
		if strings.Contains(normalized, f.Label()) {
			return f
		}
	}
	// Common aliases.
	switch {
	case strings.Contains(normalized, "name"):
		return FieldFullName
	case strings.Contains(normalized, "city"), strings.Contains(normalized, "where"):
		return FieldLocation
	case strings.Contains(normalized, "health"), strings.Contains(normalized, "condition"):
		return FieldPhysicalCondition
	case strings.Contains(normalized, "interest"), strings.Contains(normalized, "hobb"):
		return FieldInterests
	case strings.Contains(normalized, "limit"), strings.Contains(normalized, "restrict"):
		return FieldLimitations
	}
	return ""
}

// RoleSuggestion is one suggested role in the executive summary.
type RoleSuggestion struct {
	Title  string `json:"title"`
	Reason string `json:"reason"`
}

// ExecutiveSummary is the oracle-produced overview of a completed profile.
type ExecutiveSummary struct {
	Overview       string           `json:"overview"`
	SuggestedRoles []RoleSuggestion `json:"suggested_roles"`
	NextSteps      []string         `json:"next_steps"`
}

// ValidationResult is the profile validator's verdict.
type ValidationResult struct {
	IsComplete    bool     `json:"is_complete"`
	MissingFields []string `json:"missing_fields"`
	Issues        []string `json:"issues"`
	Summary       string   `json:"summary"`
	Notes         string   `json:"notes,omitempty"`
}

// CandidateProfile is the mutable aggregate owned by one conversation
// session. All attribute fields hold trimmed free text; "" means unset.
type CandidateProfile struct {
	FullName          string `json:"full_name,omitempty"`
	Location          string `json:"location,omitempty"`
	Age               string `json:"age,omitempty"`
	PhysicalCondition string `json:"physical_condition,omitempty"`
	Interests         string `json:"interests,omitempty"`
	Limitations       string `json:"limitations,omitempty"`

	Validation       *ValidationResult `json:"validation,omitempty"`
	ExecutiveSummary *ExecutiveSummary `json:"executive_summary,omitempty"`
	JobSuggestions   []RoleSuggestion  `json:"job_suggestions,omitempty"`
}

// Get returns the current value of a field.
func (p *CandidateProfile) Get(f Field) string {
	switch f {
	case FieldFullName:
		return p.FullName
	case FieldLocation:
		return p.Location
	case FieldAge:
		return p.Age
	case FieldPhysicalCondition:
		return p.PhysicalCondition
	case FieldInterests:
		return p.Interests
	case FieldLimitations:
		return p.Limitations
	}
	return ""
}

// Set writes a field only when the trimmed value is non-empty. Empty or
// whitespace values never clear an already-set field through this path;
// use Overwrite for explicit manual updates. Returns true if the field
// changed.
func (p *CandidateProfile) Set(f Field, value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	return p.Overwrite(f, value)
}

// Overwrite writes a field unconditionally (manual-update path; empty
// values are permitted and clear the field). Returns true if the stored
// value changed.
func (p *CandidateProfile) Overwrite(f Field, value string) bool {
	value = strings.TrimSpace(value)
	if p.Get(f) == value {
		return false
	}
	switch f {
	case FieldFullName:
		p.FullName = value
	case FieldLocation:
		p.Location = value
	case FieldAge:
		p.Age = value
	case FieldPhysicalCondition:
		p.PhysicalCondition = value
	case FieldInterests:
		p.Interests = value
	case FieldLimitations:
		p.Limitations = value
	default:
		return false
	}
	return true
}

// sentinels are values equivalent to "missing" for completeness checks.
var sentinels = map[string]bool{
	"n/a": true, "na": true, "unknown": true, "none": true, "null": true,
}

// IsMissing reports whether a field is unset or holds a sentinel value.
func (p *CandidateProfile) IsMissing(f Field) bool {
	v := strings.ToLower(strings.TrimSpace(p.Get(f)))
	return v == "" || sentinels[v]
}

// MissingFields returns the required fields still missing, in intake order.
func (p *CandidateProfile) MissingFields() []Field {
	var missing []Field
	for _, f := range Required() {
		if p.IsMissing(f) {
			missing = append(missing, f)
		}
	}
	return missing
}

// Snapshot returns the six attribute fields as a map, with nil for unset
// fields. Used for prompt building and API payloads.
func (p *CandidateProfile) Snapshot() map[string]any {
	out := make(map[string]any, 6)
	for _, f := range Required() {
		if v := p.Get(f); v != "" {
			out[string(f)] = v
		} else {
			out[string(f)] = nil
		}
	}
	return out
}

// Clone returns a deep copy safe to hand to callers.
func (p *CandidateProfile) Clone() *CandidateProfile {
	cp := *p
	if p.Validation != nil {
		v := *p.Validation
		v.MissingFields = append([]string(nil), p.Validation.MissingFields...)
		v.Issues = append([]string(nil), p.Validation.Issues...)
		cp.Validation = &v
	}
	if p.ExecutiveSummary != nil {
		s := *p.ExecutiveSummary
		s.SuggestedRoles = append([]RoleSuggestion(nil), p.ExecutiveSummary.SuggestedRoles...)
		s.NextSteps = append([]string(nil), p.ExecutiveSummary.NextSteps...)
		cp.ExecutiveSummary = &s
	}
	cp.JobSuggestions = append([]RoleSuggestion(nil), p.JobSuggestions...)
	return &cp
}

// Store persists candidate profiles for returning users.
// Implemented by storage.Store.
type Store interface {
	LoadProfile(userID string) (*CandidateProfile, error)
	SaveProfile(userID string, p *CandidateProfile) error
}
