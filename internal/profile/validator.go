package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/silverstar/intake/internal/oracle"
)

const (
	summaryComplete   = "I've captured all of your details and everything looks complete."
	summaryIncomplete = "I still need a bit more information before the profile is complete."
)

const (
	validatorMaxFieldChars = 220
	validatorMaxTotalChars = 1400
	validatorMaxTokens     = 1024
)

// Validator judges profile completeness by combining a deterministic local
// check with an oracle review. Oracle failures degrade to the local check;
// Validate never returns an error.
type Validator struct {
	oracle oracle.Oracle
}

// NewValidator creates a Validator backed by the given oracle.
func NewValidator(o oracle.Oracle) *Validator {
	return &Validator{oracle: o}
}

// Validate computes the completeness verdict for a profile. The locally
// computed missing-field set is authoritative: the oracle may add missing
// fields or issues but can never shrink the local set.
func (v *Validator) Validate(ctx context.Context, p *CandidateProfile) ValidationResult {
	result := ValidationResult{}

	localMissing := make(map[string]bool)
	for _, f := range p.MissingFields() {
		localMissing[string(f)] = true
		result.MissingFields = append(result.MissingFields, string(f))
	}

	if len(result.MissingFields) > 0 {
		labels := make([]string, 0, len(result.MissingFields))
		for _, name := range result.MissingFields {
			labels = append(labels, Field(name).Label())
		}
		result.Issues = append(result.Issues,
			"Some required fields are missing: "+strings.Join(labels, ", "))
	}

	oracleResult, err := v.askOracle(ctx, p)
	if err != nil {
		slog.Warn("profile validation falling back to local check", "error", err)
		result.IsComplete = len(result.MissingFields) == 0
		result.Summary = fallbackSummary(result.IsComplete)
		return result
	}

	// Union the missing-field sets; the oracle can only add.
	merged := localMissing
	for _, name := range oracleResult.MissingFields {
		merged[name] = true
	}
	result.MissingFields = result.MissingFields[:0]
	for name := range merged {
		result.MissingFields = append(result.MissingFields, name)
	}
	sort.Strings(result.MissingFields)

	if len(oracleResult.Issues) > 0 {
		result.Issues = append(result.Issues, oracleResult.Issues...)
	}
	if oracleResult.Summary != "" {
		result.Summary = oracleResult.Summary
	}
	result.Notes = oracleResult.Notes

	if len(result.MissingFields) > 0 {
		result.IsComplete = false
	} else {
		result.IsComplete = oracleResult.IsComplete
	}

	if result.Summary == "" {
		result.Summary = fallbackSummary(result.IsComplete)
	}
	return result
}

func fallbackSummary(complete bool) string {
	if complete {
		return summaryComplete
	}
	return summaryIncomplete
}

func (v *Validator) askOracle(ctx context.Context, p *CandidateProfile) (ValidationResult, error) {
	snapshot := oracle.CompactJSON(p.Snapshot(), validatorMaxFieldChars, validatorMaxTotalChars)

	prompt := fmt.Sprintf(`You are validating a candidate intake form for a community job placement program.
Review the profile below and determine if it contains meaningful information for each field.

Candidate Profile:
%s

Respond with JSON using this schema:
{
  "is_complete": true/false,
  "missing_fields": ["field_name", ...],
  "issues": ["short explanation", ...],
  "summary": "friendly one or two sentence summary of the candidate",
  "notes": "optional additional note or null"
}

- Treat values like "N/A", "unknown", "none" as missing.
- The summary should read naturally and reference key details.
- If everything looks good, keep "issues" as an empty list.`, snapshot)

	raw, err := v.oracle.Generate(ctx, oracle.GenerateRequest{
		Prompt:      prompt,
		Temperature: 0.2,
		MaxTokens:   validatorMaxTokens,
	})
	if err != nil {
		return ValidationResult{}, fmt.Errorf("oracle review: %w", err)
	}

	var parsed ValidationResult
	if err := json.Unmarshal([]byte(oracle.StripJSONFences(raw)), &parsed); err != nil {
		return ValidationResult{}, fmt.Errorf("parsing oracle review: %w", err)
	}
	return parsed, nil
}
