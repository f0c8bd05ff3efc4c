// Package validation judges whether a user's reply actually answers the
// question the intake chatbot just asked.
package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/silverstar/intake/internal/oracle"
)

// Result is the verdict for one question/answer pair.
type Result struct {
	IsValid            bool    `json:"is_valid"`
	ExtractedValue     string  `json:"extracted_value"`
	Confidence         float64 `json:"confidence"`
	NeedsClarification bool    `json:"needs_clarification"`
	Reason             string  `json:"reason"`
}

// historyTail limits how much conversation context is sent with each
// validation request.
const historyTail = 6

// AnswerValidator asks the oracle whether an answer addresses the question.
// On any oracle failure or malformed response it fails closed: the answer is
// treated as invalid and needing clarification. Validate never returns an
// error.
type AnswerValidator struct {
	oracle oracle.Oracle
}

// NewAnswerValidator creates a validator backed by the given oracle.
func NewAnswerValidator(o oracle.Oracle) *AnswerValidator {
	return &AnswerValidator{oracle: o}
}

// Validate judges the answer against the pending question.
func (v *AnswerValidator) Validate(ctx context.Context, question, answer, questionType string, history []oracle.Message) Result {
	prompt := fmt.Sprintf(`You are an answer validation assistant for a job placement chatbot.

The chatbot asked this question: "%s"
The user responded with: "%s"
The question type is: %s

Your task is to determine:
1. Did the user answer the question directly? (Yes/No)
2. If Yes, extract the specific value that answers the question
3. How confident are you in this assessment? (0.0-1.0)
4. Does the answer need clarification? (Yes/No)

Important guidelines:
- If the user says "I'm an AI" or "I don't have a name/location/etc", this is NOT a valid answer
- If the user provides the requested information, it IS a valid answer
- If the user asks a question instead of answering, it's NOT a valid answer
- If the user says they don't know or can't answer, it's NOT a valid answer
- Answers that describe the assistant, refuse to provide info, or discuss unrelated topics are NOT valid
- Be lenient: if the user provides any information that could be the answer, consider it valid

Respond with valid JSON only:
{
  "is_valid": true/false,
  "extracted_value": "the extracted value or null",
  "confidence": 0.0-1.0,
  "needs_clarification": true/false,
  "reason": "brief explanation of your decision"
}`, question, answer, questionType)

	if len(history) > historyTail {
		history = history[len(history)-historyTail:]
	}

	raw, err := v.oracle.Generate(ctx, oracle.GenerateRequest{
		Prompt:      prompt,
		History:     history,
		Temperature: 0.1,
	})
	if err != nil {
		slog.Warn("answer validation oracle call failed", "question_type", questionType, "error", err)
		return failedClosed("validation error: " + err.Error())
	}

	var parsed struct {
		IsValid            *bool    `json:"is_valid"`
		ExtractedValue     any      `json:"extracted_value"`
		Confidence         *float64 `json:"confidence"`
		NeedsClarification *bool    `json:"needs_clarification"`
		Reason             string   `json:"reason"`
	}
	if err := json.Unmarshal([]byte(oracle.StripJSONFences(raw)), &parsed); err != nil {
		slog.Warn("failed to parse answer validation response", "error", err, "response", raw)
		return failedClosed("invalid validation response format")
	}
	if parsed.IsValid == nil || parsed.Confidence == nil || parsed.NeedsClarification == nil {
		slog.Warn("answer validation response missing required fields", "response", raw)
		return failedClosed("invalid validation response format")
	}

	extracted := ""
	if s, ok := parsed.ExtractedValue.(string); ok {
		extracted = s
	}

	return Result{
		IsValid:            *parsed.IsValid,
		ExtractedValue:     extracted,
		Confidence:         *parsed.Confidence,
		NeedsClarification: *parsed.NeedsClarification,
		Reason:             parsed.Reason,
	}
}

func failedClosed(reason string) Result {
	return Result{
		IsValid:            false,
		NeedsClarification: true,
		Reason:             reason,
	}
}
