package validation

import (
	"context"
	"fmt"
	"testing"

	"github.com/silverstar/intake/internal/oracle"
)

type fakeOracle struct {
	response    string
	err         error
	lastHistory []oracle.Message
}

func (f *fakeOracle) Generate(ctx context.Context, req oracle.GenerateRequest) (string, error) {
	f.lastHistory = req.History
	return f.response, f.err
}

func (f *fakeOracle) Extract(ctx context.Context, prompt string, schema oracle.Schema, history []oracle.Message) map[string]any {
	return map[string]any{}
}

func TestValidate_ValidAnswer(t *testing.T) {
	fake := &fakeOracle{response: `{"is_valid":true,"extracted_value":"Austin, TX","confidence":0.95,"needs_clarification":false,"reason":"user stated their city"}`}
	v := NewAnswerValidator(fake)

	got := v.Validate(context.Background(), "Where are you located?", "I live in Austin, TX", "location", nil)
	if !got.IsValid {
		t.Error("IsValid = false, want true")
	}
	if got.ExtractedValue != "Austin, TX" {
		t.Errorf("ExtractedValue = %q, want Austin, TX", got.ExtractedValue)
	}
	if got.Confidence != 0.95 {
		t.Errorf("Confidence = %v, want 0.95", got.Confidence)
	}
}

func TestValidate_DeflectionIsInvalid(t *testing.T) {
	fake := &fakeOracle{response: `{"is_valid":false,"extracted_value":null,"confidence":0.9,"needs_clarification":true,"reason":"user deflected"}`}
	v := NewAnswerValidator(fake)

	got := v.Validate(context.Background(), "What is your name?", "I don't know", "full_name", nil)
	if got.IsValid {
		t.Error("IsValid = true, want false")
	}
	if got.ExtractedValue != "" {
		t.Errorf("ExtractedValue = %q, want empty for null", got.ExtractedValue)
	}
}

func TestValidate_OracleFailureFailsClosed(t *testing.T) {
	fake := &fakeOracle{err: fmt.Errorf("timeout")}
	v := NewAnswerValidator(fake)

	got := v.Validate(context.Background(), "q", "a", "age", nil)
	if got.IsValid {
		t.Error("IsValid = true, want false on oracle failure")
	}
	if !got.NeedsClarification {
		t.Error("NeedsClarification = false, want true on oracle failure")
	}
}

func TestValidate_MalformedResponseFailsClosed(t *testing.T) {
	fake := &fakeOracle{response: "definitely valid I think"}
	v := NewAnswerValidator(fake)

	got := v.Validate(context.Background(), "q", "a", "age", nil)
	if got.IsValid {
		t.Error("IsValid = true, want false on malformed response")
	}
	if !got.NeedsClarification {
		t.Error("NeedsClarification = false, want true")
	}
}

func TestValidate_MissingRequiredFieldsFailsClosed(t *testing.T) {
	fake := &fakeOracle{response: `{"is_valid":true}`}
	v := NewAnswerValidator(fake)

	if got := v.Validate(context.Background(), "q", "a", "age", nil); got.IsValid {
		t.Error("IsValid = true, want fail-closed when fields are missing")
	}
}

func TestValidate_HistoryTail(t *testing.T) {
	fake := &fakeOracle{response: `{"is_valid":true,"extracted_value":"x","confidence":1,"needs_clarification":false,"reason":"ok"}`}
	v := NewAnswerValidator(fake)

	history := make([]oracle.Message, 10)
	for i := range history {
		history[i] = oracle.Message{Role: "user", Content: fmt.Sprintf("turn %d", i)}
	}
	v.Validate(context.Background(), "q", "a", "age", history)

	if len(fake.lastHistory) != 6 {
		t.Errorf("history sent = %d messages, want 6", len(fake.lastHistory))
	}
	if fake.lastHistory[0].Content != "turn 4" {
		t.Errorf("history tail starts at %q, want turn 4", fake.lastHistory[0].Content)
	}
}
