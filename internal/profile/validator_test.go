package profile

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/silverstar/intake/internal/oracle"
)

// fakeOracle implements oracle.Oracle for validator tests.
type fakeOracle struct {
	response string
	err      error
}

func (f *fakeOracle) Generate(ctx context.Context, req oracle.GenerateRequest) (string, error) {
	return f.response, f.err
}

func (f *fakeOracle) Extract(ctx context.Context, prompt string, schema oracle.Schema, history []oracle.Message) map[string]any {
	out := make(map[string]any)
	for k := range schema.Properties {
		out[k] = nil
	}
	return out
}

func completeProfile() *CandidateProfile {
	return &CandidateProfile{
		FullName:          "Maria Lopez",
		Location:          "Austin, TX",
		Age:               "62",
		PhysicalCondition: "good health",
		Interests:         "tutoring",
		Limitations:       "no known limitations",
	}
}

func TestValidate_CompleteProfile(t *testing.T) {
	fake := &fakeOracle{response: `{"is_complete":true,"missing_fields":[],"issues":[],"summary":"Maria is a healthy 62-year-old in Austin interested in tutoring.","notes":null}`}
	v := NewValidator(fake)

	got := v.Validate(context.Background(), completeProfile())
	if !got.IsComplete {
		t.Error("IsComplete = false, want true")
	}
	if len(got.MissingFields) != 0 {
		t.Errorf("MissingFields = %v, want empty", got.MissingFields)
	}
	if !strings.Contains(got.Summary, "Maria") {
		t.Errorf("Summary = %q, want oracle summary", got.Summary)
	}
}

func TestValidate_OracleCannotShrinkMissingSet(t *testing.T) {
	// Oracle claims complete even though age is locally missing.
	fake := &fakeOracle{response: `{"is_complete":true,"missing_fields":[],"issues":[],"summary":"Looks great","notes":null}`}
	v := NewValidator(fake)

	p := completeProfile()
	p.Age = ""
	got := v.Validate(context.Background(), p)

	if got.IsComplete {
		t.Error("IsComplete = true, want false when local check finds missing fields")
	}
	found := false
	for _, f := range got.MissingFields {
		if f == "age" {
			found = true
		}
	}
	if !found {
		t.Errorf("MissingFields = %v, want to contain age", got.MissingFields)
	}
}

func TestValidate_MergesOracleMissingFields(t *testing.T) {
	fake := &fakeOracle{response: `{"is_complete":false,"missing_fields":["interests"],"issues":["interests look like a placeholder"],"summary":"Nearly there","notes":null}`}
	v := NewValidator(fake)

	p := completeProfile()
	p.Location = ""
	got := v.Validate(context.Background(), p)

	want := map[string]bool{"location": false, "interests": false}
	for _, f := range got.MissingFields {
		if _, ok := want[f]; ok {
			want[f] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("MissingFields = %v, want union to include %q", got.MissingFields, name)
		}
	}
	if got.IsComplete {
		t.Error("IsComplete = true, want false")
	}
}

func TestValidate_OracleFailureDegradesToLocal(t *testing.T) {
	fake := &fakeOracle{err: fmt.Errorf("oracle down")}
	v := NewValidator(fake)

	got := v.Validate(context.Background(), completeProfile())
	if !got.IsComplete {
		t.Error("IsComplete = false, want local-only verdict true")
	}
	if got.Summary == "" {
		t.Error("Summary is empty, want canned fallback")
	}

	p := completeProfile()
	p.Interests = ""
	got = v.Validate(context.Background(), p)
	if got.IsComplete {
		t.Error("IsComplete = true, want false on local missing field")
	}
}

func TestValidate_MalformedOracleResponse(t *testing.T) {
	fake := &fakeOracle{response: "I think the profile is fine!"}
	v := NewValidator(fake)

	got := v.Validate(context.Background(), completeProfile())
	if !got.IsComplete {
		t.Error("IsComplete = false, want local fallback true on unparseable oracle output")
	}
	if got.Summary == "" {
		t.Error("Summary is empty, want canned fallback")
	}
}

func TestValidate_SummaryNeverEmpty(t *testing.T) {
	fake := &fakeOracle{response: `{"is_complete":true,"missing_fields":[],"issues":[],"summary":"","notes":null}`}
	v := NewValidator(fake)

	got := v.Validate(context.Background(), completeProfile())
	if got.Summary == "" {
		t.Error("Summary is empty, want guaranteed non-empty")
	}
}
