package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/silverstar/intake/internal/oracle"
)

type fakeOracle struct {
	extracted  map[string]any
	lastPrompt string
}

func (f *fakeOracle) Generate(ctx context.Context, req oracle.GenerateRequest) (string, error) {
	return "", nil
}

func (f *fakeOracle) Extract(ctx context.Context, prompt string, schema oracle.Schema, history []oracle.Message) map[string]any {
	f.lastPrompt = prompt
	out := make(map[string]any, len(schema.Properties))
	for k := range schema.Properties {
		out[k] = nil
	}
	for k, v := range f.extracted {
		out[k] = v
	}
	return out
}

func TestProfileFromText(t *testing.T) {
	o := &fakeOracle{extracted: map[string]any{
		"full_name": "Maria Lopez",
		"location":  "Austin, TX",
		"interests": "  tutoring ",
	}}

	got := ProfileFromText(context.Background(), o, "Maria Lopez\nAustin, TX\nTutor, 2010-2024")

	if got["full_name"] != "Maria Lopez" {
		t.Errorf("full_name = %q", got["full_name"])
	}
	if got["interests"] != "tutoring" {
		t.Errorf("interests = %q, want trimmed", got["interests"])
	}
	if _, ok := got["age"]; ok {
		t.Error("age present, want nil fields omitted")
	}
	if !strings.Contains(o.lastPrompt, "Tutor, 2010-2024") {
		t.Error("prompt does not include the resume text")
	}
}

func TestProfileFromTextClampsLongInput(t *testing.T) {
	o := &fakeOracle{}
	long := strings.Repeat("experience ", 2000)

	ProfileFromText(context.Background(), o, long)

	if len(o.lastPrompt) > maxResumeChars+500 {
		t.Errorf("prompt length = %d, want resume text clamped", len(o.lastPrompt))
	}
}

func TestResumeTextMissingFile(t *testing.T) {
	if _, err := ResumeText("/nonexistent/resume.pdf"); err == nil {
		t.Error("expected error for missing file")
	}
}
