package ingest

import (
	"context"
	"fmt"
	"strings"

	pdflib "github.com/ledongthuc/pdf"

	"github.com/silverstar/intake/internal/oracle"
	"github.com/silverstar/intake/internal/profile"
)

// maxResumeChars caps how much resume text is sent to the oracle.
const maxResumeChars = 6000

// ResumeText extracts plain text from a PDF resume.
func ResumeText(path string) (string, error) {
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening resume %s: %w", path, err)
	}
	defer f.Close()

	var b strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extracting page %d of %s: %w", pageNum, path, err)
		}
		b.WriteString(text)
		b.WriteString("\n")
	}

	got := strings.TrimSpace(b.String())
	if got == "" {
		return "", fmt.Errorf("no extractable text in %s", path)
	}
	return got, nil
}

// ProfileFromText asks the oracle to pull candidate fields out of free text
// (typically a resume). Best-effort: fields the oracle cannot find are simply
// absent from the returned map.
func ProfileFromText(ctx context.Context, o oracle.Oracle, text string) map[string]string {
	if len(text) > maxResumeChars {
		text = text[:maxResumeChars]
	}

	fields := profile.Required()
	props := make(map[string]oracle.SchemaProperty, len(fields))
	for _, f := range fields {
		props[string(f)] = oracle.SchemaProperty{Type: "string", Description: f.Label() + " of the candidate, or null"}
	}

	prompt := fmt.Sprintf(`Extract candidate profile details from this resume. Only extract values that are actually stated; use null for anything not present. Do not guess.

Resume:
%s`, text)

	got := o.Extract(ctx, prompt, oracle.Schema{Type: "object", Properties: props}, nil)

	out := make(map[string]string)
	for _, f := range fields {
		if v, ok := got[string(f)].(string); ok && strings.TrimSpace(v) != "" {
			out[string(f)] = strings.TrimSpace(v)
		}
	}
	return out
}

// SeedFromResume reads a PDF resume and returns profile fields extracted
// from it, ready for Engine.SeedProfile.
func SeedFromResume(ctx context.Context, o oracle.Oracle, path string) (map[string]string, error) {
	text, err := ResumeText(path)
	if err != nil {
		return nil, err
	}
	return ProfileFromText(ctx, o, text), nil
}
