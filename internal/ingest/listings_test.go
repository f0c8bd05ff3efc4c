package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/silverstar/intake/internal/storage"
)

type fakeSink struct {
	mu          sync.Mutex
	jobs        []storage.Job
	deactivated []string
}

func (f *fakeSink) SaveJob(j storage.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, j)
	return nil
}

func (f *fakeSink) DeactivateSource(source string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deactivated = append(f.deactivated, source)
	return nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const sampleJSON = `[
	{"id": "j1", "title": "Library Assistant", "company": "City Library", "location": "Austin, TX", "job_type": "part-time", "url": "https://example.org/j1"},
	{"title": "Greeter", "location": "Austin, TX"},
	{"id": "j3", "title": "   ", "location": "ignored, blank title"}
]`

func TestImportFileJSON(t *testing.T) {
	sink := &fakeSink{}
	im := NewImporter(sink)
	path := writeFile(t, t.TempDir(), "portal.json", sampleJSON)

	n, err := im.ImportFile(context.Background(), path, "portal")
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	if n != 2 {
		t.Errorf("imported %d listings, want 2 (blank title dropped)", n)
	}

	if len(sink.deactivated) != 1 || sink.deactivated[0] != "portal" {
		t.Errorf("deactivated = %v, want [portal] before import", sink.deactivated)
	}

	first := sink.jobs[0]
	if first.ID != "j1" || first.Title != "Library Assistant" || !first.Active {
		t.Errorf("first job = %+v", first)
	}
	if first.Source != "portal" {
		t.Errorf("Source = %q, want portal", first.Source)
	}
	if sink.jobs[1].ID == "" {
		t.Error("listing without an ID was not assigned one")
	}
}

const sampleHTML = `<html><body><ul>
<li class="result-row" data-pid="7001">
  <a class="result-title" href="https://example.org/7001">Community Garden Helper</a>
  <span class="result-hood">(Austin, TX)</span>
</li>
<li class="result-row">
  <a class="result-title" href="https://example.org/7002">Front Desk Attendant</a>
  <span class="result-company">Rec Center</span>
</li>
<li class="other-row"><a class="result-title" href="x">Not A Row Match</a></li>
</ul></body></html>`

func TestImportFileHTML(t *testing.T) {
	sink := &fakeSink{}
	im := NewImporter(sink)
	path := writeFile(t, t.TempDir(), "classifieds.html", sampleHTML)

	n, err := im.ImportFile(context.Background(), path, "classifieds")
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	if n != 2 {
		t.Fatalf("imported %d listings, want 2", n)
	}

	first := sink.jobs[0]
	if first.ID != "7001" {
		t.Errorf("ID = %q, want data-pid value", first.ID)
	}
	if first.Title != "Community Garden Helper" {
		t.Errorf("Title = %q", first.Title)
	}
	if first.Location != "Austin, TX" {
		t.Errorf("Location = %q, want parens stripped", first.Location)
	}
	if first.URL != "https://example.org/7001" {
		t.Errorf("URL = %q", first.URL)
	}

	second := sink.jobs[1]
	if second.Company != "Rec Center" {
		t.Errorf("Company = %q", second.Company)
	}
	if second.ID == "" {
		t.Error("row without data-pid was not assigned an ID")
	}
}

func TestImportFileUnsupportedFormat(t *testing.T) {
	im := NewImporter(&fakeSink{})
	path := writeFile(t, t.TempDir(), "jobs.csv", "title,location\n")

	if _, err := im.ImportFile(context.Background(), path, "csv"); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestImportDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "portal.json", sampleJSON)
	writeFile(t, dir, "classifieds.html", sampleHTML)
	writeFile(t, dir, "notes.txt", "ignored")

	sink := &fakeSink{}
	im := NewImporter(sink)

	n, err := im.ImportDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("ImportDir: %v", err)
	}
	if n != 4 {
		t.Errorf("imported %d listings, want 4 across both files", n)
	}

	sources := make(map[string]bool)
	for _, j := range sink.jobs {
		sources[j.Source] = true
	}
	if !sources["portal"] || !sources["classifieds"] {
		t.Errorf("sources = %v, want file basenames", sources)
	}
}
