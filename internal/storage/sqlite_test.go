package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/silverstar/intake/internal/profile"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestSaveJobUpsert(t *testing.T) {
	s := openTestStore(t)

	job := Job{
		ID:       "job-1",
		Title:    "Library Assistant",
		Company:  "City Library",
		Location: "Austin, TX",
		JobType:  "part-time",
		Source:   "city-portal",
		Active:   true,
	}
	if err := s.SaveJob(job); err != nil {
		t.Fatalf("SaveJob: %v", err)
	}

	job.Title = "Senior Library Assistant"
	if err := s.SaveJob(job); err != nil {
		t.Fatalf("SaveJob (update): %v", err)
	}

	got, err := s.GetJob("job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Title != "Senior Library Assistant" {
		t.Errorf("Title = %q, want updated title", got.Title)
	}
	if !got.Active {
		t.Error("Active = false, want true")
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt is zero, want populated")
	}
}

func TestGetJobNotFound(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.GetJob("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetJob(missing) error = %v, want ErrNotFound", err)
	}
}

func TestListActiveJobs(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	jobs := []Job{
		{ID: "a", Title: "Greeter", Active: true, CreatedAt: base},
		{ID: "b", Title: "Tutor", Active: true, CreatedAt: base.Add(time.Hour)},
		{ID: "c", Title: "Closed Role", Active: false, CreatedAt: base.Add(2 * time.Hour)},
	}
	for _, j := range jobs {
		if err := s.SaveJob(j); err != nil {
			t.Fatalf("SaveJob(%s): %v", j.ID, err)
		}
	}

	got, err := s.ListActiveJobs(10)
	if err != nil {
		t.Fatalf("ListActiveJobs: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListActiveJobs returned %d jobs, want 2", len(got))
	}
	if got[0].ID != "b" {
		t.Errorf("first job = %s, want newest active (b)", got[0].ID)
	}

	limited, err := s.ListActiveJobs(1)
	if err != nil {
		t.Fatalf("ListActiveJobs(1): %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("ListActiveJobs(1) returned %d jobs, want 1", len(limited))
	}
}

func TestDeactivateSource(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveJob(Job{ID: "x", Title: "Old", Source: "portal", Active: true}); err != nil {
		t.Fatalf("SaveJob: %v", err)
	}
	if err := s.SaveJob(Job{ID: "y", Title: "Keep", Source: "other", Active: true}); err != nil {
		t.Fatalf("SaveJob: %v", err)
	}

	if err := s.DeactivateSource("portal"); err != nil {
		t.Fatalf("DeactivateSource: %v", err)
	}

	n, err := s.CountActiveJobs()
	if err != nil {
		t.Fatalf("CountActiveJobs: %v", err)
	}
	if n != 1 {
		t.Errorf("active jobs = %d, want 1 after deactivating portal", n)
	}
}

func TestProfileRoundTrip(t *testing.T) {
	s := openTestStore(t)

	p := &profile.CandidateProfile{
		FullName: "Maria Lopez",
		Location: "Austin, TX",
		Age:      "62",
	}
	if err := s.SaveProfile("user-1", p); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}

	got, err := s.LoadProfile("user-1")
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if got.FullName != "Maria Lopez" || got.Location != "Austin, TX" || got.Age != "62" {
		t.Errorf("LoadProfile = %+v, want saved fields back", got)
	}

	p.Age = "63"
	if err := s.SaveProfile("user-1", p); err != nil {
		t.Fatalf("SaveProfile (update): %v", err)
	}
	got, err = s.LoadProfile("user-1")
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if got.Age != "63" {
		t.Errorf("Age = %q, want updated value 63", got.Age)
	}
}

func TestLoadProfileNotFound(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.LoadProfile("nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadProfile(nobody) error = %v, want ErrNotFound", err)
	}
}

func TestTurnsOrderedBySession(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	turns := []Turn{
		{ID: "t1", SessionID: "s1", CreatedAt: base, UserMessage: "hi", AssistantReply: "hello", State: "greeting"},
		{ID: "t2", SessionID: "s1", CreatedAt: base.Add(time.Minute), UserMessage: "Maria", AssistantReply: "thanks", State: "collecting_full_name"},
		{ID: "t3", SessionID: "s2", CreatedAt: base, UserMessage: "other", AssistantReply: "ok", State: "greeting"},
	}
	for _, tr := range turns {
		if err := s.SaveTurn(tr); err != nil {
			t.Fatalf("SaveTurn(%s): %v", tr.ID, err)
		}
	}

	got, err := s.GetSessionTurns("s1", 10)
	if err != nil {
		t.Fatalf("GetSessionTurns: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("GetSessionTurns returned %d turns, want 2", len(got))
	}
	if got[0].ID != "t1" || got[1].ID != "t2" {
		t.Errorf("turn order = %s,%s, want t1,t2", got[0].ID, got[1].ID)
	}
}
