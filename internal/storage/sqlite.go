package storage

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/silverstar/intake/internal/profile"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database with methods for jobs, candidate profiles,
// and conversation turns.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "intake.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Jobs ---

// SaveJob inserts or replaces a job listing by ID.
func (s *Store) SaveJob(j Job) error {
	createdAt := j.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO jobs (id, title, company, location, description, job_type, url, source, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title, company = excluded.company, location = excluded.location,
			description = excluded.description, job_type = excluded.job_type, url = excluded.url,
			source = excluded.source, active = excluded.active`,
		j.ID, j.Title, j.Company, j.Location, j.Description, j.JobType, j.URL, j.Source,
		boolToInt(j.Active), createdAt.UTC().Format(time.RFC3339),
	)
	return err
}

// GetJob returns the job with the given ID, or ErrNotFound.
func (s *Store) GetJob(id string) (Job, error) {
	var j Job
	var active int
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, title, company, location, description, job_type, url, source, active, created_at
		FROM jobs WHERE id = ?`, id,
	).Scan(&j.ID, &j.Title, &j.Company, &j.Location, &j.Description, &j.JobType, &j.URL, &j.Source, &active, &createdAt)
	if err == sql.ErrNoRows {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, err
	}
	j.Active = active != 0
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Job{}, fmt.Errorf("parsing created_at: %w", err)
	}
	j.CreatedAt = t
	return j, nil
}

// ListActiveJobs returns up to limit active listings, newest first.
func (s *Store) ListActiveJobs(limit int) ([]Job, error) {
	rows, err := s.db.Query(`
		SELECT id, title, company, location, description, job_type, url, source, active, created_at
		FROM jobs WHERE active = 1 ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Job
	for rows.Next() {
		var j Job
		var active int
		var createdAt string
		if err := rows.Scan(&j.ID, &j.Title, &j.Company, &j.Location, &j.Description, &j.JobType, &j.URL, &j.Source, &active, &createdAt); err != nil {
			return nil, err
		}
		j.Active = active != 0
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		j.CreatedAt = t
		results = append(results, j)
	}
	return results, rows.Err()
}

// CountActiveJobs returns the number of active listings.
func (s *Store) CountActiveJobs() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM jobs WHERE active = 1").Scan(&n)
	return n, err
}

// DeactivateSource marks every listing from a source inactive. Importers call
// this before re-importing so stale listings stop surfacing in matches.
func (s *Store) DeactivateSource(source string) error {
	_, err := s.db.Exec("UPDATE jobs SET active = 0 WHERE source = ?", source)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// --- Candidate Profiles ---

// SaveProfile persists a candidate profile as a JSON document keyed by user ID.
func (s *Store) SaveProfile(userID string, p *profile.CandidateProfile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO candidate_profiles (user_id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		userID, string(data), time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// LoadProfile returns the stored profile for a user, or ErrNotFound.
func (s *Store) LoadProfile(userID string) (*profile.CandidateProfile, error) {
	var data string
	err := s.db.QueryRow("SELECT data FROM candidate_profiles WHERE user_id = ?", userID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var p profile.CandidateProfile
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("decoding profile for %s: %w", userID, err)
	}
	return &p, nil
}

// --- Conversation Turns ---

// SaveTurn appends one exchange to the conversation log.
func (s *Store) SaveTurn(t Turn) error {
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO turns (id, session_id, created_at, user_message, assistant_reply, state)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.SessionID, createdAt.UTC().Format(time.RFC3339), t.UserMessage, t.AssistantReply, t.State,
	)
	return err
}

// GetSessionTurns returns up to limit turns for a session, oldest first.
func (s *Store) GetSessionTurns(sessionID string, limit int) ([]Turn, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, created_at, user_message, assistant_reply, state
		FROM turns WHERE session_id = ? ORDER BY created_at ASC, id ASC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Turn
	for rows.Next() {
		var t Turn
		var createdAt string
		if err := rows.Scan(&t.ID, &t.SessionID, &createdAt, &t.UserMessage, &t.AssistantReply, &t.State); err != nil {
			return nil, err
		}
		ts, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		t.CreatedAt = ts
		results = append(results, t)
	}
	return results, rows.Err()
}
