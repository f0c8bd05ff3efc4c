// Package recommend ranks active job listings against a candidate profile.
package recommend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/silverstar/intake/internal/oracle"
	"github.com/silverstar/intake/internal/profile"
	"github.com/silverstar/intake/internal/storage"
)

// DefaultLimit is how many recommendations a conversation turn surfaces.
const DefaultLimit = 5

// Recommendation is one ranked match between the candidate and a listing.
// MatchScore is on a 0-100 scale.
type Recommendation struct {
	JobID       string  `json:"job_id"`
	MatchScore  float64 `json:"match_score"`
	MatchReason string  `json:"match_reason"`
}

// JobStore is the slice of the storage layer the recommender needs.
type JobStore interface {
	ListActiveJobs(limit int) ([]storage.Job, error)
	GetJob(id string) (storage.Job, error)
}

// Recommender asks the oracle to rank listings for a profile. It never
// returns an error: any oracle or storage failure yields an empty list so
// the conversation can apologize and move on.
type Recommender struct {
	oracle oracle.Oracle
	jobs   JobStore
}

// New creates a recommender over the given oracle and job store.
func New(o oracle.Oracle, jobs JobStore) *Recommender {
	return &Recommender{oracle: o, jobs: jobs}
}

// maxCandidateJobs caps how many listings are offered to the oracle per call.
const maxCandidateJobs = 25

// Recommend returns up to limit ranked matches for the profile, best first.
func (r *Recommender) Recommend(ctx context.Context, p *profile.CandidateProfile, limit int) []Recommendation {
	if limit <= 0 {
		limit = DefaultLimit
	}

	listings, err := r.jobs.ListActiveJobs(maxCandidateJobs)
	if err != nil {
		slog.Warn("listing jobs for recommendation failed", "error", err)
		return nil
	}
	if len(listings) == 0 {
		return nil
	}

	known := make(map[string]bool, len(listings))
	jobMaps := make([]map[string]any, 0, len(listings))
	for _, j := range listings {
		known[j.ID] = true
		jobMaps = append(jobMaps, map[string]any{
			"id":          j.ID,
			"title":       j.Title,
			"company":     j.Company,
			"location":    j.Location,
			"description": j.Description,
			"job_type":    j.JobType,
		})
	}

	prompt := fmt.Sprintf(`You are a job matching assistant for a placement service helping older adults find suitable work.

Candidate profile:
%s

Available jobs:
%s

Rank the jobs by fit for this candidate. Consider location, age, physical condition, stated interests, and any limitations. Respect limitations strictly: never recommend a job that conflicts with them.

Respond with a JSON array only, best match first, at most %d entries:
[
  {"job_id": "...", "match_score": 0-100, "match_reason": "one sentence"}
]`,
		oracle.CompactJSON(p.Snapshot(), 220, 1400),
		oracle.CompactJobs(jobMaps, maxCandidateJobs, 300, 6000),
		limit,
	)

	raw, err := r.oracle.Generate(ctx, oracle.GenerateRequest{
		Prompt:      prompt,
		Temperature: 0.2,
		MaxTokens:   1024,
	})
	if err != nil {
		slog.Warn("recommendation oracle call failed", "error", err)
		return nil
	}

	var parsed []Recommendation
	if err := json.Unmarshal([]byte(oracle.StripJSONFences(raw)), &parsed); err != nil {
		slog.Warn("failed to parse recommendation response", "error", err, "response", raw)
		return nil
	}

	// Drop hallucinated job IDs and clamp scores to the 0-100 scale.
	out := make([]Recommendation, 0, limit)
	for _, rec := range parsed {
		if !known[rec.JobID] {
			slog.Warn("recommendation referenced unknown job", "job_id", rec.JobID)
			continue
		}
		if rec.MatchScore < 0 {
			rec.MatchScore = 0
		}
		if rec.MatchScore > 100 {
			rec.MatchScore = 100
		}
		out = append(out, rec)
		if len(out) == limit {
			break
		}
	}
	return out
}

// Format renders recommendations as a numbered reply for the chat surface.
func (r *Recommender) Format(recs []Recommendation) string {
	if len(recs) == 0 {
		return "I couldn't find any matching jobs right now. I'll keep your profile on file and let you know when something suitable comes up."
	}

	msg := "Here are the jobs I think would suit you best:\n"
	for i, rec := range recs {
		job, err := r.jobs.GetJob(rec.JobID)
		if err != nil {
			continue
		}
		msg += fmt.Sprintf("\n%d. %s", i+1, job.Title)
		if job.Company != "" {
			msg += " at " + job.Company
		}
		if job.Location != "" {
			msg += " (" + job.Location + ")"
		}
		msg += fmt.Sprintf("\n   Match Score: %.0f%%", rec.MatchScore)
		if rec.MatchReason != "" {
			msg += "\n   " + rec.MatchReason
		}
		if job.URL != "" {
			msg += "\n   " + job.URL
		}
		msg += "\n"
	}
	msg += "\nWould you like more detail on any of these?"
	return msg
}
