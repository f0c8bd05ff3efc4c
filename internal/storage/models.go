package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Job is one job listing available for matching.
type Job struct {
	ID          string
	Title       string
	Company     string
	Location    string
	Description string
	JobType     string // "part-time", "full-time", "volunteer", "flexible"
	URL         string
	Source      string // where the listing was imported from
	Active      bool
	CreatedAt   time.Time
}

// Turn is one logged exchange in an intake conversation.
type Turn struct {
	ID             string
	SessionID      string
	CreatedAt      time.Time
	UserMessage    string
	AssistantReply string
	State          string
}
