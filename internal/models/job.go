package models

import "time"

// Outcome is the result of importing one harvest record.
type Outcome string

const (
	OutcomeAdded       Outcome = "added"
	OutcomeUpdated     Outcome = "updated"
	OutcomeDeleted     Outcome = "deleted"
	OutcomeErrored     Outcome = "errored"
	OutcomeNotModified Outcome = "not_modified"
)

// RunStats counts record outcomes of a harvest run.
type RunStats struct {
	Added       int `json:"added"`
	Updated     int `json:"updated"`
	Deleted     int `json:"deleted"`
	Errored     int `json:"errored"`
	NotModified int `json:"not_modified"`
}

// Add counts one outcome.
func (s *RunStats) Add(o Outcome) {
	switch o {
	case OutcomeAdded:
		s.Added++
	case OutcomeUpdated:
		s.Updated++
	case OutcomeDeleted:
		s.Deleted++
	case OutcomeErrored:
		s.Errored++
	case OutcomeNotModified:
		s.NotModified++
	}
}

// Total is the number of counted records.
func (s RunStats) Total() int {
	return s.Added + s.Updated + s.Deleted + s.Errored + s.NotModified
}

// HarvestJob is one persisted run of a harvest source.
type HarvestJob struct {
	ID          string     `json:"id"`
	Source      string     `json:"source"`
	Status      string     `json:"status"`
	CreatedBy   string     `json:"created_by,omitempty"`
	Total       int        `json:"total"`
	Progress    int        `json:"progress"`
	Stats       RunStats   `json:"stats"`
	Error       *string    `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// HarvestObject is a queued harvest record: one dataset's desired state
// handed from gather to import.
type HarvestObject struct {
	ID        string    `json:"id"`
	GUID      string    `json:"guid"`
	JobID     string    `json:"job_id"`
	Source    string    `json:"source"`
	Content   string    `json:"content"`
	Current   bool      `json:"current"`
	PackageID string    `json:"package_id,omitempty"`
	Outcome   Outcome   `json:"outcome,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Error stages recorded on harvest errors.
const (
	StageGather = "Gather"
	StageImport = "Import"
)

// HarvestError is a gather error (job level) or an object error (record level).
type HarvestError struct {
	JobID     string    `json:"job_id"`
	ObjectID  string    `json:"object_id,omitempty"`
	Stage     string    `json:"stage"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
