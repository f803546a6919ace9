package model

import "time"

// Job status
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether a status allows no further transitions
// within a single attempt.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job represents one pull request review and its lifecycle state.
// Exactly one of Result/Error is set once the job reaches a terminal
// status; neither is set while pending or processing.
type Job struct {
	ID         string    `json:"id"`
	RepoURL    string    `json:"repoUrl"`
	PRNumber   int       `json:"prNumber"`
	Status     JobStatus `json:"status"`
	Error      *string   `json:"error,omitempty"`
	Result     []byte    `json:"-"` // Stored as JSON
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	RetryCount int       `json:"retryCount"`
}

// ReviewJobPayload contains the data carried by a queued review task.
type ReviewJobPayload struct {
	RepoURL     string `json:"repoUrl"`
	PRNumber    int    `json:"prNumber"`
	GithubToken string `json:"githubToken,omitempty"`
}
