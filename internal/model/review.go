package model

import "time"

// ReviewSubmitRequest is the body of POST /api/review/submit.
type ReviewSubmitRequest struct {
	RepoURL     string `json:"repoUrl" validate:"required,url"`
	PRNumber    int    `json:"prNumber" validate:"required,gt=0"`
	GithubToken string `json:"githubToken,omitempty"`
}

// ReviewSubmitResponse acknowledges an accepted review job.
type ReviewSubmitResponse struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// ReviewStatusResponse is the body of GET /api/review/status/:jobId.
type ReviewStatusResponse struct {
	JobID      string    `json:"jobId"`
	Status     JobStatus `json:"status"`
	RepoURL    string    `json:"repoUrl"`
	PRNumber   int       `json:"prNumber"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	RetryCount int       `json:"retryCount"`
}

// ReviewResultResponse is the body of GET /api/review/result/:jobId.
// Result is present only for completed jobs with a parseable payload.
type ReviewResultResponse struct {
	JobID     string          `json:"jobId"`
	Status    JobStatus       `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Error     *string         `json:"errorMessage,omitempty"`
	Result    *AnalysisResult `json:"results,omitempty"`
}

// ReviewListItem is one entry of GET /api/review/jobs.
type ReviewListItem struct {
	JobID     string    `json:"jobId"`
	RepoURL   string    `json:"repoUrl"`
	PRNumber  int       `json:"prNumber"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
