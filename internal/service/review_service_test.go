package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewpilot/api/internal/model"
)

func TestSubmit_RejectsNonGitHubURL(t *testing.T) {
	// Validation runs before any store or queue access.
	s := NewReviewService(nil, nil)

	_, err := s.Submit(context.Background(), &model.ReviewSubmitRequest{
		RepoURL:  "https://gitlab.com/acme/widgets",
		PRNumber: 1,
	})
	require.ErrorIs(t, err, ErrInvalidRepoURL)
}

func TestSubmit_RejectsNonPositivePRNumber(t *testing.T) {
	s := NewReviewService(nil, nil)

	for _, pr := range []int{0, -5} {
		_, err := s.Submit(context.Background(), &model.ReviewSubmitRequest{
			RepoURL:  "https://github.com/acme/widgets",
			PRNumber: pr,
		})
		require.ErrorIs(t, err, ErrInvalidPRNumber, "prNumber=%d", pr)
	}
}

func TestResultResponse_CorruptPayload(t *testing.T) {
	now := time.Now()
	job := &model.Job{
		ID:        "job-1",
		Status:    model.JobStatusCompleted,
		Result:    []byte("{not json"),
		CreatedAt: now,
		UpdatedAt: now,
	}

	resp := resultResponse(job)
	assert.Equal(t, model.JobStatusCompleted, resp.Status)
	assert.Nil(t, resp.Result, "an unparseable payload must not surface as results")
	require.NotNil(t, resp.Error)
	assert.Equal(t, "Invalid results payload", *resp.Error)
}

func TestResultResponse_ValidPayload(t *testing.T) {
	job := &model.Job{
		ID:     "job-1",
		Status: model.JobStatusCompleted,
		Result: []byte(`{"files":[{"name":"main.go","findings":[{"line":3,"category":"defect","description":"d","suggestion":"s"}]}],"summary":{"totalFiles":1,"totalFindings":1,"defectCount":1}}`),
	}

	resp := resultResponse(job)
	require.NotNil(t, resp.Result)
	assert.Nil(t, resp.Error)
	assert.Equal(t, 1, resp.Result.Summary.DefectCount)
	require.Len(t, resp.Result.Files, 1)
	assert.Equal(t, "main.go", resp.Result.Files[0].Name)
}

func TestStoredJobRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	errMsg := "boom"
	job := &model.Job{
		ID:         "job-1",
		RepoURL:    "https://github.com/acme/widgets",
		PRNumber:   7,
		Status:     model.JobStatusCompleted,
		Error:      &errMsg,
		Result:     []byte(`{"files":[],"summary":{"totalFiles":0,"totalFindings":0,"defectCount":0}}`),
		CreatedAt:  now,
		UpdatedAt:  now,
		RetryCount: 2,
	}

	stored := storedJob{Job: *job, StoredResult: job.Result}
	data, err := json.Marshal(&stored)
	require.NoError(t, err)

	// The API shape hides Result; the persisted shape must not.
	assert.Contains(t, string(data), `"result"`)

	var loaded storedJob
	require.NoError(t, json.Unmarshal(data, &loaded))
	got := loaded.toJob()
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, job.Status, got.Status)
	assert.Equal(t, job.RetryCount, got.RetryCount)
	assert.Equal(t, job.Result, got.Result)
	require.NotNil(t, got.Error)
	assert.Equal(t, errMsg, *got.Error)
}

func TestNewReviewTask(t *testing.T) {
	task, err := newReviewTask("job-1", &model.ReviewJobPayload{
		RepoURL:     "https://github.com/acme/widgets",
		PRNumber:    7,
		GithubToken: "tok",
	})
	require.NoError(t, err)
	assert.Equal(t, TaskTypeReview, task.Type())

	var envelope struct {
		JobID   string          `json:"jobId"`
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(task.Payload(), &envelope))
	assert.Equal(t, "job-1", envelope.JobID)

	var payload model.ReviewJobPayload
	require.NoError(t, json.Unmarshal(envelope.Payload, &payload))
	assert.Equal(t, 7, payload.PRNumber)
	assert.Equal(t, "tok", payload.GithubToken)
}
