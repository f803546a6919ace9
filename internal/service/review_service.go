package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/reviewpilot/api/internal/model"
)

const (
	TaskTypeReview = "review:process"

	jobKeyPrefix  = "job:"
	recentJobsKey = "jobs:recent"
	jobRetention  = 24 * time.Hour
	recentJobsMax = 100
)

var (
	// ErrJobNotFound means no record exists for the given job identifier.
	ErrJobNotFound = errors.New("job not found")
	// ErrInvalidRepoURL means the submitted locator does not reference
	// the supported code host.
	ErrInvalidRepoURL = errors.New("repository URL must reference github.com")
	// ErrInvalidPRNumber means the submitted change-set number is not positive.
	ErrInvalidPRNumber = errors.New("pull request number must be positive")
)

// invalidResultsMessage is surfaced when a completed job's stored
// payload no longer parses.
const invalidResultsMessage = "Invalid results payload"

// ReviewService owns review job records and their admission to the
// work queue. The worker is the sole writer for a running job.
type ReviewService struct {
	redis       *redis.Client
	asynqClient *asynq.Client
}

func NewReviewService(redisClient *redis.Client, asynqClient *asynq.Client) *ReviewService {
	return &ReviewService{
		redis:       redisClient,
		asynqClient: asynqClient,
	}
}

// Submit validates the request, persists a pending job and enqueues a
// work item for it. Validation failures leave no trace: no record, no
// queued task.
func (s *ReviewService) Submit(ctx context.Context, req *model.ReviewSubmitRequest) (*model.ReviewSubmitResponse, error) {
	if !strings.Contains(req.RepoURL, "github.com") {
		return nil, ErrInvalidRepoURL
	}
	if req.PRNumber <= 0 {
		return nil, ErrInvalidPRNumber
	}

	jobID := uuid.New().String()
	now := time.Now()

	job := &model.Job{
		ID:        jobID,
		RepoURL:   req.RepoURL,
		PRNumber:  req.PRNumber,
		Status:    model.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.saveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	if err := s.indexJob(ctx, jobID); err != nil {
		s.discardJob(ctx, jobID)
		return nil, fmt.Errorf("failed to index job: %w", err)
	}

	payload := &model.ReviewJobPayload{
		RepoURL:     req.RepoURL,
		PRNumber:    req.PRNumber,
		GithubToken: req.GithubToken,
	}

	if err := s.enqueue(ctx, jobID, payload, 0); err != nil {
		s.discardJob(ctx, jobID)
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &model.ReviewSubmitResponse{
		JobID:     jobID,
		Status:    model.JobStatusPending,
		CreatedAt: now,
	}, nil
}

// GetStatus returns the current lifecycle state of a job.
func (s *ReviewService) GetStatus(ctx context.Context, jobID string) (*model.ReviewStatusResponse, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return &model.ReviewStatusResponse{
		JobID:      job.ID,
		Status:     job.Status,
		RepoURL:    job.RepoURL,
		PRNumber:   job.PRNumber,
		CreatedAt:  job.CreatedAt,
		UpdatedAt:  job.UpdatedAt,
		RetryCount: job.RetryCount,
	}, nil
}

// GetResult returns a job's terminal outcome. A stored payload that no
// longer parses degrades to an error message rather than failing the read.
func (s *ReviewService) GetResult(ctx context.Context, jobID string) (*model.ReviewResultResponse, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return resultResponse(job), nil
}

// resultResponse renders a job's terminal outcome. A stored payload
// that no longer parses degrades to an error message, never to a
// failed read.
func resultResponse(job *model.Job) *model.ReviewResultResponse {
	resp := &model.ReviewResultResponse{
		JobID:     job.ID,
		Status:    job.Status,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
		Error:     job.Error,
	}

	if len(job.Result) > 0 {
		var result model.AnalysisResult
		if err := json.Unmarshal(job.Result, &result); err != nil {
			msg := invalidResultsMessage
			resp.Error = &msg
		} else {
			resp.Result = &result
		}
	}

	return resp
}

// ListRecent returns the most recently submitted jobs, newest first.
// Records that have expired out of the store are skipped.
func (s *ReviewService) ListRecent(ctx context.Context, limit int) ([]model.ReviewListItem, error) {
	if limit <= 0 || limit > recentJobsMax {
		limit = recentJobsMax
	}

	ids, err := s.redis.LRange(ctx, recentJobsKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	items := make([]model.ReviewListItem, 0, len(ids))
	for _, id := range ids {
		job, err := s.GetJob(ctx, id)
		if err != nil {
			continue
		}
		items = append(items, model.ReviewListItem{
			JobID:     job.ID,
			RepoURL:   job.RepoURL,
			PRNumber:  job.PRNumber,
			Status:    job.Status,
			CreatedAt: job.CreatedAt,
			UpdatedAt: job.UpdatedAt,
		})
	}
	return items, nil
}

// MarkProcessing transitions a job into the processing state (called by worker)
func (s *ReviewService) MarkProcessing(ctx context.Context, jobID string) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	job.Status = model.JobStatusProcessing
	job.Error = nil
	job.Result = nil
	job.UpdatedAt = time.Now()

	return s.saveJob(ctx, job)
}

// CompleteJob stores the analysis result and marks the job completed (called by worker)
func (s *ReviewService) CompleteJob(ctx context.Context, jobID string, result *model.AnalysisResult) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	resultBytes, err := json.Marshal(result)
	if err != nil {
		return err
	}

	job.Status = model.JobStatusCompleted
	job.Result = resultBytes
	job.Error = nil
	job.UpdatedAt = time.Now()

	return s.saveJob(ctx, job)
}

// FailJob records the failure message and marks the job failed (called by worker)
func (s *ReviewService) FailJob(ctx context.Context, jobID, errMsg string) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	job.Status = model.JobStatusFailed
	job.Error = &errMsg
	job.Result = nil
	job.UpdatedAt = time.Now()

	return s.saveJob(ctx, job)
}

// Requeue schedules another attempt of the same logical job after the
// given delay, bumping its retry counter. The job identity is unchanged.
func (s *ReviewService) Requeue(ctx context.Context, jobID string, payload *model.ReviewJobPayload, delay time.Duration) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	job.RetryCount++
	job.UpdatedAt = time.Now()
	if err := s.saveJob(ctx, job); err != nil {
		return err
	}

	return s.enqueue(ctx, jobID, payload, delay)
}

// GetJob loads the full job record.
func (s *ReviewService) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := s.redis.Get(ctx, jobKeyPrefix+jobID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	var job storedJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}

	return job.toJob(), nil
}

// Helper methods

// storedJob is the persisted shape of a Job; Result and Error are
// carried explicitly because Job hides Result from its API rendering.
type storedJob struct {
	model.Job
	StoredResult []byte `json:"result,omitempty"`
}

func (sj *storedJob) toJob() *model.Job {
	job := sj.Job
	job.Result = sj.StoredResult
	return &job
}

func (s *ReviewService) saveJob(ctx context.Context, job *model.Job) error {
	stored := storedJob{Job: *job, StoredResult: job.Result}
	data, err := json.Marshal(&stored)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, jobKeyPrefix+job.ID, data, jobRetention).Err()
}

// discardJob removes a half-created job so a failed submission leaves
// no record behind. Best-effort: an unremoved record still expires.
func (s *ReviewService) discardJob(ctx context.Context, jobID string) {
	s.redis.Del(ctx, jobKeyPrefix+jobID)
	s.redis.LRem(ctx, recentJobsKey, 0, jobID)
}

func (s *ReviewService) indexJob(ctx context.Context, jobID string) error {
	if err := s.redis.LPush(ctx, recentJobsKey, jobID).Err(); err != nil {
		return err
	}
	return s.redis.LTrim(ctx, recentJobsKey, 0, recentJobsMax-1).Err()
}

func (s *ReviewService) enqueue(ctx context.Context, jobID string, payload *model.ReviewJobPayload, delay time.Duration) error {
	task, err := newReviewTask(jobID, payload)
	if err != nil {
		return err
	}

	opts := []asynq.Option{
		asynq.Queue("review"),
		// Retry is owned by the worker's RetryPolicy, not the transport.
		asynq.MaxRetry(0),
		asynq.Retention(jobRetention),
		asynq.Timeout(30 * time.Minute),
	}
	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}

	_, err = s.asynqClient.EnqueueContext(ctx, task, opts...)
	return err
}

func newReviewTask(jobID string, payload *model.ReviewJobPayload) (*asynq.Task, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	taskPayload := map[string]interface{}{
		"jobId":   jobID,
		"payload": json.RawMessage(payloadBytes),
	}
	data, err := json.Marshal(taskPayload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeReview, data), nil
}
