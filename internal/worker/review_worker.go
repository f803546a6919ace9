package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/reviewpilot/api/internal/analyzer"
	"github.com/reviewpilot/api/internal/client"
	"github.com/reviewpilot/api/internal/model"
	"github.com/reviewpilot/api/internal/service"
	"github.com/reviewpilot/api/internal/websocket"
)

const (
	// maxFilesPerReview caps how many change-set files are fetched and
	// analyzed; files past this index are never requested.
	maxFilesPerReview = 15
	// maxFetchBytes skips pathologically large blobs at fetch time.
	maxFetchBytes = 100000
)

// ContentFetcher is the slice of the GitHub client the worker needs.
type ContentFetcher interface {
	ListPullRequestFiles(ctx context.Context, repoURL string, prNumber int, token string) ([]client.PullRequestFile, error)
	GetFileContent(ctx context.Context, repoURL, ref, path, token string) (string, bool, error)
}

// JobService is the job bookkeeping surface the worker drives.
// *service.ReviewService implements it.
type JobService interface {
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	MarkProcessing(ctx context.Context, jobID string) error
	CompleteJob(ctx context.Context, jobID string, result *model.AnalysisResult) error
	FailJob(ctx context.Context, jobID, errMsg string) error
	Requeue(ctx context.Context, jobID string, payload *model.ReviewJobPayload, delay time.Duration) error
}

// PRAnalyzer runs the multi-analyzer aggregation over a change set.
type PRAnalyzer interface {
	AnalyzePR(ctx context.Context, filenames []string, contents map[string]string) *model.AnalysisResult
}

// ConfiguredChecker reports whether the analysis backend is usable.
type ConfiguredChecker interface {
	IsConfigured() bool
}

// ReviewWorker executes the full review pipeline for one job: state
// transitions, content fetch, analysis, result persistence and the
// retry decision on failure.
type ReviewWorker struct {
	reviewService JobService
	fetcher       ContentFetcher
	orchestrator  PRAnalyzer
	llm           ConfiguredChecker
	archive       client.StorageClient
	hub           *websocket.Hub
	policy        RetryPolicy
}

// NewReviewWorker creates a new review worker
func NewReviewWorker(
	reviewService JobService,
	fetcher ContentFetcher,
	orchestrator PRAnalyzer,
	llm ConfiguredChecker,
	archive client.StorageClient,
	hub *websocket.Hub,
	policy RetryPolicy,
) *ReviewWorker {
	return &ReviewWorker{
		reviewService: reviewService,
		fetcher:       fetcher,
		orchestrator:  orchestrator,
		llm:           llm,
		archive:       archive,
		hub:           hub,
		policy:        policy,
	}
}

// ProcessTask handles one delivery of a review task. Delivery is
// at-least-once: re-running a job simply re-derives and overwrites its
// result, so every path through here is safe to repeat.
func (w *ReviewWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var taskPayload struct {
		JobID   string          `json:"jobId"`
		Payload json.RawMessage `json:"payload"`
	}

	if err := json.Unmarshal(t.Payload(), &taskPayload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	jobID := taskPayload.JobID
	log.Printf("[Job %s] Starting review", jobID)

	var payload model.ReviewJobPayload
	if err := json.Unmarshal(taskPayload.Payload, &payload); err != nil {
		w.failJob(ctx, jobID, "Invalid payload")
		return fmt.Errorf("failed to unmarshal review payload: %w", err)
	}

	job, err := w.reviewService.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			// The record is gone; there is nothing to update and
			// nothing to retry.
			log.Printf("[Job %s] Record not found, dropping task", jobID)
			return nil
		}
		// Store hiccups go through the same recovery as any other
		// transient failure; transport-level redelivery is disabled.
		w.handleFailure(ctx, &model.Job{ID: jobID}, &payload, fmt.Errorf("failed to load job: %w", err))
		return nil
	}

	if err := w.reviewService.MarkProcessing(ctx, jobID); err != nil {
		w.handleFailure(ctx, job, &payload, fmt.Errorf("failed to mark job processing: %w", err))
		return nil
	}
	w.hub.BroadcastState(jobID, model.JobStatusProcessing)

	result, runErr := w.runPipeline(ctx, jobID, &payload)
	if runErr != nil {
		w.handleFailure(ctx, job, &payload, runErr)
		return nil
	}

	if err := w.reviewService.CompleteJob(ctx, jobID, result); err != nil {
		w.handleFailure(ctx, job, &payload, fmt.Errorf("failed to save result: %w", err))
		return nil
	}

	w.archiveReport(ctx, jobID, result)
	w.hub.BroadcastComplete(jobID, result)
	log.Printf("[Job %s] Review completed: %d files, %d findings",
		jobID, result.Summary.TotalFiles, result.Summary.TotalFindings)
	return nil
}

// runPipeline executes fetch → analyze → aggregate for one attempt.
func (w *ReviewWorker) runPipeline(ctx context.Context, jobID string, payload *model.ReviewJobPayload) (*model.AnalysisResult, error) {
	if w.llm == nil || !w.llm.IsConfigured() {
		return nil, ErrAnalyzerNotConfigured
	}

	log.Printf("[Job %s] Fetching changed files for %s#%d", jobID, payload.RepoURL, payload.PRNumber)
	files, err := w.fetcher.ListPullRequestFiles(ctx, payload.RepoURL, payload.PRNumber, payload.GithubToken)
	if err != nil {
		return nil, fmt.Errorf("failed to list pull request files: %w", err)
	}
	if len(files) == 0 {
		return nil, ErrNoEligibleFiles
	}

	if len(files) > maxFilesPerReview {
		files = files[:maxFilesPerReview]
	}

	ref := fmt.Sprintf("pull/%d/head", payload.PRNumber)
	filenames := make([]string, 0, len(files))
	contents := make(map[string]string)

	for _, f := range files {
		filenames = append(filenames, f.Filename)

		content, found, err := w.fetcher.GetFileContent(ctx, payload.RepoURL, ref, f.Filename, payload.GithubToken)
		if err != nil {
			log.Printf("[Job %s] Could not fetch %s: %v", jobID, f.Filename, err)
			continue
		}
		if !found || content == "" {
			log.Printf("[Job %s] No content for %s", jobID, f.Filename)
			continue
		}
		if len(content) >= maxFetchBytes {
			log.Printf("[Job %s] Skipping oversized file %s (%d bytes)", jobID, f.Filename, len(content))
			continue
		}
		contents[f.Filename] = content
	}

	eligible := false
	for name := range contents {
		if analyzer.IsSourceFile(name) {
			eligible = true
			break
		}
	}
	if !eligible {
		return nil, ErrNoEligibleFiles
	}

	log.Printf("[Job %s] Analyzing %d files", jobID, len(contents))
	return w.orchestrator.AnalyzePR(ctx, filenames, contents), nil
}

// handleFailure records the failure and consults the retry policy.
// Terminal failures and exhausted retries leave the job at rest in the
// failed state; everything else schedules another attempt of the same
// job identifier.
func (w *ReviewWorker) handleFailure(ctx context.Context, job *model.Job, payload *model.ReviewJobPayload, runErr error) {
	log.Printf("[Job %s] Review failed: %v", job.ID, runErr)
	w.failJob(ctx, job.ID, runErr.Error())

	if !w.policy.ShouldRetry(runErr, job.RetryCount) {
		if !w.policy.IsTerminal(runErr) {
			log.Printf("[Job %s] Retry budget exhausted after %d retries", job.ID, job.RetryCount)
		}
		return
	}

	if err := w.reviewService.Requeue(ctx, job.ID, payload, w.policy.Delay); err != nil {
		log.Printf("[Job %s] Failed to schedule retry: %v", job.ID, err)
		return
	}
	log.Printf("[Job %s] Retry %d/%d scheduled in %s", job.ID, job.RetryCount+1, w.policy.MaxRetries, w.policy.Delay)
}

func (w *ReviewWorker) failJob(ctx context.Context, jobID, errMsg string) {
	if err := w.reviewService.FailJob(ctx, jobID, errMsg); err != nil {
		log.Printf("[Job %s] Failed to mark job as failed: %v", jobID, err)
	}
	w.hub.BroadcastError(jobID, "REVIEW_FAILED", errMsg)
}

// archiveReport copies the completed report into the configured object
// store. Archiving is best-effort; the job outcome does not depend on it.
func (w *ReviewWorker) archiveReport(ctx context.Context, jobID string, result *model.AnalysisResult) {
	if w.archive == nil {
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		log.Printf("[Job %s] Failed to marshal report for archive: %v", jobID, err)
		return
	}

	key := fmt.Sprintf("reports/%s.json", jobID)
	url, err := w.archive.Upload(ctx, key, bytes.NewReader(data), "application/json")
	if err != nil {
		log.Printf("[Job %s] Failed to archive report: %v", jobID, err)
		return
	}
	log.Printf("[Job %s] Report archived at %s", jobID, url)
}
