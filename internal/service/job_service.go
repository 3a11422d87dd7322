package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/InfinityFocus/Deebop-sub002/internal/model"
	"github.com/InfinityFocus/Deebop-sub002/internal/store"
)

const (
	TaskTypeMediaJob     = "media:job"
	TaskTypeMediaProject = "media:project"
	TaskTypeMediaUpload  = "media:process"

	QueueMedia   = "media"
	QueueUploads = "uploads"
)

// JobStore is the slice of the relational store the job pipeline needs.
type JobStore interface {
	Create(ctx context.Context, job *model.Job) error
	Get(ctx context.Context, id string) (*model.Job, error)
	Update(ctx context.Context, id string, u store.JobUpdate) error
}

// PostStore propagates derived media metadata onto the parent content row.
type PostStore interface {
	UpdateMedia(ctx context.Context, postID string, duration float64, width, height *int) error
}

// TaskEnqueuer is the slice of asynq the services use. *asynq.Client
// satisfies it.
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// JobTaskPayload is the queue payload for the single-file pipeline.
type JobTaskPayload struct {
	JobID string `json:"jobId"`
}

// JobService owns job row lifecycle: creation and enqueueing on the API
// side, and the status/progress/terminal mutations the worker drives. Once a
// worker picks a job up it is the row's single writer; the queue guarantees
// at-most-one dispatch, there is no lock here.
type JobService struct {
	jobs     JobStore
	posts    PostStore
	enqueuer TaskEnqueuer
}

// NewJobService creates a job service.
func NewJobService(jobs JobStore, posts PostStore, enqueuer TaskEnqueuer) *JobService {
	return &JobService{jobs: jobs, posts: posts, enqueuer: enqueuer}
}

// CreateAndEnqueue inserts a queued job row and schedules it for processing.
func (s *JobService) CreateAndEnqueue(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	job := &model.Job{
		ID:         uuid.New().String(),
		PostID:     req.PostID,
		Kind:       model.MediaKind(req.Kind),
		Tier:       model.NormalizeTier(model.Tier(req.Tier)),
		RawFileURL: req.RawFileURL,
		Status:     model.JobStatusQueued,
		CreatedAt:  time.Now(),
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job row: %w", err)
	}
	if err := s.Enqueue(ctx, job.ID); err != nil {
		return nil, err
	}
	return job, nil
}

// Enqueue schedules an existing job row for processing.
func (s *JobService) Enqueue(ctx context.Context, jobID string) error {
	data, err := json.Marshal(JobTaskPayload{JobID: jobID})
	if err != nil {
		return fmt.Errorf("failed to marshal task payload: %w", err)
	}
	_, err = s.enqueuer.Enqueue(asynq.NewTask(TaskTypeMediaJob, data),
		asynq.Queue(QueueMedia),
		asynq.MaxRetry(3),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Get returns the job row.
func (s *JobService) Get(ctx context.Context, jobID string) (*model.Job, error) {
	return s.jobs.Get(ctx, jobID)
}

// GetStatus returns the status view of a job row.
func (s *JobService) GetStatus(ctx context.Context, jobID string) (*model.JobStatusResponse, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &model.JobStatusResponse{
		JobID:        job.ID,
		Status:       job.Status,
		Progress:     job.Progress,
		OutputURL:    job.OutputURL,
		ThumbnailURL: job.ThumbnailURL,
		Duration:     job.Duration,
		Width:        job.Width,
		Height:       job.Height,
		Error:        job.Error,
		CreatedAt:    job.CreatedAt,
		ProcessedAt:  job.ProcessedAt,
	}, nil
}

// MarkProcessing moves the row into processing at the given progress.
func (s *JobService) MarkProcessing(ctx context.Context, jobID string, progress int) error {
	status := model.JobStatusProcessing
	return s.jobs.Update(ctx, jobID, store.JobUpdate{Status: &status, Progress: &progress})
}

// UpdateProgress writes a progress value. Callers are responsible for
// keeping the sequence non-decreasing within a run.
func (s *JobService) UpdateProgress(ctx context.Context, jobID string, progress int) error {
	return s.jobs.Update(ctx, jobID, store.JobUpdate{Progress: &progress})
}

// JobCompletion carries everything a terminal completed row stores.
type JobCompletion struct {
	OutputURL    string
	ThumbnailURL *string
	Duration     *float64
	Width        *int
	Height       *int
}

// Complete marks the job completed with progress 100 and the derived output
// fields, then propagates duration/dimensions to the linked post if any.
func (s *JobService) Complete(ctx context.Context, job *model.Job, c JobCompletion) error {
	status := model.JobStatusCompleted
	progress := 100
	now := time.Now()
	err := s.jobs.Update(ctx, job.ID, store.JobUpdate{
		Status:       &status,
		Progress:     &progress,
		OutputURL:    &c.OutputURL,
		ThumbnailURL: c.ThumbnailURL,
		Duration:     c.Duration,
		Width:        c.Width,
		Height:       c.Height,
		ProcessedAt:  &now,
	})
	if err != nil {
		return err
	}

	if job.PostID != nil && c.Duration != nil && s.posts != nil {
		if err := s.posts.UpdateMedia(ctx, *job.PostID, *c.Duration, c.Width, c.Height); err != nil {
			return fmt.Errorf("failed to propagate media metadata: %w", err)
		}
	}
	return nil
}

// Fail marks the job failed with the given message.
func (s *JobService) Fail(ctx context.Context, jobID, errMsg string) error {
	status := model.JobStatusFailed
	now := time.Now()
	return s.jobs.Update(ctx, jobID, store.JobUpdate{
		Status:      &status,
		Error:       &errMsg,
		ProcessedAt: &now,
	})
}
