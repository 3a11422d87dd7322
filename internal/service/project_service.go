package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/InfinityFocus/Deebop-sub002/internal/model"
	"github.com/InfinityFocus/Deebop-sub002/internal/store"
)

// ProjectStore is the slice of the relational store the project pipeline
// needs. Get returns the project with clips ordered by sort order and all
// overlays.
type ProjectStore interface {
	Get(ctx context.Context, id string) (*model.Project, error)
	Update(ctx context.Context, id string, u store.ProjectUpdate) error
}

// ProjectTaskPayload is the queue payload for the multi-clip pipeline.
type ProjectTaskPayload struct {
	ProjectID string `json:"projectId"`
}

// ProjectService owns project row lifecycle around processing, mirroring
// JobService for the multi-clip pipeline.
type ProjectService struct {
	projects ProjectStore
	enqueuer TaskEnqueuer
}

// NewProjectService creates a project service.
func NewProjectService(projects ProjectStore, enqueuer TaskEnqueuer) *ProjectService {
	return &ProjectService{projects: projects, enqueuer: enqueuer}
}

// Enqueue schedules a project for processing.
func (s *ProjectService) Enqueue(ctx context.Context, projectID string) error {
	data, err := json.Marshal(ProjectTaskPayload{ProjectID: projectID})
	if err != nil {
		return fmt.Errorf("failed to marshal task payload: %w", err)
	}
	_, err = s.enqueuer.Enqueue(asynq.NewTask(TaskTypeMediaProject, data),
		asynq.Queue(QueueMedia),
		asynq.MaxRetry(1),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue project: %w", err)
	}
	return nil
}

// Get returns the project with its clips and overlays.
func (s *ProjectService) Get(ctx context.Context, projectID string) (*model.Project, error) {
	return s.projects.Get(ctx, projectID)
}

// GetStatus returns the status view of a project row.
func (s *ProjectService) GetStatus(ctx context.Context, projectID string) (*model.ProjectStatusResponse, error) {
	p, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return &model.ProjectStatusResponse{
		ProjectID:    p.ID,
		Status:       p.Status,
		Progress:     p.Progress,
		Duration:     p.Duration,
		OutputURL:    p.OutputURL,
		ThumbnailURL: p.ThumbnailURL,
		Error:        p.Error,
	}, nil
}

// MarkProcessing moves the row into processing at the given progress.
func (s *ProjectService) MarkProcessing(ctx context.Context, projectID string, progress int) error {
	status := model.JobStatusProcessing
	return s.projects.Update(ctx, projectID, store.ProjectUpdate{Status: &status, Progress: &progress})
}

// UpdateProgress writes a progress value.
func (s *ProjectService) UpdateProgress(ctx context.Context, projectID string, progress int) error {
	return s.projects.Update(ctx, projectID, store.ProjectUpdate{Progress: &progress})
}

// ProjectCompletion carries the terminal completed fields.
type ProjectCompletion struct {
	OutputURL    string
	ThumbnailURL string
	Duration     float64
}

// Complete marks the project completed with progress 100.
func (s *ProjectService) Complete(ctx context.Context, projectID string, c ProjectCompletion) error {
	status := model.JobStatusCompleted
	progress := 100
	now := time.Now()
	return s.projects.Update(ctx, projectID, store.ProjectUpdate{
		Status:       &status,
		Progress:     &progress,
		OutputURL:    &c.OutputURL,
		ThumbnailURL: &c.ThumbnailURL,
		Duration:     &c.Duration,
		ProcessedAt:  &now,
	})
}

// Fail marks the project failed with the given message.
func (s *ProjectService) Fail(ctx context.Context, projectID, errMsg string) error {
	status := model.JobStatusFailed
	now := time.Now()
	return s.projects.Update(ctx, projectID, store.ProjectUpdate{
		Status:      &status,
		Error:       &errMsg,
		ProcessedAt: &now,
	})
}
