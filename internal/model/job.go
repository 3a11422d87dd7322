package model

import "time"

// Job represents a persisted single-file transcoding job. The row is created
// by the upload API in queued state; once processing starts the job worker is
// the only writer until a terminal state is reached.
type Job struct {
	ID           string     `json:"id"`
	PostID       *string    `json:"postId,omitempty"`
	Kind         MediaKind  `json:"kind"`
	Tier         Tier       `json:"tier"`
	RawFileURL   string     `json:"rawFileUrl"`
	Status       JobStatus  `json:"status"`
	Progress     int        `json:"progress"`
	OutputURL    *string    `json:"outputUrl,omitempty"`
	ThumbnailURL *string    `json:"thumbnailUrl,omitempty"`
	Duration     *float64   `json:"duration,omitempty"`
	Width        *int       `json:"width,omitempty"`
	Height       *int       `json:"height,omitempty"`
	Error        *string    `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	ProcessedAt  *time.Time `json:"processedAt,omitempty"`
}

// CreateJobRequest is the payload accepted by POST /api/media/jobs.
type CreateJobRequest struct {
	PostID     *string `json:"postId" validate:"omitempty,uuid4"`
	Kind       string  `json:"kind" validate:"required,oneof=video audio"`
	Tier       string  `json:"tier" validate:"required,oneof=free creator standard pro teams"`
	RawFileURL string  `json:"rawFileUrl" validate:"required,url"`
}

// JobStatusResponse is returned by the status endpoint.
type JobStatusResponse struct {
	JobID        string     `json:"jobId"`
	Status       JobStatus  `json:"status"`
	Progress     int        `json:"progress"`
	OutputURL    *string    `json:"outputUrl,omitempty"`
	ThumbnailURL *string    `json:"thumbnailUrl,omitempty"`
	Duration     *float64   `json:"duration,omitempty"`
	Width        *int       `json:"width,omitempty"`
	Height       *int       `json:"height,omitempty"`
	Error        *string    `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	ProcessedAt  *time.Time `json:"processedAt,omitempty"`
}
