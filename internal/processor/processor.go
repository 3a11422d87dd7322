package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/InfinityFocus/Deebop-sub002/internal/client"
	"github.com/InfinityFocus/Deebop-sub002/internal/imageproc"
	"github.com/InfinityFocus/Deebop-sub002/internal/model"
)

// PostUpdater propagates derived media metadata onto the parent content
// row. *store.PostStore satisfies it.
type PostUpdater interface {
	UpdateMedia(ctx context.Context, postID string, duration float64, width, height *int) error
}

// TaskPayload is the wire shape of an upload-processing task. The uploader
// enqueues it after the raw blob lands in storage.
type TaskPayload struct {
	ContentType model.ContentType `json:"contentType"`
	InputKey    string            `json:"inputKey"`
	OutputKey   string            `json:"outputKey"`
	Tier        model.Tier        `json:"tier"`
	PostID      *string           `json:"postId,omitempty"`
}

// Result is the metadata recorded after a successful pass.
type Result struct {
	OutputKey    string
	ThumbnailKey string
	Width        int
	Height       int
	Duration     float64
}

// Processor dispatches upload-processing tasks by content type. Unlike the
// job pipeline it keeps no per-task row; a failed task is simply retried by
// the queue.
type Processor struct {
	images *imageproc.Processor
	video  *VideoProcessor
	posts  PostUpdater
}

// New creates an upload processor.
func New(storage client.StorageClient, video *VideoProcessor, posts PostUpdater) *Processor {
	return &Processor{
		images: imageproc.NewProcessor(storage),
		video:  video,
		posts:  posts,
	}
}

// ProcessTask handles a queued media:process task.
func (p *Processor) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	result, err := p.Process(ctx, payload)
	if err != nil {
		var te *model.TierRestrictionError
		var de *model.DurationExceededError
		if errors.As(err, &te) || errors.As(err, &de) {
			// Re-running a policy rejection cannot change its outcome.
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	if payload.PostID != nil && p.posts != nil {
		if err := p.propagate(ctx, *payload.PostID, payload.ContentType, result); err != nil {
			log.Warn().Err(err).Str("post_id", *payload.PostID).Msg("failed to update post media")
		}
	}
	return nil
}

// Process runs one upload through the pipeline for its content type.
func (p *Processor) Process(ctx context.Context, payload TaskPayload) (*Result, error) {
	job := imageproc.ImageJob{
		Tier:      payload.Tier,
		InputKey:  payload.InputKey,
		OutputKey: payload.OutputKey,
	}

	switch payload.ContentType {
	case model.ContentTypeImage:
		r, err := p.images.ProcessImage(ctx, job)
		if err != nil {
			return nil, err
		}
		return &Result{OutputKey: r.OutputKey, ThumbnailKey: r.ThumbnailKey, Width: r.Width, Height: r.Height}, nil

	case model.ContentTypePanorama:
		r, err := p.images.ProcessPanorama(ctx, job)
		if err != nil {
			return nil, err
		}
		return &Result{OutputKey: r.OutputKey, ThumbnailKey: r.ThumbnailKey, Width: r.Width, Height: r.Height}, nil

	case model.ContentTypeVideo:
		return p.video.Process(ctx, payload)

	default:
		return nil, fmt.Errorf("unsupported content type: %s", payload.ContentType)
	}
}

func (p *Processor) propagate(ctx context.Context, postID string, ct model.ContentType, r *Result) error {
	if ct != model.ContentTypeVideo {
		// Images carry no duration; their dimensions ride along anyway.
		var width, height *int
		if r.Width > 0 {
			width = &r.Width
		}
		if r.Height > 0 {
			height = &r.Height
		}
		return p.posts.UpdateMedia(ctx, postID, 0, width, height)
	}
	return p.posts.UpdateMedia(ctx, postID, r.Duration, &r.Width, &r.Height)
}
