package processor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/InfinityFocus/Deebop-sub002/internal/client"
	"github.com/InfinityFocus/Deebop-sub002/internal/ffmpeg"
	"github.com/InfinityFocus/Deebop-sub002/internal/model"
)

// VideoEngine is the slice of the ffmpeg engine the upload processor
// consumes.
type VideoEngine interface {
	Probe(ctx context.Context, path string) (ffmpeg.ProbeResult, error)
	TranscodeVideo(ctx context.Context, in, out string, opts ffmpeg.VideoOptions, onProgress ffmpeg.ProgressFunc) error
	Thumbnail(ctx context.Context, in, out string) error
}

// VideoProcessor transcodes uploaded videos under the upload worker's own
// tier policy, which is stricter than the job pipeline's.
type VideoProcessor struct {
	storage client.StorageClient
	engine  VideoEngine
	tempDir string
}

// NewVideoProcessor creates a video processor.
func NewVideoProcessor(storage client.StorageClient, engine VideoEngine, tempDir string) *VideoProcessor {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &VideoProcessor{storage: storage, engine: engine, tempDir: tempDir}
}

// Process downloads, gates, transcodes and re-uploads one video.
func (p *VideoProcessor) Process(ctx context.Context, payload TaskPayload) (*Result, error) {
	workDir, err := os.MkdirTemp(p.tempDir, "deebop-upload-")
	if err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(workDir); rmErr != nil {
			log.Debug().Err(rmErr).Str("path", workDir).Msg("work dir cleanup failed")
		}
	}()

	src := filepath.Join(workDir, "src"+path.Ext(payload.InputKey))
	if err := p.download(ctx, payload.InputKey, src); err != nil {
		return nil, err
	}

	info, err := p.engine.Probe(ctx, src)
	if err != nil {
		return nil, err
	}
	settings := model.WorkerVideoTierFor(payload.Tier)
	if info.Duration > settings.MaxDuration {
		return nil, &model.DurationExceededError{Limit: settings.MaxDuration, Actual: info.Duration}
	}

	out := filepath.Join(workDir, "out.mp4")
	opts := ffmpeg.VideoOptions{MaxWidth: settings.MaxWidth, MaxHeight: settings.MaxHeight, Bitrate: settings.Bitrate}
	if err := p.engine.TranscodeVideo(ctx, src, out, opts, nil); err != nil {
		return nil, err
	}

	thumb := filepath.Join(workDir, "thumb.jpg")
	if err := p.engine.Thumbnail(ctx, out, thumb); err != nil {
		return nil, err
	}

	if err := p.upload(ctx, payload.OutputKey, out, "video/mp4"); err != nil {
		return nil, err
	}
	thumbKey := client.ThumbKey(payload.OutputKey)
	if err := p.upload(ctx, thumbKey, thumb, "image/jpeg"); err != nil {
		return nil, err
	}

	final, err := p.engine.Probe(ctx, out)
	if err != nil {
		return nil, err
	}
	return &Result{
		OutputKey:    payload.OutputKey,
		ThumbnailKey: thumbKey,
		Width:        final.Width,
		Height:       final.Height,
		Duration:     final.Duration,
	}, nil
}

func (p *VideoProcessor) download(ctx context.Context, key, dst string) error {
	body, err := p.storage.Download(ctx, key)
	if err != nil {
		return err
	}
	defer body.Close()

	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, body); err != nil {
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return nil
}

func (p *VideoProcessor) upload(ctx context.Context, key, src, contentType string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer f.Close()

	if _, err := p.storage.Upload(ctx, key, f, contentType); err != nil {
		return err
	}
	return nil
}
