package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/InfinityFocus/Deebop-sub002/internal/client"
	"github.com/InfinityFocus/Deebop-sub002/internal/ffmpeg"
	"github.com/InfinityFocus/Deebop-sub002/internal/model"
	"github.com/InfinityFocus/Deebop-sub002/internal/service"
)

// Engine is the slice of the ffmpeg engine the workers consume.
// *ffmpeg.Engine satisfies it; tests substitute a fake.
type Engine interface {
	Available(ctx context.Context) bool
	Probe(ctx context.Context, path string) (ffmpeg.ProbeResult, error)
	ProbeAudio(ctx context.Context, path string) (float64, error)
	TranscodeVideo(ctx context.Context, in, out string, opts ffmpeg.VideoOptions, onProgress ffmpeg.ProgressFunc) error
	TranscodeAudio(ctx context.Context, in, out string) error
	Thumbnail(ctx context.Context, in, out string) error
	ProcessClip(ctx context.Context, in, out string, spec ffmpeg.ClipSpec) error
	Concat(ctx context.Context, inputs []string, out string) error
	FinalEncode(ctx context.Context, in, out string, opts ffmpeg.FinalEncodeOptions) error
}

// Notifier pushes live processing events to subscribed clients. The
// websocket hub implements it; a nil notifier is allowed.
type Notifier interface {
	BroadcastProgress(jobID string, progress int, status model.JobStatus)
	BroadcastComplete(jobID string, result interface{})
	BroadcastError(jobID, code, message string)
}

// JobOutcome is the never-fails result of ProcessJobSafe. The job row has
// already been updated before this is returned; it is the source of truth.
type JobOutcome struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// JobWorker drives a single-file job through download, probe, transcode,
// thumbnail, upload and finalization, owning every row mutation from
// processing to a terminal state.
type JobWorker struct {
	jobs    *service.JobService
	storage client.StorageClient
	engine  Engine
	hub     Notifier
	tempDir string
}

// NewJobWorker creates a job worker.
func NewJobWorker(jobs *service.JobService, storage client.StorageClient, engine Engine, hub Notifier, tempDir string) *JobWorker {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &JobWorker{jobs: jobs, storage: storage, engine: engine, hub: hub, tempDir: tempDir}
}

// ProcessTask handles a queued media:job task.
func (w *JobWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload service.JobTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}
	return w.TriggerProcessing(ctx, payload.JobID)
}

// TriggerProcessing is the dispatcher-facing entry point: it checks whether
// the transcode engine is invocable at all and either runs the full
// pipeline or takes the no-transcode fallback.
func (w *JobWorker) TriggerProcessing(ctx context.Context, jobID string) error {
	if !w.engine.Available(ctx) {
		log.Warn().Str("job_id", jobID).
			Msg("ffmpeg unavailable, completing job with raw upload; check the deployment environment")
		return w.completeWithRaw(ctx, jobID)
	}

	if err := w.ProcessJob(ctx, jobID); err != nil {
		wrapped := fmt.Errorf("job %s failed: %v", jobID, err)
		if isPolicyError(err) {
			// Policy rejections never succeed on retry.
			return fmt.Errorf("%v: %w", wrapped, asynq.SkipRetry)
		}
		return wrapped
	}
	return nil
}

// ProcessJobSafe runs ProcessJob and never returns an error: the row has
// already reached a terminal state and the outcome just reports which one.
func (w *JobWorker) ProcessJobSafe(ctx context.Context, jobID string) JobOutcome {
	if err := w.ProcessJob(ctx, jobID); err != nil {
		return JobOutcome{Success: false, Error: failMessage(err)}
	}
	return JobOutcome{Success: true}
}

// ProcessJob runs the full pipeline for one job. Any failure is recorded on
// the job row and broadcast before the error is returned, so the row is
// always in a terminal state when this resolves.
func (w *JobWorker) ProcessJob(ctx context.Context, jobID string) error {
	err := w.run(ctx, jobID)
	if err == nil {
		return nil
	}
	msg := failMessage(err)
	if failErr := w.jobs.Fail(ctx, jobID, msg); failErr != nil {
		log.Error().Err(failErr).Str("job_id", jobID).Msg("failed to mark job failed")
	}
	if w.hub != nil {
		w.hub.BroadcastError(jobID, "PROCESSING_FAILED", msg)
	}
	log.Error().Err(err).Str("job_id", jobID).Msg("media job failed")
	return err
}

func (w *JobWorker) run(ctx context.Context, jobID string) error {
	job, err := w.jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}

	if err := w.jobs.MarkProcessing(ctx, jobID, 10); err != nil {
		return fmt.Errorf("failed to mark job processing: %w", err)
	}
	w.notifyProgress(jobID, 10)

	run := &jobRun{worker: w, job: job}
	defer run.cleanup()

	switch job.Kind {
	case model.MediaKindAudio:
		err = run.processAudio(ctx)
	default:
		err = run.processVideo(ctx)
	}
	if err != nil {
		return err
	}

	if w.hub != nil {
		w.hub.BroadcastComplete(jobID, JobOutcome{Success: true})
	}
	log.Info().Str("job_id", jobID).Str("kind", string(job.Kind)).Msg("media job completed")
	return nil
}

// completeWithRaw is the degraded no-transcode path: the raw uploaded blob
// becomes the output so a completed job always has a usable URL.
func (w *JobWorker) completeWithRaw(ctx context.Context, jobID string) error {
	job, err := w.jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}
	if err := w.jobs.MarkProcessing(ctx, jobID, 10); err != nil {
		return fmt.Errorf("failed to mark job processing: %w", err)
	}
	if err := w.jobs.Complete(ctx, job, service.JobCompletion{OutputURL: job.RawFileURL}); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	if w.hub != nil {
		w.hub.BroadcastComplete(jobID, JobOutcome{Success: true})
	}
	return nil
}

func (w *JobWorker) notifyProgress(jobID string, progress int) {
	if w.hub != nil {
		w.hub.BroadcastProgress(jobID, progress, model.JobStatusProcessing)
	}
}

// jobRun holds one run's temp files so cleanup can remove them all
// best-effort, whatever stage the run died at.
type jobRun struct {
	worker *JobWorker
	job    *model.Job
	temps  []string
}

func (r *jobRun) tempPath(name string) string {
	p := filepath.Join(r.worker.tempDir, fmt.Sprintf("deebop-%s-%s", r.job.ID, name))
	r.temps = append(r.temps, p)
	return p
}

func (r *jobRun) cleanup() {
	for _, p := range r.temps {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Debug().Err(err).Str("path", p).Msg("temp cleanup failed")
		}
	}
}

func (r *jobRun) progress(ctx context.Context, p int) {
	if err := r.worker.jobs.UpdateProgress(ctx, r.job.ID, p); err != nil {
		log.Warn().Err(err).Str("job_id", r.job.ID).Msg("failed to update progress")
	}
	r.worker.notifyProgress(r.job.ID, p)
}

func (r *jobRun) processVideo(ctx context.Context) error {
	w := r.worker

	srcKey, err := w.storage.KeyFromURL(r.job.RawFileURL)
	if err != nil {
		return err
	}
	src := r.tempPath("src" + path.Ext(srcKey))
	if err := r.downloadToFile(ctx, srcKey, src); err != nil {
		return err
	}
	r.progress(ctx, 20)

	info, err := w.engine.Probe(ctx, src)
	if err != nil {
		return err
	}
	settings := model.VideoTierFor(r.job.Tier)
	if info.Duration > settings.MaxDuration {
		return &model.DurationExceededError{Limit: settings.MaxDuration, Actual: info.Duration}
	}
	r.progress(ctx, 30)

	out := r.tempPath("out.mp4")
	last := 30
	err = w.engine.TranscodeVideo(ctx, src, out,
		ffmpeg.VideoOptions{MaxHeight: settings.MaxHeight, Bitrate: settings.Bitrate},
		func(elapsed float64) {
			// Map encoder time onto the 30..69 band, never moving backwards.
			p := 30 + int(40*elapsed/info.Duration)
			if p > 69 {
				p = 69
			}
			if p > last {
				last = p
				r.progress(ctx, p)
			}
		})
	if err != nil {
		return err
	}
	r.progress(ctx, 70)

	thumb := r.tempPath("thumb.jpg")
	if err := w.engine.Thumbnail(ctx, out, thumb); err != nil {
		return err
	}
	r.progress(ctx, 80)

	outKey := client.DerivedKey(srcKey, "video", ".mp4")
	outputURL, err := r.uploadFile(ctx, outKey, out, "video/mp4")
	if err != nil {
		return err
	}
	thumbURL, err := r.uploadFile(ctx, client.ThumbKey(outKey), thumb, "image/jpeg")
	if err != nil {
		return err
	}
	r.progress(ctx, 90)

	// The stored derivative is re-probed; the transcode may have changed
	// dimensions via the scale cap, so the source metadata cannot be
	// trusted here.
	final, err := w.engine.Probe(ctx, out)
	if err != nil {
		return err
	}

	return w.jobs.Complete(ctx, r.job, service.JobCompletion{
		OutputURL:    outputURL,
		ThumbnailURL: &thumbURL,
		Duration:     &final.Duration,
		Width:        &final.Width,
		Height:       &final.Height,
	})
}

func (r *jobRun) processAudio(ctx context.Context) error {
	w := r.worker

	srcKey, err := w.storage.KeyFromURL(r.job.RawFileURL)
	if err != nil {
		return err
	}
	src := r.tempPath("src" + path.Ext(srcKey))
	if err := r.downloadToFile(ctx, srcKey, src); err != nil {
		return err
	}
	r.progress(ctx, 20)

	duration, err := w.engine.ProbeAudio(ctx, src)
	if err != nil {
		return err
	}
	settings := model.AudioTierFor(r.job.Tier)
	if duration > settings.MaxDuration {
		return &model.DurationExceededError{Limit: settings.MaxDuration, Actual: duration}
	}
	r.progress(ctx, 30)

	out := r.tempPath("out.m4a")
	if err := w.engine.TranscodeAudio(ctx, src, out); err != nil {
		return err
	}
	r.progress(ctx, 70)

	outKey := client.DerivedKey(srcKey, "audio", ".m4a")
	outputURL, err := r.uploadFile(ctx, outKey, out, "audio/mp4")
	if err != nil {
		return err
	}
	r.progress(ctx, 90)

	finalDuration, err := w.engine.ProbeAudio(ctx, out)
	if err != nil {
		return err
	}

	return w.jobs.Complete(ctx, r.job, service.JobCompletion{
		OutputURL: outputURL,
		Duration:  &finalDuration,
	})
}

func (r *jobRun) downloadToFile(ctx context.Context, key, dst string) error {
	body, err := r.worker.storage.Download(ctx, key)
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

func (r *jobRun) uploadFile(ctx context.Context, key, src, contentType string) (string, error) {
	f, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer f.Close()

	url, err := r.worker.storage.Upload(ctx, key, f, contentType)
	if err != nil {
		return "", err
	}
	return url, nil
}

// failMessage is the human-readable reason persisted on failed rows.
func failMessage(err error) string {
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "Unknown error"
}

// isPolicyError recognizes tier policy rejections, which are not worth
// retrying.
func isPolicyError(err error) bool {
	var de *model.DurationExceededError
	var te *model.TierRestrictionError
	return errors.As(err, &de) || errors.As(err, &te)
}
